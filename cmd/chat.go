package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/driftware/deskhand/internal/agent"
	"github.com/driftware/deskhand/internal/config"
)

func chatCmd() *cobra.Command {
	var agentID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive session with streaming output",
		Long: `Start an interactive session. Each message runs the agent against the
desktop; assistant text streams as it is produced. Ctrl+C aborts the
current task without leaving the session; /quit exits.`,
		Run: func(cmd *cobra.Command, args []string) {
			runChat(agentID)
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "default", "agent name")
	return cmd
}

func runChat(agentID string) {
	cfg := loadConfig()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(rootCtx, cfg, agentID)
	if err != nil {
		fatalf("%v", err)
	}
	defer rt.close()

	// Config changes apply to the next message.
	if watcher, err := config.NewWatcher(resolveConfigPath()); err == nil {
		watcher.OnChange(func(next *config.Config) {
			rt.setConfig(next)
			slog.Info("config reloaded, applies to the next message")
		})
		if err := watcher.Start(); err == nil {
			defer watcher.Stop()
		}
	}

	fmt.Printf("deskhand chat — model %s. Type a task, /quit to exit.\n", cfg.Provider.Model)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return
		}

		runChatMessage(rootCtx, rt, line)
	}
}

// runChatMessage executes one message as a run. SIGINT aborts the run
// but keeps the session alive.
func runChatMessage(rootCtx context.Context, rt *runtime, prompt string) {
	ctx, cancel := context.WithCancel(rootCtx)
	defer cancel()

	intr := make(chan os.Signal, 1)
	signal.Notify(intr, os.Interrupt)
	defer signal.Stop(intr)
	go func() {
		select {
		case <-intr:
			fmt.Fprintln(os.Stderr, "\naborting...")
			cancel()
		case <-ctx.Done():
		}
	}()

	loop := rt.newLoop()
	res, err := loop.Run(ctx, agent.RunRequest{
		Prompt: prompt,
		OnChunk: func(text string) {
			fmt.Print(text)
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		return
	}

	switch res.StopReason {
	case agent.StopDone:
		fmt.Println()
	case agent.StopBudgetExceeded:
		fmt.Fprintf(os.Stderr, "\n[step budget exhausted after %d steps]\n", res.Steps)
	case agent.StopCancelled:
		fmt.Fprintln(os.Stderr, "[aborted]")
	}
}

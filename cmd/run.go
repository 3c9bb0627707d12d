package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/driftware/deskhand/internal/agent"
)

func runCmd() *cobra.Command {
	var (
		agentID    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "run \"task description\"",
		Short: "Run one task to completion",
		Long: `Run a single task and print the agent's final answer.

Examples:
  deskhand run "open firefox and search for the weather in Berlin"
  deskhand run --json "take a screenshot and describe the desktop"`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runTask(args[0], agentID, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "default", "agent name")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the run result as JSON")
	return cmd
}

func runTask(prompt, agentID string, jsonOutput bool) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg, agentID)
	if err != nil {
		fatalf("%v", err)
	}
	defer rt.close()

	loop := rt.newLoop()
	res, err := loop.Run(ctx, agent.RunRequest{Prompt: prompt})
	if err != nil {
		fatalf("run failed: %v", err)
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(out))
		return
	}

	switch res.StopReason {
	case agent.StopDone:
		fmt.Println(res.FinalText)
	case agent.StopBudgetExceeded:
		fmt.Fprintf(os.Stderr, "Run stopped: step budget (%d) exhausted after %d steps.\n",
			cfg.Agent.MaxSteps, res.Steps)
		os.Exit(1)
	case agent.StopCancelled:
		fmt.Fprintln(os.Stderr, "Run cancelled.")
		os.Exit(130)
	}
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftware/deskhand/internal/config"
	"github.com/driftware/deskhand/internal/store"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect past runs",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsShowCmd())
	return cmd
}

func openRunStore() *store.SQLiteStore {
	cfg := loadConfig()
	s, err := store.Open(config.ExpandHome(cfg.Store.Path))
	if err != nil {
		fatalf("opening run store: %v", err)
	}
	return s
}

func sessionsListCmd() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Run: func(cmd *cobra.Command, args []string) {
			s := openRunStore()
			defer s.Close()

			runs, err := s.ListRuns(limit)
			if err != nil {
				fatalf("%v", err)
			}
			printRuns(runs, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to show")
	return cmd
}

func printRuns(runs []store.Run, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(runs, "", "  ")
		fmt.Println(string(data))
		return
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tAGENT\tSTATUS\tSTEPS\tSTARTED\tDURATION\tPROMPT")
	for _, r := range runs {
		dur := "-"
		if !r.EndedAt.IsZero() {
			dur = r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			shortID(r.ID), r.AgentID, r.Status, r.Steps,
			r.StartedAt.Format("2006-01-02 15:04"), dur, truncatePrompt(r.Prompt, 48))
	}
	w.Flush()
}

func sessionsShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		withSpans  bool
	)
	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a run's transcript",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s := openRunStore()
			defer s.Close()
			showRun(s, args[0], jsonOutput, withSpans)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&withSpans, "spans", false, "include trace spans")
	return cmd
}

func showRun(s *store.SQLiteStore, id string, jsonOutput, withSpans bool) {
	run, err := resolveRun(s, id)
	if err != nil {
		fatalf("%v", err)
	}
	turns, err := s.ListTurns(run.ID)
	if err != nil {
		fatalf("%v", err)
	}

	if jsonOutput {
		out := struct {
			Run   store.Run    `json:"run"`
			Turns []store.Turn `json:"turns"`
			Spans []store.Span `json:"spans,omitempty"`
		}{Run: run, Turns: turns}
		if withSpans {
			out.Spans, _ = s.ListSpans(run.ID)
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Run %s (%s)\n", run.ID, run.Status)
	fmt.Printf("  Agent:  %s\n", run.AgentID)
	fmt.Printf("  Prompt: %s\n", run.Prompt)
	fmt.Printf("  Steps:  %d\n\n", run.Steps)

	for _, t := range turns {
		tag := t.Role
		if t.ToolName != "" {
			tag = fmt.Sprintf("%s:%s", t.Role, t.ToolName)
		}
		if t.IsError {
			tag += " (error)"
		}
		if t.HasImage {
			tag += " [screenshot]"
		}
		fmt.Printf("[%s] %s\n", tag, truncatePrompt(t.Content, 200))
	}

	if withSpans {
		spans, err := s.ListSpans(run.ID)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Println("\nSpans:")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tDURATION\tSTATUS")
		for _, sp := range spans {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				sp.Name, sp.Kind, sp.EndAt.Sub(sp.StartAt).Round(time.Millisecond), sp.Status)
		}
		w.Flush()
	}
}

// resolveRun accepts a full run ID or an unambiguous prefix.
func resolveRun(s *store.SQLiteStore, id string) (store.Run, error) {
	if run, err := s.GetRun(id); err == nil {
		return run, nil
	}
	runs, err := s.ListRuns(0)
	if err != nil {
		return store.Run{}, err
	}
	var match *store.Run
	for i := range runs {
		if strings.HasPrefix(runs[i].ID, id) {
			if match != nil {
				return store.Run{}, fmt.Errorf("run id %q is ambiguous", id)
			}
			match = &runs[i]
		}
	}
	if match == nil {
		return store.Run{}, fmt.Errorf("run not found: %s", id)
	}
	return *match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncatePrompt(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

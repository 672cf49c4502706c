package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tartakovsky/prompttester/internal/session"
)

func newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "View run session logs",
		Long: `View run session logs.

Session logs are NDJSON files written by "prompttester run --session-log".
They record the run lifecycle: run start, each prompt's start and completion,
errors, and how the run ended.`,
	}

	cmd.AddCommand(newSessionsListCommand())
	cmd.AddCommand(newSessionsViewCommand())

	return cmd
}

func newSessionsListCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded session logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			files, err := session.List(absDir)
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No session logs found.") //nolint:errcheck
				return nil
			}

			fmt.Fprintf(out, "%-44s %6s  %s\n", "File", "Events", "Modified") //nolint:errcheck
			for _, f := range files {
				fmt.Fprintf(out, "%-44s %6d  %s\n", f.Name, f.Events, f.ModTime.Format(time.DateTime)) //nolint:errcheck
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", sessionLogDir, "Directory to search for session logs")

	return cmd
}

func newSessionsViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view <session-file>",
		Short: "View a run timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := session.Read(args[0])
			if err != nil {
				return fmt.Errorf("reading session: %w", err)
			}
			session.Render(cmd.OutOrStdout(), events)
			return nil
		},
	}
}

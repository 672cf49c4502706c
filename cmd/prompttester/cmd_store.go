package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tartakovsky/prompttester/internal/cache"
	"github.com/tartakovsky/prompttester/internal/models"
	"github.com/tartakovsky/prompttester/internal/projectconfig"
)

func newStoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and manage persisted tests and snapshots",
	}

	cmd.AddCommand(newStoreListCommand())
	cmd.AddCommand(newStoreShowCommand())
	cmd.AddCommand(newStoreClearCommand())

	return cmd
}

func newStoreListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, closeStore, err := openWorkspace()
			if err != nil {
				return err
			}
			defer closeStore()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  %s  %-10s %-8s %s\n", padRight("Test", 40), "Mode", "Prompts", "Last run") //nolint:errcheck
			for _, t := range ws.Tests {
				marker := " "
				if t.ID == ws.ActiveID {
					marker = "*"
				}
				last := "never"
				if snap, ok := ws.Snapshot(t.ID); ok {
					total, failed := countCells(snap)
					last = fmt.Sprintf("%d cell(s), %d failed", total, failed)
				}
				fmt.Fprintf(out, "%s %s  %-10s %-8d %s\n", marker, padRight(fit(t.Name+" ("+t.ID+")", 40), 40), t.Mode, len(t.Prompts), last) //nolint:errcheck
			}
			return nil
		},
	}
}

func newStoreShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [test-id]",
		Short: "Print the last snapshot of a test (the active test by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, closeStore, err := openWorkspace()
			if err != nil {
				return err
			}
			defer closeStore()

			var (
				tc   *models.TestConfig
				snap *models.Snapshot
				ok   bool
			)
			if len(args) == 1 {
				if tc, ok = ws.Test(args[0]); !ok {
					return fmt.Errorf("no test with id %q", args[0])
				}
				snap, ok = ws.Snapshot(tc.ID)
			} else {
				tc = ws.Active()
				snap, ok = ws.ActiveSnapshot()
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has no results yet.\n", tc.Name) //nolint:errcheck
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", tc.Name, tc.ID) //nolint:errcheck
			reportSnapshot(cmd.OutOrStdout(), snap, tc.Mode, nil)
			return nil
		},
	}
}

func newStoreClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every persisted test and snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadProjectConfig()
			if err != nil {
				return err
			}

			switch cfg.Store.Backend {
			case projectconfig.StoreDir:
				if err := cache.NewDirStore(cfg.Store.Path, nil).Clear(); err != nil {
					return fmt.Errorf("clearing store: %w", err)
				}
			default:
				if err := os.Remove(cfg.Store.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("clearing store: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", cfg.Store.Path) //nolint:errcheck
			return nil
		},
	}
}

func openWorkspace() (*cache.Workspace, func(), error) {
	cfg, err := loadProjectConfig()
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	return cache.LoadWorkspace(store, nil), closeStore, nil
}

package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tartakovsky/prompttester/internal/pricing"
)

func newModelsCommand() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List OpenRouter models with per-million-token prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadProjectConfig()
			if err != nil {
				return err
			}

			list, err := newUpstreamClient(cfg).ListModels(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing models: %w", err)
			}
			sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %12s  %12s\n", padRight("Model", 48), "Prompt/M", "Completion/M") //nolint:errcheck
			fmt.Fprintln(out, strings.Repeat("─", 48+2+12+2+12))                                 //nolint:errcheck
			shown := 0
			for _, m := range list {
				if filter != "" && !strings.Contains(strings.ToLower(m.ID), strings.ToLower(filter)) {
					continue
				}
				p := pricing.Price{Prompt: m.PromptPrice, Completion: m.CompletionPrice}
				fmt.Fprintf(out, "%s  %12s  %12s\n", padRight(fit(m.ID, 48), 48), perMillion(p.Prompt), perMillion(p.Completion)) //nolint:errcheck
				shown++
			}
			fmt.Fprintf(out, "\n%d model(s)\n", shown) //nolint:errcheck
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Only show models whose id contains this text")

	return cmd
}

// perMillion renders a per-token price as dollars per million tokens.
func perMillion(perToken float64) string {
	if perToken == 0 {
		return "free"
	}
	return fmt.Sprintf("$%.2f", perToken*1e6)
}

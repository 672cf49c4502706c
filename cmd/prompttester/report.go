package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/tartakovsky/prompttester/internal/models"
	"github.com/tartakovsky/prompttester/internal/pricing"
	"github.com/tartakovsky/prompttester/internal/statistics"
)

const (
	labelWidth = 18
	cellWidth  = 30
)

// reportSnapshot prints one grid per prompt: inputs down, models across,
// followed by a totals row with token usage and projected monthly cost.
func reportSnapshot(w io.Writer, snap *models.Snapshot, mode models.Mode, table pricing.Table) {
	if snap == nil {
		return
	}
	inputIDs := make([]string, len(snap.Inputs))
	for i, in := range snap.Inputs {
		inputIDs[i] = in.ID
	}

	for _, p := range snap.Prompts {
		fmt.Fprintf(w, "\n%s\n", p.Name) //nolint:errcheck
		fmt.Fprintln(w, strings.Repeat("─", labelWidth+len(snap.Models)*(cellWidth+3))) //nolint:errcheck

		header := []string{padRight("Input", labelWidth)}
		for _, m := range snap.Models {
			header = append(header, padRight(fit(m.Name, cellWidth), cellWidth))
		}
		fmt.Fprintln(w, strings.Join(header, " │ ")) //nolint:errcheck

		for _, in := range snap.Inputs {
			row := []string{padRight(fit(in.Name, labelWidth), labelWidth)}
			for _, m := range snap.Models {
				cell, _ := p.Results.Get(m.ModelID, in.ID)
				row = append(row, padRight(fit(cellText(cell, mode), cellWidth), cellWidth))
			}
			fmt.Fprintln(w, strings.Join(row, " │ ")) //nolint:errcheck
		}

		tokens := []string{padRight("Tokens", labelWidth)}
		costs := []string{padRight("Cost", labelWidth)}
		showCost := false
		for _, m := range snap.Models {
			est := pricing.EstimateModel(p.Results, m.ModelID, inputIDs, table, mode)
			tokens = append(tokens, padRight(fit(pricing.FormatTokens(est), cellWidth), cellWidth))
			cost := "-"
			if est.MonthlyCost > 0 {
				cost = pricing.FormatMonthly(est.MonthlyCost, est.Volume)
				showCost = true
			}
			costs = append(costs, padRight(fit(cost, cellWidth), cellWidth))
		}
		if mode == models.ModeScorer {
			scores := []string{padRight("Mean score", labelWidth)}
			for _, m := range snap.Models {
				scores = append(scores, padRight(fit(scoreSummary(p.Results, m.ModelID, inputIDs), cellWidth), cellWidth))
			}
			fmt.Fprintln(w, strings.Join(scores, " │ ")) //nolint:errcheck

			actions := []string{padRight("Actions", labelWidth)}
			for _, m := range snap.Models {
				actions = append(actions, padRight(fit(actionSummary(p.Results, m.ModelID, inputIDs), cellWidth), cellWidth))
			}
			fmt.Fprintln(w, strings.Join(actions, " │ ")) //nolint:errcheck
		}
		if mode != models.ModePlain {
			schema := []string{padRight("Schema", labelWidth)}
			showSchema := false
			for _, m := range snap.Models {
				s := schemaSummary(p.Results, m.ModelID, inputIDs)
				if s != "ok" {
					showSchema = true
				}
				schema = append(schema, padRight(fit(s, cellWidth), cellWidth))
			}
			if showSchema {
				fmt.Fprintln(w, strings.Join(schema, " │ ")) //nolint:errcheck
			}
		}
		fmt.Fprintln(w, strings.Join(tokens, " │ ")) //nolint:errcheck
		if showCost {
			fmt.Fprintln(w, strings.Join(costs, " │ ")) //nolint:errcheck
		}
	}
}

// scoreSummary renders the mean score of a model with its 95% bootstrap
// interval, e.g. "0.72 [0.61, 0.83] n=5".
func scoreSummary(results models.Results, model string, inputIDs []string) string {
	scores := statistics.ModelScores(results, model, inputIDs)
	if len(scores) == 0 {
		return "-"
	}
	ci := statistics.BootstrapCIWithSeed(scores, statistics.DefaultConfidenceLevel, 1)
	if ci.N < 2 {
		return fmt.Sprintf("%.2f n=%d", ci.Mean, ci.N)
	}
	return fmt.Sprintf("%.2f [%.2f, %.2f] n=%d", ci.Mean, ci.Lower, ci.Upper, ci.N)
}

var reportActions = []models.Action{models.ActionLike, models.ActionComment, models.ActionShare, models.ActionSave}

// actionSummary renders the share of scored cells carrying each action as
// "L 80% C 40% S 0% V 20%".
func actionSummary(results models.Results, model string, inputIDs []string) string {
	if len(statistics.ModelScores(results, model, inputIDs)) == 0 {
		return "-"
	}
	parts := make([]string, len(reportActions))
	for i, a := range reportActions {
		letter := string(a[0])
		if a == models.ActionSave {
			letter = "V"
		}
		parts[i] = fmt.Sprintf("%s %.0f%%", letter, 100*statistics.ActionRate(results, model, inputIDs, a))
	}
	return strings.Join(parts, " ")
}

// schemaSummary counts the successful cells of a model whose output strayed
// from the response schema, e.g. "2/5 off-schema".
func schemaSummary(results models.Results, model string, inputIDs []string) string {
	var ok, off int
	for _, id := range inputIDs {
		c, found := results.Get(model, id)
		if !found || c.State() != models.CellSuccess {
			continue
		}
		ok++
		if len(c.SchemaViolations) > 0 {
			off++
		}
	}
	switch {
	case ok == 0:
		return "-"
	case off == 0:
		return "ok"
	}
	return fmt.Sprintf("%d/%d off-schema", off, ok)
}

// cellText renders the one-line summary of a cell for the grid.
func cellText(c models.CellResult, mode models.Mode) string {
	switch c.State() {
	case models.CellError:
		return "ERR " + *c.Error
	case models.CellAbsent:
		return "-"
	}

	switch {
	case mode == models.ModeScorer && c.Score != nil:
		s := fmt.Sprintf("%.2f", *c.Score)
		if len(c.Actions) > 0 {
			acts := make([]string, len(c.Actions))
			for i, a := range c.Actions {
				acts[i] = string(a)
			}
			s += " " + strings.Join(acts, ",")
		}
		return s
	case mode == models.ModeCommenter && c.Comment != nil:
		return *c.Comment
	case c.Output != nil:
		return *c.Output
	default:
		return "-"
	}
}

// fit flattens whitespace and truncates s to width display cells.
func fit(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "…")
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

// countCells returns the total and failed cell counts across every prompt.
func countCells(snap *models.Snapshot) (total, failed int) {
	if snap == nil {
		return 0, 0
	}
	for _, p := range snap.Prompts {
		total += p.Results.CellCount()
		failed += p.Results.ErrorCount()
	}
	return total, failed
}

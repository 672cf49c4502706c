// Package pricing turns per-token model prices and recorded token usage into
// cost estimates.
package pricing

import (
	"github.com/tartakovsky/prompttester/internal/models"
	"github.com/tartakovsky/prompttester/internal/openrouter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Monthly run volumes used to project per-run cost.
const (
	ScorerMonthlyVolume  = 10000
	DefaultMonthlyVolume = 3000
)

var printer = message.NewPrinter(language.English)

// Price is the USD cost per prompt and completion token.
type Price struct {
	Prompt     float64 `json:"prompt"`
	Completion float64 `json:"completion"`
}

// Table maps upstream model id to its price.
type Table map[string]Price

// TableFromModels builds a Table from a model catalogue listing.
func TableFromModels(list []openrouter.ModelInfo) Table {
	t := make(Table, len(list))
	for _, m := range list {
		t[m.ID] = Price{Prompt: m.PromptPrice, Completion: m.CompletionPrice}
	}
	return t
}

// MonthlyVolume returns the number of runs per month a mode is projected at.
func MonthlyVolume(mode models.Mode) int {
	if mode == models.ModeScorer {
		return ScorerMonthlyVolume
	}
	return DefaultMonthlyVolume
}

// Estimate summarises token usage and cost of one model across a set of inputs.
type Estimate struct {
	InputTokens  int
	OutputTokens int
	Successes    int
	TotalCost    float64
	MonthlyCost  float64
	Volume       int
}

// TotalTokens is InputTokens + OutputTokens.
func (e Estimate) TotalTokens() int {
	return e.InputTokens + e.OutputTokens
}

// EstimateModel sums the successful cells of model over inputIDs. Error and
// absent cells are skipped. A model missing from table contributes tokens but
// no cost.
func EstimateModel(results models.Results, model string, inputIDs []string, table Table, mode models.Mode) Estimate {
	est := Estimate{Volume: MonthlyVolume(mode)}
	price, priced := table[model]

	for _, id := range inputIDs {
		cell, ok := results.Get(model, id)
		if !ok || cell.State() != models.CellSuccess {
			continue
		}
		in, out := deref(cell.InputTokens), deref(cell.OutputTokens)
		est.InputTokens += in
		est.OutputTokens += out
		est.Successes++
		if priced {
			est.TotalCost += float64(in)*price.Prompt + float64(out)*price.Completion
		}
	}

	if est.Successes > 0 {
		est.MonthlyCost = est.TotalCost / float64(est.Successes) * float64(est.Volume)
	}
	return est
}

// FormatMonthly renders a monthly cost such as "~$1.23/mo (10,000 runs)".
// Costs under one cent keep four decimals.
func FormatMonthly(cost float64, volume int) string {
	if cost < 0.01 {
		return printer.Sprintf("~$%.4f/mo (%d runs)", cost, volume)
	}
	return printer.Sprintf("~$%.2f/mo (%d runs)", cost, volume)
}

// FormatTokens renders "in+out = total tok", or "-" when nothing was used.
func FormatTokens(e Estimate) string {
	if e.TotalTokens() == 0 {
		return "-"
	}
	return printer.Sprintf("%d+%d = %d tok", e.InputTokens, e.OutputTokens, e.TotalTokens())
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

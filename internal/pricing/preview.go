package pricing

import (
	"strings"

	"github.com/tartakovsky/prompttester/internal/models"
	"github.com/tartakovsky/prompttester/internal/tokens"
)

// Preview is the projected prompt-side usage of one model across a whole
// run. Completion tokens are unknown before the run and are not included.
type Preview struct {
	Model       string
	Cells       int
	InputTokens int
	InputCost   float64
	Priced      bool
}

// PreviewRun estimates, per enabled model, the input tokens and their cost
// for every runnable (prompt, input) pair of tc. A nil counter uses the
// character-based estimate.
func PreviewRun(tc *models.TestConfig, table Table, counter tokens.Counter) []Preview {
	prompts := tc.RunnablePrompts()
	inputs := tc.RunnableInputs()

	perModel := 0
	for _, p := range prompts {
		system := strings.TrimSpace(p.Prompt)
		for _, in := range inputs {
			perModel += tokens.EstimateChat(counter, system, in.Content)
		}
	}

	var out []Preview
	for _, id := range tc.EnabledModelIDs() {
		price, ok := table[id]
		pv := Preview{
			Model:       id,
			Cells:       len(prompts) * len(inputs),
			InputTokens: perModel,
			Priced:      ok,
		}
		if ok {
			pv.InputCost = float64(perModel) * price.Prompt
		}
		out = append(out, pv)
	}
	return out
}

// FormatCost renders a one-off cost with four decimals under one cent.
func FormatCost(cost float64) string {
	if cost < 0.01 {
		return printer.Sprintf("$%.4f", cost)
	}
	return printer.Sprintf("$%.2f", cost)
}

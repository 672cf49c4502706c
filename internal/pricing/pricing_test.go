package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tartakovsky/prompttester/internal/models"
	"github.com/tartakovsky/prompttester/internal/openrouter"
)

func TestTableFromModels(t *testing.T) {
	table := TableFromModels([]openrouter.ModelInfo{
		{ID: "m/a", PromptPrice: 0.000001, CompletionPrice: 0.000002},
		{ID: "m/b"},
	})
	assert.Equal(t, Price{Prompt: 0.000001, Completion: 0.000002}, table["m/a"])
	assert.Equal(t, Price{}, table["m/b"])
	assert.Len(t, table, 2)
}

func TestMonthlyVolume(t *testing.T) {
	assert.Equal(t, 10000, MonthlyVolume(models.ModeScorer))
	assert.Equal(t, 3000, MonthlyVolume(models.ModeCommenter))
	assert.Equal(t, 3000, MonthlyVolume(models.ModePlain))
	assert.Equal(t, 3000, MonthlyVolume(""))
}

func TestEstimateModel(t *testing.T) {
	results := models.Results{}
	results.Set("m/a", "i1", models.NewOutputCell("ok", 100, 50))
	results.Set("m/a", "i2", models.NewOutputCell("ok", 300, 150))
	results.Set("m/a", "i3", models.NewErrorCell("boom"))
	results.Set("m/b", "i1", models.NewOutputCell("ok", 10, 10))

	table := Table{"m/a": {Prompt: 0.00001, Completion: 0.00002}}

	est := EstimateModel(results, "m/a", []string{"i1", "i2", "i3", "missing"}, table, models.ModeScorer)
	assert.Equal(t, 400, est.InputTokens)
	assert.Equal(t, 200, est.OutputTokens)
	assert.Equal(t, 600, est.TotalTokens())
	assert.Equal(t, 2, est.Successes)
	assert.InDelta(t, 0.008, est.TotalCost, 1e-12)
	// 0.008 / 2 successes * 10000 runs.
	assert.InDelta(t, 40.0, est.MonthlyCost, 1e-9)
	assert.Equal(t, 10000, est.Volume)
}

func TestEstimateModel_Unpriced(t *testing.T) {
	results := models.Results{}
	results.Set("m/b", "i1", models.NewOutputCell("ok", 10, 10))

	est := EstimateModel(results, "m/b", []string{"i1"}, Table{}, models.ModeCommenter)
	assert.Equal(t, 20, est.TotalTokens())
	assert.Zero(t, est.TotalCost)
	assert.Zero(t, est.MonthlyCost)
}

func TestEstimateModel_NoSuccesses(t *testing.T) {
	results := models.Results{}
	results.Set("m/a", "i1", models.NewErrorCell("boom"))

	est := EstimateModel(results, "m/a", []string{"i1"}, Table{"m/a": {Prompt: 1, Completion: 1}}, models.ModePlain)
	assert.Zero(t, est.Successes)
	assert.Zero(t, est.MonthlyCost)
	assert.Equal(t, "-", FormatTokens(est))
}

func TestFormatMonthly(t *testing.T) {
	tests := []struct {
		cost   float64
		volume int
		want   string
	}{
		{cost: 40, volume: 10000, want: "~$40.00/mo (10,000 runs)"},
		{cost: 0.0042, volume: 3000, want: "~$0.0042/mo (3,000 runs)"},
		{cost: 0.01, volume: 3000, want: "~$0.01/mo (3,000 runs)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMonthly(tt.cost, tt.volume))
		})
	}
}

func TestFormatTokens(t *testing.T) {
	assert.Equal(t, "1,200+50 = 1,250 tok", FormatTokens(Estimate{InputTokens: 1200, OutputTokens: 50}))
}

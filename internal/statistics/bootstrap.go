// Package statistics summarises scorer-mode results across inputs.
package statistics

import (
	"math"
	"math/rand"
	"sort"

	"github.com/tartakovsky/prompttester/internal/models"
)

// ConfidenceInterval is a percentile bootstrap interval around a mean score.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Mean            float64 `json:"mean"`
	N               int     `json:"n"`
	ConfidenceLevel float64 `json:"confidence_level"`
	NumBootstraps   int     `json:"num_bootstraps"`
}

// DefaultBootstrapIterations is the number of bootstrap resamples.
const DefaultBootstrapIterations = 10000

// DefaultConfidenceLevel is used by the report.
const DefaultConfidenceLevel = 0.95

// BootstrapCI computes a bootstrap confidence interval of the mean of scores
// using the percentile method. confidenceLevel should be in (0, 1). Fewer
// than two scores yield a degenerate interval at the mean.
func BootstrapCI(scores []float64, confidenceLevel float64) ConfidenceInterval {
	return BootstrapCIWithSeed(scores, confidenceLevel, -1)
}

// BootstrapCIWithSeed is like BootstrapCI but accepts a seed for reproducibility.
// A negative seed uses a non-deterministic source.
func BootstrapCIWithSeed(scores []float64, confidenceLevel float64, seed int64) ConfidenceInterval {
	n := len(scores)
	m := mean(scores)
	ci := ConfidenceInterval{Lower: m, Upper: m, Mean: m, N: n, ConfidenceLevel: confidenceLevel}
	if n < 2 {
		return ci
	}

	src := rand.NewSource(seed)
	if seed < 0 {
		src = rand.NewSource(rand.Int63())
	}
	rng := rand.New(src)

	iters := DefaultBootstrapIterations
	means := make([]float64, iters)
	sample := make([]float64, n)
	for i := range means {
		for j := range sample {
			sample[j] = scores[rng.Intn(n)]
		}
		means[i] = mean(sample)
	}
	sort.Float64s(means)

	alpha := 1.0 - confidenceLevel
	lo := int(math.Floor(alpha / 2.0 * float64(iters)))
	hi := min(int(math.Floor((1.0-alpha/2.0)*float64(iters))), iters-1)

	ci.Lower, ci.Upper = means[lo], means[hi]
	ci.NumBootstraps = iters
	return ci
}

// ModelScores collects the scores of model's successful cells over inputIDs,
// in input order. Cells without a score are skipped.
func ModelScores(results models.Results, model string, inputIDs []string) []float64 {
	var out []float64
	for _, id := range inputIDs {
		cell, ok := results.Get(model, id)
		if !ok || cell.State() != models.CellSuccess || cell.Score == nil {
			continue
		}
		out = append(out, *cell.Score)
	}
	return out
}

// ActionRate returns the fraction of scored cells of model that carry action.
func ActionRate(results models.Results, model string, inputIDs []string, action models.Action) float64 {
	scored, hits := 0, 0
	for _, id := range inputIDs {
		cell, ok := results.Get(model, id)
		if !ok || cell.Score == nil {
			continue
		}
		scored++
		for _, a := range cell.Actions {
			if a == action {
				hits++
				break
			}
		}
	}
	if scored == 0 {
		return 0
	}
	return float64(hits) / float64(scored)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

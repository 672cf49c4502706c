package structured

import (
	"log/slog"
	"math"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/tartakovsky/prompttester/internal/models"
)

// Scored is the typed scorer output.
type Scored struct {
	Score     float64         `mapstructure:"score"`
	Reasoning string          `mapstructure:"reasoning"`
	PostRecap string          `mapstructure:"post_recap"`
	Actions   []models.Action `mapstructure:"-"`
}

// ParseScored extracts a scored result from content. The score is clamped
// into [0, 1] and actions are derived from t. Unparsable content yields a
// zero score.
func ParseScored(content string, t models.Thresholds) Scored {
	var out Scored
	if obj, ok := ExtractJSON(content); ok {
		decodeWeak(obj, &out)
	}
	out.Score = Clamp01(out.Score)
	out.Actions = DeriveActions(out.Score, t)
	return out
}

// ParseComment extracts the comment field from content. When no object with
// a string comment can be found, the trimmed raw content is returned.
func ParseComment(content string) string {
	if obj, ok := ExtractJSON(content); ok {
		if c, ok := obj["comment"].(string); ok {
			return c
		}
	}
	return strings.TrimSpace(content)
}

// Clamp01 clamps v into [0, 1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// DeriveActions compares score against each threshold independently. The
// result keeps the fixed order LIKE, COMMENT, SHARE, SAVE. A zero threshold
// always fires.
func DeriveActions(score float64, t models.Thresholds) []models.Action {
	actions := []models.Action{}
	if score >= t.Like {
		actions = append(actions, models.ActionLike)
	}
	if score >= t.Comment {
		actions = append(actions, models.ActionComment)
	}
	if score >= t.Share {
		actions = append(actions, models.ActionShare)
	}
	if score >= t.Save {
		actions = append(actions, models.ActionSave)
	}
	return actions
}

// decodeWeak decodes obj into out, accepting numbers encoded as strings and
// similar loose typing. Fields that cannot be decoded keep their zero value.
func decodeWeak(obj map[string]any, out *Scored) {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		slog.Debug("building scored decoder", "error", err)
		return
	}
	if err := dec.Decode(obj); err != nil {
		slog.Debug("partially decoded scored result", "error", err)
	}
}

package models

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Mode selects how model output is interpreted.
type Mode string

const (
	// ModePlain returns the raw completion text.
	ModePlain Mode = "plain"
	// ModeScorer requests a scored result and derives actions from thresholds.
	ModeScorer Mode = "scorer"
	// ModeCommenter requests a single generated comment.
	ModeCommenter Mode = "commenter"
)

// ParseMode converts s to a Mode. The empty string maps to ModePlain.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePlain:
		return ModePlain, nil
	case ModeScorer, ModeCommenter:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected plain, scorer or commenter)", s)
	}
}

// Action is an engagement action derived from a score.
type Action string

const (
	ActionLike    Action = "LIKE"
	ActionComment Action = "COMMENT"
	ActionShare   Action = "SHARE"
	ActionSave    Action = "SAVE"
)

// Default engagement thresholds.
const (
	DefaultThresholdLike    = 0.5
	DefaultThresholdComment = 0.7
	DefaultThresholdShare   = 0.9
	DefaultThresholdSave    = 0.8
)

// Thresholds holds the four independent action thresholds. Zero is a valid
// threshold: the action fires for every score. Only a missing field or a nil
// *Thresholds means "use the default"; decoding starts from the defaults.
type Thresholds struct {
	Like    float64 `json:"like" yaml:"like" toml:"like" mapstructure:"like" validate:"gte=0,lte=1"`
	Comment float64 `json:"comment" yaml:"comment" toml:"comment" mapstructure:"comment" validate:"gte=0,lte=1"`
	Share   float64 `json:"share" yaml:"share" toml:"share" mapstructure:"share" validate:"gte=0,lte=1"`
	Save    float64 `json:"save" yaml:"save" toml:"save" mapstructure:"save" validate:"gte=0,lte=1"`
}

// DefaultThresholds returns the documented default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Like:    DefaultThresholdLike,
		Comment: DefaultThresholdComment,
		Share:   DefaultThresholdShare,
		Save:    DefaultThresholdSave,
	}
}

// Validate checks that every threshold lies in [0, 1].
func (t Thresholds) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{{"like", t.Like}, {"comment", t.Comment}, {"share", t.Share}, {"save", t.Save}} {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("%s threshold must be between 0 and 1, got %g", f.name, f.value)
		}
	}
	return nil
}

// ThresholdsOrDefault returns *t, or the defaults when t is nil.
func ThresholdsOrDefault(t *Thresholds) Thresholds {
	if t == nil {
		return DefaultThresholds()
	}
	return *t
}

// UnmarshalJSON fills fields absent from data with their defaults.
func (t *Thresholds) UnmarshalJSON(data []byte) error {
	type plain Thresholds
	p := plain(DefaultThresholds())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Thresholds(p)
	return nil
}

// UnmarshalYAML fills fields absent from the node with their defaults.
func (t *Thresholds) UnmarshalYAML(value *yaml.Node) error {
	type plain Thresholds
	p := plain(DefaultThresholds())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*t = Thresholds(p)
	return nil
}

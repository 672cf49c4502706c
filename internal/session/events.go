// Package session records the lifecycle of a run as newline-delimited JSON
// and renders recorded logs back as a timeline.
package session

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Kind identifies what an Event records.
type Kind string

const (
	KindRunStarted     Kind = "run_started"
	KindPromptStarted  Kind = "prompt_started"
	KindPromptFinished Kind = "prompt_finished"
	KindPromptFailed   Kind = "prompt_failed"
	KindRunFinished    Kind = "run_finished"
)

// Event is one line of a session log. Data holds the payload fields
// flattened to a JSON object so older readers can skip unknown kinds.
type Event struct {
	At   time.Time      `json:"at"`
	Kind Kind           `json:"kind"`
	Data map[string]any `json:"data,omitempty"`
}

// Payload is implemented by the typed event bodies below.
type Payload interface {
	kind() Kind
}

// RunStarted is recorded once the run's work list is fixed.
type RunStarted struct {
	TestID   string `mapstructure:"test_id"`
	TestName string `mapstructure:"test_name"`
	Mode     string `mapstructure:"mode"`
	Prompts  int    `mapstructure:"prompts"`
	Models   int    `mapstructure:"models"`
	Inputs   int    `mapstructure:"inputs"`
}

type PromptStarted struct {
	Prompt string `mapstructure:"prompt"`
	Num    int    `mapstructure:"num"`
	Total  int    `mapstructure:"total"`
}

type PromptFinished struct {
	Prompt     string `mapstructure:"prompt"`
	Cells      int    `mapstructure:"cells"`
	Errors     int    `mapstructure:"errors"`
	DurationMs int64  `mapstructure:"duration_ms"`
}

// PromptFailed is recorded when the evaluator rejects a whole prompt.
type PromptFailed struct {
	Prompt  string `mapstructure:"prompt"`
	Message string `mapstructure:"message"`
}

// RunFinished closes a log. Status is one of "completed", "failed",
// "timed_out", "cancelled" or "superseded".
type RunFinished struct {
	Status     string `mapstructure:"status"`
	Cells      int    `mapstructure:"cells"`
	Errors     int    `mapstructure:"errors"`
	DurationMs int64  `mapstructure:"duration_ms"`
}

func (RunStarted) kind() Kind { return KindRunStarted }
func (PromptStarted) kind() Kind { return KindPromptStarted }
func (PromptFinished) kind() Kind { return KindPromptFinished }
func (PromptFailed) kind() Kind { return KindPromptFailed }
func (RunFinished) kind() Kind { return KindRunFinished }

// New stamps p with the current time.
func New(p Payload) Event {
	data := map[string]any{}
	// Flattening a struct of scalars into a map cannot fail.
	_ = mapstructure.Decode(p, &data) //nolint:errcheck
	return Event{At: time.Now().UTC(), Kind: p.kind(), Data: data}
}

// Decode fills p from the event's data. Numbers read back from JSON arrive
// as float64 and are converted to the payload's integer fields.
func (e Event) Decode(p Payload) error {
	if e.Kind != p.kind() {
		return fmt.Errorf("event is %q, not %q", e.Kind, p.kind())
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           p,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(e.Data); err != nil {
		return fmt.Errorf("decoding %s event: %w", e.Kind, err)
	}
	return nil
}

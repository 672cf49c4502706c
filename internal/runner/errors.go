package runner

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTimedOut matches the error of a run that hit its deadline.
	ErrTimedOut = errors.New("run timed out")
	// ErrCancelled is returned by a run stopped with Cancel or by its caller's context.
	ErrCancelled = errors.New("run cancelled")
	// ErrSuperseded is returned by a run that was replaced by a newer one.
	ErrSuperseded = errors.New("run superseded by a newer run")
)

// ConfigError reports a run that cannot start because the test is incomplete.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "cannot run: " + strings.Join(e.Problems, "; ")
}

// TimeoutError is the user-facing form of ErrTimedOut.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Request timed out (%s). Try fewer prompts, inputs, or models.", formatTimeout(e.Timeout))
}

// Is lets errors.Is(err, ErrTimedOut) match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimedOut
}

func formatTimeout(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%d min", int(d/time.Minute))
	}
	return d.String()
}

// PromptError attributes an evaluation failure to the prompt that caused it.
type PromptError struct {
	PromptName string
	Err        error
}

func (e *PromptError) Error() string {
	return e.PromptName + ": " + e.Err.Error()
}

func (e *PromptError) Unwrap() error { return e.Err }

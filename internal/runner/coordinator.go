// Package runner coordinates a full evaluation run: every runnable prompt of
// a test, one after another, each fanned out across the enabled models and
// inputs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tartakovsky/prompttester/internal/cache"
	"github.com/tartakovsky/prompttester/internal/models"
	"github.com/tartakovsky/prompttester/internal/session"
	"github.com/tartakovsky/prompttester/internal/utils"
)

// DefaultTimeout bounds a whole run.
const DefaultTimeout = 5 * time.Minute

// ProgressListener receives progress updates
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event
type EventType string

// EventType constants
const (
	EventRunStart       EventType = "run_start"
	EventPromptStart    EventType = "prompt_start"
	EventPromptComplete EventType = "prompt_complete"
	EventRunComplete    EventType = "run_complete"
)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	EventType    EventType
	TestID       string
	PromptID     string
	PromptName   string
	PromptNum    int
	TotalPrompts int
	Results      models.Results
	Err          error
	DurationMs   int64
}

// Outcome describes how a run ended.
type Outcome struct {
	TestID   string
	Snapshot *models.Snapshot
	Err      error
	Duration time.Duration
}

// Coordinator runs one evaluation at a time. Starting a run while another is
// in flight cancels the older one.
type Coordinator struct {
	ev            Evaluator
	store         cache.Store
	timeout       time.Duration
	logger        *slog.Logger
	sessionLog    session.Recorder
	serverSideKey bool
	listeners     []ProgressListener

	mu       sync.Mutex
	active   *activeRun
	snapshot *models.Snapshot
}

type activeRun struct {
	cancel     context.CancelCauseFunc
	superseded bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStore persists each run's snapshot to store.
func WithStore(store cache.Store) Option {
	return func(c *Coordinator) { c.store = store }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithProgress registers a progress listener.
func WithProgress(l ProgressListener) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.listeners = append(c.listeners, l)
		}
	}
}

// WithSessionLog records run events to l.
func WithSessionLog(l session.Recorder) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.sessionLog = l
		}
	}
}

// WithServerSideKey allows runs without an API key, for relays that hold their own.
func WithServerSideKey() Option {
	return func(c *Coordinator) { c.serverSideKey = true }
}

// New creates a coordinator that evaluates prompts through ev.
func New(ev Evaluator, opts ...Option) *Coordinator {
	c := &Coordinator{
		ev:         ev,
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
		sessionLog: session.Discard,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Running reports whether a run is in flight.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Cancel stops the in-flight run, if any. The run returns ErrCancelled.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.active.cancel(ErrCancelled)
	}
}

// Snapshot returns a copy of the latest finished run's snapshot, or nil.
func (c *Coordinator) Snapshot() *models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Clone()
}

// Run evaluates every runnable prompt of test in order. Each resolved
// prompt's results replace that prompt's results on test as a whole.
//
// Run returns a *ConfigError without calling the evaluator when test has no
// enabled model, no input with content, no prompt with content, or no API
// key. Otherwise it returns an Outcome whose Err is nil, a *PromptError,
// ErrTimedOut, ErrCancelled or ErrSuperseded. Every outcome except a
// superseded one carries a snapshot of what was accumulated.
func (c *Coordinator) Run(ctx context.Context, test *models.TestConfig, apiKey string) (*Outcome, error) {
	if err := c.checkRunnable(test, apiKey); err != nil {
		return nil, err
	}

	c.mu.Lock()
	prompts := test.RunnablePrompts()
	inputs := test.RunnableInputs()
	enabled := test.EnabledModels()
	req := newRequestTemplate(test, inputs, enabled)
	c.mu.Unlock()

	run, runCtx, stop := c.begin(ctx)
	defer stop()

	start := time.Now()

	// Captured by value now; live state keeps changing while the run is in flight.
	snapPrompts := make([]models.PromptItem, len(prompts))
	for i, p := range prompts {
		snapPrompts[i] = models.PromptItem{ID: p.ID, Name: p.Name, Prompt: p.Prompt, Results: models.Results{}}
	}

	c.logger.Info("run starting",
		"test", test.Name,
		"prompts", len(prompts),
		"models", len(enabled),
		"inputs", len(inputs))
	c.record(session.RunStarted{
		TestID:   test.ID,
		TestName: test.Name,
		Mode:     string(req.Mode),
		Prompts:  len(prompts),
		Models:   len(enabled),
		Inputs:   len(inputs),
	})
	c.notifyProgress(ProgressEvent{EventType: EventRunStart, TestID: test.ID, TotalPrompts: len(prompts)})

	var runErr error
	for i, p := range prompts {
		if runCtx.Err() != nil {
			break
		}

		c.notifyProgress(ProgressEvent{
			EventType:    EventPromptStart,
			TestID:       test.ID,
			PromptID:     p.ID,
			PromptName:   p.Name,
			PromptNum:    i + 1,
			TotalPrompts: len(prompts),
		})
		c.record(session.PromptStarted{Prompt: p.Name, Num: i + 1, Total: len(prompts)})

		promptStart := time.Now()
		preq := *req
		preq.Prompt = strings.TrimSpace(p.Prompt)
		results, err := c.ev.Evaluate(runCtx, apiKey, &preq)

		// A result that lands after the run was stopped is discarded.
		if runCtx.Err() != nil {
			break
		}
		if err != nil {
			runErr = &PromptError{PromptName: p.Name, Err: err}
			c.logger.Warn("prompt failed", "prompt", p.Name, "error", err)
			c.record(session.PromptFailed{Prompt: p.Name, Message: err.Error()})
			break
		}

		if !c.apply(run, test, p.ID, results) {
			break
		}
		snapPrompts[i].Results = results.Clone()

		elapsed := time.Since(promptStart).Milliseconds()
		c.record(session.PromptFinished{Prompt: p.Name, Cells: results.CellCount(), Errors: results.ErrorCount(), DurationMs: elapsed})
		c.notifyProgress(ProgressEvent{
			EventType:    EventPromptComplete,
			TestID:       test.ID,
			PromptID:     p.ID,
			PromptName:   p.Name,
			PromptNum:    i + 1,
			TotalPrompts: len(prompts),
			Results:      results.Clone(),
			DurationMs:   elapsed,
		})
	}

	if runErr == nil && runCtx.Err() != nil {
		runErr = stopReason(runCtx)
	}

	outcome := &Outcome{TestID: test.ID, Err: runErr, Duration: time.Since(start)}

	snap := models.NewSnapshot(inputs, snapPrompts, enabled)
	if !c.publish(run, snap) {
		outcome.Err = ErrSuperseded
		c.logger.Info("run superseded", "test", test.Name)
		c.finishRecord(outcome, nil)
		return outcome, ErrSuperseded
	}

	if c.store != nil {
		cache.SaveSnapshot(c.store, test.ID, snap)
	}
	outcome.Snapshot = snap.Clone()

	c.logger.Info("run finished",
		"test", test.Name,
		"duration", outcome.Duration.Round(time.Millisecond),
		"error", runErr)
	c.finishRecord(outcome, snap)
	return outcome, runErr
}

// checkRunnable validates test before any network call is made.
func (c *Coordinator) checkRunnable(test *models.TestConfig, apiKey string) error {
	if test == nil {
		return &ConfigError{Problems: []string{"no test selected"}}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var problems []string
	if len(test.EnabledModels()) == 0 {
		problems = append(problems, "enable at least one model")
	}
	if len(test.RunnableInputs()) == 0 {
		problems = append(problems, "add at least one input with content")
	}
	if len(test.RunnablePrompts()) == 0 {
		problems = append(problems, "add at least one prompt with content")
	}
	if strings.TrimSpace(apiKey) == "" && !c.serverSideKey {
		problems = append(problems, "set an OpenRouter API key")
	}
	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

func newRequestTemplate(test *models.TestConfig, inputs []models.InputItem, enabled []models.ModelItem) *models.EvaluateRequest {
	req := &models.EvaluateRequest{
		Models:      make([]string, 0, len(enabled)),
		Inputs:      make([]models.InputRef, 0, len(inputs)),
		Temperature: utils.Ptr(test.Temperature),
		Mode:        test.Mode,
	}
	if req.Mode == "" {
		req.Mode = models.ModePlain
	}
	for _, m := range enabled {
		req.Models = append(req.Models, m.ModelID)
	}
	for _, in := range inputs {
		req.Inputs = append(req.Inputs, models.InputRef{InputID: in.ID, Content: in.Content})
	}
	if test.Thresholds != nil {
		th := *test.Thresholds
		req.Thresholds = &th
	}
	return req
}

// begin supersedes any in-flight run and registers a new one. The returned
// stop func releases the run's context and timer.
func (c *Coordinator) begin(ctx context.Context) (*activeRun, context.Context, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.active.superseded = true
		c.active.cancel(ErrSuperseded)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	timedCtx, cancelTimer := context.WithTimeoutCause(runCtx, c.timeout, &TimeoutError{Timeout: c.timeout})
	run := &activeRun{cancel: cancel}
	c.active = run

	return run, timedCtx, func() {
		cancelTimer()
		cancel(nil)
		c.mu.Lock()
		if c.active == run {
			c.active = nil
		}
		c.mu.Unlock()
	}
}

// apply stores results on the live test unless the run has been superseded.
func (c *Coordinator) apply(run *activeRun, test *models.TestConfig, promptID string, results models.Results) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if run.superseded {
		return false
	}
	test.SetPromptResults(promptID, results)
	return true
}

// publish makes snap the latest snapshot unless the run has been superseded.
func (c *Coordinator) publish(run *activeRun, snap *models.Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if run.superseded {
		return false
	}
	c.snapshot = snap
	return true
}

func stopReason(ctx context.Context) error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrSuperseded):
		return ErrSuperseded
	case errors.Is(cause, ErrTimedOut):
		return cause
	case errors.Is(cause, ErrCancelled):
		return ErrCancelled
	default:
		return fmt.Errorf("%w: %w", ErrCancelled, cause)
	}
}

func (c *Coordinator) notifyProgress(event ProgressEvent) {
	for _, listener := range c.listeners {
		listener(event)
	}
}

func (c *Coordinator) record(p session.Payload) {
	if err := c.sessionLog.Record(session.New(p)); err != nil {
		c.logger.Warn("session log write failed", "error", err)
	}
}

func (c *Coordinator) finishRecord(outcome *Outcome, snap *models.Snapshot) {
	status := "completed"
	switch {
	case outcome.Err == nil:
	case errors.Is(outcome.Err, ErrSuperseded):
		status = "superseded"
	case errors.Is(outcome.Err, ErrTimedOut):
		status = "timed_out"
	case errors.Is(outcome.Err, ErrCancelled):
		status = "cancelled"
	default:
		status = "failed"
	}

	cells, errs := 0, 0
	if snap != nil {
		for _, p := range snap.Prompts {
			cells += p.Results.CellCount()
			errs += p.Results.ErrorCount()
		}
	}

	c.record(session.RunFinished{Status: status, Cells: cells, Errors: errs, DurationMs: outcome.Duration.Milliseconds()})
	c.notifyProgress(ProgressEvent{
		EventType:  EventRunComplete,
		TestID:     outcome.TestID,
		Err:        outcome.Err,
		DurationMs: outcome.Duration.Milliseconds(),
	})
}

package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tartakovsky/prompttester/internal/models"
	"github.com/tartakovsky/prompttester/internal/openrouter"
	"github.com/tartakovsky/prompttester/internal/structured"
	"github.com/tartakovsky/prompttester/internal/utils"
)

// Completer issues a single chat completion. *openrouter.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req *openrouter.CompletionRequest) (*openrouter.Completion, error)
}

// MissingFieldsMessage is returned when a request lacks a prompt, models or inputs.
const MissingFieldsMessage = "Missing required fields: prompt, models, inputs"

// RequestError reports an evaluation request that cannot be dispatched.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string { return e.Message }

// Validate checks the fields every evaluation needs before any call is made.
func Validate(req *models.EvaluateRequest) error {
	if req == nil || strings.TrimSpace(req.Prompt) == "" || len(req.Models) == 0 || len(req.Inputs) == 0 {
		return &RequestError{Message: MissingFieldsMessage}
	}
	return nil
}

// ProgressListener receives progress updates
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event
type EventType string

// EventType constants
const (
	EventCellStart    EventType = "cell_start"
	EventCellComplete EventType = "cell_complete"
)

// ProgressEvent represents a progress update for one grid cell
type ProgressEvent struct {
	EventType  EventType
	Model      string
	InputID    string
	CellNum    int
	TotalCells int
	State      models.CellState
	Error      string
	DurationMs int64
	Timestamp  time.Time
}

// Evaluator fans one prompt out across every (model, input) pair.
type Evaluator struct {
	completer Completer
	maxTokens int
	logger    *slog.Logger

	progressMu sync.Mutex
	listeners  []ProgressListener
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithMaxTokens sets the output token budget of every call.
func WithMaxTokens(n int) EvaluatorOption {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithProgress registers a progress listener.
func WithProgress(l ProgressListener) EvaluatorOption {
	return func(e *Evaluator) {
		if l != nil {
			e.listeners = append(e.listeners, l)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEvaluator creates an evaluator that sends every cell through c.
func NewEvaluator(c Completer, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		completer: c,
		maxTokens: openrouter.DefaultMaxTokens,
		logger:    slog.Default(),
		listeners: []ProgressListener{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// OnProgress registers a progress listener after construction.
func (e *Evaluator) OnProgress(listener ProgressListener) {
	e.progressMu.Lock()
	defer e.progressMu.Unlock()
	e.listeners = append(e.listeners, listener)
}

func (e *Evaluator) notifyProgress(event ProgressEvent) {
	e.progressMu.Lock()
	listeners := make([]ProgressListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

type cell struct {
	model string
	input models.InputRef
}

// Evaluate runs every (model, input) pair of req concurrently and waits for
// all of them to settle. The returned map holds exactly one cell per pair; a
// failed call becomes an error cell and never affects its siblings. Callers
// should check the request with Validate first.
func (e *Evaluator) Evaluate(ctx context.Context, apiKey string, req *models.EvaluateRequest) models.Results {
	cells := make([]cell, 0, len(req.Models)*len(req.Inputs))
	for _, m := range req.Models {
		for _, in := range req.Inputs {
			cells = append(cells, cell{model: m, input: in})
		}
	}

	mode, err := models.ParseMode(string(req.Mode))
	if err != nil {
		mode = models.ModePlain
	}
	thresholds := models.ThresholdsOrDefault(req.Thresholds)

	e.logger.Debug("evaluating prompt",
		"mode", mode,
		"models", len(req.Models),
		"inputs", len(req.Inputs),
		"cells", len(cells))

	type result struct {
		index int
		cell  models.CellResult
	}

	resultChan := make(chan result, len(cells))
	var wg sync.WaitGroup

	for i, c := range cells {
		wg.Add(1)
		go func(idx int, c cell) {
			defer wg.Done()

			var res models.CellResult
			defer func() {
				if r := recover(); r != nil {
					res = models.NewErrorCell(fmt.Sprintf("internal error: %v", r))
				}
				resultChan <- result{index: idx, cell: res}
			}()

			e.notifyProgress(ProgressEvent{
				EventType:  EventCellStart,
				Model:      c.model,
				InputID:    c.input.InputID,
				CellNum:    idx + 1,
				TotalCells: len(cells),
				Timestamp:  time.Now(),
			})

			start := time.Now()
			res = e.evaluateCell(ctx, apiKey, req, mode, thresholds, c)

			done := ProgressEvent{
				EventType:  EventCellComplete,
				Model:      c.model,
				InputID:    c.input.InputID,
				CellNum:    idx + 1,
				TotalCells: len(cells),
				State:      res.State(),
				DurationMs: time.Since(start).Milliseconds(),
				Timestamp:  time.Now(),
			}
			if res.Error != nil {
				done.Error = *res.Error
			}
			e.notifyProgress(done)
		}(i, c)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	collected := make([]models.CellResult, len(cells))
	for res := range resultChan {
		collected[res.index] = res.cell
	}

	out := make(models.Results, len(req.Models))
	for i, c := range cells {
		out.Set(c.model, c.input.InputID, collected[i])
	}
	return out
}

func (e *Evaluator) evaluateCell(ctx context.Context, apiKey string, req *models.EvaluateRequest, mode models.Mode, th models.Thresholds, c cell) models.CellResult {
	completion, err := e.completer.Complete(ctx, &openrouter.CompletionRequest{
		APIKey:         apiKey,
		Model:          c.model,
		SystemPrompt:   req.Prompt,
		UserMessage:    c.input.Content,
		Temperature:    req.TemperatureOrDefault(),
		MaxTokens:      e.maxTokens,
		ResponseFormat: openrouter.FormatForMode(mode),
	})
	if err != nil {
		e.logger.Debug("cell failed", "model", c.model, "input_id", c.input.InputID, "error", err)
		return models.NewErrorCell(err.Error())
	}

	res := models.NewOutputCell(completion.Content, completion.InputTokens, completion.OutputTokens)
	if utils.DebugEnabled(e.logger) {
		attrs := []any{"model", c.model, "input_id", c.input.InputID}
		attrs = utils.AddIf(attrs, "input_tokens", res.InputTokens)
		attrs = utils.AddIf(attrs, "output_tokens", res.OutputTokens)
		e.logger.Debug("cell completed", attrs...)
	}

	switch mode {
	case models.ModeScorer:
		scored := structured.ParseScored(completion.Content, th)
		res.Score = utils.Ptr(scored.Score)
		res.Reasoning = utils.Ptr(scored.Reasoning)
		res.PostRecap = utils.Ptr(scored.PostRecap)
		res.Actions = scored.Actions
	case models.ModeCommenter:
		res.Comment = utils.Ptr(structured.ParseComment(completion.Content))
	}

	if violations := structured.Violations(mode, completion.Content); len(violations) > 0 {
		res.SchemaViolations = violations
		e.logger.Debug("structured output does not match schema",
			"model", c.model,
			"input_id", c.input.InputID,
			"violations", violations)
	}

	return res
}

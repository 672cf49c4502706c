package models

import (
	"slices"

	"github.com/tartakovsky/prompttester/internal/utils"
)

// InputRef is one (input_id, content) pair sent for evaluation.
type InputRef struct {
	InputID string `json:"input_id" validate:"required"`
	Content string `json:"content"`
}

// EvaluateRequest is the unit of work for one prompt across a model x input grid.
type EvaluateRequest struct {
	Prompt      string      `json:"prompt"`
	Models      []string    `json:"models" validate:"dive,required"`
	Inputs      []InputRef  `json:"inputs" validate:"dive"`
	Temperature *float64    `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	Mode        Mode        `json:"mode,omitempty" validate:"omitempty,oneof=plain scorer commenter"`
	Thresholds  *Thresholds `json:"thresholds,omitempty" validate:"omitempty"`
}

// DefaultTemperature is used when a request does not set one.
const DefaultTemperature = 0.7

// TemperatureOrDefault returns the request temperature, or DefaultTemperature when unset.
func (r *EvaluateRequest) TemperatureOrDefault() float64 {
	if r.Temperature == nil {
		return DefaultTemperature
	}
	return *r.Temperature
}

// CellState distinguishes the three renderable states of a cell.
type CellState int

const (
	CellAbsent CellState = iota
	CellError
	CellSuccess
)

func (s CellState) String() string {
	switch s {
	case CellError:
		return "error"
	case CellSuccess:
		return "success"
	default:
		return "absent"
	}
}

// CellResult is the outcome of one (model, input) evaluation. Once resolved,
// exactly one of Error or the success fields is populated.
type CellResult struct {
	Output       *string `json:"output"`
	Error        *string `json:"error"`
	InputTokens  *int    `json:"input_tokens"`
	OutputTokens *int    `json:"output_tokens"`

	// Scorer mode.
	Score     *float64 `json:"score,omitempty"`
	Reasoning *string  `json:"reasoning,omitempty"`
	PostRecap *string  `json:"post_recap,omitempty"`
	Actions   []Action `json:"actions,omitempty"`

	// Commenter mode.
	Comment *string `json:"comment,omitempty"`

	// SchemaViolations lists how structured output strayed from the
	// requested response schema. Parsing still succeeds best effort.
	SchemaViolations []string `json:"schema_violations,omitempty"`
}

// NewErrorCell returns a resolved cell carrying only an error message.
func NewErrorCell(msg string) CellResult {
	return CellResult{Error: utils.Ptr(msg)}
}

// NewOutputCell returns a resolved success cell.
func NewOutputCell(content string, inputTokens, outputTokens int) CellResult {
	return CellResult{
		Output:       utils.Ptr(content),
		InputTokens:  utils.Ptr(inputTokens),
		OutputTokens: utils.Ptr(outputTokens),
	}
}

// State reports whether the cell is absent, an error, or a success.
func (c *CellResult) State() CellState {
	switch {
	case c == nil:
		return CellAbsent
	case c.Error != nil:
		return CellError
	case c.Output != nil || c.Score != nil || c.Comment != nil:
		return CellSuccess
	default:
		return CellAbsent
	}
}

// Clone returns a deep copy of c.
func (c CellResult) Clone() CellResult {
	out := CellResult{
		Output:       clonePtr(c.Output),
		Error:        clonePtr(c.Error),
		InputTokens:  clonePtr(c.InputTokens),
		OutputTokens: clonePtr(c.OutputTokens),
		Score:        clonePtr(c.Score),
		Reasoning:    clonePtr(c.Reasoning),
		PostRecap:    clonePtr(c.PostRecap),
		Comment:      clonePtr(c.Comment),
	}
	if c.Actions != nil {
		out.Actions = slices.Clone(c.Actions)
	}
	if c.SchemaViolations != nil {
		out.SchemaViolations = slices.Clone(c.SchemaViolations)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Results maps model id -> input id -> cell.
type Results map[string]map[string]CellResult

// Set stores cell under (model, inputID).
func (r Results) Set(model, inputID string, cell CellResult) {
	row, ok := r[model]
	if !ok {
		row = make(map[string]CellResult)
		r[model] = row
	}
	row[inputID] = cell
}

// Get returns the cell for (model, inputID) if present.
func (r Results) Get(model, inputID string) (CellResult, bool) {
	row, ok := r[model]
	if !ok {
		return CellResult{}, false
	}
	cell, ok := row[inputID]
	return cell, ok
}

// CellCount returns the number of resolved cells.
func (r Results) CellCount() int {
	n := 0
	for _, row := range r {
		n += len(row)
	}
	return n
}

// ErrorCount returns the number of cells that resolved with an error.
func (r Results) ErrorCount() int {
	n := 0
	for _, row := range r {
		for _, cell := range row {
			if cell.Error != nil {
				n++
			}
		}
	}
	return n
}

// Clone returns a deep copy of r. A nil map clones to an empty one.
func (r Results) Clone() Results {
	out := make(Results, len(r))
	for model, row := range r {
		cp := make(map[string]CellResult, len(row))
		for id, cell := range row {
			cp[id] = cell.Clone()
		}
		out[model] = cp
	}
	return out
}

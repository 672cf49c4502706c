package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCellResult_State(t *testing.T) {
	var absent *CellResult
	assert.Equal(t, CellAbsent, absent.State())

	empty := CellResult{}
	assert.Equal(t, CellAbsent, empty.State())

	errCell := NewErrorCell("boom")
	assert.Equal(t, CellError, errCell.State())

	okCell := NewOutputCell("hi", 10, 5)
	assert.Equal(t, CellSuccess, okCell.State())
}

func TestCellResult_PlainJSONShape(t *testing.T) {
	data, err := json.Marshal(NewOutputCell("hello", 10, 5))
	require.NoError(t, err)
	assert.JSONEq(t, `{"output":"hello","error":null,"input_tokens":10,"output_tokens":5}`, string(data))

	data, err = json.Marshal(NewErrorCell("Upstream 500: oops"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"output":null,"error":"Upstream 500: oops","input_tokens":null,"output_tokens":null}`, string(data))
}

func TestCellResult_CloneIsDeep(t *testing.T) {
	orig := NewOutputCell("a", 1, 2)
	orig.Actions = []Action{ActionLike}
	orig.SchemaViolations = []string{"missing score"}
	cp := orig.Clone()

	*cp.Output = "b"
	cp.Actions[0] = ActionSave
	cp.SchemaViolations[0] = "changed"

	assert.Equal(t, "a", *orig.Output)
	assert.Equal(t, ActionLike, orig.Actions[0])
	assert.Equal(t, "missing score", orig.SchemaViolations[0])
}

func TestResults_SetGetCount(t *testing.T) {
	r := Results{}
	r.Set("m/a", "i1", NewOutputCell("x", 1, 1))
	r.Set("m/a", "i2", NewErrorCell("bad"))
	r.Set("m/b", "i1", NewOutputCell("y", 1, 1))

	assert.Equal(t, 3, r.CellCount())
	assert.Equal(t, 1, r.ErrorCount())

	cell, ok := r.Get("m/a", "i2")
	require.True(t, ok)
	assert.Equal(t, "bad", *cell.Error)

	_, ok = r.Get("m/c", "i1")
	assert.False(t, ok)
	_, ok = r.Get("m/a", "i9")
	assert.False(t, ok)
}

func TestResults_CloneNil(t *testing.T) {
	var r Results
	cp := r.Clone()
	assert.NotNil(t, cp)
	assert.Equal(t, 0, cp.CellCount())
}

func TestEvaluateRequest_TemperatureOrDefault(t *testing.T) {
	req := &EvaluateRequest{}
	assert.Equal(t, 0.7, req.TemperatureOrDefault())

	zero := 0.0
	req.Temperature = &zero
	assert.Equal(t, 0.0, req.TemperatureOrDefault())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModePlain, m)

	m, err = ParseMode("commenter")
	require.NoError(t, err)
	assert.Equal(t, ModeCommenter, m)

	_, err = ParseMode("judge")
	assert.Error(t, err)
}

func TestThresholds_DecodeFillsMissingFields(t *testing.T) {
	var fromJSON Thresholds
	require.NoError(t, json.Unmarshal([]byte(`{"like":0,"share":0.95}`), &fromJSON))
	assert.Equal(t, Thresholds{Like: 0, Comment: 0.7, Share: 0.95, Save: 0.8}, fromJSON)

	var fromYAML Thresholds
	require.NoError(t, yaml.Unmarshal([]byte("comment: 0\n"), &fromYAML))
	assert.Equal(t, Thresholds{Like: 0.5, Comment: 0, Share: 0.9, Save: 0.8}, fromYAML)

	var req EvaluateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"prompt":"p"}`), &req))
	assert.Nil(t, req.Thresholds)
	assert.Equal(t, DefaultThresholds(), ThresholdsOrDefault(req.Thresholds))
}

func TestThresholds_ZeroSurvivesYAMLRoundTrip(t *testing.T) {
	data, err := yaml.Marshal(Thresholds{Like: 0, Comment: 0.7, Share: 0.9, Save: 0.8})
	require.NoError(t, err)
	assert.Contains(t, string(data), "like: 0")

	var back Thresholds
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, 0.0, back.Like)
}

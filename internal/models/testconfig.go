package models

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// InputItem is a named user message run through every (prompt, model) pair.
type InputItem struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Content string `json:"content" yaml:"content"`
}

// PromptItem is a named system prompt together with its latest results.
type PromptItem struct {
	ID      string  `json:"id" yaml:"id"`
	Name    string  `json:"name" yaml:"name"`
	Prompt  string  `json:"prompt" yaml:"prompt"`
	Results Results `json:"results" yaml:"-"`
}

// Clone returns a deep copy of p.
func (p PromptItem) Clone() PromptItem {
	p.Results = p.Results.Clone()
	return p
}

// ModelItem is a selectable upstream model.
type ModelItem struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	ModelID string `json:"modelId" yaml:"model"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// TestConfig is one named comparison: its inputs, prompts, models and sampling settings.
type TestConfig struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Mode        Mode         `json:"mode,omitempty" yaml:"mode,omitempty"`
	Inputs      []InputItem  `json:"inputs" yaml:"inputs"`
	Prompts     []PromptItem `json:"prompts" yaml:"prompts"`
	Models      []ModelItem  `json:"models" yaml:"models"`
	Temperature float64      `json:"temperature" yaml:"temperature"`
	Thresholds  *Thresholds  `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Vars are substituted into prompts written as Go templates, e.g. {{.Vars.brand}}.
	Vars map[string]string `json:"vars,omitempty" yaml:"vars,omitempty"`
}

// Clone returns a deep copy of t.
func (t *TestConfig) Clone() *TestConfig {
	if t == nil {
		return nil
	}
	out := *t
	out.Inputs = cloneInputs(t.Inputs)
	out.Prompts = clonePrompts(t.Prompts)
	out.Models = cloneModels(t.Models)
	if t.Thresholds != nil {
		th := *t.Thresholds
		out.Thresholds = &th
	}
	if t.Vars != nil {
		out.Vars = maps.Clone(t.Vars)
	}
	return &out
}

// RunnablePrompts returns the prompts with non-blank text, in order.
func (t *TestConfig) RunnablePrompts() []PromptItem {
	var out []PromptItem
	for _, p := range t.Prompts {
		if strings.TrimSpace(p.Prompt) != "" {
			out = append(out, p)
		}
	}
	return out
}

// RunnableInputs returns the inputs with non-blank content, in order.
func (t *TestConfig) RunnableInputs() []InputItem {
	var out []InputItem
	for _, in := range t.Inputs {
		if strings.TrimSpace(in.Content) != "" {
			out = append(out, in)
		}
	}
	return out
}

// EnabledModels returns the enabled models, in order.
func (t *TestConfig) EnabledModels() []ModelItem {
	var out []ModelItem
	for _, m := range t.Models {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// EnabledModelIDs returns the upstream ids of the enabled models, in order.
func (t *TestConfig) EnabledModelIDs() []string {
	var ids []string
	for _, m := range t.EnabledModels() {
		ids = append(ids, m.ModelID)
	}
	return ids
}

// SetPromptResults replaces the results of prompt id as a whole. It reports
// false when no prompt has that id.
func (t *TestConfig) SetPromptResults(id string, results Results) bool {
	for i := range t.Prompts {
		if t.Prompts[i].ID == id {
			t.Prompts[i].Results = results
			return true
		}
	}
	return false
}

// DefaultModels returns the models a new test starts with.
func DefaultModels() []ModelItem {
	return []ModelItem{
		{ID: "m1", Name: "mistral-small-3.2-24b-instruct", ModelID: "mistralai/mistral-small-3.2-24b-instruct", Enabled: true},
		{ID: "m2", Name: "gemini-2.5-flash-lite", ModelID: "google/gemini-2.5-flash-lite", Enabled: true},
		{ID: "m3", Name: "gemini-3-flash-preview", ModelID: "google/gemini-3-flash-preview", Enabled: true},
		{ID: "m4", Name: "claude-opus-4.6", ModelID: "anthropic/claude-opus-4.6", Enabled: true},
		{ID: "m5", Name: "claude-opus-4.5", ModelID: "anthropic/claude-opus-4.5", Enabled: true},
		{ID: "m6", Name: "gpt-5.2-chat", ModelID: "openai/gpt-5.2-chat", Enabled: true},
	}
}

// MakeDefaultTest returns an empty scorer test with one input, one prompt and the default models.
func MakeDefaultTest(id, name string) *TestConfig {
	return &TestConfig{
		ID:          id,
		Name:        name,
		Mode:        ModeScorer,
		Inputs:      []InputItem{{ID: "i1", Name: "Input 1"}},
		Prompts:     []PromptItem{{ID: "p1", Name: "Prompt 1", Results: Results{}}},
		Models:      DefaultModels(),
		Temperature: DefaultTemperature,
	}
}

// LoadTestConfig reads a test definition from a YAML file.
func LoadTestConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg TestConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range cfg.Prompts {
		if cfg.Prompts[i].Results == nil {
			cfg.Prompts[i].Results = Results{}
		}
	}
	return &cfg, nil
}

// SaveTestConfig writes cfg to path as YAML.
func SaveTestConfig(path string, cfg *TestConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling test config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Validate checks the structural rules of a test definition.
func (t *TestConfig) Validate() error {
	if _, err := ParseMode(string(t.Mode)); err != nil {
		return err
	}
	if t.Temperature < 0 || t.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", t.Temperature)
	}
	if t.Thresholds != nil {
		if err := t.Thresholds.Validate(); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(t.Inputs))
	for _, in := range t.Inputs {
		if in.ID == "" {
			return fmt.Errorf("input %q has no id", in.Name)
		}
		if seen[in.ID] {
			return fmt.Errorf("duplicate input id %q", in.ID)
		}
		seen[in.ID] = true
	}
	for _, m := range t.Models {
		if m.ModelID == "" {
			return fmt.Errorf("model %q has no model id", m.Name)
		}
	}
	return nil
}

func cloneInputs(in []InputItem) []InputItem {
	if in == nil {
		return nil
	}
	out := make([]InputItem, len(in))
	copy(out, in)
	return out
}

func clonePrompts(in []PromptItem) []PromptItem {
	if in == nil {
		return nil
	}
	out := make([]PromptItem, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

func cloneModels(in []ModelItem) []ModelItem {
	if in == nil {
		return nil
	}
	out := make([]ModelItem, len(in))
	copy(out, in)
	return out
}

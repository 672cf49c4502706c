package models

// Snapshot is a by-value copy of the configuration and results as they stood
// when a run finished. It never shares memory with live configuration.
type Snapshot struct {
	Inputs  []InputItem  `json:"inputs"`
	Prompts []PromptItem `json:"prompts"`
	Models  []ModelItem  `json:"models"`
}

// NewSnapshot deep-copies the given slices into a fresh snapshot.
func NewSnapshot(inputs []InputItem, prompts []PromptItem, models []ModelItem) *Snapshot {
	return &Snapshot{
		Inputs:  cloneInputs(inputs),
		Prompts: clonePrompts(prompts),
		Models:  cloneModels(models),
	}
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	return NewSnapshot(s.Inputs, s.Prompts, s.Models)
}

// HasResults reports whether any prompt in the snapshot carries at least one cell.
func (s *Snapshot) HasResults() bool {
	if s == nil {
		return false
	}
	for _, p := range s.Prompts {
		if p.Results.CellCount() > 0 {
			return true
		}
	}
	return false
}

// Prompt returns the snapshot prompt with the given id.
func (s *Snapshot) Prompt(id string) (*PromptItem, bool) {
	for i := range s.Prompts {
		if s.Prompts[i].ID == id {
			return &s.Prompts[i], true
		}
	}
	return nil, false
}

package cache

import (
	"fmt"

	"github.com/tartakovsky/prompttester/internal/models"
)

// DefaultTestName is the name of the test created for an empty workspace.
const DefaultTestName = "Test 1"

// Workspace is the persisted set of tests and the currently active one.
type Workspace struct {
	store Store
	ids   models.IDGenerator

	Tests    []*models.TestConfig
	ActiveID string
}

// LoadWorkspace reads the saved tests and active test id from store. An
// empty store yields a single default test.
func LoadWorkspace(store Store, ids models.IDGenerator) *Workspace {
	if ids == nil {
		ids = models.UUIDIDs{}
	}
	w := &Workspace{store: store, ids: ids}

	var tests []*models.TestConfig
	if store.Load(KeyTests, &tests) {
		for _, t := range tests {
			if t == nil {
				continue
			}
			for i := range t.Prompts {
				if t.Prompts[i].Results == nil {
					t.Prompts[i].Results = models.Results{}
				}
			}
			w.Tests = append(w.Tests, t)
		}
	}

	if len(w.Tests) == 0 {
		w.Tests = []*models.TestConfig{models.MakeDefaultTest(ids.NewID("test-"), DefaultTestName)}
	}

	if active, ok := store.LoadString(KeyActiveTestID); ok {
		w.ActiveID = active
	}
	if _, ok := w.Test(w.ActiveID); !ok {
		w.ActiveID = w.Tests[0].ID
	}
	return w
}

// Test returns the test with the given id.
func (w *Workspace) Test(id string) (*models.TestConfig, bool) {
	for _, t := range w.Tests {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// Active returns the active test.
func (w *Workspace) Active() *models.TestConfig {
	t, _ := w.Test(w.ActiveID)
	return t
}

// Put stores t, replacing any test with the same id, and persists the workspace.
func (w *Workspace) Put(t *models.TestConfig) {
	for i, existing := range w.Tests {
		if existing.ID == t.ID {
			w.Tests[i] = t
			w.Save()
			return
		}
	}
	w.Tests = append(w.Tests, t)
	w.Save()
}

// SetActive switches the active test.
func (w *Workspace) SetActive(id string) error {
	if _, ok := w.Test(id); !ok {
		return fmt.Errorf("no test with id %q", id)
	}
	w.ActiveID = id
	w.store.SaveString(KeyActiveTestID, id)
	return nil
}

// Save persists all tests and the active test id.
func (w *Workspace) Save() {
	w.store.Save(KeyTests, w.Tests)
	w.store.SaveString(KeyActiveTestID, w.ActiveID)
}

// SaveThresholds persists the engagement thresholds.
func (w *Workspace) SaveThresholds(t models.Thresholds) {
	w.store.Save(KeyThresholds, t)
}

// LoadThresholds returns the saved thresholds and whether any were saved.
// Fields missing from the saved value take their defaults.
func (w *Workspace) LoadThresholds() (models.Thresholds, bool) {
	t := models.DefaultThresholds()
	ok := w.store.Load(KeyThresholds, &t)
	return t, ok
}

// Snapshot returns the persisted snapshot of testID.
func (w *Workspace) Snapshot(testID string) (*models.Snapshot, bool) {
	return LoadSnapshot(w.store, testID)
}

// ActiveSnapshot returns the persisted snapshot of the active test.
func (w *Workspace) ActiveSnapshot() (*models.Snapshot, bool) {
	return w.Snapshot(w.ActiveID)
}

// SaveSnapshot persists snap as the latest snapshot of testID.
func SaveSnapshot(store Store, testID string, snap *models.Snapshot) {
	store.Save(SnapshotKey(testID), snap)
}

// LoadSnapshot reads the latest snapshot of testID from store.
func LoadSnapshot(store Store, testID string) (*models.Snapshot, bool) {
	var snap models.Snapshot
	if !store.Load(SnapshotKey(testID), &snap) {
		return nil, false
	}
	return &snap, true
}

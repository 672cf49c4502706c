package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartakovsky/prompttester/internal/cache"
	"github.com/tartakovsky/prompttester/internal/models"
	"github.com/tartakovsky/prompttester/internal/session"
)

type evalFunc func(ctx context.Context, apiKey string, req *models.EvaluateRequest) (models.Results, error)

func (f evalFunc) Evaluate(ctx context.Context, apiKey string, req *models.EvaluateRequest) (models.Results, error) {
	return f(ctx, apiKey, req)
}

// grid answers every (model, input) pair of req with output.
func grid(req *models.EvaluateRequest, output string) models.Results {
	out := models.Results{}
	for _, m := range req.Models {
		for _, in := range req.Inputs {
			out.Set(m, in.InputID, models.NewOutputCell(output, 1, 1))
		}
	}
	return out
}

func echoPrompt() evalFunc {
	return func(_ context.Context, _ string, req *models.EvaluateRequest) (models.Results, error) {
		return grid(req, req.Prompt), nil
	}
}

func newTest(prompts ...string) *models.TestConfig {
	t := &models.TestConfig{
		ID:          "test-1",
		Name:        "Launch copy",
		Mode:        models.ModePlain,
		Temperature: 0.7,
		Inputs: []models.InputItem{
			{ID: "i1", Name: "Input 1", Content: "first"},
			{ID: "i2", Name: "Input 2", Content: "   "},
		},
		Models: []models.ModelItem{
			{ID: "m1", Name: "a", ModelID: "m/a", Enabled: true},
			{ID: "m2", Name: "b", ModelID: "m/b", Enabled: true},
			{ID: "m3", Name: "c", ModelID: "m/c", Enabled: false},
		},
	}
	for i, p := range prompts {
		id := string(rune('1' + i))
		t.Prompts = append(t.Prompts, models.PromptItem{ID: "p" + id, Name: "Prompt " + id, Prompt: p, Results: models.Results{}})
	}
	return t
}

type recordingLog struct {
	mu     sync.Mutex
	events []session.Event
}

func (r *recordingLog) Record(e session.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingLog) Close() error { return nil }

func (r *recordingLog) kinds() []session.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func TestRun_ConfigErrorsMakeNoCalls(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.TestConfig)
		apiKey string
		want   string
	}{
		{name: "no api key", mutate: func(*models.TestConfig) {}, want: "API key"},
		{name: "no enabled models", apiKey: "k", mutate: func(tc *models.TestConfig) {
			for i := range tc.Models {
				tc.Models[i].Enabled = false
			}
		}, want: "model"},
		{name: "no input content", apiKey: "k", mutate: func(tc *models.TestConfig) { tc.Inputs[0].Content = "" }, want: "input"},
		{name: "no prompt content", apiKey: "k", mutate: func(tc *models.TestConfig) { tc.Prompts[0].Prompt = "  " }, want: "prompt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := New(evalFunc(func(context.Context, string, *models.EvaluateRequest) (models.Results, error) {
				calls.Add(1)
				return models.Results{}, nil
			}))

			tc := newTest("Rate this.")
			tt.mutate(tc)

			outcome, err := c.Run(context.Background(), tc, tt.apiKey)
			assert.Nil(t, outcome)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Contains(t, cfgErr.Error(), tt.want)
			assert.Zero(t, calls.Load())
		})
	}
}

func TestRun_ServerSideKeyAllowsEmptyKey(t *testing.T) {
	c := New(echoPrompt(), WithServerSideKey())
	_, err := c.Run(context.Background(), newTest("p"), "")
	assert.NoError(t, err)
}

func TestRun_RequestShape(t *testing.T) {
	var got *models.EvaluateRequest
	c := New(evalFunc(func(_ context.Context, apiKey string, req *models.EvaluateRequest) (models.Results, error) {
		assert.Equal(t, "sk-1", apiKey)
		got = req
		return grid(req, "ok"), nil
	}))

	tc := newTest("  Rate this.  \n")
	tc.Mode = models.ModeScorer
	tc.Thresholds = &models.Thresholds{Like: 0.3}

	_, err := c.Run(context.Background(), tc, "sk-1")
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "Rate this.", got.Prompt)
	assert.Equal(t, []string{"m/a", "m/b"}, got.Models, "disabled models are skipped")
	assert.Equal(t, []models.InputRef{{InputID: "i1", Content: "first"}}, got.Inputs, "blank inputs are skipped")
	assert.Equal(t, 0.7, *got.Temperature)
	assert.Equal(t, models.ModeScorer, got.Mode)
	assert.Equal(t, 0.3, got.Thresholds.Like)
}

func TestRun_PromptsRunSequentially(t *testing.T) {
	type span struct{ start, end time.Time }
	var mu sync.Mutex
	spans := map[string]span{}
	var inFlight, maxInFlight atomic.Int32

	c := New(evalFunc(func(_ context.Context, _ string, req *models.EvaluateRequest) (models.Results, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}

		s := span{start: time.Now()}
		time.Sleep(15 * time.Millisecond)
		s.end = time.Now()

		mu.Lock()
		spans[req.Prompt] = s
		mu.Unlock()
		return grid(req, req.Prompt), nil
	}))

	tc := newTest("one", "two", "three")
	outcome, err := c.Run(context.Background(), tc, "k")
	require.NoError(t, err)
	require.NotNil(t, outcome.Snapshot)

	assert.Equal(t, int32(1), maxInFlight.Load(), "prompts never overlap")
	assert.False(t, spans["two"].start.Before(spans["one"].end))
	assert.False(t, spans["three"].start.Before(spans["two"].end))

	for i, want := range []string{"one", "two", "three"} {
		cell, ok := tc.Prompts[i].Results.Get("m/a", "i1")
		require.True(t, ok)
		assert.Equal(t, want, *cell.Output)
	}
}

func TestRun_SnapshotIsIndependentOfLiveState(t *testing.T) {
	store := cache.NewMemoryStore()
	c := New(echoPrompt(), WithStore(store))

	tc := newTest("Rate this.")
	outcome, err := c.Run(context.Background(), tc, "k")
	require.NoError(t, err)

	// Mutate everything the snapshot was built from.
	tc.Inputs[0].Content = "edited"
	tc.Models[0].ModelID = "m/edited"
	tc.Prompts[0].Prompt = "edited"
	tc.Prompts[0].Results.Set("m/a", "i1", models.NewErrorCell("edited"))
	outcome.Snapshot.Prompts[0].Name = "edited"

	snap := c.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, "first", snap.Inputs[0].Content)
	assert.Equal(t, "m/a", snap.Models[0].ModelID)
	assert.Len(t, snap.Models, 2, "only enabled models are captured")
	assert.Len(t, snap.Inputs, 1, "only runnable inputs are captured")
	assert.Equal(t, "Rate this.", snap.Prompts[0].Prompt)
	assert.Equal(t, "Prompt 1", snap.Prompts[0].Name)
	cell, _ := snap.Prompts[0].Results.Get("m/a", "i1")
	assert.Equal(t, "Rate this.", *cell.Output)

	persisted, ok := cache.LoadSnapshot(store, "test-1")
	require.True(t, ok)
	assert.Equal(t, "first", persisted.Inputs[0].Content)
}

func TestRun_PromptErrorStopsRemainingPrompts(t *testing.T) {
	var calls atomic.Int32
	c := New(evalFunc(func(_ context.Context, _ string, req *models.EvaluateRequest) (models.Results, error) {
		calls.Add(1)
		if req.Prompt == "two" {
			return nil, newRelayError(502, []byte("<html>bad gateway</html>"))
		}
		return grid(req, req.Prompt), nil
	}))

	tc := newTest("one", "two", "three")
	outcome, err := c.Run(context.Background(), tc, "k")

	require.Error(t, err)
	assert.Equal(t, "Prompt 2: HTTP 502: <html>bad gateway</html>", err.Error())
	var relayErr *RelayError
	assert.True(t, errors.As(err, &relayErr))
	assert.Equal(t, int32(2), calls.Load(), "third prompt never starts")

	require.NotNil(t, outcome.Snapshot, "failed runs still produce a snapshot")
	assert.Equal(t, 2, outcome.Snapshot.Prompts[0].Results.CellCount())
	assert.Equal(t, 0, outcome.Snapshot.Prompts[1].Results.CellCount())
	assert.Equal(t, 0, outcome.Snapshot.Prompts[2].Results.CellCount())
	assert.Equal(t, 2, tc.Prompts[0].Results.CellCount())
}

func blockUntilDone(started chan<- struct{}) evalFunc {
	var once sync.Once
	return func(ctx context.Context, _ string, req *models.EvaluateRequest) (models.Results, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func TestRun_Timeout(t *testing.T) {
	started := make(chan struct{})
	store := cache.NewMemoryStore()
	c := New(blockUntilDone(started), WithTimeout(30*time.Millisecond), WithStore(store))

	outcome, err := c.Run(context.Background(), newTest("one"), "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, "Request timed out (30ms). Try fewer prompts, inputs, or models.", err.Error())
	require.NotNil(t, outcome.Snapshot)
	assert.False(t, c.Running())

	_, ok := cache.LoadSnapshot(store, "test-1")
	assert.True(t, ok, "timed out runs persist their snapshot")
}

func TestTimeoutError_DefaultMessage(t *testing.T) {
	err := &TimeoutError{Timeout: DefaultTimeout}
	assert.Equal(t, "Request timed out (5 min). Try fewer prompts, inputs, or models.", err.Error())
	assert.ErrorIs(t, err, ErrTimedOut)
}

func TestRun_Cancel(t *testing.T) {
	started := make(chan struct{})
	c := New(blockUntilDone(started))

	type result struct {
		outcome *Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		o, err := c.Run(context.Background(), newTest("one", "two"), "k")
		done <- result{o, err}
	}()

	<-started
	assert.True(t, c.Running())
	c.Cancel()

	select {
	case r := <-done:
		assert.ErrorIs(t, r.err, ErrCancelled)
		require.NotNil(t, r.outcome.Snapshot)
		assert.False(t, r.outcome.Snapshot.HasResults())
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not stop the run")
	}
	assert.False(t, c.Running())
}

func TestRun_ParentContextCancelled(t *testing.T) {
	started := make(chan struct{})
	c := New(blockUntilDone(started))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := c.Run(ctx, newTest("one"), "k")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_NewRunSupersedesOld(t *testing.T) {
	store := cache.NewMemoryStore()
	oldStarted := make(chan struct{})
	var calls atomic.Int32

	c := New(evalFunc(func(ctx context.Context, _ string, req *models.EvaluateRequest) (models.Results, error) {
		if calls.Add(1) == 1 {
			close(oldStarted)
			<-ctx.Done()
			// A late answer from the superseded run must be ignored.
			return grid(req, "stale"), nil
		}
		return grid(req, "fresh"), nil
	}), WithStore(store))

	tc := newTest("one")

	oldDone := make(chan struct{})
	var oldOutcome *Outcome
	var oldErr error
	go func() {
		defer close(oldDone)
		oldOutcome, oldErr = c.Run(context.Background(), tc, "k")
	}()
	<-oldStarted

	newOutcome, err := c.Run(context.Background(), tc, "k")
	require.NoError(t, err)
	<-oldDone

	assert.ErrorIs(t, oldErr, ErrSuperseded)
	assert.Nil(t, oldOutcome.Snapshot, "superseded runs produce no snapshot")

	cell, _ := tc.Prompts[0].Results.Get("m/a", "i1")
	assert.Equal(t, "fresh", *cell.Output)

	latest := c.Snapshot()
	require.NotNil(t, latest)
	cell, _ = latest.Prompts[0].Results.Get("m/a", "i1")
	assert.Equal(t, "fresh", *cell.Output)

	persisted, ok := cache.LoadSnapshot(store, tc.ID)
	require.True(t, ok)
	cell, _ = persisted.Prompts[0].Results.Get("m/b", "i1")
	assert.Equal(t, "fresh", *cell.Output)
	assert.Equal(t, newOutcome.Snapshot, persisted)
}

func TestRun_ProgressAndSessionLog(t *testing.T) {
	log := &recordingLog{}
	var events []ProgressEvent
	c := New(echoPrompt(), WithSessionLog(log), WithProgress(func(e ProgressEvent) {
		events = append(events, e)
	}))

	_, err := c.Run(context.Background(), newTest("one", "two"), "k")
	require.NoError(t, err)

	var types []EventType
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []EventType{
		EventRunStart,
		EventPromptStart, EventPromptComplete,
		EventPromptStart, EventPromptComplete,
		EventRunComplete,
	}, types)
	assert.Equal(t, 2, events[2].Results.CellCount())
	assert.Equal(t, "Prompt 2", events[4].PromptName)

	assert.Equal(t, []session.Kind{
		session.KindRunStarted,
		session.KindPromptStarted, session.KindPromptFinished,
		session.KindPromptStarted, session.KindPromptFinished,
		session.KindRunFinished,
	}, log.kinds())
	assert.Equal(t, "completed", log.events[len(log.events)-1].Data["status"])
}

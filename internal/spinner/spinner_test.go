package spinner

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer guards a bytes.Buffer for concurrent writes and reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner_DrawsAndClears(t *testing.T) {
	var out syncBuffer
	s := Start(&out, "Prompt 1/2")

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Prompt 1/2")
	}, time.Second, 10*time.Millisecond)

	s.Update("Prompt 2/2")
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Prompt 2/2")
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()

	got := out.String()
	assert.True(t, strings.HasSuffix(got, "\r"), "line is cleared on stop")
}

func TestSpinner_StopBeforeFirstFrame(t *testing.T) {
	var out syncBuffer
	s := Start(&out, "working")
	s.Stop()
	assert.True(t, strings.HasSuffix(out.String(), "\r"))
}

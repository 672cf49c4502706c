package models

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces unique identifiers for tests, prompts, inputs and models.
type IDGenerator interface {
	NewID(prefix string) string
}

// SequenceIDs yields prefix+n from an explicit, monotonically increasing
// sequence. It is deterministic and safe for concurrent use.
type SequenceIDs struct {
	next atomic.Int64
}

// NewSequenceIDs returns a generator whose first id uses start.
func NewSequenceIDs(start int64) *SequenceIDs {
	s := &SequenceIDs{}
	s.next.Store(start)
	return s
}

// NewID returns the next id in the sequence.
func (s *SequenceIDs) NewID(prefix string) string {
	n := s.next.Add(1) - 1
	return prefix + strconv.FormatInt(n, 10)
}

// UUIDIDs yields prefix followed by a random UUID.
type UUIDIDs struct{}

// NewID returns prefix followed by a new random UUID.
func (UUIDIDs) NewID(prefix string) string {
	return prefix + uuid.NewString()
}

var (
	_ IDGenerator = (*SequenceIDs)(nil)
	_ IDGenerator = UUIDIDs{}
)

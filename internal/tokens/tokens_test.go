package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimatingCounter(t *testing.T) {
	counter := NewEstimatingCounter()
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"test", 1},
		{"testing", 2},
		{"The quick brown fox jumps over the lazy dog.", 11},
		{string(make([]byte, 100)), 25},
		{"日本語テキスト", 2},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, counter.Count(tt.input), "Count(%q)", tt.input)
	}
}

type fixedCounter int

func (f fixedCounter) Count(string) int { return int(f) }

func TestEstimateChat(t *testing.T) {
	require.Equal(t, 1+2+8, EstimateChat(nil, "test", "testing"))
	require.Equal(t, 10+10+8, EstimateChat(fixedCounter(10), "a", "b"))
}

var benchInput = strings.Repeat("The quick brown fox jumps over the lazy dog. ", 100)

func BenchmarkEstimatingCounter(b *testing.B) {
	counter := &EstimatingCounter{}
	for b.Loop() {
		counter.Count(benchInput)
	}
}

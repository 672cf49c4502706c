// Package tokens approximates token counts for run previews.
package tokens

import (
	"math"
	"unicode/utf8"
)

const (
	charsPerToken = 4

	// messageOverhead approximates the per-message framing tokens of a chat request.
	messageOverhead = 4
)

// Counter counts tokens in text.
type Counter interface {
	Count(text string) int
}

// EstimatingCounter approximates token count as ~4 characters per token.
type EstimatingCounter struct{}

func NewEstimatingCounter() *EstimatingCounter {
	return &EstimatingCounter{}
}

func (*EstimatingCounter) Count(text string) int {
	return Estimate(text)
}

// Estimate returns ceil(runes/4).
func Estimate(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / float64(charsPerToken)))
}

// EstimateChat approximates the prompt tokens of one system + user request.
func EstimateChat(c Counter, system, user string) int {
	if c == nil {
		c = &EstimatingCounter{}
	}
	return c.Count(system) + c.Count(user) + 2*messageOverhead
}

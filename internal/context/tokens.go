package context

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// =============================================================================
// Token Counting Utilities
// =============================================================================
// Token estimates are for reporting only; the assembly budget is counted in
// characters. The heuristic matches the budget oracle's conversion ratio.

// TokenCounter provides token counting functionality.
type TokenCounter struct {
	// Calibration factor (characters per token)
	charsPerToken float64
	encoding      *tiktoken.Tiktoken
}

var (
	encodingOnce sync.Once
	sharedEnc    *tiktoken.Tiktoken
)

// NewTokenCounter creates a heuristic token counter.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{
		charsPerToken: 3.6,
	}
}

// NewEncodingTokenCounter creates a counter backed by the cl100k_base
// encoding. If the encoding cannot be loaded it behaves like
// NewTokenCounter.
func NewEncodingTokenCounter() *TokenCounter {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			sharedEnc = enc
		}
	})
	tc := NewTokenCounter()
	tc.encoding = sharedEnc
	return tc
}

// Exact reports whether counts come from a real tokenizer.
func (tc *TokenCounter) Exact() bool {
	return tc.encoding != nil
}

// CountString estimates tokens in a string.
func (tc *TokenCounter) CountString(s string) int {
	if s == "" {
		return 0
	}
	if tc.encoding != nil {
		return len(tc.encoding.Encode(s, nil, nil))
	}
	// Use rune count for proper unicode handling
	runeCount := utf8.RuneCountInString(s)
	return int(float64(runeCount) / tc.charsPerToken)
}

// CountDocument estimates tokens for an assembled document.
func (tc *TokenCounter) CountDocument(d *Document) int {
	if d == nil {
		return 0
	}
	return tc.CountString(d.String())
}

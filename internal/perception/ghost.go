package perception

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"lmctx/internal/logging"
	"lmctx/internal/sanitize"
)

// GhostRequest asks for an inline continuation at a cursor position.
type GhostRequest struct {
	File   string // document path, used for project context
	Text   string // full document text
	Line   int    // 0-based
	Col    int    // 0-based, in runes
	Manual bool   // explicitly triggered rather than on typing
}

// ContextFunc returns project context for a document, or "" when none is
// available.
type ContextFunc func(ctx context.Context, file string) string

// GhostProvider produces inline completions. Each request supersedes the
// previous one: the older request's context is cancelled.
type GhostProvider struct {
	client Completer

	mu         sync.Mutex
	enabled    bool
	debounce   time.Duration
	contextFor ContextFunc
	cancel     context.CancelFunc
	seq        uint64
}

// NewGhostProvider creates a provider that waits debounce before calling
// the model.
func NewGhostProvider(client Completer, enabled bool, debounce time.Duration) *GhostProvider {
	return &GhostProvider{client: client, enabled: enabled, debounce: debounce}
}

// Configure updates the enabled flag and debounce window.
func (g *GhostProvider) Configure(enabled bool, debounce time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
	g.debounce = debounce
}

// SetClient swaps the model client, typically after a config reload.
func (g *GhostProvider) SetClient(client Completer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.client = client
}

// SetContext installs the project context source. Requests naming a File
// are prefixed with its result once the debounce has passed.
func (g *GhostProvider) SetContext(fn ContextFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contextFor = fn
}

// Cancel aborts the in-flight request, if any.
func (g *GhostProvider) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}

// Provide returns the completion to insert at the cursor, or "" when none
// applies. A superseded request returns the context error.
func (g *GhostProvider) Provide(ctx context.Context, req GhostRequest) (string, error) {
	g.mu.Lock()
	enabled, debounce, client, contextFor := g.enabled, g.debounce, g.client, g.contextFor
	g.mu.Unlock()
	if !enabled || client == nil {
		return "", nil
	}

	before, ok := textBeforeCursor(req)
	if !ok {
		return "", nil
	}

	g.mu.Lock()
	if g.cancel != nil {
		g.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.seq++
	seq := g.seq
	g.mu.Unlock()
	defer g.release(seq, cancel)

	if debounce > 0 {
		timer := time.NewTimer(debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	prompt := before
	if contextFor != nil && req.File != "" {
		if prefix := strings.TrimRight(contextFor(ctx, req.File), "\n"); prefix != "" {
			prompt = prefix + "\n\n" + before
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}

	raw, err := client.Complete(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logging.Get(logging.CategoryAPI).Warn("ghost completion failed: %v", err)
		return "", err
	}
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return sanitize.CleanCompletion(raw), nil
}

func (g *GhostProvider) release(seq uint64, cancel context.CancelFunc) {
	cancel()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seq == seq {
		g.cancel = nil
	}
}

// textBeforeCursor returns the document up to the cursor. Completions only
// apply with the cursor at the end of its line, and automatic triggers skip
// blank lines.
func textBeforeCursor(req GhostRequest) (string, bool) {
	lines := strings.Split(req.Text, "\n")
	if req.Line < 0 || req.Line >= len(lines) {
		return "", false
	}
	line := lines[req.Line]
	if req.Col != utf8.RuneCountInString(line) {
		return "", false
	}
	if !req.Manual && strings.TrimSpace(line) == "" {
		return "", false
	}
	return strings.Join(lines[:req.Line+1], "\n"), true
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"lmctx/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCompleter struct{ reply string }

func (s stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return s.reply, nil
}

type recordingCompleter struct {
	mu      sync.Mutex
	prompts []string
}

func (r *recordingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)
	return "y", nil
}

func decodeResponses(t *testing.T, out string) map[string]inlineResponse {
	t.Helper()
	got := make(map[string]inlineResponse)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var resp inlineResponse
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		got[resp.ID] = resp
	}
	return got
}

func TestInlineServer(t *testing.T) {
	logger = zap.NewNop()
	c := config.DefaultConfig()
	c.InlineEnabled = true
	c.DebounceMs = 0

	var out bytes.Buffer
	s := newInlineServer(c, stubCompleter{reply: "```\n(a, b)\n```"}, &out, t.TempDir())

	in := strings.Join([]string{
		`{"id":"1","text":"max","line":0,"col":3}`,
		`not json`,
		``,
	}, "\n")
	require.NoError(t, s.serve(context.Background(), strings.NewReader(in)))

	got := decodeResponses(t, out.String())
	require.Len(t, got, 2)
	assert.Equal(t, inlineResponse{ID: "1", Completion: "(a, b)"}, got["1"])
	assert.Contains(t, got[""].Error, "invalid request")
}

func TestInlineServer_CursorNotAtLineEnd(t *testing.T) {
	logger = zap.NewNop()
	c := config.DefaultConfig()
	c.InlineEnabled = true
	c.DebounceMs = 0

	var out bytes.Buffer
	s := newInlineServer(c, stubCompleter{reply: "x"}, &out, t.TempDir())
	require.NoError(t, s.serve(context.Background(), strings.NewReader(`{"id":"7","text":"abc","line":0,"col":1}`)))

	assert.Equal(t, inlineResponse{ID: "7"}, decodeResponses(t, out.String())["7"])
}

func TestInlineServer_ReloadDisables(t *testing.T) {
	logger = zap.NewNop()
	c := config.DefaultConfig()
	c.InlineEnabled = true
	c.DebounceMs = 0

	var out bytes.Buffer
	s := newInlineServer(c, stubCompleter{reply: "x"}, &out, t.TempDir())

	next := config.DefaultConfig()
	next.InlineEnabled = false
	next.Endpoint = "http://127.0.0.1:1"
	s.reload(next)

	require.NoError(t, s.serve(context.Background(), strings.NewReader(`{"id":"1","text":"a","line":0,"col":1}`)))
	assert.Equal(t, inlineResponse{ID: "1"}, decodeResponses(t, out.String())["1"])
}

func TestInlineServer_CancelWithoutRequest(t *testing.T) {
	logger = zap.NewNop()
	c := config.DefaultConfig()
	c.InlineEnabled = true

	var out bytes.Buffer
	s := newInlineServer(c, stubCompleter{reply: "x"}, &out, t.TempDir())
	require.NoError(t, s.serve(context.Background(), strings.NewReader(`{"id":"2","type":"cancel"}`)))
	assert.Empty(t, out.String())
}

func TestInlineServer_ProjectContext(t *testing.T) {
	logger = zap.NewNop()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.js"), []byte("import './b';\nx"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.js"), []byte("export const b = 1;"), 0o644))

	c := config.DefaultConfig()
	c.InlineEnabled = true
	c.DebounceMs = 0
	c.Endpoint = "" // no server: the oracle answers from the fallback table

	rc := &recordingCompleter{}
	var out bytes.Buffer
	s := newInlineServer(c, rc, &out, root)
	in := `{"id":"1","file":"a.js","text":"import './b';\nx","line":1,"col":1}`
	require.NoError(t, s.serve(context.Background(), strings.NewReader(in)))

	assert.Equal(t, inlineResponse{ID: "1", Completion: "y"}, decodeResponses(t, out.String())["1"])
	require.Len(t, rc.prompts, 1)
	prompt := rc.prompts[0]
	assert.True(t, strings.HasPrefix(prompt, "CURRENT FILE: a.js"), prompt)
	assert.Contains(t, prompt, "export const b = 1;")
	assert.True(t, strings.HasSuffix(prompt, "\n\nimport './b';\nx"), prompt)
}

func TestInlineServer_NoFileNoContext(t *testing.T) {
	logger = zap.NewNop()
	c := config.DefaultConfig()
	c.InlineEnabled = true
	c.DebounceMs = 0
	c.Endpoint = ""

	rc := &recordingCompleter{}
	var out bytes.Buffer
	s := newInlineServer(c, rc, &out, t.TempDir())
	require.NoError(t, s.serve(context.Background(), strings.NewReader(`{"id":"1","text":"x","line":0,"col":1}`)))

	require.Len(t, rc.prompts, 1)
	assert.Equal(t, "x", rc.prompts[0])
}

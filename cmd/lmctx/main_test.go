package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lmctx/internal/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupCLI resets the globals PersistentPreRunE would normally populate.
func setupCLI(t *testing.T) {
	t.Helper()
	logger = zap.NewNop()
	workspace = t.TempDir()
	cfg = config.DefaultConfig()
	cfg.Endpoint = ""
	timeout = time.Minute
	color.NoColor = true
}

func writeWorkspaceFile(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(workspace, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// modelServer answers /v1/models with one 8192-token model and chat
// completions with reply.
func modelServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			_, _ = w.Write([]byte(`{"data":[{"id":"local-model","context_length":8192}]}`))
		case "/v1/chat/completions":
			body, _ := json.Marshal(map[string]interface{}{
				"choices": []map[string]interface{}{
					{"message": map[string]string{"role": "assistant", "content": reply}},
				},
			})
			_, _ = w.Write(body)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseLineRange(t *testing.T) {
	tests := []struct {
		rng        string
		n          int
		start, end int
		wantErr    bool
	}{
		{rng: "2:4", n: 10, start: 1, end: 3},
		{rng: "3", n: 10, start: 2, end: 2},
		{rng: " 1 : 2 ", n: 10, start: 0, end: 1},
		{rng: "8:40", n: 10, start: 7, end: 9},
		{rng: "0:1", n: 10, wantErr: true},
		{rng: "5:2", n: 10, wantErr: true},
		{rng: "11:12", n: 10, wantErr: true},
		{rng: "a:b", n: 10, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.rng, func(t *testing.T) {
			start, end, err := parseLineRange(tt.rng, tt.n)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestReplaceLines(t *testing.T) {
	text := "a\nb\nc\nd\n"
	assert.Equal(t, "a\nX\nY\nd\n", replaceLines(text, 1, 2, "X\nY\n"))
	assert.Equal(t, "Z\nb\nc\nd\n", replaceLines(text, 0, 0, "Z"))
}

func TestCursorRequest(t *testing.T) {
	req := cursorRequest("one\ntwo\n", 0, 0)
	assert.Equal(t, "one\ntwo", req.Text)
	assert.Equal(t, 1, req.Line)
	assert.Equal(t, 3, req.Col)

	req = cursorRequest("héllo\nx", 1, 6)
	assert.Equal(t, 0, req.Line)
	assert.Equal(t, 5, req.Col)
}

func TestRunClean(t *testing.T) {
	setupCLI(t)

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader("<think>hmm</think>\n```js\nconst a = 1; // one\n```\nHere is why."))
	cmd.SetOut(&out)

	cleanCompletion = false
	require.NoError(t, runClean(cmd, nil))
	assert.Equal(t, "const a = 1;\n", out.String())
}

func TestRunClean_Completion(t *testing.T) {
	setupCLI(t)
	input := writeWorkspaceFile(t, "reply.txt", "\n\nreturn x\n")

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	cleanCompletion = true
	defer func() { cleanCompletion = false }()
	require.NoError(t, runClean(cmd, []string{input}))
	assert.Equal(t, "return x", out.String())
}

func TestRunAssemble_NoActiveEditor(t *testing.T) {
	setupCLI(t)
	assembleFile = ""

	output := captureOutput(t, func() {
		require.NoError(t, runAssemble(&cobra.Command{}, nil))
	})
	assert.Equal(t, "NO_ACTIVE_EDITOR\n", output)
}

func TestRunAssemble_Document(t *testing.T) {
	setupCLI(t)
	writeWorkspaceFile(t, "src/main.ts", "import { h } from './helper';\nh();\n")
	writeWorkspaceFile(t, "src/helper.ts", "export const h = () => 1;\n")
	writeWorkspaceFile(t, "package.json", `{"name":"demo"}`)

	assembleFile = "src/main.ts"
	defer func() { assembleFile = "" }()

	output := captureOutput(t, func() {
		require.NoError(t, runAssemble(&cobra.Command{}, nil))
	})

	assert.True(t, strings.HasPrefix(output, "CURRENT FILE: src/main.ts\n"))
	assert.Contains(t, output, "File: src/helper.ts")
	assert.Contains(t, output, "PROJECT CONFIGS & MANIFESTS:")
	assert.NotContains(t, output, "TRUNCATED")
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, percent(10, 0))
	assert.Equal(t, 50.0, percent(10, 20))
}

func TestRunBudget(t *testing.T) {
	t.Run("probe", func(t *testing.T) {
		setupCLI(t)
		cfg.Endpoint = modelServer(t, "").URL

		cmd := &cobra.Command{}
		var out bytes.Buffer
		cmd.SetOut(&out)
		require.NoError(t, runBudget(cmd, nil))

		assert.Contains(t, out.String(), "probe:    ok")
		assert.Contains(t, out.String(), "budget:   22118 chars")
		assert.Contains(t, out.String(), "fallback: 20000 chars")
	})

	t.Run("unreachable", func(t *testing.T) {
		setupCLI(t)
		cfg.Model = "mistral-7b-instruct"

		cmd := &cobra.Command{}
		var out bytes.Buffer
		cmd.SetOut(&out)
		require.NoError(t, runBudget(cmd, nil))

		assert.Contains(t, out.String(), "probe:    unavailable")
		assert.Contains(t, out.String(), "budget:   19600 chars (fallback)")
	})
}

func TestRunGenerate(t *testing.T) {
	reset := func() {
		generateFile, generateLines = "a.ts", "2:2"
		generateWrite, generateDiff = false, false
	}
	defer func() {
		generateFile, generateLines = "", ""
		generateWrite, generateDiff = false, false
	}()

	t.Run("prints cleaned replacement", func(t *testing.T) {
		setupCLI(t)
		reset()
		cfg.Endpoint = modelServer(t, "Sure!\n```ts\nconst b = 2;\n```").URL
		writeWorkspaceFile(t, "a.ts", "const a = 1;\nconst x = 0;\n")

		cmd := &cobra.Command{}
		var out bytes.Buffer
		cmd.SetOut(&out)
		require.NoError(t, runGenerate(cmd, nil))
		assert.Equal(t, "const b = 2;\n", out.String())
	})

	t.Run("diff", func(t *testing.T) {
		setupCLI(t)
		reset()
		generateDiff = true
		cfg.Endpoint = modelServer(t, "const b = 2;").URL
		writeWorkspaceFile(t, "a.ts", "const a = 1;\nconst x = 0;\n")

		cmd := &cobra.Command{}
		var out bytes.Buffer
		cmd.SetOut(&out)
		require.NoError(t, runGenerate(cmd, nil))
		assert.Contains(t, out.String(), "-const x = 0;\n")
		assert.Contains(t, out.String(), "+const b = 2;\n")
	})

	t.Run("write", func(t *testing.T) {
		setupCLI(t)
		reset()
		generateWrite = true
		cfg.Endpoint = modelServer(t, "const b = 2;").URL
		path := writeWorkspaceFile(t, "a.ts", "const a = 1;\nconst x = 0;\n")

		cmd := &cobra.Command{}
		cmd.SetOut(io.Discard)
		require.NoError(t, runGenerate(cmd, nil))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "const a = 1;\nconst b = 2;\n", string(data))
	})

	t.Run("empty reply", func(t *testing.T) {
		setupCLI(t)
		reset()
		cfg.Endpoint = modelServer(t, "<think>no idea</think>").URL
		writeWorkspaceFile(t, "a.ts", "const a = 1;\nconst x = 0;\n")

		err := runGenerate(&cobra.Command{}, nil)
		assert.EqualError(t, err, "model returned no code")
	})
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}

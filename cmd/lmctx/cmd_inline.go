package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"lmctx/internal/budget"
	"lmctx/internal/config"
	lmcontext "lmctx/internal/context"
	"lmctx/internal/perception"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// inlineCmd serves inline completions over stdin/stdout
var inlineCmd = &cobra.Command{
	Use:   "inline",
	Short: "Serve inline completions as JSON lines on stdin/stdout",
	Long: `Reads one JSON request per line from stdin and writes one JSON response
per request to stdout. A newer request cancels the one in flight; requests
wait debounce_ms before reaching the model. A request naming a workspace
file is prefixed with that file's assembled project context, sized to the
model's context window. lmctx.yaml is watched and reloaded while serving.

Request:  {"id":"1","file":"src/a.js","text":"...","line":0,"col":12,"manual":false}
          {"id":"2","type":"cancel"}
Response: {"id":"1","completion":"..."} or {"id":"1","error":"..."}`,
	RunE: runInline,
}

type inlineRequest struct {
	ID     string `json:"id"`
	Type   string `json:"type,omitempty"`
	File   string `json:"file,omitempty"`
	Text   string `json:"text"`
	Line   int    `json:"line"`
	Col    int    `json:"col"`
	Manual bool   `json:"manual,omitempty"`
}

type inlineResponse struct {
	ID         string `json:"id"`
	Completion string `json:"completion"`
	Cancelled  bool   `json:"cancelled,omitempty"`
	Error      string `json:"error,omitempty"`
}

// inlineServer multiplexes requests onto one GhostProvider. Project context
// comes from an assembler sized by the shared budget oracle.
type inlineServer struct {
	ghost  *perception.GhostProvider
	oracle *budget.Oracle
	root   string

	mu  sync.Mutex
	enc *json.Encoder
	wg  sync.WaitGroup
}

func newInlineServer(c *config.Config, client perception.Completer, out io.Writer, root string) *inlineServer {
	assembler, oracle := newAssembler(c)
	s := &inlineServer{
		ghost:  perception.NewGhostProvider(client, c.InlineEnabled, c.GetDebounce()),
		oracle: oracle,
		root:   root,
		enc:    json.NewEncoder(out),
	}
	s.ghost.SetContext(projectContext(assembler, root))
	return s
}

// reload applies a changed config to the running server. The oracle is kept
// so in-flight assemblies see the new endpoint and model.
func (s *inlineServer) reload(c *config.Config) {
	s.oracle.Update(c.Endpoint, c.Model)
	s.oracle.Invalidate()
	s.ghost.Configure(c.InlineEnabled, c.GetDebounce())
	s.ghost.SetClient(perception.NewClient(perception.ClientConfigFrom(c)))
	s.ghost.SetContext(projectContext(lmcontext.NewAssembler(s.oracle, assemblerOptions(c)), s.root))
}

func (s *inlineServer) write(resp inlineResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(resp); err != nil {
		logger.Warn("failed to write response", zap.Error(err))
	}
}

// serve reads requests until in is exhausted or ctx ends, then waits for
// in-flight requests to answer.
func (s *inlineServer) serve(ctx context.Context, in io.Reader) error {
	defer s.wg.Wait()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req inlineRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(inlineResponse{Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}
		if req.Type == "cancel" {
			s.ghost.Cancel()
			continue
		}

		s.wg.Add(1)
		go func(req inlineRequest) {
			defer s.wg.Done()
			s.handle(ctx, req)
		}(req)
	}
	return scanner.Err()
}

func (s *inlineServer) handle(ctx context.Context, req inlineRequest) {
	completion, err := s.ghost.Provide(ctx, perception.GhostRequest{
		File:   req.File,
		Text:   req.Text,
		Line:   req.Line,
		Col:    req.Col,
		Manual: req.Manual,
	})
	resp := inlineResponse{ID: req.ID, Completion: completion}
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		resp.Cancelled = true
	case err != nil:
		resp.Error = err.Error()
	}
	s.write(resp)
}

func runInline(cmd *cobra.Command, args []string) error {
	// Serves until stdin closes; the config timeout bounds each model call.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := newInlineServer(cfg, perception.NewClient(perception.ClientConfigFrom(cfg)), cmd.OutOrStdout(), workspace)

	watcher, err := config.NewWatcher(config.ResolvePath(configPath, workspace), server.reload)
	if err != nil {
		logger.Warn("config hot reload disabled", zap.Error(err))
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("config hot reload disabled", zap.Error(err))
		watcher.Stop()
	} else {
		defer watcher.Stop()
	}

	logger.Info("serving inline completions",
		zap.Bool("enabled", cfg.InlineEnabled),
		zap.Duration("debounce", cfg.GetDebounce()))
	return server.serve(ctx, cmd.InOrStdin())
}

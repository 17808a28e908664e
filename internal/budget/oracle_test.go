package budget

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lmctx/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOracle(t *testing.T, endpoint, model string) *Oracle {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.Model = model
	cfg.Budget.ProbeTimeout = "500ms"
	return NewOracle(cfg)
}

func modelServer(t *testing.T, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBudget_Probe(t *testing.T) {
	tests := []struct {
		name  string
		model string
		body  string
		want  int
	}{
		{
			name:  "exact match prefers context_length",
			model: "Qwen2.5-Coder-7B",
			body:  `{"data":[{"id":"other","context_length":4096},{"id":"qwen2.5-coder-7b","context_length":32768,"max_tokens":1000}]}`,
			want:  TokensToChars(32768),
		},
		{
			name:  "substring match uses name before tag",
			model: "deepseek-coder:6.7b",
			body:  `{"data":[{"id":"gemma-2-9b","context_length":8192},{"id":"lmstudio/deepseek-coder-v2","max_tokens":16384}]}`,
			want:  TokensToChars(16384),
		},
		{
			name:  "first entry when nothing matches",
			model: "unknown",
			body:  `{"data":[{"id":"a","context_length":4096},{"id":"b","context_length":2048}]}`,
			want:  TokensToChars(4096),
		},
		{
			name:  "no token fields",
			model: "a",
			body:  `{"data":[{"id":"a"}]}`,
			want:  TokensToChars(DefaultContextTokens),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := modelServer(t, tt.body, nil)
			o := newTestOracle(t, srv.URL, tt.model)
			assert.Equal(t, tt.want, o.Budget(context.Background()))
		})
	}
}

func TestTokensToChars(t *testing.T) {
	assert.Equal(t, 22118, TokensToChars(8192))
	assert.Equal(t, 0, TokensToChars(0))
}

func TestBudget_FailuresFallBack(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()
		o := newTestOracle(t, srv.URL, "gemma-2-9b")
		assert.Equal(t, 19600, o.Budget(context.Background()))
	})

	t.Run("malformed json", func(t *testing.T) {
		srv := modelServer(t, `{"data": [`, nil)
		o := newTestOracle(t, srv.URL, "mixtral-8x7b")
		assert.Equal(t, 77000, o.Budget(context.Background()))
	})

	t.Run("empty list", func(t *testing.T) {
		srv := modelServer(t, `{"data": []}`, nil)
		o := newTestOracle(t, srv.URL, "nothing-known")
		assert.Equal(t, 20000, o.Budget(context.Background()))
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		o := newTestOracle(t, url, "phi-3-mini")
		assert.Equal(t, 294000, o.Budget(context.Background()))
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		o := newTestOracle(t, srv.URL, "codellama:34b")
		start := time.Now()
		assert.Equal(t, 40600, o.Budget(context.Background()))
		assert.Less(t, time.Since(start), 3*time.Second)
	})
}

func TestFallback(t *testing.T) {
	o := NewOracle(nil)

	tests := []struct {
		model string
		want  int
	}{
		{"Phi-3-medium", 294000},
		{"llama-3.1-8b", 294000},
		{"llama-3-8b", 19600},
		{"codellama:34b-instruct", 40600},
		{"codellama-7b", 40600},
		{"Mistral-7B", 19600},
		{"", 20000},
		{"gpt-oss", 20000},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, o.Fallback(tt.model))
		})
	}
}

func TestFallback_ConfiguredTable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Budget.Fallback = []config.FamilyCeiling{{Family: "qwen", Chars: 100000}}
	cfg.Budget.DefaultChars = 30000
	o := NewOracle(cfg)

	assert.Equal(t, 70000, o.Fallback("Qwen2.5"))
	assert.Equal(t, 30000, o.Fallback("gemma"))

	cfg.Budget.DefaultChars = 5000
	assert.Equal(t, DefaultChars, NewOracle(cfg).Fallback("gemma"), "default below the floor is ignored")
}

func TestFallback_TinyCeilingStaysPositive(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Endpoint = ""
	cfg.Model = "tiny-1"
	cfg.Budget.Fallback = []config.FamilyCeiling{{Family: "tiny", Chars: 1}}
	o := NewOracle(cfg)

	assert.Equal(t, 1, o.Fallback("tiny-1"))
	assert.Greater(t, o.Budget(context.Background()), 0)
}

func TestBudget_Caching(t *testing.T) {
	var hits int32
	srv := modelServer(t, `{"data":[{"id":"m","context_length":4096}]}`, &hits)
	o := newTestOracle(t, srv.URL, "m")

	now := time.Now()
	o.now = func() time.Time { return now }

	first := o.Budget(context.Background())
	second := o.Budget(context.Background())
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	now = now.Add(CacheTTL + time.Second)
	o.Budget(context.Background())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	o.Invalidate()
	o.Budget(context.Background())
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestBudget_FailureNotCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	o := newTestOracle(t, srv.URL, "gemma")
	o.Budget(context.Background())
	o.Budget(context.Background())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestBudget_UpdateSwitchesModel(t *testing.T) {
	srv := modelServer(t, `{"data":[{"id":"small","context_length":2048},{"id":"large","context_length":32768}]}`, nil)
	o := newTestOracle(t, srv.URL, "small")

	assert.Equal(t, TokensToChars(2048), o.Budget(context.Background()))
	o.Update(srv.URL+"/", "large")
	assert.Equal(t, TokensToChars(32768), o.Budget(context.Background()))
}

func TestBudget_ConcurrentCallers(t *testing.T) {
	var hits int32
	srv := modelServer(t, `{"data":[{"id":"m","context_length":4096}]}`, &hits)
	o := newTestOracle(t, srv.URL, "m")

	var wg sync.WaitGroup
	results := make([]int, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.Budget(context.Background())
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.Equal(t, TokensToChars(4096), r)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&hits), int32(16))
}

func TestSelectModel_Empty(t *testing.T) {
	_, ok := SelectModel(nil, "x")
	assert.False(t, ok)
}

func TestProbe_BypassesCache(t *testing.T) {
	var hits int32
	srv := modelServer(t, `{"data":[{"id":"m","context_length":1000}]}`, &hits)
	o := newTestOracle(t, srv.URL, "m")

	for i := 0; i < 2; i++ {
		chars, err := o.Probe(context.Background())
		require.NoError(t, err)
		assert.Equal(t, TokensToChars(1000), chars)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, 0, o.cache.Len())
}

func TestProbe_ReportsError(t *testing.T) {
	o := newTestOracle(t, "", "m")
	_, err := o.Probe(context.Background())
	assert.Error(t, err)
}

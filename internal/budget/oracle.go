// Package budget determines how many characters of context the active model
// can take. A short-lived live probe of the server's model listing is
// preferred; any failure degrades to a static family table.
package budget

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"lmctx/internal/config"
	"lmctx/internal/logging"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const (
	// CacheTTL is how long a probed budget stays valid.
	CacheTTL = 30 * time.Second

	DefaultContextTokens = 8192
	CharsPerToken        = 3.6
	Headroom             = 0.75
	FallbackDerate       = 0.7
	DefaultChars         = 20000

	defaultProbeTimeout = 5 * time.Second
	cacheSize           = 16
	maxListingBytes     = 4 << 20
)

// Model is one entry of GET /v1/models.
type Model struct {
	ID            string `json:"id"`
	Object        string `json:"object,omitempty"`
	OwnedBy       string `json:"owned_by,omitempty"`
	MaxTokens     int    `json:"max_tokens,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
}

type modelList struct {
	Data []Model `json:"data"`
}

type cacheEntry struct {
	chars    int
	storedAt time.Time
}

// Oracle answers Budget() for the configured endpoint and model. It is safe
// for concurrent use; concurrent misses share one in-flight probe.
type Oracle struct {
	mu       sync.RWMutex
	endpoint string
	model    string

	httpClient   *http.Client
	probeTimeout time.Duration
	families     []config.FamilyCeiling
	defaultChars int
	ttl          time.Duration

	cache *lru.Cache[string, cacheEntry]
	group singleflight.Group
	now   func() time.Time
}

// NewOracle creates an oracle from configuration.
func NewOracle(cfg *config.Config) *Oracle {
	cache, err := lru.New[string, cacheEntry](cacheSize)
	if err != nil {
		// lru.New only errors on non-positive size.
		panic(err)
	}
	o := &Oracle{
		httpClient:   &http.Client{},
		probeTimeout: defaultProbeTimeout,
		families:     config.DefaultFallbackTable(),
		defaultChars: DefaultChars,
		ttl:          CacheTTL,
		cache:        cache,
		now:          time.Now,
	}
	if cfg != nil {
		o.endpoint = strings.TrimRight(cfg.Endpoint, "/")
		o.model = cfg.Model
		o.probeTimeout = cfg.GetProbeTimeout()
		if len(cfg.Budget.Fallback) > 0 {
			o.families = cfg.Budget.Fallback
		}
		if cfg.Budget.DefaultChars >= DefaultChars {
			o.defaultChars = cfg.Budget.DefaultChars
		}
	}
	return o
}

// Update switches endpoint and model, typically after a config reload.
// Cached budgets are keyed by endpoint and model, so the old entry simply
// stops being consulted.
func (o *Oracle) Update(endpoint, model string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.endpoint = strings.TrimRight(endpoint, "/")
	o.model = model
}

// Invalidate drops every cached budget.
func (o *Oracle) Invalidate() {
	o.cache.Purge()
}

func (o *Oracle) current() (string, string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.endpoint, o.model
}

// Budget returns the usable character capacity, always > 0.
func (o *Oracle) Budget(ctx context.Context) int {
	endpoint, model := o.current()
	key := endpoint + "|" + model

	if entry, ok := o.cache.Get(key); ok {
		if o.now().Sub(entry.storedAt) < o.ttl {
			return entry.chars
		}
		o.cache.Remove(key)
	}

	v, _, _ := o.group.Do(key, func() (interface{}, error) {
		chars, err := o.probe(ctx, endpoint, model)
		if err != nil {
			fallback := o.Fallback(model)
			logging.BudgetDebug("probe failed, using fallback %d chars for %q: %v", fallback, model, err)
			return fallback, nil
		}
		o.cache.Add(key, cacheEntry{chars: chars, storedAt: o.now()})
		return chars, nil
	})
	return v.(int)
}

// Probe queries the server for the current model without consulting or
// filling the cache.
func (o *Oracle) Probe(ctx context.Context) (int, error) {
	endpoint, model := o.current()
	return o.probe(ctx, endpoint, model)
}

func (o *Oracle) probe(ctx context.Context, endpoint, model string) (int, error) {
	if endpoint == "" {
		return 0, fmt.Errorf("no endpoint configured")
	}
	ctx, cancel := context.WithTimeout(ctx, o.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/v1/models", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("model listing returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}
	var list modelList
	if err := json.Unmarshal(body, &list); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}

	m, ok := SelectModel(list.Data, model)
	if !ok {
		return 0, fmt.Errorf("no models returned")
	}

	tokens := m.ContextLength
	if tokens <= 0 {
		tokens = m.MaxTokens
	}
	if tokens <= 0 {
		tokens = DefaultContextTokens
	}
	chars := TokensToChars(tokens)
	logging.Budget("detected model %s context %d tokens (~%d chars)", m.ID, tokens, chars)
	return chars, nil
}

// TokensToChars converts a context window in tokens to a usable character
// budget with headroom for the prompt framing and the reply.
func TokensToChars(tokens int) int {
	return int(math.Floor(float64(tokens) * CharsPerToken * Headroom))
}

// SelectModel picks the loaded model: exact id match (case-insensitive),
// else an id containing the configured name before any ":" tag, else the
// first entry.
func SelectModel(models []Model, configured string) (Model, bool) {
	if len(models) == 0 {
		return Model{}, false
	}
	want := strings.ToLower(strings.TrimSpace(configured))
	for _, m := range models {
		if strings.ToLower(m.ID) == want {
			return m, true
		}
	}
	name := want
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}
	if name != "" {
		for _, m := range models {
			if strings.Contains(strings.ToLower(m.ID), name) {
				return m, true
			}
		}
	}
	return models[0], true
}

// Fallback returns the static budget for a model name: the first family in
// table order whose key occurs in the lower-cased name, derated; otherwise
// the conservative default. The result is never below 1.
func (o *Oracle) Fallback(model string) int {
	lower := strings.ToLower(model)
	for _, f := range o.families {
		if strings.Contains(lower, strings.ToLower(f.Family)) {
			return max(1, int(math.Floor(float64(f.Chars)*FallbackDerate)))
		}
	}
	return o.defaultChars
}

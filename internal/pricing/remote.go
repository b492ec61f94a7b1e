package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DefaultFeedURL serves per-model rate data in the LiteLLM price-feed shape.
const DefaultFeedURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"

type feedEntry struct {
	InputCostPerToken  float64 `json:"input_cost_per_token"`
	OutputCostPerToken float64 `json:"output_cost_per_token"`
	CacheCreationCost  float64 `json:"cache_creation_input_token_cost"`
	CacheReadCost      float64 `json:"cache_read_input_token_cost"`
}

// Remote is a refreshable price feed with a TTL cache. On any fetch or
// decode failure it serves from the static fallback resolver, so lookups
// never fail.
type Remote struct {
	url      string
	client   *http.Client
	ttl      time.Duration
	fallback Resolver

	mu        sync.RWMutex
	table     map[string]Price
	fetchedAt time.Time
}

func NewRemote(url string, fallback Resolver) *Remote {
	if url == "" {
		url = DefaultFeedURL
	}
	if fallback == nil {
		fallback = NewStatic()
	}
	return &Remote{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		ttl:      time.Hour,
		fallback: fallback,
	}
}

func (r *Remote) PriceFor(model string) Price {
	r.mu.RLock()
	table, fetchedAt := r.table, r.fetchedAt
	r.mu.RUnlock()

	if table != nil && time.Since(fetchedAt) < r.ttl {
		if p, ok := lookup(table, model); ok {
			return p
		}
	}
	return r.fallback.PriceFor(model)
}

// Refresh pulls the feed. Callers run it on demand or on a timer; a failed
// refresh leaves the previous table (and the static fallback) in place.
func (r *Remote) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return fmt.Errorf("pricing: build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("pricing: fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pricing: feed returned status %d", resp.StatusCode)
	}

	var feed map[string]feedEntry
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return fmt.Errorf("pricing: decode feed: %w", err)
	}

	table := make(map[string]Price, len(feed))
	for model, entry := range feed {
		if entry.InputCostPerToken == 0 && entry.OutputCostPerToken == 0 {
			continue
		}
		table[model] = Price{
			Input:      entry.InputCostPerToken * 1e6,
			Output:     entry.OutputCostPerToken * 1e6,
			CacheWrite: entry.CacheCreationCost * 1e6,
			CacheRead:  entry.CacheReadCost * 1e6,
		}
	}

	r.mu.Lock()
	r.table = table
	r.fetchedAt = time.Now()
	r.mu.Unlock()
	return nil
}

func lookup(table map[string]Price, model string) (Price, bool) {
	if p, ok := table[model]; ok {
		return p, true
	}
	// Feeds key some models as "provider/model".
	for key, p := range table {
		if idx := lastSlash(key); idx >= 0 && key[idx+1:] == model {
			return p, true
		}
	}
	return Price{}, false
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

package pricing

import "strings"

// Price holds the four unit rates for a model, in currency units per
// 1,000,000 tokens.
type Price struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheWrite float64 `json:"cache_write"`
	CacheRead  float64 `json:"cache_read"`
}

// Resolver maps a model name to its unit rates. Implementations must
// return a usable default for unknown models rather than fail; the
// aggregation engine tolerates stale or default pricing.
type Resolver interface {
	PriceFor(model string) Price
}

// Cost applies the canonical cost formula. The same formula runs at
// ingestion time and in any later cost-verification pass.
func Cost(p Price, inputTokens, outputTokens, cacheWriteTokens, cacheReadTokens int64) float64 {
	return float64(inputTokens)/1e6*p.Input +
		float64(outputTokens)/1e6*p.Output +
		float64(cacheWriteTokens)/1e6*p.CacheWrite +
		float64(cacheReadTokens)/1e6*p.CacheRead
}

// Static resolves prices from a fixed table with model-family matching.
type Static struct {
	table    map[string]Price
	fallback Price
}

var defaultTable = map[string]Price{
	"opus": {
		Input:      15.0,
		Output:     75.0,
		CacheWrite: 18.75,
		CacheRead:  1.50,
	},
	"sonnet": {
		Input:      3.0,
		Output:     15.0,
		CacheWrite: 3.75,
		CacheRead:  0.30,
	},
	"haiku": {
		Input:      0.80,
		Output:     4.0,
		CacheWrite: 1.0,
		CacheRead:  0.08,
	},
}

// NewStatic returns the built-in price table. Unknown models fall back to
// the sonnet-tier rates.
func NewStatic() *Static {
	return &Static{table: defaultTable, fallback: defaultTable["sonnet"]}
}

// NewStaticTable builds a resolver from an explicit table, mainly for tests
// and injected configurations.
func NewStaticTable(table map[string]Price, fallback Price) *Static {
	return &Static{table: table, fallback: fallback}
}

func (s *Static) PriceFor(model string) Price {
	lower := strings.ToLower(strings.TrimSpace(model))
	if p, ok := s.table[lower]; ok {
		return p
	}
	for family, p := range s.table {
		if strings.Contains(lower, family) {
			return p
		}
	}
	return s.fallback
}

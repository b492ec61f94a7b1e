package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCost_Formula(t *testing.T) {
	p := Price{Input: 3.0, Output: 15.0, CacheWrite: 3.75, CacheRead: 0.30}

	// One million input tokens at rate 3.0 must cost exactly 3.0.
	assert.Equal(t, 3.0, Cost(p, 1_000_000, 0, 0, 0))

	got := Cost(p, 1000, 500, 2000, 10000)
	want := 1000.0/1e6*3.0 + 500.0/1e6*15.0 + 2000.0/1e6*3.75 + 10000.0/1e6*0.30
	assert.InDelta(t, want, got, 1e-12)

	assert.Equal(t, 0.0, Cost(p, 0, 0, 0, 0))
}

func TestStatic_FamilyMatching(t *testing.T) {
	r := NewStatic()

	assert.Equal(t, 15.0, r.PriceFor("claude-3-opus-20240229").Input)
	assert.Equal(t, 3.0, r.PriceFor("claude-sonnet-4-5").Input)
	assert.Equal(t, 0.80, r.PriceFor("claude-3-5-haiku-latest").Input)
	assert.Equal(t, 3.0, r.PriceFor("Claude-Sonnet-4").Input, "matching is case-insensitive")
}

func TestStatic_UnknownModelGetsDefault(t *testing.T) {
	r := NewStatic()

	p := r.PriceFor("some-future-model")
	assert.Greater(t, p.Input, 0.0, "unknown model must resolve to a usable default")
	assert.Greater(t, p.Output, 0.0)
}

func TestRemote_RefreshAndLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"m1": {"input_cost_per_token": 0.000003, "output_cost_per_token": 0.000015},
			"anthropic/m2": {"input_cost_per_token": 0.000001, "output_cost_per_token": 0.000002}
		}`))
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, NewStatic())
	require.NoError(t, r.Refresh(context.Background()))

	assert.InDelta(t, 3.0, r.PriceFor("m1").Input, 1e-9)
	assert.InDelta(t, 15.0, r.PriceFor("m1").Output, 1e-9)
	assert.InDelta(t, 1.0, r.PriceFor("m2").Input, 1e-9, "provider-prefixed keys resolve by suffix")
}

func TestRemote_FallsBackWhenFeedUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, NewStatic())
	assert.Error(t, r.Refresh(context.Background()))

	p := r.PriceFor("claude-3-opus-20240229")
	assert.Equal(t, 15.0, p.Input, "failed refresh must not break lookups")
}

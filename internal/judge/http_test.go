package judge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ploylabs/ploy/internal/risk"
)

func testRequest() Request {
	m, _ := risk.Compute(0.15, 0.30)
	return Request{
		Agent:   "sports",
		Domain:  "nba",
		Trigger: "comeback threshold crossed",
		Market: MarketSnapshot{
			MarketID: "market-1",
			TokenID:  "token-1",
			Question: "Will the trailing team win?",
			Price:    0.15,
		},
		Metrics:   m,
		Timestamp: time.Now().UTC(),
	}
}

func newTestJudge(endpoint string) *HTTPJudge {
	cfg := DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.DecisionCooldown = 0
	return NewHTTPJudge(cfg, zerolog.Nop())
}

func TestTradeVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"action":"trade","fair_value":0.35,"edge":0.20,"confidence":0.8,"reasoning":"momentum shift"}`))
	}))
	defer srv.Close()

	v := newTestJudge(srv.URL).Evaluate(context.Background(), testRequest())
	require.Equal(t, Trade, v.Kind)
	assert.Equal(t, 0.35, v.FairValue)
	assert.Equal(t, 0.20, v.Edge)
	assert.Equal(t, "momentum shift", v.Reasoning)
}

func TestPassVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"action":"pass","reasoning":"edge too thin"}`))
	}))
	defer srv.Close()

	v := newTestJudge(srv.URL).Evaluate(context.Background(), testRequest())
	assert.Equal(t, Pass, v.Kind)
	assert.Equal(t, "edge too thin", v.Reasoning)
}

func TestAmbiguousActionIsPass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"action":"maybe","reasoning":"unsure"}`))
	}))
	defer srv.Close()

	v := newTestJudge(srv.URL).Evaluate(context.Background(), testRequest())
	assert.Equal(t, Pass, v.Kind)
}

func TestMalformedResponseIsPass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	v := newTestJudge(srv.URL).Evaluate(context.Background(), testRequest())
	assert.Equal(t, Pass, v.Kind)
	assert.Contains(t, v.Reasoning, "unparseable")
}

func TestServerErrorIsNotQueried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	v := newTestJudge(srv.URL).Evaluate(context.Background(), testRequest())
	assert.Equal(t, NotQueried, v.Kind)
	assert.Contains(t, v.Reasoning, "unavailable")
}

func TestTransportFailureIsNotQueried(t *testing.T) {
	v := newTestJudge("http://127.0.0.1:1").Evaluate(context.Background(), testRequest())
	assert.Equal(t, NotQueried, v.Kind)
	assert.Contains(t, v.Reasoning, "unavailable")
}

func TestUnconfiguredEndpointIsPass(t *testing.T) {
	v := newTestJudge("").Evaluate(context.Background(), testRequest())
	assert.Equal(t, Pass, v.Kind)
	assert.Contains(t, v.Reasoning, "not configured")
}

func TestDecisionCooldown(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Write([]byte(`{"action":"pass","reasoning":"no"}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Endpoint = srv.URL
	cfg.DecisionCooldown = time.Minute
	j := NewHTTPJudge(cfg, zerolog.Nop())

	first := j.Evaluate(context.Background(), testRequest())
	assert.Equal(t, Pass, first.Kind)

	second := j.Evaluate(context.Background(), testRequest())
	assert.Equal(t, NotQueried, second.Kind)
	assert.Equal(t, 1, calls)

	// A different market is not throttled by the first one's cooldown.
	other := testRequest()
	other.Market.MarketID = "market-2"
	third := j.Evaluate(context.Background(), other)
	assert.Equal(t, Pass, third.Kind)
	assert.Equal(t, 2, calls)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Endpoint = srv.URL
	cfg.DecisionCooldown = 0
	cfg.BreakerFailures = 2
	j := NewHTTPJudge(cfg, zerolog.Nop())

	for i := 0; i < 4; i++ {
		v := j.Evaluate(context.Background(), testRequest())
		assert.Equal(t, NotQueried, v.Kind, "failure %d must read as never consulted", i)
	}
}

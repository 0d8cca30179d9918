package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsentry/chainsentry/config"
	"github.com/chainsentry/chainsentry/store"
	"github.com/chainsentry/chainsentry/types"
)

func newTestGateway(t *testing.T, explorerURL string) (*Gateway, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Defaults()
	cfg.EtherscanBase = explorerURL
	cfg.GeminiBase = explorerURL
	cfg.RequestTimeout = 5 * time.Second
	return New(cfg, st), st
}

func TestSubmitCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "account", r.URL.Query().Get("module"))
		fmt.Fprint(w, `{"status":"1","message":"OK","result":"0x42"}`)
	}))
	defer srv.Close()

	g, _ := newTestGateway(t, srv.URL)
	g.Start()
	defer g.Stop()

	result, err := g.Submit(context.Background(), config.ProviderEtherscan, &ExplorerRequest{
		Params: map[string]string{"module": "account", "action": "balance"},
	})
	require.NoError(t, err)
	assert.Equal(t, "0x42", result)
}

func TestSubmitUnknownProvider(t *testing.T) {
	g, _ := newTestGateway(t, "http://127.0.0.1:0")
	_, err := g.Submit(context.Background(), "nosuch", &AIRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestSubmitContextCancel(t *testing.T) {
	// No driver running, so the request never completes.
	g, _ := newTestGateway(t, "http://127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := g.Submit(ctx, config.ProviderEtherscan, &ExplorerRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

// Transient failures requeue with exponential backoff until attempts are
// exhausted, then the request fails terminally.
func TestProcessTransientRetryThenTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g, st := newTestGateway(t, srv.URL)

	req, err := st.CreateRequest(config.ProviderEtherscan, mustJSON(t, &ExplorerRequest{}))
	require.NoError(t, err)

	// Attempt 1: transient failure, requeued ~2s out.
	claimed, err := st.ClaimNextRequest(config.ProviderEtherscan, g.procID, time.Now().UTC())
	require.NoError(t, err)
	before := time.Now().UTC()
	g.process(claimed)

	got, err := st.GetRequest(req.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	delay := got.RetryAt.Sub(before)
	assert.GreaterOrEqual(t, delay, 1500*time.Millisecond, "first retry backs off 2^1 seconds")
	assert.LessOrEqual(t, delay, 3*time.Second)

	// Attempt 2: backoff doubles.
	claimed, err = st.ClaimNextRequest(config.ProviderEtherscan, g.procID, got.RetryAt.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	before = time.Now().UTC()
	g.process(claimed)

	got, err = st.GetRequest(req.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.GreaterOrEqual(t, got.RetryAt.Sub(before), 3500*time.Millisecond, "second retry backs off 2^2 seconds")

	// Attempt 3 is the last: terminal failure.
	claimed, err = st.ClaimNextRequest(config.ProviderEtherscan, g.procID, got.RetryAt.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, 3, claimed.Attempts)
	g.process(claimed)

	got, err = st.GetRequest(req.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "http status 500")
}

func TestProcessPermanentFailsImmediately(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	g, st := newTestGateway(t, srv.URL)
	req, err := st.CreateRequest(config.ProviderEtherscan, mustJSON(t, &ExplorerRequest{}))
	require.NoError(t, err)
	claimed, err := st.ClaimNextRequest(config.ProviderEtherscan, g.procID, time.Now().UTC())
	require.NoError(t, err)
	g.process(claimed)

	got, err := st.GetRequest(req.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, int64(1), hits.Load(), "permanent errors skip the transport retry")
}

func TestAllowRollingWindows(t *testing.T) {
	g, st := newTestGateway(t, "http://127.0.0.1:0")
	g.cfg.RateLimits[config.ProviderEtherscan] = config.RateLimit{Second: 2, Minute: 100, Day: 1000}

	complete := func() {
		req, err := st.CreateRequest(config.ProviderEtherscan, mustJSON(t, &ExplorerRequest{}))
		require.NoError(t, err)
		_, err = st.ClaimNextRequest(config.ProviderEtherscan, g.procID, time.Now().UTC())
		require.NoError(t, err)
		_, err = st.FinalizeRequest(req.ID, types.StatusCompleted, "ok", "")
		require.NoError(t, err)
	}

	assert.True(t, g.allow(config.ProviderEtherscan))
	complete()
	assert.True(t, g.allow(config.ProviderEtherscan))
	complete()
	assert.False(t, g.allow(config.ProviderEtherscan), "per-second budget exhausted")

	// The day window binds even when the second window has room.
	g.cfg.RateLimits[config.ProviderEtherscan] = config.RateLimit{Second: 100, Minute: 100, Day: 2}
	assert.False(t, g.allow(config.ProviderEtherscan))
}

func TestQueueStatsETA(t *testing.T) {
	g, st := newTestGateway(t, "http://127.0.0.1:0")

	for i := 0; i < 3; i++ {
		_, err := st.CreateRequest(config.ProviderEtherscan, mustJSON(t, &ExplorerRequest{}))
		require.NoError(t, err)
	}
	done, err := st.CreateRequest(config.ProviderGemini, mustJSON(t, &AIRequest{Prompt: "x"}))
	require.NoError(t, err)
	_, err = st.ClaimNextRequest(config.ProviderGemini, g.procID, time.Now().UTC())
	require.NoError(t, err)
	_, err = st.FinalizeRequest(done.ID, types.StatusCompleted, "ok", "")
	require.NoError(t, err)

	stats, err := g.QueueStats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.CompletedLast5Min)
	// pending / (recent/300) = 3 / (1/300) = 900.
	assert.InDelta(t, 900.0, stats.ETASeconds, 0.01)
}

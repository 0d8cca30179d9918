// Package gateway implements the process-wide rate-limited request queue.
// Every outbound call to a blockchain explorer or the AI provider is
// persisted as an APIRequest, claimed by the driver loop under per-provider
// rolling rate limits, dispatched with transport-level retry and retried at
// the queue level with exponential backoff. Callers block on a one-shot
// waiter until their request is finalized or the timeout fires.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/chainsentry/chainsentry/config"
	"github.com/chainsentry/chainsentry/store"
	"github.com/chainsentry/chainsentry/types"
)

// Errors surfaced to callers.
var (
	ErrTimeout         = errors.New("request timed out waiting for gateway")
	ErrUnknownProvider = errors.New("unknown provider")
)

const (
	// Driver cadence. Each tick claims at most one request per provider.
	tickInterval = 200 * time.Millisecond

	// Transport-level retry, distinct from the queue-level retry.
	transportAttempts = 2
	transportBackoff  = 500 * time.Millisecond

	// Reaper settings.
	reapInterval    = time.Minute
	processingLease = 5 * time.Minute
	// Completed records outlive the largest rate window before pruning.
	completedTTL = 25 * time.Hour
)

type outcome struct {
	result string
	err    error
}

// Gateway owns the outbound API budget for the whole process.
type Gateway struct {
	cfg   *config.Config
	store *store.Store

	procID    string
	providers []string
	adapters  map[string]adapter
	client    *http.Client

	mu      sync.Mutex
	waiters map[string]chan outcome

	busy atomic.Bool // reentrancy guard for the driver tick

	quit chan struct{}
	wg   sync.WaitGroup
}

// New builds a gateway with the standard provider set.
func New(cfg *config.Config, st *store.Store) *Gateway {
	g := &Gateway{
		cfg:    cfg,
		store:  st,
		procID: uuid.NewString(),
		adapters: map[string]adapter{
			config.ProviderEtherscan: &etherscanAdapter{base: cfg.EtherscanBase, apiKey: cfg.EtherscanKey},
			config.ProviderGemini:    &geminiAdapter{base: cfg.GeminiBase, apiKey: cfg.GeminiKey},
		},
		client:  &http.Client{Timeout: 30 * time.Second},
		waiters: make(map[string]chan outcome),
		quit:    make(chan struct{}),
	}
	for p := range g.adapters {
		g.providers = append(g.providers, p)
	}
	sort.Strings(g.providers)
	return g
}

// Start launches the driver and reaper loops.
func (g *Gateway) Start() {
	g.wg.Add(2)
	go g.driverLoop()
	go g.reaperLoop()
	log.Info("Request gateway started", "providers", g.providers, "processing_id", g.procID)
}

// Stop terminates the loops and waits for them.
func (g *Gateway) Stop() {
	close(g.quit)
	g.wg.Wait()
}

// Submit persists a logical request for the provider and blocks until the
// gateway finalizes it or the configured timeout fires. On timeout the
// waiter is removed; the persisted record may still complete later and is
// eventually pruned by the reaper.
func (g *Gateway) Submit(ctx context.Context, provider string, data any) (string, error) {
	if _, ok := g.adapters[provider]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode request data: %w", err)
	}
	req, err := g.store.CreateRequest(provider, raw)
	if err != nil {
		return "", fmt.Errorf("failed to persist request: %w", err)
	}
	submittedMeter.Mark(1)

	ch := make(chan outcome, 1)
	g.mu.Lock()
	g.waiters[req.ID] = ch
	g.mu.Unlock()

	// The driver may have finalized the record before the waiter was
	// registered; check once to avoid waiting on a signal already sent.
	if cur, err := g.store.GetRequest(req.ID); err == nil {
		switch cur.Status {
		case types.StatusCompleted:
			g.removeWaiter(req.ID)
			return cur.Result, nil
		case types.StatusFailed:
			g.removeWaiter(req.ID)
			return "", errors.New(cur.Error)
		}
	}

	timeout := time.NewTimer(g.cfg.RequestTimeout)
	defer timeout.Stop()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-timeout.C:
		g.removeWaiter(req.ID)
		timeoutMeter.Mark(1)
		return "", fmt.Errorf("%w after %s (request %s)", ErrTimeout, g.cfg.RequestTimeout, req.ID)
	case <-ctx.Done():
		g.removeWaiter(req.ID)
		return "", ctx.Err()
	}
}

func (g *Gateway) removeWaiter(id string) {
	g.mu.Lock()
	delete(g.waiters, id)
	g.mu.Unlock()
}

func (g *Gateway) signal(id string, out outcome) {
	g.mu.Lock()
	ch, ok := g.waiters[id]
	if ok {
		delete(g.waiters, id)
	}
	g.mu.Unlock()
	if ok {
		ch <- out
	}
}

func (g *Gateway) driverLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.tick()
		case <-g.quit:
			return
		}
	}
}

// tick claims and dispatches at most one request per provider. Overlapping
// ticks are dropped so a slow dispatch never double-claims.
func (g *Gateway) tick() {
	if !g.busy.CompareAndSwap(false, true) {
		return
	}
	defer g.busy.Store(false)

	for _, provider := range g.providers {
		if !g.allow(provider) {
			limitedMeter.Mark(1)
			continue
		}
		req, err := g.store.ClaimNextRequest(provider, g.procID, time.Now().UTC())
		if err != nil {
			log.Error("Failed to claim request", "provider", provider, "err", err)
			continue
		}
		if req == nil {
			continue
		}
		g.process(req)
	}
	g.updateQueueGauges()
}

// allow checks the three rolling windows, largest first.
func (g *Gateway) allow(provider string) bool {
	limits := g.cfg.Limit(provider)
	now := time.Now().UTC()
	windows := []struct {
		span time.Duration
		max  int
	}{
		{24 * time.Hour, limits.Day},
		{time.Minute, limits.Minute},
		{time.Second, limits.Second},
	}
	for _, w := range windows {
		count, err := g.store.CountCompletedSince(provider, now.Add(-w.span))
		if err != nil {
			log.Error("Failed to count rate window", "provider", provider, "err", err)
			return false
		}
		if count >= w.max {
			return false
		}
	}
	return true
}

func (g *Gateway) process(req *types.APIRequest) {
	start := time.Now()
	result, err := g.dispatch(req)
	metricsDispatchCost(start)

	switch {
	case err == nil:
		if _, ferr := g.store.FinalizeRequest(req.ID, types.StatusCompleted, result, ""); ferr != nil {
			log.Error("Failed to finalize request", "id", req.ID, "err", ferr)
			return
		}
		completedMeter.Mark(1)
		g.signal(req.ID, outcome{result: result})

	case !isPermanent(err) && req.Retryable(g.cfg.MaxAttempts):
		retryAt := time.Now().UTC().Add(time.Duration(1<<req.Attempts) * time.Second)
		if rerr := g.store.RequeueRequest(req.ID, retryAt, err.Error()); rerr != nil {
			log.Error("Failed to requeue request", "id", req.ID, "err", rerr)
			return
		}
		retriedMeter.Mark(1)
		log.Debug("Request requeued", "id", req.ID, "provider", req.Provider, "attempt", req.Attempts, "retry_at", retryAt, "err", err)

	default:
		if _, ferr := g.store.FinalizeRequest(req.ID, types.StatusFailed, "", err.Error()); ferr != nil {
			log.Error("Failed to finalize request", "id", req.ID, "err", ferr)
			return
		}
		failedMeter.Mark(1)
		log.Warn("Request failed terminally", "id", req.ID, "provider", req.Provider, "attempts", req.Attempts, "err", err)
		g.signal(req.ID, outcome{err: err})
	}
}

// dispatch runs the provider adapter with a bounded transport-level retry.
func (g *Gateway) dispatch(req *types.APIRequest) (string, error) {
	ad := g.adapters[req.Provider]

	var lastErr error
	for attempt := 0; attempt < transportAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(transportBackoff << (attempt - 1))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		result, err := ad.do(ctx, g.client, req.Data)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if isPermanent(err) {
			break
		}
	}
	return "", lastErr
}

func (g *Gateway) reaperLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			requeued, failed, err := g.store.ReapStaleRequests(processingLease, g.cfg.MaxAttempts)
			if err != nil {
				log.Error("Request reaper failed", "err", err)
			} else if requeued+failed > 0 {
				reapedMeter.Mark(int64(requeued + failed))
				log.Warn("Reaped stale requests", "requeued", requeued, "failed", failed)
			}
			if pruned, err := g.store.PruneCompleted(time.Now().UTC().Add(-completedTTL)); err != nil {
				log.Error("Request pruning failed", "err", err)
			} else if pruned > 0 {
				log.Debug("Pruned completed requests", "count", pruned)
			}
		case <-g.quit:
			return
		}
	}
}

func (g *Gateway) updateQueueGauges() {
	counts, err := g.store.RequestCounts()
	if err != nil {
		return
	}
	pendingGauge.Update(int64(counts[types.StatusPending]))
	processingGauge.Update(int64(counts[types.StatusProcessing]))
}

// Stats is the operator view of the request queue.
type Stats struct {
	Pending           int     `json:"pending"`
	Processing        int     `json:"processing"`
	Completed         int     `json:"completed"`
	Failed            int     `json:"failed"`
	CompletedLast5Min int     `json:"completedLast5Min"`
	ETASeconds        float64 `json:"etaSeconds"`
}

// QueueStats reports counts by status, recent throughput and the estimated
// time to drain the pending backlog at the current completion rate.
func (g *Gateway) QueueStats() (*Stats, error) {
	counts, err := g.store.RequestCounts()
	if err != nil {
		return nil, err
	}
	recent := 0
	for _, provider := range g.providers {
		n, err := g.store.CountCompletedSince(provider, time.Now().UTC().Add(-5*time.Minute))
		if err != nil {
			return nil, err
		}
		recent += n
	}
	stats := &Stats{
		Pending:           counts[types.StatusPending],
		Processing:        counts[types.StatusProcessing],
		Completed:         counts[types.StatusCompleted],
		Failed:            counts[types.StatusFailed],
		CompletedLast5Min: recent,
	}
	if recent > 0 {
		stats.ETASeconds = float64(stats.Pending) / (float64(recent) / 300.0)
	}
	return stats, nil
}

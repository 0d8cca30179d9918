// Package analysis runs the durable task queue behind wallet scans: a
// scheduler that enqueues periodic full scans, one single-purpose worker per
// task type, and the analyzers themselves. Orchestration is done by workers
// enqueuing successor tasks; there is no global barrier.
package analysis

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/chainsentry/chainsentry/store"
	"github.com/chainsentry/chainsentry/types"
)

const (
	// Lease after which a processing job abandoned by a crashed worker is
	// failed by the reaper.
	jobLease     = 15 * time.Minute
	reapInterval = time.Minute
)

// Handler processes one claimed job.
type Handler func(ctx context.Context, job *types.AnalysisJob) error

// Worker is a poll-claim-process loop for one task type. The claim is
// atomic, so running several workers for the same type stays safe.
type Worker struct {
	task     types.TaskType
	store    *store.Store
	interval time.Duration
	handler  Handler
}

// Run polls until the context is cancelled. Each wakeup drains the queue
// for its task type.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for {
			job, err := w.store.ClaimNextJob(w.task)
			if err != nil {
				log.Error("Failed to claim job", "task", w.task, "err", err)
				break
			}
			if job == nil {
				break
			}
			w.process(ctx, job)
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, job *types.AnalysisJob) {
	start := time.Now()
	err := w.handler(ctx, job)
	metricsJobDone(w.task, start, err != nil)
	if err != nil {
		// No automatic retry; the next scheduled scan re-runs the analyzer.
		if ferr := w.store.FailJob(job.ID, err.Error()); ferr != nil {
			log.Error("Failed to mark job failed", "task", w.task, "job", job.ID, "err", ferr)
		}
		log.Warn("Analysis job failed", "task", w.task, "job", job.ID, "wallet", job.WalletID, "err", err)
		return
	}
	if cerr := w.store.CompleteJob(job.ID); cerr != nil {
		log.Error("Failed to mark job completed", "task", w.task, "job", job.ID, "err", cerr)
	}
	log.Debug("Analysis job completed", "task", w.task, "job", job.ID, "wallet", job.WalletID, "took", time.Since(start))
}

// Runner wires the environment, one worker per task type, the scheduler and
// the job reaper.
type Runner struct {
	env     *Env
	workers []*Worker
}

// NewRunner registers the handler family over the shared environment.
func NewRunner(env *Env) *Runner {
	r := &Runner{env: env}
	handlers := map[types.TaskType]Handler{
		types.TaskFullScan:          env.handleFullScan,
		types.TaskFetchTransactions: env.handleFetchTransactions,
		types.TaskAnalyzeApprovals:  env.handleAnalyzeApprovals,
		types.TaskAnalyzeContracts:  env.handleAnalyzeContracts,
		types.TaskAnalyzeActivity:   env.handleAnalyzeActivity,
		types.TaskAnalyzeLPStake:    env.handleAnalyzeLPStake,
	}
	for _, task := range types.AllTasks {
		r.workers = append(r.workers, &Worker{
			task:     task,
			store:    env.store,
			interval: env.cfg.WorkerPollInterval,
			handler:  handlers[task],
		})
	}
	return r
}

// Run starts every worker, the scheduler and the reaper, and blocks until
// the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		w := w
		g.Go(func() error { return w.Run(ctx) })
	}
	g.Go(func() error { return r.env.runScheduler(ctx) })
	g.Go(func() error { return r.runReaper(ctx) })
	log.Info("Analysis workers started", "workers", len(r.workers), "poll", r.env.cfg.WorkerPollInterval)
	return g.Wait()
}

func (r *Runner) runReaper(ctx context.Context) error {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			reaped, err := r.env.store.ReapStaleJobs(jobLease)
			if err != nil {
				log.Error("Job reaper failed", "err", err)
				continue
			}
			if reaped > 0 {
				reapedJobsMeter.Mark(int64(reaped))
				log.Warn("Reaped stale analysis jobs", "count", reaped)
			}
		}
	}
}

// runScheduler enqueues a full_scan for every registered wallet on the
// configured interval, with one pass right after startup.
func (e *Env) runScheduler(ctx context.Context) error {
	e.scheduleScans()

	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.scheduleScans()
		}
	}
}

func (e *Env) scheduleScans() {
	wallets, err := e.store.Wallets()
	if err != nil {
		log.Error("Scheduler failed to list wallets", "err", err)
		return
	}
	for _, w := range wallets {
		if _, err := e.store.EnqueueJob(w.ID, types.TaskFullScan, nil); err != nil {
			log.Error("Scheduler failed to enqueue scan", "wallet", w.ID, "err", err)
			continue
		}
		scheduledScansMeter.Mark(1)
	}
	if len(wallets) > 0 {
		log.Info("Scheduled full scans", "wallets", len(wallets))
	}
}

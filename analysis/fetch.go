package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/chainsentry/chainsentry/types"
)

// handleFullScan is a no-op orchestrator: it stamps the scan time and
// enqueues the transaction fetch.
func (e *Env) handleFullScan(ctx context.Context, job *types.AnalysisJob) error {
	if _, err := e.store.UpdateWallet(job.WalletID, func(w *types.Wallet) error {
		w.LastScanAt = time.Now().UTC()
		return nil
	}); err != nil {
		return err
	}
	_, err := e.store.EnqueueJob(job.WalletID, types.TaskFetchTransactions, nil)
	return err
}

// handleFetchTransactions refreshes the three cached streams. A stream with
// a zero watermark gets an initial scan, newest first, capped at the
// configured maximum; otherwise an ascending incremental fetch from
// watermark+1. A failing stream never blocks the others; the first failure
// is recorded in the report's fetch slot. On completion the four analyzers
// are fanned out.
func (e *Env) handleFetchTransactions(ctx context.Context, job *types.AnalysisJob) error {
	wallet, err := e.store.GetWallet(job.WalletID)
	if err != nil {
		return err
	}

	fetched := make(map[types.Stream][]types.Transaction)
	var firstErr error
	failures := 0
	for _, stream := range types.AllStreams {
		txs, err := e.fetchStream(ctx, wallet, stream)
		if err != nil {
			log.Warn("Stream fetch failed", "wallet", wallet.ID, "stream", stream, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			failures++
			continue
		}
		fetched[stream] = txs
	}
	fetchSec := &types.FetchSection{UpdatedAt: time.Now().UTC()}
	if firstErr != nil {
		fetchSec.Error = firstErr.Error()
	}
	if _, err := e.store.UpdateReport(wallet.ID, func(r *types.Report) {
		r.Details.Fetch = fetchSec
	}); err != nil {
		return err
	}
	if failures == len(types.AllStreams) {
		return errors.New("all streams failed: " + firstErr.Error())
	}

	// Cache rows and watermarks move in one atomic wallet write.
	if _, err := e.store.UpdateWallet(wallet.ID, func(w *types.Wallet) error {
		for _, stream := range types.AllStreams {
			if txs, ok := fetched[stream]; ok {
				w.Cache.Append(stream, txs)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	for _, task := range types.AnalyzerTasks {
		if _, err := e.store.EnqueueJob(wallet.ID, task, nil); err != nil {
			return err
		}
	}
	return nil
}

func (e *Env) fetchStream(ctx context.Context, wallet *types.Wallet, stream types.Stream) ([]types.Transaction, error) {
	list := e.streamLister(stream)

	watermark := wallet.Cache.Watermark(stream)
	if watermark == 0 {
		return list(ctx, wallet.Chain, wallet.Address, 0, true, e.cfg.InitialScanMaxTx)
	}
	return list(ctx, wallet.Chain, wallet.Address, watermark+1, false, e.cfg.InitialScanMaxTx)
}

type lister func(ctx context.Context, chain, address string, startBlock uint64, descending bool, limit int) ([]types.Transaction, error)

func (e *Env) streamLister(stream types.Stream) lister {
	switch stream {
	case types.StreamToken:
		return e.chain.TokenTransfers
	case types.StreamNFT:
		return e.chain.NFTTransfers
	default:
		return e.chain.NormalTransactions
	}
}

package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsentry/chainsentry/types"
)

func TestWorkerProcessOutcomes(t *testing.T) {
	te := newTestEnv(t)

	var handlerErr error
	w := &Worker{
		task:  types.TaskFullScan,
		store: te.store,
		handler: func(ctx context.Context, job *types.AnalysisJob) error {
			return handlerErr
		},
	}

	enqueueAndClaim := func() *types.AnalysisJob {
		_, err := te.store.EnqueueJob(te.wallet.ID, types.TaskFullScan, nil)
		require.NoError(t, err)
		job, err := te.store.ClaimNextJob(types.TaskFullScan)
		require.NoError(t, err)
		require.NotNil(t, job)
		return job
	}

	job := enqueueAndClaim()
	w.process(context.Background(), job)
	got, err := te.store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)

	handlerErr = errors.New("analyzer exploded")
	job = enqueueAndClaim()
	w.process(context.Background(), job)
	got, err = te.store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, "analyzer exploded", got.Error)
}

func TestScheduleScans(t *testing.T) {
	te := newTestEnv(t)
	_, err := te.store.CreateWallet("user-2", "0xda7a0000000000000000000000000000000dead1", "base", "")
	require.NoError(t, err)

	te.env.scheduleScans()

	// One full_scan per registered wallet.
	first, err := te.store.ClaimNextJob(types.TaskFullScan)
	require.NoError(t, err)
	require.NotNil(t, first)
	second, err := te.store.ClaimNextJob(types.TaskFullScan)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.WalletID, second.WalletID)

	third, err := te.store.ClaimNextJob(types.TaskFullScan)
	require.NoError(t, err)
	assert.Nil(t, third)
}

func TestNewRunnerCoversAllTasks(t *testing.T) {
	te := newTestEnv(t)
	r := NewRunner(te.env)
	require.Len(t, r.workers, len(types.AllTasks))

	seen := make(map[types.TaskType]bool)
	for _, w := range r.workers {
		require.NotNil(t, w.handler, "no handler for %s", w.task)
		seen[w.task] = true
	}
	for _, task := range types.AllTasks {
		assert.True(t, seen[task])
	}
}

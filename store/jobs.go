package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/chainsentry/chainsentry/types"
)

func jobKey(id string) string { return prefixJob + id }

func jobPendingKey(task types.TaskType, createdAt time.Time, id string) string {
	return prefixJobPending + string(task) + "/" + tsKey(createdAt) + "/" + id
}

func jobActiveKey(processedAt time.Time, id string) string {
	return prefixJobActive + tsKey(processedAt) + "/" + id
}

// EnqueueJob creates a pending analysis job for the wallet.
func (s *Store) EnqueueJob(walletID string, task types.TaskType, payload json.RawMessage) (*types.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &types.AnalysisJob{
		ID:        uuid.NewString(),
		WalletID:  walletID,
		Task:      task,
		Status:    types.StatusPending,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
	batch := new(leveldb.Batch)
	if err := s.putJSON(batch, jobKey(job.ID), job); err != nil {
		return nil, err
	}
	batch.Put([]byte(jobPendingKey(task, job.CreatedAt, job.ID)), []byte(job.ID))
	if err := s.db.Write(batch, nil); err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimNextJob atomically claims the oldest pending job of the given type.
// Returns nil when the queue is empty.
func (s *Store) ClaimNextJob(task types.TaskType) (*types.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := prefixJobPending + string(task) + "/"
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	for iter.Next() {
		id := string(iter.Value())
		job := new(types.AnalysisJob)
		if err := s.getJSON(jobKey(id), job); err != nil {
			// Orphaned index entry, drop it and keep scanning.
			s.db.Delete(iter.Key(), nil)
			continue
		}
		job.Status = types.StatusProcessing
		job.ProcessedAt = time.Now().UTC()

		batch := new(leveldb.Batch)
		batch.Delete(iter.Key())
		if err := s.putJSON(batch, jobKey(id), job); err != nil {
			return nil, err
		}
		batch.Put([]byte(jobActiveKey(job.ProcessedAt, id)), []byte(id))
		if err := s.db.Write(batch, nil); err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, iter.Error()
}

// GetJob returns the job by id.
func (s *Store) GetJob(id string) (*types.AnalysisJob, error) {
	job := new(types.AnalysisJob)
	if err := s.getJSON(jobKey(id), job); err != nil {
		return nil, err
	}
	return job, nil
}

// CompleteJob marks a processing job completed.
func (s *Store) CompleteJob(id string) error {
	return s.finishJob(id, types.StatusCompleted, "")
}

// FailJob marks a processing job failed and records the error. Failed jobs
// are not retried; the next scheduled scan re-runs the analyzer.
func (s *Store) FailJob(id, errMsg string) error {
	return s.finishJob(id, types.StatusFailed, errMsg)
}

func (s *Store) finishJob(id string, status types.Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := new(types.AnalysisJob)
	if err := s.getJSON(jobKey(id), job); err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Delete([]byte(jobActiveKey(job.ProcessedAt, id)))
	job.Status = status
	if status == types.StatusFailed {
		job.Attempts++
		job.Error = errMsg
	}
	if err := s.putJSON(batch, jobKey(id), job); err != nil {
		return err
	}
	return s.db.Write(batch, nil)
}

// JobCounts returns the number of jobs per status.
func (s *Store) JobCounts() (map[types.Status]int, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixJob)), nil)
	defer iter.Release()

	counts := make(map[types.Status]int)
	for iter.Next() {
		job := new(types.AnalysisJob)
		if err := jsonUnmarshal(iter.Value(), job); err != nil {
			continue
		}
		counts[job.Status]++
	}
	return counts, iter.Error()
}

// ReapStaleJobs fails processing jobs whose claim is older than the lease.
// Rescues work stranded by a crashed worker.
func (s *Store) ReapStaleJobs(lease time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := prefixJobActive + tsKey(time.Now().UTC().Add(-lease))
	iter := s.db.NewIterator(&util.Range{Start: []byte(prefixJobActive), Limit: []byte(cutoff)}, nil)
	defer iter.Release()

	reaped := 0
	for iter.Next() {
		id := string(iter.Value())
		job := new(types.AnalysisJob)
		if err := s.getJSON(jobKey(id), job); err != nil {
			s.db.Delete(iter.Key(), nil)
			continue
		}
		batch := new(leveldb.Batch)
		batch.Delete(iter.Key())
		job.Status = types.StatusFailed
		job.Attempts++
		job.Error = "claim lease expired"
		if err := s.putJSON(batch, jobKey(id), job); err != nil {
			return reaped, err
		}
		if err := s.db.Write(batch, nil); err != nil {
			return reaped, err
		}
		reaped++
	}
	return reaped, iter.Error()
}

// deleteJobsForWallet appends deletions for every job referencing the wallet.
// Caller holds the store lock.
func (s *Store) deleteJobsForWallet(batch *leveldb.Batch, walletID string) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixJob)), nil)
	defer iter.Release()

	for iter.Next() {
		job := new(types.AnalysisJob)
		if err := jsonUnmarshal(iter.Value(), job); err != nil {
			continue
		}
		if job.WalletID != walletID {
			continue
		}
		batch.Delete(iter.Key())
		if job.Status == types.StatusPending {
			batch.Delete([]byte(jobPendingKey(job.Task, job.CreatedAt, job.ID)))
		}
		if job.Status == types.StatusProcessing {
			batch.Delete([]byte(jobActiveKey(job.ProcessedAt, job.ID)))
		}
	}
}

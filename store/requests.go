package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/chainsentry/chainsentry/types"
)

func requestKey(id string) string { return prefixRequest + id }

func reqPendingKey(provider string, createdAt time.Time, id string) string {
	return prefixReqPending + provider + "/" + tsKey(createdAt) + "/" + id
}

func reqActiveKey(provider, id string) string {
	return prefixReqActive + provider + "/" + id
}

func reqCompletedKey(provider string, completedAt time.Time, id string) string {
	return prefixReqCompleted + provider + "/" + tsKey(completedAt) + "/" + id
}

// CreateRequest persists a new pending api request for the provider.
func (s *Store) CreateRequest(provider string, data json.RawMessage) (*types.APIRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := &types.APIRequest{
		ID:        uuid.NewString(),
		Provider:  provider,
		Data:      data,
		Status:    types.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	batch := new(leveldb.Batch)
	if err := s.putJSON(batch, requestKey(req.ID), req); err != nil {
		return nil, err
	}
	batch.Put([]byte(reqPendingKey(provider, req.CreatedAt, req.ID)), []byte(req.ID))
	if err := s.db.Write(batch, nil); err != nil {
		return nil, err
	}
	return req, nil
}

// ClaimNextRequest atomically claims the oldest pending request for the
// provider whose retry time has passed, stamps it with the processing id and
// increments its attempt counter. Returns nil when nothing is eligible.
func (s *Store) ClaimNextRequest(provider, processingID string, now time.Time) (*types.APIRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := prefixReqPending + provider + "/"
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	for iter.Next() {
		id := string(iter.Value())
		req := new(types.APIRequest)
		if err := s.getJSON(requestKey(id), req); err != nil {
			s.db.Delete(iter.Key(), nil)
			continue
		}
		if !req.RetryAt.IsZero() && req.RetryAt.After(now) {
			continue
		}
		req.Status = types.StatusProcessing
		req.ProcessingID = processingID
		req.ClaimedAt = now
		req.Attempts++

		batch := new(leveldb.Batch)
		batch.Delete(iter.Key())
		if err := s.putJSON(batch, requestKey(id), req); err != nil {
			return nil, err
		}
		batch.Put([]byte(reqActiveKey(provider, id)), []byte(id))
		if err := s.db.Write(batch, nil); err != nil {
			return nil, err
		}
		return req, nil
	}
	return nil, iter.Error()
}

// GetRequest returns the request by id.
func (s *Store) GetRequest(id string) (*types.APIRequest, error) {
	req := new(types.APIRequest)
	if err := s.getJSON(requestKey(id), req); err != nil {
		return nil, err
	}
	return req, nil
}

// RequeueRequest returns a processing request to pending with a retry time,
// preserving the error text. The pending index keeps the original creation
// time so FIFO order survives retries.
func (s *Store) RequeueRequest(id string, retryAt time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := new(types.APIRequest)
	if err := s.getJSON(requestKey(id), req); err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Delete([]byte(reqActiveKey(req.Provider, id)))
	req.Status = types.StatusPending
	req.ProcessingID = ""
	req.RetryAt = retryAt
	req.Error = errMsg
	if err := s.putJSON(batch, requestKey(id), req); err != nil {
		return err
	}
	batch.Put([]byte(reqPendingKey(req.Provider, req.CreatedAt, id)), []byte(id))
	return s.db.Write(batch, nil)
}

// FinalizeRequest terminates a request as completed or failed, stamps
// completed_at and records the result or error.
func (s *Store) FinalizeRequest(id string, status types.Status, result, errMsg string) (*types.APIRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := new(types.APIRequest)
	if err := s.getJSON(requestKey(id), req); err != nil {
		return nil, err
	}
	batch := new(leveldb.Batch)
	batch.Delete([]byte(reqActiveKey(req.Provider, id)))
	req.Status = status
	req.Result = result
	req.Error = errMsg
	req.CompletedAt = time.Now().UTC()
	if err := s.putJSON(batch, requestKey(id), req); err != nil {
		return nil, err
	}
	batch.Put([]byte(reqCompletedKey(req.Provider, req.CompletedAt, id)), []byte(id))
	if err := s.db.Write(batch, nil); err != nil {
		return nil, err
	}
	return req, nil
}

// CountCompletedSince counts requests for the provider finalized at or after
// the given instant. Drives the rolling rate-limit windows.
func (s *Store) CountCompletedSince(provider string, since time.Time) (int, error) {
	start := prefixReqCompleted + provider + "/" + tsKey(since)
	limit := prefixReqCompleted + provider + "0" // '0' sorts just after '/'
	iter := s.db.NewIterator(&util.Range{Start: []byte(start), Limit: []byte(limit)}, nil)
	defer iter.Release()

	n := 0
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}

// RequestCounts returns the number of requests per status.
func (s *Store) RequestCounts() (map[types.Status]int, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixRequest)), nil)
	defer iter.Release()

	counts := make(map[types.Status]int)
	for iter.Next() {
		req := new(types.APIRequest)
		if err := jsonUnmarshal(iter.Value(), req); err != nil {
			continue
		}
		counts[req.Status]++
	}
	return counts, iter.Error()
}

// ReapStaleRequests rescues processing requests whose claim lease expired,
// returning them to pending while attempts remain and failing them otherwise.
func (s *Store) ReapStaleRequests(lease time.Duration, maxAttempts int) (requeued, failed int, err error) {
	cutoff := time.Now().UTC().Add(-lease)

	s.mu.Lock()
	var stale []string
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixReqActive)), nil)
	for iter.Next() {
		id := string(iter.Value())
		req := new(types.APIRequest)
		if e := s.getJSON(requestKey(id), req); e != nil {
			s.db.Delete(iter.Key(), nil)
			continue
		}
		if req.ClaimedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	iter.Release()
	s.mu.Unlock()

	for _, id := range stale {
		req, e := s.GetRequest(id)
		if e != nil {
			continue
		}
		if req.Retryable(maxAttempts) {
			if e := s.RequeueRequest(id, time.Time{}, "processing lease expired"); e == nil {
				requeued++
			}
		} else {
			if _, e := s.FinalizeRequest(id, types.StatusFailed, "", "processing lease expired"); e == nil {
				failed++
			}
		}
	}
	return requeued, failed, nil
}

// PruneCompleted deletes terminal requests finalized before the cutoff.
// The cutoff must lie beyond the largest rate-limit window or the window
// counts would shrink.
func (s *Store) PruneCompleted(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixReqCompleted)), nil)
	defer iter.Release()

	pruned := 0
	batch := new(leveldb.Batch)
	for iter.Next() {
		id := string(iter.Value())
		req := new(types.APIRequest)
		if err := s.getJSON(requestKey(id), req); err != nil {
			batch.Delete(iter.Key())
			continue
		}
		if req.CompletedAt.Before(before) {
			batch.Delete(iter.Key())
			batch.Delete([]byte(requestKey(id)))
			pruned++
		}
	}
	if err := s.db.Write(batch, nil); err != nil {
		return pruned, err
	}
	return pruned, iter.Error()
}

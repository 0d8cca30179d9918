package store

import (
	"errors"
	"time"

	"github.com/chainsentry/chainsentry/types"
)

func reportKey(walletID string) string { return prefixReport + walletID }

// GetReport returns the latest report for the wallet.
func (s *Store) GetReport(walletID string) (*types.Report, error) {
	r := new(types.Report)
	if err := s.getJSON(reportKey(walletID), r); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateReport applies fn to the wallet's report under the store lock,
// creating an empty report on first write. Each analyzer mutates only its
// own section slot, so concurrent analyzers never clobber each other.
func (s *Store) UpdateReport(walletID string, fn func(*types.Report)) (*types.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := new(types.Report)
	if err := s.getJSON(reportKey(walletID), r); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		r.WalletID = walletID
	}
	fn(r)
	r.UpdatedAt = time.Now().UTC()
	if err := s.putJSON(nil, reportKey(walletID), r); err != nil {
		return nil, err
	}
	return r, nil
}

package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/chainsentry/chainsentry/types"
)

func walletKey(id string) string { return prefixWallet + id }

func walletIndexKey(userID, address, chain string) string {
	return prefixWalletIndex + userID + "/" + strings.ToLower(address) + "/" + chain
}

// CreateWallet registers a new wallet. (user, address, chain) is unique.
func (s *Store) CreateWallet(userID, address, chain, label string) (*types.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := walletIndexKey(userID, address, chain)
	if s.has(idx) {
		return nil, ErrWalletExists
	}
	w := &types.Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Address:   strings.ToLower(address),
		Chain:     chain,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
	batch := new(leveldb.Batch)
	if err := s.putJSON(batch, walletKey(w.ID), w); err != nil {
		return nil, err
	}
	batch.Put([]byte(idx), []byte(w.ID))
	if err := s.db.Write(batch, nil); err != nil {
		return nil, err
	}
	return w, nil
}

// GetWallet returns the wallet by id.
func (s *Store) GetWallet(id string) (*types.Wallet, error) {
	w := new(types.Wallet)
	if err := s.getJSON(walletKey(id), w); err != nil {
		return nil, err
	}
	return w, nil
}

// LookupWallet returns the wallet registered under (user, address, chain).
func (s *Store) LookupWallet(userID, address, chain string) (*types.Wallet, error) {
	raw, err := s.db.Get([]byte(walletIndexKey(userID, address, chain)), nil)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.GetWallet(string(raw))
}

// UpdateWallet applies fn to the wallet under the store lock and persists the
// result. This is the single write path for the transaction cache, the
// watermark and the analysis state, so those updates are atomic.
func (s *Store) UpdateWallet(id string, fn func(*types.Wallet) error) (*types.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := new(types.Wallet)
	if err := s.getJSON(walletKey(id), w); err != nil {
		return nil, err
	}
	if err := fn(w); err != nil {
		return nil, err
	}
	if err := s.putJSON(nil, walletKey(id), w); err != nil {
		return nil, err
	}
	return w, nil
}

// Wallets returns every registered wallet.
func (s *Store) Wallets() ([]*types.Wallet, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixWallet)), nil)
	defer iter.Release()

	var out []*types.Wallet
	for iter.Next() {
		w := new(types.Wallet)
		if err := jsonUnmarshal(iter.Value(), w); err != nil {
			continue
		}
		out = append(out, w)
	}
	return out, iter.Error()
}

// DeleteWallet removes the wallet and cascades to its jobs and report.
func (s *Store) DeleteWallet(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := new(types.Wallet)
	if err := s.getJSON(walletKey(id), w); err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Delete([]byte(walletKey(id)))
	batch.Delete([]byte(walletIndexKey(w.UserID, w.Address, w.Chain)))
	batch.Delete([]byte(reportKey(id)))
	s.deleteJobsForWallet(batch, id)
	return s.db.Write(batch, nil)
}

package store

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chainsentry/chainsentry/types"
)

func contractKey(chain, address string) string {
	return prefixContract + chain + "/" + strings.ToLower(address)
}

func guestKey(address string) string { return prefixGuest + strings.ToLower(address) }

func labelKey(chain, address string) string {
	return prefixLabel + chain + "/" + strings.ToLower(address)
}

func linkTokenKey(token string) string { return prefixLinkToken + token }

func chatBindingKey(userID string) string { return prefixChatBinding + userID }

// PutContractAnalysis upserts the cached analysis for a contract.
func (s *Store) PutContractAnalysis(ca *types.ContractAnalysis) error {
	ca.Address = strings.ToLower(ca.Address)
	ca.LastAnalyzedAt = time.Now().UTC()
	return s.putJSON(nil, contractKey(ca.Chain, ca.Address), ca)
}

// GetContractAnalysis returns the cached analysis for a contract.
func (s *Store) GetContractAnalysis(chain, address string) (*types.ContractAnalysis, error) {
	ca := new(types.ContractAnalysis)
	if err := s.getJSON(contractKey(chain, address), ca); err != nil {
		return nil, err
	}
	return ca, nil
}

// PutGuestScan upserts a guest scan result.
func (s *Store) PutGuestScan(g *types.GuestScan) error {
	g.Address = strings.ToLower(g.Address)
	g.LastScannedAt = time.Now().UTC()
	return s.putJSON(nil, guestKey(g.Address), g)
}

// GetGuestScan returns the cached guest scan for an address.
func (s *Store) GetGuestScan(address string) (*types.GuestScan, error) {
	g := new(types.GuestScan)
	if err := s.getJSON(guestKey(address), g); err != nil {
		return nil, err
	}
	return g, nil
}

// PutLabel persists a newly resolved label. Labels are insert-only; a
// collision with an existing label is not an error.
func (s *Store) PutLabel(l *types.AddressLabel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := labelKey(l.Chain, l.Address)
	if s.has(key) {
		return nil
	}
	l.Address = strings.ToLower(l.Address)
	l.CreatedAt = time.Now().UTC()
	return s.putJSON(nil, key, l)
}

// GetLabel returns the stored label for (address, chain).
func (s *Store) GetLabel(chain, address string) (*types.AddressLabel, error) {
	l := new(types.AddressLabel)
	if err := s.getJSON(labelKey(chain, address), l); err != nil {
		return nil, err
	}
	return l, nil
}

// CreateLinkToken issues a telegram link token for the user.
func (s *Store) CreateLinkToken(userID string) (*types.TelegramLinkToken, error) {
	t := &types.TelegramLinkToken{
		UserID:    userID,
		Token:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.putJSON(nil, linkTokenKey(t.Token), t); err != nil {
		return nil, err
	}
	return t, nil
}

// RedeemLinkToken consumes a token on first valid use and binds the user to
// the chat.
func (s *Store) RedeemLinkToken(token string, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := new(types.TelegramLinkToken)
	if err := s.getJSON(linkTokenKey(token), t); err != nil {
		return ErrTokenExpired
	}
	if t.Expired(time.Now().UTC()) {
		return ErrTokenExpired
	}
	t.Used = true
	t.ChatID = chatID
	if err := s.putJSON(nil, linkTokenKey(token), t); err != nil {
		return err
	}
	return s.db.Put([]byte(chatBindingKey(t.UserID)), []byte(strconv.FormatInt(chatID, 10)), nil)
}

// ChatID returns the telegram chat bound to the user, if any.
func (s *Store) ChatID(userID string) (int64, bool) {
	raw, err := s.db.Get([]byte(chatBindingKey(userID)), nil)
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

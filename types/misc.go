package types

import (
	"encoding/json"
	"strings"
	"time"
)

func lower(s string) string { return strings.ToLower(s) }

// ContractAnalysis is the cached on-demand analysis of one contract,
// reusable for 24 hours.
type ContractAnalysis struct {
	Address        string          `json:"address"`
	Chain          string          `json:"chain"`
	Finding        ContractFinding `json:"finding"`
	LastAnalyzedAt time.Time       `json:"lastAnalyzedAt"`
}

// Fresh reports whether the cached analysis is still within its window.
func (c *ContractAnalysis) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(c.LastAnalyzedAt) < window
}

// GuestScan is a cached anonymous scan result with a 12 hour freshness
// window, keyed by wallet address alone.
type GuestScan struct {
	Address       string          `json:"address"`
	Result        json.RawMessage `json:"result"`
	LastScannedAt time.Time       `json:"lastScannedAt"`
}

// Fresh reports whether the guest scan is still within its window.
func (g *GuestScan) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(g.LastScannedAt) < window
}

// AddressLabel is a resolved human-readable name for an address on a chain.
// Labels are insert-only; the first resolution wins.
type AddressLabel struct {
	Address   string    `json:"address"`
	Chain     string    `json:"chain"`
	Label     string    `json:"label"`
	Source    string    `json:"source"` // local, onchain, explorer
	CreatedAt time.Time `json:"createdAt"`
}

// TelegramLinkToken binds a user to a chat on first valid use and expires
// ten minutes after creation.
type TelegramLinkToken struct {
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	ChatID    int64     `json:"chatId,omitempty"`
	Used      bool      `json:"used,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// LinkTokenTTL is how long a telegram link token stays redeemable.
const LinkTokenTTL = 10 * time.Minute

// Expired reports whether the token can no longer be redeemed.
func (t *TelegramLinkToken) Expired(now time.Time) bool {
	return t.Used || now.Sub(t.CreatedAt) > LinkTokenTTL
}

package types

import (
	"strconv"
	"strings"
	"time"
)

// Transaction is one row returned by the explorer list endpoints. Numeric
// fields arrive as decimal strings and are kept that way; accessors parse on
// demand.
type Transaction struct {
	Hash            string `json:"hash"`
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	Input           string `json:"input"`
	ContractAddress string `json:"contractAddress"`
	IsError         string `json:"isError"`
	TokenName       string `json:"tokenName,omitempty"`
	TokenSymbol     string `json:"tokenSymbol,omitempty"`
	TokenDecimal    string `json:"tokenDecimal,omitempty"`
	TokenID         string `json:"tokenID,omitempty"`
}

// Block returns the parsed block number, zero when unparseable.
func (t *Transaction) Block() uint64 {
	n, _ := strconv.ParseUint(t.BlockNumber, 10, 64)
	return n
}

// Time returns the parsed timestamp, zero time when unparseable.
func (t *Transaction) Time() time.Time {
	sec, err := strconv.ParseInt(t.TimeStamp, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// IsFrom reports whether the transaction was sent by addr (case-insensitive).
func (t *Transaction) IsFrom(addr string) bool {
	return strings.EqualFold(t.From, addr)
}

// TxCache is a wallet's append-only transaction cache with a per-stream
// watermark of the highest block already ingested.
type TxCache struct {
	Normal    []Transaction     `json:"normal"`
	Token     []Transaction     `json:"token"`
	NFT       []Transaction     `json:"nft"`
	LastBlock map[Stream]uint64 `json:"lastBlock"`
}

// Watermark returns the highest ingested block for the stream.
func (c *TxCache) Watermark(s Stream) uint64 {
	if c.LastBlock == nil {
		return 0
	}
	return c.LastBlock[s]
}

// Advance raises the stream watermark. Watermarks never move backwards.
func (c *TxCache) Advance(s Stream, block uint64) {
	if c.LastBlock == nil {
		c.LastBlock = make(map[Stream]uint64)
	}
	if block > c.LastBlock[s] {
		c.LastBlock[s] = block
	}
}

// Append adds rows to the stream list and advances the watermark to the
// highest block seen.
func (c *TxCache) Append(s Stream, txs []Transaction) {
	switch s {
	case StreamNormal:
		c.Normal = append(c.Normal, txs...)
	case StreamToken:
		c.Token = append(c.Token, txs...)
	case StreamNFT:
		c.NFT = append(c.NFT, txs...)
	}
	for i := range txs {
		c.Advance(s, txs[i].Block())
	}
}

// AnalysisState holds the fingerprint sets from the previous analysis cycle,
// used by the notifier to suppress repeat alerts.
type AnalysisState struct {
	Approvals []string `json:"approvals"`
	Contracts []string `json:"contracts"`
}

// Wallet is a registered address on one chain, owned by one user.
type Wallet struct {
	ID         string        `json:"id"`
	UserID     string        `json:"userId"`
	Address    string        `json:"address"`
	Chain      string        `json:"chain"`
	Label      string        `json:"label,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	LastScanAt time.Time     `json:"lastScanAt,omitempty"`
	Cache      TxCache       `json:"cache"`
	State      AnalysisState `json:"state"`
}

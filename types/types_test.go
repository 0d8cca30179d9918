package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTransactionAccessors(t *testing.T) {
	tx := Transaction{BlockNumber: "18123456", TimeStamp: "1700000000", From: "0xAbC", To: "0xdef"}
	assert.Equal(t, uint64(18123456), tx.Block())
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), tx.Time())
	assert.True(t, tx.IsFrom("0xabc"))
	assert.False(t, tx.IsFrom("0xdef"))

	bad := Transaction{BlockNumber: "n/a", TimeStamp: ""}
	assert.Zero(t, bad.Block())
	assert.True(t, bad.Time().IsZero())
}

func TestTxCacheWatermark(t *testing.T) {
	var c TxCache
	assert.Zero(t, c.Watermark(StreamNormal))

	c.Append(StreamNormal, []Transaction{
		{Hash: "0xa", BlockNumber: "10"},
		{Hash: "0xb", BlockNumber: "25"},
		{Hash: "0xc", BlockNumber: "12"},
	})
	assert.Equal(t, uint64(25), c.Watermark(StreamNormal))
	assert.Len(t, c.Normal, 3)
	assert.Zero(t, c.Watermark(StreamToken), "streams are independent")

	// Watermarks never regress.
	c.Advance(StreamNormal, 5)
	assert.Equal(t, uint64(25), c.Watermark(StreamNormal))
	c.Advance(StreamNormal, 30)
	assert.Equal(t, uint64(30), c.Watermark(StreamNormal))
}

func TestApprovalFingerprint(t *testing.T) {
	erc20 := Approval{Kind: "erc20", Token: "0xTOKEN", Spender: "0xSpender"}
	assert.Equal(t, "erc20-0xtoken-0xspender", erc20.Fingerprint())

	nft := Approval{Kind: "nft", Token: "0xNFT", Spender: "0xOp"}
	assert.Equal(t, "nft-0xnft-0xop", nft.Fingerprint())

	// Permit2 approvals are identified by spender alone.
	p2 := Approval{Kind: "permit2", Token: "0xAnything", Spender: "0xRouter"}
	assert.Equal(t, "permit2-0xrouter", p2.Fingerprint())
}

func TestSeverityAtLeast(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.True(t, SeverityHigh.AtLeast(SeverityHigh))
	assert.False(t, SeverityMedium.AtLeast(SeverityHigh))
	assert.True(t, SeverityLow.AtLeast(SeverityInfo))
	assert.False(t, SeverityInfo.AtLeast(SeverityLow))
}

func TestRetryable(t *testing.T) {
	req := APIRequest{Attempts: 2}
	assert.True(t, req.Retryable(3))
	req.Attempts = 3
	assert.False(t, req.Retryable(3))
}

func TestHoneypotFlagsAny(t *testing.T) {
	assert.False(t, HoneypotFlags{}.Any())
	assert.True(t, HoneypotFlags{HiddenApprove: true}.Any())
	assert.True(t, HoneypotFlags{UnnecessarySafeMath: true}.Any())
}

func TestLinkTokenExpiry(t *testing.T) {
	now := time.Now().UTC()
	tok := TelegramLinkToken{CreatedAt: now}
	assert.False(t, tok.Expired(now.Add(time.Minute)))
	assert.True(t, tok.Expired(now.Add(LinkTokenTTL+time.Second)))

	tok.Used = true
	assert.True(t, tok.Expired(now))
}

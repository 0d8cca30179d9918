package analysis

import (
	"context"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/chainsentry/chainsentry/chain"
	"github.com/chainsentry/chainsentry/config"
	"github.com/chainsentry/chainsentry/notify"
	"github.com/chainsentry/chainsentry/store"
	"github.com/chainsentry/chainsentry/types"
)

// listCall records one stream listing for assertion.
type listCall struct {
	stream     types.Stream
	startBlock uint64
	descending bool
	limit      int
}

// fakeChain satisfies ChainService with canned responses keyed by lowercase
// hex addresses.
type fakeChain struct {
	txs   map[types.Stream][]types.Transaction
	errs  map[types.Stream]error
	calls []listCall

	allowances  map[string]*uint256.Int // token|spender
	approvedAll map[string]bool         // token|operator
	decimals    map[string]uint8
	sources     map[string]*chain.SourceInfo
	sourceErrs  map[string]error
	sourceCalls int
	code        map[string][]byte
	impls       map[string]common.Address

	summary        string
	summarizeCalls int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		txs:         make(map[types.Stream][]types.Transaction),
		errs:        make(map[types.Stream]error),
		allowances:  make(map[string]*uint256.Int),
		approvedAll: make(map[string]bool),
		decimals:    make(map[string]uint8),
		sources:     make(map[string]*chain.SourceInfo),
		sourceErrs:  make(map[string]error),
		code:        make(map[string][]byte),
		impls:       make(map[string]common.Address),
	}
}

func pairKey(a, b common.Address) string {
	return strings.ToLower(a.Hex()) + "|" + strings.ToLower(b.Hex())
}

func addrKey(a common.Address) string { return strings.ToLower(a.Hex()) }

func (f *fakeChain) list(stream types.Stream, startBlock uint64, descending bool, limit int) ([]types.Transaction, error) {
	f.calls = append(f.calls, listCall{stream: stream, startBlock: startBlock, descending: descending, limit: limit})
	if err := f.errs[stream]; err != nil {
		return nil, err
	}
	return f.txs[stream], nil
}

func (f *fakeChain) NormalTransactions(ctx context.Context, chain, address string, startBlock uint64, descending bool, limit int) ([]types.Transaction, error) {
	return f.list(types.StreamNormal, startBlock, descending, limit)
}

func (f *fakeChain) TokenTransfers(ctx context.Context, chain, address string, startBlock uint64, descending bool, limit int) ([]types.Transaction, error) {
	return f.list(types.StreamToken, startBlock, descending, limit)
}

func (f *fakeChain) NFTTransfers(ctx context.Context, chain, address string, startBlock uint64, descending bool, limit int) ([]types.Transaction, error) {
	return f.list(types.StreamNFT, startBlock, descending, limit)
}

func (f *fakeChain) SourceCode(ctx context.Context, chainName, address string) (*chain.SourceInfo, error) {
	f.sourceCalls++
	key := strings.ToLower(common.HexToAddress(address).Hex())
	if err := f.sourceErrs[key]; err != nil {
		return nil, err
	}
	if info, ok := f.sources[key]; ok {
		return info, nil
	}
	return &chain.SourceInfo{}, nil
}

func (f *fakeChain) Summarize(ctx context.Context, prompt string) (string, error) {
	f.summarizeCalls++
	return f.summary, nil
}

func (f *fakeChain) Allowance(ctx context.Context, chainName string, token, owner, spender common.Address) *uint256.Int {
	if v, ok := f.allowances[pairKey(token, spender)]; ok {
		return v
	}
	return uint256.NewInt(0)
}

func (f *fakeChain) IsApprovedForAll(ctx context.Context, chainName string, token, owner, operator common.Address) bool {
	return f.approvedAll[pairKey(token, operator)]
}

func (f *fakeChain) Decimals(ctx context.Context, chainName string, token common.Address) uint8 {
	if d, ok := f.decimals[strings.ToLower(token.Hex())]; ok {
		return d
	}
	return 18
}

func (f *fakeChain) Code(ctx context.Context, chainName string, address common.Address) []byte {
	return f.code[strings.ToLower(address.Hex())]
}

func (f *fakeChain) Implementation(ctx context.Context, chainName string, address common.Address) (common.Address, bool) {
	impl, ok := f.impls[strings.ToLower(address.Hex())]
	return impl, ok
}

type fakeLabels struct {
	labels map[string]string
}

func (f *fakeLabels) Resolve(ctx context.Context, chain string, addresses []string) map[string]string {
	out := make(map[string]string)
	for _, a := range addresses {
		if l, ok := f.labels[strings.ToLower(a)]; ok {
			out[a] = l
		}
	}
	return out
}

type recordingSink struct {
	sent []string
}

func (s *recordingSink) Send(ctx context.Context, userID, text string) error {
	s.sent = append(s.sent, text)
	return nil
}

type testEnv struct {
	env    *Env
	store  *store.Store
	chain  *fakeChain
	labels *fakeLabels
	sink   *recordingSink
	wallet *types.Wallet
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fc := newFakeChain()
	fl := &fakeLabels{labels: make(map[string]string)}
	sink := &recordingSink{}
	cfg := config.Defaults()

	wallet, err := st.CreateWallet("user-1", "0xda7a0000000000000000000000000000000dead0", "ethereum", "")
	require.NoError(t, err)

	return &testEnv{
		env:    NewEnv(cfg, st, fc, fl, notify.New(sink, types.SeverityHigh)),
		store:  st,
		chain:  fc,
		labels: fl,
		sink:   sink,
		wallet: wallet,
	}
}

// seedNormalTxs replaces the wallet's normal stream with the given rows.
func (te *testEnv) seedNormalTxs(t *testing.T, txs []types.Transaction) {
	t.Helper()
	w, err := te.store.UpdateWallet(te.wallet.ID, func(w *types.Wallet) error {
		w.Cache.Normal = txs
		return nil
	})
	require.NoError(t, err)
	te.wallet = w
}

func (te *testEnv) job() *types.AnalysisJob {
	return &types.AnalysisJob{ID: "job-test", WalletID: te.wallet.ID}
}

// Calldata builders for the approval signatures under test.

func pad32(b []byte) string { return common.Bytes2Hex(common.LeftPadBytes(b, 32)) }

func approveInput(spender common.Address, value *uint256.Int) string {
	return "0x095ea7b3" + pad32(spender.Bytes()) + pad32(value.Bytes())
}

func setApprovalForAllInput(operator common.Address, approved bool) string {
	flag := []byte{0}
	if approved {
		flag = []byte{1}
	}
	return "0xa22cb465" + pad32(operator.Bytes()) + pad32(flag)
}

func permitInput(owner, spender common.Address, value, deadline *uint256.Int) string {
	return "0xd505accf" + pad32(owner.Bytes()) + pad32(spender.Bytes()) +
		pad32(value.Bytes()) + pad32(deadline.Bytes()) +
		pad32([]byte{27}) + pad32(nil) + pad32(nil)
}

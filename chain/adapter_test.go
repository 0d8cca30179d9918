package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsentry/chainsentry/config"
	"github.com/chainsentry/chainsentry/gateway"
)

type fakeSubmitter struct {
	lastProvider string
	lastData     any
	result       string
	err          error
}

func (f *fakeSubmitter) Submit(ctx context.Context, provider string, data any) (string, error) {
	f.lastProvider = provider
	f.lastData = data
	return f.result, f.err
}

func TestNormalTransactionsBuildsExplorerQuery(t *testing.T) {
	sub := &fakeSubmitter{result: `[{"hash":"0xa","blockNumber":"17","from":"0x1","to":"0x2"}]`}
	a := New(config.Defaults(), sub)

	txs, err := a.NormalTransactions(context.Background(), "polygon", "0xWallet", 18, false, 1000)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "0xa", txs[0].Hash)
	assert.Equal(t, uint64(17), txs[0].Block())

	assert.Equal(t, config.ProviderEtherscan, sub.lastProvider)
	req := sub.lastData.(gateway.ExplorerRequest)
	assert.Equal(t, "account", req.Params["module"])
	assert.Equal(t, "txlist", req.Params["action"])
	assert.Equal(t, "137", req.Params["chainid"])
	assert.Equal(t, "0xWallet", req.Params["address"])
	assert.Equal(t, "18", req.Params["startblock"])
	assert.Equal(t, "99999999", req.Params["endblock"])
	assert.Equal(t, "asc", req.Params["sort"])
	assert.Equal(t, "1000", req.Params["offset"])
}

func TestListTransactionsDescending(t *testing.T) {
	sub := &fakeSubmitter{result: `[]`}
	a := New(config.Defaults(), sub)

	txs, err := a.TokenTransfers(context.Background(), "ethereum", "0xWallet", 0, true, 50)
	require.NoError(t, err)
	assert.Empty(t, txs)

	req := sub.lastData.(gateway.ExplorerRequest)
	assert.Equal(t, "tokentx", req.Params["action"])
	assert.Equal(t, "1", req.Params["chainid"])
	assert.Equal(t, "desc", req.Params["sort"])
}

func TestListTransactionsUnsupportedChain(t *testing.T) {
	a := New(config.Defaults(), &fakeSubmitter{})
	_, err := a.NFTTransfers(context.Background(), "dogecoin", "0xWallet", 0, false, 10)
	assert.Error(t, err)
}

func TestSourceCode(t *testing.T) {
	sub := &fakeSubmitter{result: `[{"SourceCode":"contract Foo {}","ContractName":"Foo"}]`}
	a := New(config.Defaults(), sub)

	info, err := a.SourceCode(context.Background(), "base", "0xContract")
	require.NoError(t, err)
	assert.Equal(t, "Foo", info.ContractName)
	assert.Equal(t, "contract Foo {}", info.SourceCode)

	req := sub.lastData.(gateway.ExplorerRequest)
	assert.Equal(t, "contract", req.Params["module"])
	assert.Equal(t, "getsourcecode", req.Params["action"])
	assert.Equal(t, "8453", req.Params["chainid"])

	// Unverified contracts come back empty, not as an error.
	sub.result = `[]`
	info, err = a.SourceCode(context.Background(), "base", "0xContract")
	require.NoError(t, err)
	assert.Empty(t, info.SourceCode)
}

func TestSummarizeRoutesThroughGateway(t *testing.T) {
	sub := &fakeSubmitter{result: "summary text"}
	a := New(config.Defaults(), sub)

	got, err := a.Summarize(context.Background(), "describe this contract")
	require.NoError(t, err)
	assert.Equal(t, "summary text", got)
	assert.Equal(t, config.ProviderGemini, sub.lastProvider)
	assert.Equal(t, gateway.AIRequest{Prompt: "describe this contract"}, sub.lastData)
}

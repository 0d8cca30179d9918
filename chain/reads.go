package chain

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EIP-1967 implementation slot for upgradeable proxies.
var implementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

const erc721ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"name":"isApprovedForAll","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"name":"setApprovalForAll","outputs":[],"type":"function"}
]`

var (
	erc20ABI  = mustABI(erc20ABIJSON)
	erc721ABI = mustABI(erc721ABIJSON)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

func (a *Adapter) call(ctx context.Context, chain string, to common.Address, data []byte) ([]byte, error) {
	client, err := a.client(chain)
	if err != nil {
		return nil, err
	}
	return client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// Allowance reads allowance(owner, spender) on an ERC-20. Read failures
// return zero, which the analyzer treats as no standing approval.
func (a *Adapter) Allowance(ctx context.Context, chain string, token, owner, spender common.Address) *uint256.Int {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return uint256.NewInt(0)
	}
	out, err := a.call(ctx, chain, token, data)
	if err != nil || len(out) < 32 {
		logReadFailure("allowance", chain, token.Hex(), err)
		return uint256.NewInt(0)
	}
	v := new(uint256.Int)
	v.SetBytes(out[:32])
	return v
}

// IsApprovedForAll reads the collection-wide operator approval on an
// ERC-721/1155. Read failures report false.
func (a *Adapter) IsApprovedForAll(ctx context.Context, chain string, token, owner, operator common.Address) bool {
	data, err := erc721ABI.Pack("isApprovedForAll", owner, operator)
	if err != nil {
		return false
	}
	out, err := a.call(ctx, chain, token, data)
	if err != nil || len(out) < 32 {
		logReadFailure("isApprovedForAll", chain, token.Hex(), err)
		return false
	}
	return out[31] == 1
}

// BalanceOf reads the token balance of the owner, zero on failure.
func (a *Adapter) BalanceOf(ctx context.Context, chain string, token, owner common.Address) *uint256.Int {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return uint256.NewInt(0)
	}
	out, err := a.call(ctx, chain, token, data)
	if err != nil || len(out) < 32 {
		logReadFailure("balanceOf", chain, token.Hex(), err)
		return uint256.NewInt(0)
	}
	v := new(uint256.Int)
	v.SetBytes(out[:32])
	return v
}

// Decimals reads the ERC-20 decimals, defaulting to 18 on failure.
func (a *Adapter) Decimals(ctx context.Context, chain string, token common.Address) uint8 {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 18
	}
	out, err := a.call(ctx, chain, token, data)
	if err != nil || len(out) < 32 {
		return 18
	}
	return out[31]
}

// Name reads name() with a two second cap, empty on failure.
func (a *Adapter) Name(ctx context.Context, chain string, address common.Address) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	data, err := erc20ABI.Pack("name")
	if err != nil {
		return ""
	}
	out, err := a.call(ctx, chain, address, data)
	if err != nil {
		logReadFailure("name", chain, address.Hex(), err)
		return ""
	}
	var name string
	if err := erc20ABI.UnpackIntoInterface(&name, "name", out); err != nil {
		return ""
	}
	return strings.TrimSpace(name)
}

// Code reads the raw bytecode at the address, nil on failure.
func (a *Adapter) Code(ctx context.Context, chain string, address common.Address) []byte {
	client, err := a.client(chain)
	if err != nil {
		return nil
	}
	code, err := client.CodeAt(ctx, address, nil)
	if err != nil {
		logReadFailure("getCode", chain, address.Hex(), err)
		return nil
	}
	return code
}

// Implementation reads the EIP-1967 implementation slot. The second return
// is false when the slot is all zeros (not a proxy) or the read failed.
func (a *Adapter) Implementation(ctx context.Context, chain string, address common.Address) (common.Address, bool) {
	client, err := a.client(chain)
	if err != nil {
		return common.Address{}, false
	}
	raw, err := client.StorageAt(ctx, address, implementationSlot, nil)
	if err != nil {
		logReadFailure("eth_getStorageAt", chain, address.Hex(), err)
		return common.Address{}, false
	}
	return ImplementationFromSlot(raw)
}

// ImplementationFromSlot extracts the implementation address from a raw
// 32-byte slot value: the last 20 bytes, or none when all zeros.
func ImplementationFromSlot(raw []byte) (common.Address, bool) {
	if len(raw) < 20 {
		return common.Address{}, false
	}
	addr := common.BytesToAddress(raw[len(raw)-20:])
	if addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}

// EncodeRevokeApprove builds the approve(spender, 0) calldata that revokes
// an ERC-20 approval.
func EncodeRevokeApprove(spender common.Address) string {
	data, err := erc20ABI.Pack("approve", spender, common.Big0)
	if err != nil {
		return ""
	}
	return "0x" + common.Bytes2Hex(data)
}

// EncodeRevokeApprovalForAll builds the setApprovalForAll(operator, false)
// calldata that revokes a collection-wide approval.
func EncodeRevokeApprovalForAll(operator common.Address) string {
	data, err := erc721ABI.Pack("setApprovalForAll", operator, false)
	if err != nil {
		return ""
	}
	return "0x" + common.Bytes2Hex(data)
}

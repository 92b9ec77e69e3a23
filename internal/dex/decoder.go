package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"poolcache/internal/state"
)

// Decoder turns a pool log into a pool state snapshot.
type Decoder interface {
	Protocol() state.Protocol
	Topic0() common.Hash
	CanDecode(topic0 common.Hash) bool
	Decode(log types.Log, tokens PoolTokens) (state.PoolState, error)
}

// Patcher is implemented by decoders whose events change only part of a
// pool. Patch applies the log to the cached entry and returns the new entry.
type Patcher interface {
	Patch(log types.Log, current state.PoolState) (state.PoolState, error)
}

// ContractCaller performs eth_call. *chain.Client implements it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PoolTokens are the two tokens of a pool, in pool order.
type PoolTokens struct {
	Token0 common.Address `json:"token0"`
	Token1 common.Address `json:"token1"`
}

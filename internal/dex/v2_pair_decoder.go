package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"poolcache/internal/state"
)

// V2PairDecoder decodes Uniswap V2 style Sync events.
type V2PairDecoder struct {
	event abi.Event
}

// NewV2PairDecoder builds a V2 Sync decoder.
func NewV2PairDecoder() (*V2PairDecoder, error) {
	pairABI, err := V2PairABI()
	if err != nil {
		return nil, err
	}
	return &V2PairDecoder{event: pairABI.Events["Sync"]}, nil
}

func (d *V2PairDecoder) Protocol() state.Protocol {
	return state.UniswapV2
}

func (d *V2PairDecoder) Topic0() common.Hash {
	return d.event.ID
}

// CanDecode checks if the topic0 is Sync.
func (d *V2PairDecoder) CanDecode(topic0 common.Hash) bool {
	return topic0 == d.event.ID
}

// Decode converts a Sync log into a PoolStateV2.
func (d *V2PairDecoder) Decode(log types.Log, tokens PoolTokens) (state.PoolState, error) {
	if len(log.Topics) != 1 || log.Topics[0] != d.event.ID {
		return state.PoolState{}, fmt.Errorf("not a sync log")
	}

	values, err := d.event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return state.PoolState{}, fmt.Errorf("unpack sync: %w", err)
	}
	if len(values) != 2 {
		return state.PoolState{}, fmt.Errorf("unexpected sync values: %d", len(values))
	}

	reserve0, err := asUint256(values[0])
	if err != nil {
		return state.PoolState{}, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asUint256(values[1])
	if err != nil {
		return state.PoolState{}, fmt.Errorf("reserve1: %w", err)
	}

	return state.NewV2(state.PoolStateV2{
		Address:  log.Address,
		Token0:   tokens.Token0,
		Token1:   tokens.Token1,
		Reserve0: *reserve0,
		Reserve1: *reserve1,
	}), nil
}

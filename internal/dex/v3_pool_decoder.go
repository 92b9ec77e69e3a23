package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"poolcache/internal/state"
)

// V3PoolDecoder decodes Uniswap V3 Swap events. Swap carries the pool's new
// sqrtPriceX96, in-range liquidity and tick, which is the whole V3 snapshot.
type V3PoolDecoder struct {
	event abi.Event
}

// NewV3PoolDecoder builds a V3 Swap decoder.
func NewV3PoolDecoder() (*V3PoolDecoder, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, err
	}
	return &V3PoolDecoder{event: poolABI.Events["Swap"]}, nil
}

func (d *V3PoolDecoder) Protocol() state.Protocol {
	return state.UniswapV3
}

func (d *V3PoolDecoder) Topic0() common.Hash {
	return d.event.ID
}

// CanDecode checks if the topic0 is Swap.
func (d *V3PoolDecoder) CanDecode(topic0 common.Hash) bool {
	return topic0 == d.event.ID
}

// Decode converts a Swap log into a PoolStateV3.
func (d *V3PoolDecoder) Decode(log types.Log, tokens PoolTokens) (state.PoolState, error) {
	indexedCount := len(indexedArguments(d.event.Inputs))
	if len(log.Topics) != indexedCount+1 || log.Topics[0] != d.event.ID {
		return state.PoolState{}, fmt.Errorf("expected swap log with %d topics, got %d", indexedCount+1, len(log.Topics))
	}

	values, err := d.event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return state.PoolState{}, fmt.Errorf("unpack swap: %w", err)
	}
	if len(values) != 5 {
		return state.PoolState{}, fmt.Errorf("unexpected swap values: %d", len(values))
	}

	sqrtPrice, err := asUint256(values[2])
	if err != nil {
		return state.PoolState{}, fmt.Errorf("sqrt price: %w", err)
	}
	liquidity, err := asUint128(values[3])
	if err != nil {
		return state.PoolState{}, fmt.Errorf("liquidity: %w", err)
	}
	tickInt, err := asBigInt(values[4])
	if err != nil {
		return state.PoolState{}, err
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return state.PoolState{}, err
	}

	return state.NewV3(state.PoolStateV3{
		Address:      log.Address,
		Token0:       tokens.Token0,
		Token1:       tokens.Token1,
		SqrtPriceX96: *sqrtPrice,
		Liquidity:    liquidity,
		Tick:         tick,
	}), nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

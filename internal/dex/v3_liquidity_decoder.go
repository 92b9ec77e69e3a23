package dex

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"lukechampine.com/uint128"

	"poolcache/internal/state"
)

// ErrNeedsCurrentState is returned by Decode on events that only carry a
// delta. Callers use Patch with the cached entry instead.
var ErrNeedsCurrentState = errors.New("event needs the current pool state")

// LiquidityChange is the position update carried by a V3 Mint or Burn.
type LiquidityChange struct {
	TickLower int32
	TickUpper int32
	Amount    uint128.Uint128
	Burn      bool
}

// InRange reports whether the position covers tick, which is when it
// counts toward the pool's active liquidity.
func (c LiquidityChange) InRange(tick int32) bool {
	return c.TickLower <= tick && tick < c.TickUpper
}

// Apply returns pool with its active liquidity adjusted by the change.
func (c LiquidityChange) Apply(pool state.PoolStateV3) (state.PoolStateV3, error) {
	if !c.InRange(pool.Tick) {
		return pool, nil
	}
	if c.Burn {
		if pool.Liquidity.Cmp(c.Amount) < 0 {
			return pool, fmt.Errorf("burn of %s exceeds liquidity %s", c.Amount, pool.Liquidity)
		}
		pool.Liquidity = pool.Liquidity.Sub(c.Amount)
		return pool, nil
	}
	sum := pool.Liquidity.AddWrap(c.Amount)
	if sum.Cmp(pool.Liquidity) < 0 {
		return pool, fmt.Errorf("mint of %s overflows liquidity %s", c.Amount, pool.Liquidity)
	}
	pool.Liquidity = sum
	return pool, nil
}

// V3LiquidityDecoder handles Uniswap V3 Mint or Burn. Neither event carries
// the pool's liquidity, so the result is computed from the cached entry.
type V3LiquidityDecoder struct {
	event abi.Event
	burn  bool
}

// NewV3MintDecoder builds a decoder for Mint.
func NewV3MintDecoder() (*V3LiquidityDecoder, error) {
	return newV3LiquidityDecoder("Mint", false)
}

// NewV3BurnDecoder builds a decoder for Burn.
func NewV3BurnDecoder() (*V3LiquidityDecoder, error) {
	return newV3LiquidityDecoder("Burn", true)
}

func newV3LiquidityDecoder(name string, burn bool) (*V3LiquidityDecoder, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, err
	}
	event, ok := poolABI.Events[name]
	if !ok {
		return nil, fmt.Errorf("event %s missing from pool abi", name)
	}
	return &V3LiquidityDecoder{event: event, burn: burn}, nil
}

func (d *V3LiquidityDecoder) Protocol() state.Protocol {
	return state.UniswapV3
}

func (d *V3LiquidityDecoder) Topic0() common.Hash {
	return d.event.ID
}

func (d *V3LiquidityDecoder) CanDecode(topic0 common.Hash) bool {
	return topic0 == d.event.ID
}

func (d *V3LiquidityDecoder) Decode(types.Log, PoolTokens) (state.PoolState, error) {
	return state.PoolState{}, ErrNeedsCurrentState
}

// Patch applies the log's liquidity change to current, which must be a V3 entry.
func (d *V3LiquidityDecoder) Patch(log types.Log, current state.PoolState) (state.PoolState, error) {
	pool, ok := current.V3()
	if !ok {
		return state.PoolState{}, fmt.Errorf("%s on %s entry", d.event.Name, current.Protocol())
	}
	change, err := d.DecodeChange(log)
	if err != nil {
		return state.PoolState{}, err
	}
	pool, err = change.Apply(pool)
	if err != nil {
		return state.PoolState{}, err
	}
	return state.NewV3(pool), nil
}

// DecodeChange extracts the tick range and liquidity amount from the log.
func (d *V3LiquidityDecoder) DecodeChange(log types.Log) (LiquidityChange, error) {
	indexedArgs := indexedArguments(d.event.Inputs)
	if len(log.Topics) != len(indexedArgs)+1 || log.Topics[0] != d.event.ID {
		return LiquidityChange{}, fmt.Errorf("expected %s log with %d topics, got %d", d.event.Name, len(indexedArgs)+1, len(log.Topics))
	}

	var indexed struct {
		Owner     common.Address
		TickLower *big.Int
		TickUpper *big.Int
	}
	if err := abi.ParseTopics(&indexed, indexedArgs, log.Topics[1:]); err != nil {
		return LiquidityChange{}, fmt.Errorf("parse topics: %w", err)
	}
	tickLower, err := int24FromBig(indexed.TickLower)
	if err != nil {
		return LiquidityChange{}, fmt.Errorf("tick lower: %w", err)
	}
	tickUpper, err := int24FromBig(indexed.TickUpper)
	if err != nil {
		return LiquidityChange{}, fmt.Errorf("tick upper: %w", err)
	}

	values, err := d.event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return LiquidityChange{}, fmt.Errorf("unpack %s: %w", d.event.Name, err)
	}
	// Mint has a leading non-indexed sender; amount follows it.
	amountIndex := 0
	if !d.burn {
		amountIndex = 1
	}
	if len(values) != amountIndex+3 {
		return LiquidityChange{}, fmt.Errorf("unexpected %s values: %d", d.event.Name, len(values))
	}
	amount, err := asUint128(values[amountIndex])
	if err != nil {
		return LiquidityChange{}, fmt.Errorf("amount: %w", err)
	}

	return LiquidityChange{
		TickLower: tickLower,
		TickUpper: tickUpper,
		Amount:    amount,
		Burn:      d.burn,
	}, nil
}

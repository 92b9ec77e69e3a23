package model

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"

	"poolcache/internal/state"
)

// ErrUnknownProtocol is returned for records with an unrecognised protocol.
var ErrUnknownProtocol = errors.New("unknown pool protocol")

// PoolSnapshot is the storage representation of one cached pool.
// Big numbers are decimal strings so JSON and SQL keep full precision.
type PoolSnapshot struct {
	Protocol     string  `json:"protocol"`
	Address      string  `json:"address"`
	Token0       string  `json:"token0"`
	Token1       string  `json:"token1"`
	Reserve0     string  `json:"reserve0,omitempty"`
	Reserve1     string  `json:"reserve1,omitempty"`
	SqrtPriceX96 string  `json:"sqrt_price_x96,omitempty"`
	Liquidity    string  `json:"liquidity,omitempty"`
	Tick         *int32  `json:"tick,omitempty"`
	Price        float64 `json:"price"`
	CapturedAt   string  `json:"captured_at"`
}

// FromState converts a cached entry into a snapshot record.
func FromState(pool state.PoolState, capturedAt time.Time) (PoolSnapshot, error) {
	token0, token1 := pool.Tokens()
	snap := PoolSnapshot{
		Protocol:   pool.Protocol().String(),
		Address:    pool.Address().Hex(),
		Token0:     token0.Hex(),
		Token1:     token1.Hex(),
		Price:      pool.Price(),
		CapturedAt: capturedAt.UTC().Format(time.RFC3339Nano),
	}

	switch pool.Protocol() {
	case state.UniswapV2:
		v2, _ := pool.V2()
		snap.Reserve0 = v2.Reserve0.ToBig().String()
		snap.Reserve1 = v2.Reserve1.ToBig().String()
	case state.UniswapV3:
		v3, _ := pool.V3()
		tick := v3.Tick
		snap.SqrtPriceX96 = v3.SqrtPriceX96.ToBig().String()
		snap.Liquidity = v3.Liquidity.String()
		snap.Tick = &tick
	default:
		return PoolSnapshot{}, ErrUnknownProtocol
	}
	return snap, nil
}

// ToState parses a snapshot record back into a cache entry.
func (s PoolSnapshot) ToState() (state.PoolState, error) {
	protocol, err := state.ParseProtocol(s.Protocol)
	if err != nil {
		return state.PoolState{}, fmt.Errorf("%w: %s", ErrUnknownProtocol, s.Protocol)
	}

	address, err := parseAddress("address", s.Address)
	if err != nil {
		return state.PoolState{}, err
	}
	token0, err := parseAddress("token0", s.Token0)
	if err != nil {
		return state.PoolState{}, err
	}
	token1, err := parseAddress("token1", s.Token1)
	if err != nil {
		return state.PoolState{}, err
	}

	switch protocol {
	case state.UniswapV2:
		reserve0, err := parseUint256("reserve0", s.Reserve0)
		if err != nil {
			return state.PoolState{}, err
		}
		reserve1, err := parseUint256("reserve1", s.Reserve1)
		if err != nil {
			return state.PoolState{}, err
		}
		return state.NewV2(state.PoolStateV2{
			Address:  address,
			Token0:   token0,
			Token1:   token1,
			Reserve0: *reserve0,
			Reserve1: *reserve1,
		}), nil
	case state.UniswapV3:
		sqrtPrice, err := parseUint256("sqrt_price_x96", s.SqrtPriceX96)
		if err != nil {
			return state.PoolState{}, err
		}
		liquidity, err := parseUint128("liquidity", s.Liquidity)
		if err != nil {
			return state.PoolState{}, err
		}
		if s.Tick == nil {
			return state.PoolState{}, fmt.Errorf("tick is required for %s", s.Protocol)
		}
		return state.NewV3(state.PoolStateV3{
			Address:      address,
			Token0:       token0,
			Token1:       token1,
			SqrtPriceX96: *sqrtPrice,
			Liquidity:    liquidity,
			Tick:         *s.Tick,
		}), nil
	default:
		return state.PoolState{}, ErrUnknownProtocol
	}
}

func parseAddress(field, input string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s: %q", field, input)
	}
	return common.HexToAddress(input), nil
}

func parseBig(field, input string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(input, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s: %q", field, input)
	}
	return value, nil
}

func parseUint256(field, input string) (*uint256.Int, error) {
	value, err := parseBig(field, input)
	if err != nil {
		return nil, err
	}
	out, overflow := uint256.FromBig(value)
	if overflow {
		return nil, fmt.Errorf("%s overflows uint256", field)
	}
	return out, nil
}

func parseUint128(field, input string) (uint128.Uint128, error) {
	value, err := parseBig(field, input)
	if err != nil {
		return uint128.Zero, err
	}
	if value.BitLen() > 128 {
		return uint128.Zero, fmt.Errorf("%s overflows uint128", field)
	}
	return uint128.FromBig(value), nil
}

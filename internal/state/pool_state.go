package state

import "github.com/ethereum/go-ethereum/common"

// PoolState holds exactly one of PoolStateV2 or PoolStateV3.
// Build it with NewV2 or NewV3; the zero value holds no pool.
type PoolState struct {
	protocol Protocol
	v2       PoolStateV2
	v3       PoolStateV3
}

// NewV2 wraps a constant-product snapshot.
func NewV2(pool PoolStateV2) PoolState {
	return PoolState{protocol: UniswapV2, v2: pool}
}

// NewV3 wraps a concentrated-liquidity snapshot.
func NewV3(pool PoolStateV3) PoolState {
	return PoolState{protocol: UniswapV3, v3: pool}
}

// Protocol reports the active variant.
func (s PoolState) Protocol() Protocol {
	return s.protocol
}

// V2 returns the constant-product snapshot if that variant is active.
func (s PoolState) V2() (PoolStateV2, bool) {
	if s.protocol != UniswapV2 {
		return PoolStateV2{}, false
	}
	return s.v2, true
}

// V3 returns the concentrated-liquidity snapshot if that variant is active.
func (s PoolState) V3() (PoolStateV3, bool) {
	if s.protocol != UniswapV3 {
		return PoolStateV3{}, false
	}
	return s.v3, true
}

// Address returns the pool address, or the zero address for the zero value.
func (s PoolState) Address() common.Address {
	switch s.protocol {
	case UniswapV2:
		return s.v2.Address
	case UniswapV3:
		return s.v3.Address
	default:
		return common.Address{}
	}
}

// Tokens returns token0 and token1 of the active variant.
func (s PoolState) Tokens() (common.Address, common.Address) {
	switch s.protocol {
	case UniswapV2:
		return s.v2.Token0, s.v2.Token1
	case UniswapV3:
		return s.v3.Token0, s.v3.Token1
	default:
		return common.Address{}, common.Address{}
	}
}

// Price dispatches to the active variant's price; 0 for the zero value.
func (s PoolState) Price() float64 {
	switch s.protocol {
	case UniswapV2:
		return s.v2.Price()
	case UniswapV3:
		return s.v3.Price()
	default:
		return 0
	}
}

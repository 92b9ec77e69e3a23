package state

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"
)

var q96 = new(big.Float).SetPrec(256).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// PoolStateV3 is a snapshot of a concentrated-liquidity pool.
//
// SqrtPriceX96 and Tick come from the same slot on chain but are stored as
// reported; nothing here checks that they agree.
type PoolStateV3 struct {
	Address common.Address
	Token0  common.Address
	Token1  common.Address
	// SqrtPriceX96 is sqrt(token1/token0) in Q64.96 fixed point.
	SqrtPriceX96 uint256.Int
	// Liquidity is the in-range liquidity at the current tick.
	Liquidity uint128.Uint128
	// Tick is log base 1.0001 of the price, rounded down.
	Tick int32
}

// Price decodes SqrtPriceX96 and squares it to get the token1/token0 price.
func (p PoolStateV3) Price() float64 {
	sqrtPrice := new(big.Float).Quo(toFloat(&p.SqrtPriceX96), q96)
	sqrtPrice.Mul(sqrtPrice, sqrtPrice)
	price, _ := sqrtPrice.Float64()
	return price
}

// TickPrice returns 1.0001^tick.
func (p PoolStateV3) TickPrice() float64 {
	return math.Pow(1.0001, float64(p.Tick))
}

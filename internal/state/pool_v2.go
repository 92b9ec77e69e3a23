package state

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrSwapOverflow is returned when an intermediate swap product exceeds 256 bits.
var ErrSwapOverflow = errors.New("swap amount overflows uint256")

var (
	feeMultiplier = uint256.NewInt(997)
	feeDivisor    = uint256.NewInt(1000)
)

// PoolStateV2 is a snapshot of a constant-product pool (x * y = k).
type PoolStateV2 struct {
	Address  common.Address
	Token0   common.Address
	Token1   common.Address
	Reserve0 uint256.Int
	Reserve1 uint256.Int
}

// Price returns reserve1 / reserve0, or 0 when reserve0 is zero.
func (p PoolStateV2) Price() float64 {
	if p.Reserve0.IsZero() {
		return 0
	}
	ratio := new(big.Float).Quo(toFloat(&p.Reserve1), toFloat(&p.Reserve0))
	price, _ := ratio.Float64()
	return price
}

// Reserves returns (reserveIn, reserveOut) for the swap direction.
func (p PoolStateV2) Reserves(zeroForOne bool) (uint256.Int, uint256.Int) {
	if zeroForOne {
		return p.Reserve0, p.Reserve1
	}
	return p.Reserve1, p.Reserve0
}

// SimulateSwap returns the output amount for amountIn with a 0.3% fee.
// The result is rounded down. It is zero when the denominator is zero or
// when an intermediate value overflows 256 bits.
func (p PoolStateV2) SimulateSwap(amountIn *uint256.Int, zeroForOne bool) *uint256.Int {
	out, err := p.AmountOut(amountIn, zeroForOne)
	if err != nil {
		return new(uint256.Int)
	}
	return out
}

// AmountOut is SimulateSwap with overflow reported as ErrSwapOverflow.
func (p PoolStateV2) AmountOut(amountIn *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if amountIn == nil {
		return new(uint256.Int), nil
	}
	reserveIn, reserveOut := p.Reserves(zeroForOne)

	amountInWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, feeMultiplier)
	if overflow {
		return nil, ErrSwapOverflow
	}
	numerator, overflow := new(uint256.Int).MulOverflow(amountInWithFee, &reserveOut)
	if overflow {
		return nil, ErrSwapOverflow
	}
	scaledReserveIn, overflow := new(uint256.Int).MulOverflow(&reserveIn, feeDivisor)
	if overflow {
		return nil, ErrSwapOverflow
	}
	denominator, overflow := new(uint256.Int).AddOverflow(scaledReserveIn, amountInWithFee)
	if overflow {
		return nil, ErrSwapOverflow
	}

	if denominator.IsZero() {
		return new(uint256.Int), nil
	}
	return numerator.Div(numerator, denominator), nil
}

func toFloat(value *uint256.Int) *big.Float {
	return new(big.Float).SetPrec(256).SetInt(value.ToBig())
}

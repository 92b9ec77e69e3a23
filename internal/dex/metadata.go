package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"lukechampine.com/uint128"

	"poolcache/internal/state"
)

// TokenCache caches pool tokens by pool address.
type TokenCache struct {
	mu   sync.RWMutex
	data map[common.Address]PoolTokens
}

func NewTokenCache() *TokenCache {
	return &TokenCache{data: make(map[common.Address]PoolTokens)}
}

func (c *TokenCache) Get(pool common.Address) (PoolTokens, bool) {
	c.mu.RLock()
	tokens, ok := c.data[pool]
	c.mu.RUnlock()
	return tokens, ok
}

func (c *TokenCache) Set(pool common.Address, tokens PoolTokens) {
	c.mu.Lock()
	c.data[pool] = tokens
	c.mu.Unlock()
}

// Resolve returns cached tokens or fetches and caches them.
func (c *TokenCache) Resolve(ctx context.Context, caller ContractCaller, pool common.Address, logger *zap.Logger) (PoolTokens, error) {
	if tokens, ok := c.Get(pool); ok {
		return tokens, nil
	}
	tokens, err := FetchPoolTokens(ctx, caller, pool)
	if err != nil {
		return PoolTokens{}, err
	}
	if logger != nil {
		logger.Debug("pool tokens resolved",
			zap.String("pool", pool.Hex()),
			zap.String("token0", tokens.Token0.Hex()),
			zap.String("token1", tokens.Token1.Hex()),
		)
	}
	c.Set(pool, tokens)
	return tokens, nil
}

// FetchPoolTokens loads token0/token1. The selectors are the same on V2
// pairs and V3 pools.
func FetchPoolTokens(ctx context.Context, caller ContractCaller, pool common.Address) (PoolTokens, error) {
	if caller == nil {
		return PoolTokens{}, fmt.Errorf("chain client is nil")
	}

	pairABI, err := V2PairABI()
	if err != nil {
		return PoolTokens{}, fmt.Errorf("parse pair abi: %w", err)
	}

	values, err := callPoolMethod(ctx, caller, pool, pairABI, "token0", nil)
	if err != nil {
		return PoolTokens{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return PoolTokens{}, fmt.Errorf("token0: %w", err)
	}

	values, err = callPoolMethod(ctx, caller, pool, pairABI, "token1", nil)
	if err != nil {
		return PoolTokens{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return PoolTokens{}, fmt.Errorf("token1: %w", err)
	}

	return PoolTokens{Token0: token0, Token1: token1}, nil
}

// FetchV2State reads getReserves at block (nil means latest).
func FetchV2State(ctx context.Context, caller ContractCaller, pool common.Address, tokens PoolTokens, block *big.Int) (state.PoolStateV2, error) {
	if caller == nil {
		return state.PoolStateV2{}, fmt.Errorf("chain client is nil")
	}

	pairABI, err := V2PairABI()
	if err != nil {
		return state.PoolStateV2{}, fmt.Errorf("parse pair abi: %w", err)
	}

	values, err := callPoolMethod(ctx, caller, pool, pairABI, "getReserves", block)
	if err != nil {
		return state.PoolStateV2{}, err
	}
	if len(values) != 3 {
		return state.PoolStateV2{}, fmt.Errorf("getReserves return size %d", len(values))
	}
	reserve0, err := asUint256(values[0])
	if err != nil {
		return state.PoolStateV2{}, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asUint256(values[1])
	if err != nil {
		return state.PoolStateV2{}, fmt.Errorf("reserve1: %w", err)
	}

	return state.PoolStateV2{
		Address:  pool,
		Token0:   tokens.Token0,
		Token1:   tokens.Token1,
		Reserve0: *reserve0,
		Reserve1: *reserve1,
	}, nil
}

// FetchV3State reads slot0 and liquidity at block (nil means latest).
func FetchV3State(ctx context.Context, caller ContractCaller, pool common.Address, tokens PoolTokens, block *big.Int) (state.PoolStateV3, error) {
	if caller == nil {
		return state.PoolStateV3{}, fmt.Errorf("chain client is nil")
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return state.PoolStateV3{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callPoolMethod(ctx, caller, pool, poolABI, "slot0", block)
	if err != nil {
		return state.PoolStateV3{}, err
	}
	if len(values) < 2 {
		return state.PoolStateV3{}, fmt.Errorf("slot0 return size %d", len(values))
	}
	sqrtPrice, err := asUint256(values[0])
	if err != nil {
		return state.PoolStateV3{}, fmt.Errorf("sqrt price: %w", err)
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return state.PoolStateV3{}, fmt.Errorf("tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return state.PoolStateV3{}, fmt.Errorf("tick: %w", err)
	}

	values, err = callPoolMethod(ctx, caller, pool, poolABI, "liquidity", block)
	if err != nil {
		return state.PoolStateV3{}, err
	}
	liquidity, err := asUint128(values[0])
	if err != nil {
		return state.PoolStateV3{}, fmt.Errorf("liquidity: %w", err)
	}

	return state.PoolStateV3{
		Address:      pool,
		Token0:       tokens.Token0,
		Token1:       tokens.Token1,
		SqrtPriceX96: *sqrtPrice,
		Liquidity:    liquidity,
		Tick:         tick,
	}, nil
}

func callPoolMethod(ctx context.Context, caller ContractCaller, pool common.Address, poolABI abi.ABI, method string, block *big.Int) ([]interface{}, error) {
	data, err := poolABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &pool, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := poolABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint256(value interface{}) (*uint256.Int, error) {
	b, err := asBigInt(value)
	if err != nil {
		return nil, err
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative value: %s", b)
	}
	out, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("uint256 overflow: %s", b)
	}
	return out, nil
}

func asUint128(value interface{}) (uint128.Uint128, error) {
	b, err := asBigInt(value)
	if err != nil {
		return uint128.Zero, err
	}
	if b.Sign() < 0 || b.BitLen() > 128 {
		return uint128.Zero, fmt.Errorf("uint128 overflow: %s", b)
	}
	return uint128.FromBig(b), nil
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}

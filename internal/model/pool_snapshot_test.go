package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"poolcache/internal/state"
)

var capturedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestPoolSnapshotV2RoundTrip(t *testing.T) {
	reserve0 := new(uint256.Int).Lsh(uint256.NewInt(1), 130)
	original := state.NewV2(state.PoolStateV2{
		Address:  common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Token0:   common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		Token1:   common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		Reserve0: *reserve0,
		Reserve1: *uint256.NewInt(42),
	})

	snap, err := FromState(original, capturedAt)
	require.NoError(t, err)
	assert.Equal(t, "uniswap_v2", snap.Protocol)
	assert.Equal(t, reserve0.ToBig().String(), snap.Reserve0)
	assert.Nil(t, snap.Tick)
	assert.Equal(t, "2024-01-01T00:00:00Z", snap.CapturedAt)

	back, err := snap.ToState()
	require.NoError(t, err)
	assert.Equal(t, original, back)
}

func TestPoolSnapshotV3RoundTrip(t *testing.T) {
	original := state.NewV3(state.PoolStateV3{
		Address:      common.HexToAddress("0x9999999999999999999999999999999999999999"),
		Token0:       common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		Token1:       common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		SqrtPriceX96: *new(uint256.Int).Lsh(uint256.NewInt(1), 96),
		Liquidity:    uint128.Max,
		Tick:         -887272,
	})

	snap, err := FromState(original, capturedAt)
	require.NoError(t, err)
	require.NotNil(t, snap.Tick)
	assert.Equal(t, int32(-887272), *snap.Tick)
	assert.Equal(t, 1.0, snap.Price)

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	_, ok := decoded["sqrt_price_x96"].(string)
	assert.True(t, ok, "sqrt_price_x96 should be a string")
	_, ok = decoded["reserve0"]
	assert.False(t, ok, "v3 record should omit reserves")

	back, err := snap.ToState()
	require.NoError(t, err)
	assert.Equal(t, original, back)
}

func TestPoolSnapshotRejects(t *testing.T) {
	tick := int32(1)
	valid := PoolSnapshot{
		Protocol:     "uniswap_v3",
		Address:      "0x9999999999999999999999999999999999999999",
		Token0:       "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Token1:       "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		SqrtPriceX96: "79228162514264337593543950336",
		Liquidity:    "1",
		Tick:         &tick,
	}
	_, err := valid.ToState()
	require.NoError(t, err)

	cases := map[string]func(s *PoolSnapshot){
		"protocol":  func(s *PoolSnapshot) { s.Protocol = "balancer" },
		"address":   func(s *PoolSnapshot) { s.Address = "0x123" },
		"sqrt":      func(s *PoolSnapshot) { s.SqrtPriceX96 = "-1" },
		"liquidity": func(s *PoolSnapshot) { s.Liquidity = "340282366920938463463374607431768211456" },
		"tick":      func(s *PoolSnapshot) { s.Tick = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := valid
			mutate(&s)
			_, err := s.ToState()
			assert.Error(t, err)
		})
	}

	_, err = PoolSnapshot{Protocol: "curve"}.ToState()
	assert.ErrorIs(t, err, ErrUnknownProtocol)

	_, err = FromState(state.PoolState{}, capturedAt)
	assert.ErrorIs(t, err, ErrUnknownProtocol)
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolcache/internal/model"
)

func TestStoreUpsertAndLoad(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "pools.db"))
	require.NoError(t, err)
	defer store.Close()

	tick := int32(-20)
	v2 := model.PoolSnapshot{
		Protocol:   "uniswap_v2",
		Address:    "0x1111111111111111111111111111111111111111",
		Token0:     "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Token1:     "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Reserve0:   "1000",
		Reserve1:   "2000",
		Price:      2,
		CapturedAt: "2024-01-01T00:00:00Z",
	}
	v3 := model.PoolSnapshot{
		Protocol:     "uniswap_v3",
		Address:      "0x9999999999999999999999999999999999999999",
		Token0:       "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Token1:       "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		SqrtPriceX96: "79228162514264337593543950336",
		Liquidity:    "340282366920938463463374607431768211455",
		Tick:         &tick,
		Price:        1,
		CapturedAt:   "2024-01-01T00:00:00Z",
	}

	require.NoError(t, store.PutSnapshots(ctx, []model.PoolSnapshot{v2, v3}))

	got, err := store.LoadSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.PoolSnapshot{v2, v3}, got)

	// the same address switching protocol replaces the row
	replaced := v3
	replaced.Address = v2.Address
	require.NoError(t, store.PutSnapshots(ctx, []model.PoolSnapshot{replaced}))

	got, err = store.LoadSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, replaced, got[0])

	require.NoError(t, store.PutSnapshots(ctx, nil))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

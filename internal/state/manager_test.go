package state

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func addressN(n int) common.Address {
	return common.BigToAddress(big.NewInt(int64(n) + 1))
}

func poolV2At(address common.Address, reserve0, reserve1 uint64) PoolStateV2 {
	return PoolStateV2{
		Address:  address,
		Reserve0: *uint256.NewInt(reserve0),
		Reserve1: *uint256.NewInt(reserve1),
	}
}

func poolV3At(address common.Address, tick int32) PoolStateV3 {
	return PoolStateV3{
		Address:      address,
		SqrtPriceX96: *new(uint256.Int).Lsh(uint256.NewInt(1), 96),
		Liquidity:    uint128.From64(1_000_000),
		Tick:         tick,
	}
}

func TestManagerV2Operations(t *testing.T) {
	manager := NewManager()
	address := addressN(7)
	pool := poolV2At(address, 1000, 2000)

	manager.UpdateV2(pool)
	assert.Equal(t, 1, manager.PoolCount())

	got, ok := manager.GetV2(address)
	require.True(t, ok)
	assert.Equal(t, pool, got)

	updated := pool
	updated.Reserve0 = *uint256.NewInt(1500)
	manager.UpdateV2(updated)
	assert.Equal(t, 1, manager.PoolCount())

	got, ok = manager.GetV2(address)
	require.True(t, ok)
	assert.Equal(t, uint256.NewInt(1500), &got.Reserve0)
	assert.Equal(t, uint256.NewInt(2000), &got.Reserve1)
}

func TestManagerOverwriteReplacesWholeEntry(t *testing.T) {
	manager := NewManager()
	address := addressN(1)

	first := poolV2At(address, 1, 2)
	first.Token0 = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	second := poolV2At(address, 3, 4)

	manager.UpdateV2(first)
	manager.UpdateV2(second)

	got, ok := manager.GetV2(address)
	require.True(t, ok)
	assert.Equal(t, second, got)
	assert.Equal(t, common.Address{}, got.Token0)
}

func TestManagerCrossVariant(t *testing.T) {
	manager := NewManager()
	address := addressN(2)

	manager.UpdateV2(poolV2At(address, 1, 2))
	_, ok := manager.GetV3(address)
	assert.False(t, ok)

	v3 := poolV3At(address, -10)
	manager.UpdateV3(v3)
	assert.Equal(t, 1, manager.PoolCount())

	_, ok = manager.GetV2(address)
	assert.False(t, ok)
	got, ok := manager.GetV3(address)
	require.True(t, ok)
	assert.Equal(t, v3, got)

	entry, ok := manager.Get(address)
	require.True(t, ok)
	assert.Equal(t, UniswapV3, entry.Protocol())
}

func TestManagerUnknownAddress(t *testing.T) {
	manager := NewManager()
	_, ok := manager.Get(addressN(99))
	assert.False(t, ok)
	_, ok = manager.GetV2(addressN(99))
	assert.False(t, ok)
	_, ok = manager.GetV3(addressN(99))
	assert.False(t, ok)
}

func TestManagerCount(t *testing.T) {
	manager := NewManager()
	for i := 0; i < 100; i++ {
		manager.UpdateV2(poolV2At(addressN(i), uint64(i), uint64(i)))
	}
	assert.Equal(t, 100, manager.PoolCount())

	for i := 0; i < 50; i++ {
		manager.UpdateV3(poolV3At(addressN(i), int32(i)))
	}
	assert.Equal(t, 100, manager.PoolCount())
}

func TestManagerClear(t *testing.T) {
	manager := NewManager()
	for i := 0; i < 10; i++ {
		manager.UpdateV2(poolV2At(addressN(i), 1, 1))
	}

	manager.Clear()
	assert.Equal(t, 0, manager.PoolCount())
	for i := 0; i < 10; i++ {
		_, ok := manager.Get(addressN(i))
		assert.False(t, ok)
	}
	assert.Empty(t, manager.Snapshot())

	manager.UpdateV2(poolV2At(addressN(0), 1, 1))
	assert.Equal(t, 1, manager.PoolCount())
}

func TestManagerReturnsCopies(t *testing.T) {
	manager := NewManager()
	address := addressN(3)
	manager.UpdateV2(poolV2At(address, 10, 20))

	got, ok := manager.GetV2(address)
	require.True(t, ok)
	got.Reserve0.SetUint64(999)
	got.Token1 = addressN(4)

	again, ok := manager.GetV2(address)
	require.True(t, ok)
	assert.Equal(t, uint64(10), again.Reserve0.Uint64())
	assert.Equal(t, common.Address{}, again.Token1)
}

func TestManagerSnapshotAndRange(t *testing.T) {
	manager := NewManagerWithShards(4)
	want := make(map[common.Address]bool)
	for i := 0; i < 20; i++ {
		address := addressN(i)
		if i%2 == 0 {
			manager.UpdateV2(poolV2At(address, 1, 2))
		} else {
			manager.UpdateV3(poolV3At(address, 1))
		}
		want[address] = true
	}

	snapshot := manager.Snapshot()
	require.Len(t, snapshot, 20)
	for _, entry := range snapshot {
		assert.True(t, want[entry.Address()])
	}

	seen := 0
	manager.Range(func(PoolState) bool {
		seen++
		return seen < 5
	})
	assert.Equal(t, 5, seen)

	seen = 0
	manager.Range(func(entry PoolState) bool {
		// writing from inside the callback must not deadlock
		manager.UpdateV2(poolV2At(entry.Address(), 5, 5))
		seen++
		return true
	})
	assert.Equal(t, 20, seen)
	assert.Equal(t, 20, manager.PoolCount())
}

func TestManagerShardRounding(t *testing.T) {
	assert.Equal(t, DefaultShardCount, NewManager().ShardCount())
	assert.Equal(t, 1, NewManagerWithShards(0).ShardCount())
	assert.Equal(t, 1, NewManagerWithShards(-3).ShardCount())
	assert.Equal(t, 8, NewManagerWithShards(5).ShardCount())
	assert.Equal(t, 16, NewManagerWithShards(16).ShardCount())
}

func TestManagerConcurrentInsert(t *testing.T) {
	manager := NewManager()
	const writers = 64

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			manager.UpdateV2(poolV2At(addressN(i), uint64(i)*1000, uint64(i)*2000))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, writers, manager.PoolCount())
}

func TestManagerConcurrentReadersSeeWholeEntries(t *testing.T) {
	manager := NewManagerWithShards(2)
	addresses := []common.Address{addressN(0), addressN(1), addressN(2)}
	for _, address := range addresses {
		manager.UpdateV2(poolV2At(address, 1, 2))
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := uint64(1); i <= 2000; i++ {
				address := addresses[int(i)%len(addresses)]
				if (int(i)+w)%3 == 0 {
					manager.UpdateV3(poolV3At(address, int32(i)))
				} else {
					manager.UpdateV2(poolV2At(address, i, 2*i))
				}
			}
		}(w)
	}

	torn := make(chan string, 8)
	for r := 0; r < 4; r++ {
		go func() {
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, address := range addresses {
					entry, ok := manager.Get(address)
					if !ok {
						torn <- "missing entry"
						return
					}
					if pool, ok := entry.V2(); ok && pool.Reserve1.Uint64() != 2*pool.Reserve0.Uint64() {
						torn <- "torn v2 entry"
						return
					}
					if pool, ok := entry.V3(); ok && pool.Liquidity != uint128.From64(1_000_000) {
						torn <- "torn v3 entry"
						return
					}
				}
				manager.PoolCount()
			}
		}()
	}

	wg.Wait()
	close(stop)

	select {
	case msg := <-torn:
		t.Fatal(msg)
	default:
	}
	assert.Equal(t, len(addresses), manager.PoolCount())
}

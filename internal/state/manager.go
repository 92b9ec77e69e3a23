package state

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultShardCount is the shard count used by NewManager.
const DefaultShardCount = 64

// Manager is a concurrency-safe map from pool address to PoolState.
//
// Entries are spread over independently locked shards, so operations on
// addresses in different shards never wait on each other. Every method is a
// single critical section per shard it touches; nothing spans a read and a
// later write. Values are stored and returned by copy.
type Manager struct {
	shards []shard
	mask   uint64
}

type shard struct {
	mu    sync.RWMutex
	pools map[common.Address]PoolState
}

// NewManager creates an empty Manager with DefaultShardCount shards.
func NewManager() *Manager {
	return NewManagerWithShards(DefaultShardCount)
}

// NewManagerWithShards creates an empty Manager. The shard count is rounded
// up to a power of two; values below one mean one shard.
func NewManagerWithShards(count int) *Manager {
	n := 1
	for n < count {
		n <<= 1
	}

	shards := make([]shard, n)
	for i := range shards {
		shards[i].pools = make(map[common.Address]PoolState)
	}
	return &Manager{shards: shards, mask: uint64(n - 1)}
}

// ShardCount returns the number of shards.
func (m *Manager) ShardCount() int {
	return len(m.shards)
}

func (m *Manager) shardFor(address common.Address) *shard {
	return &m.shards[xxhash.Sum64(address[:])&m.mask]
}

func (m *Manager) put(address common.Address, value PoolState) {
	s := m.shardFor(address)
	s.mu.Lock()
	s.pools[address] = value
	s.mu.Unlock()
}

// UpdateV2 inserts or replaces the entry at pool.Address.
func (m *Manager) UpdateV2(pool PoolStateV2) {
	m.put(pool.Address, NewV2(pool))
}

// UpdateV3 inserts or replaces the entry at pool.Address.
func (m *Manager) UpdateV3(pool PoolStateV3) {
	m.put(pool.Address, NewV3(pool))
}

// Get returns a copy of the entry at address.
func (m *Manager) Get(address common.Address) (PoolState, bool) {
	s := m.shardFor(address)
	s.mu.RLock()
	value, ok := s.pools[address]
	s.mu.RUnlock()
	return value, ok
}

// GetV2 returns the entry at address if it holds a V2 pool. Unknown
// addresses and V3 entries both report false.
func (m *Manager) GetV2(address common.Address) (PoolStateV2, bool) {
	value, ok := m.Get(address)
	if !ok {
		return PoolStateV2{}, false
	}
	return value.V2()
}

// GetV3 returns the entry at address if it holds a V3 pool. Unknown
// addresses and V2 entries both report false.
func (m *Manager) GetV3(address common.Address) (PoolStateV3, bool) {
	value, ok := m.Get(address)
	if !ok {
		return PoolStateV3{}, false
	}
	return value.V3()
}

// PoolCount sums shard sizes one shard at a time. Under concurrent writes the
// total is not an atomic snapshot of the whole map.
func (m *Manager) PoolCount() int {
	total := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		total += len(s.pools)
		s.mu.RUnlock()
	}
	return total
}

// Clear removes every entry, shard by shard.
func (m *Manager) Clear() {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		s.pools = make(map[common.Address]PoolState)
		s.mu.Unlock()
	}
}

// Range calls fn with a copy of every entry until fn returns false. Each
// shard is copied under its read lock and fn runs without any lock held.
func (m *Manager) Range(fn func(PoolState) bool) {
	var buf []PoolState
	for i := range m.shards {
		buf = m.shards[i].appendTo(buf[:0])
		for _, value := range buf {
			if !fn(value) {
				return
			}
		}
	}
}

// Snapshot returns copies of all entries, gathered shard by shard.
func (m *Manager) Snapshot() []PoolState {
	out := make([]PoolState, 0, m.PoolCount())
	for i := range m.shards {
		out = m.shards[i].appendTo(out)
	}
	return out
}

func (s *shard) appendTo(dst []PoolState) []PoolState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, value := range s.pools {
		dst = append(dst, value)
	}
	return dst
}

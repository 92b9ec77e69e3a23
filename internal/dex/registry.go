package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Registry maps topic0 to the decoder that handles it.
type Registry struct {
	byTopic map[common.Hash]Decoder
	topics  []common.Hash
}

// NewRegistry indexes decoders by topic0. Later decoders win on collision.
func NewRegistry(decoders ...Decoder) *Registry {
	r := &Registry{byTopic: make(map[common.Hash]Decoder, len(decoders))}
	for _, d := range decoders {
		topic := d.Topic0()
		if _, ok := r.byTopic[topic]; !ok {
			r.topics = append(r.topics, topic)
		}
		r.byTopic[topic] = d
	}
	return r
}

// DefaultRegistry registers V2 Sync and V3 Swap, Mint and Burn.
func DefaultRegistry() (*Registry, error) {
	v2, err := NewV2PairDecoder()
	if err != nil {
		return nil, fmt.Errorf("v2 decoder: %w", err)
	}
	v3, err := NewV3PoolDecoder()
	if err != nil {
		return nil, fmt.Errorf("v3 decoder: %w", err)
	}
	mint, err := NewV3MintDecoder()
	if err != nil {
		return nil, fmt.Errorf("v3 mint decoder: %w", err)
	}
	burn, err := NewV3BurnDecoder()
	if err != nil {
		return nil, fmt.Errorf("v3 burn decoder: %w", err)
	}
	return NewRegistry(v2, v3, mint, burn), nil
}

// Lookup returns the decoder for topic0.
func (r *Registry) Lookup(topic0 common.Hash) (Decoder, bool) {
	d, ok := r.byTopic[topic0]
	return d, ok
}

// Topics returns the registered topic0 values in registration order.
func (r *Registry) Topics() []common.Hash {
	out := make([]common.Hash, len(r.topics))
	copy(out, r.topics)
	return out
}

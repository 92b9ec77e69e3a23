package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"poolcache/internal/state"
)

// PoolTarget is a pool the runner follows and the protocol it speaks.
type PoolTarget struct {
	Address  common.Address
	Protocol state.Protocol
}

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

// ParsePoolTargets builds targets from the V2 and V3 address lists. An
// address may appear in only one list.
func ParsePoolTargets(v2Pools, v3Pools []string) ([]PoolTarget, error) {
	v2, err := ParseAddresses(v2Pools)
	if err != nil {
		return nil, fmt.Errorf("v2 pools: %w", err)
	}
	v3, err := ParseAddresses(v3Pools)
	if err != nil {
		return nil, fmt.Errorf("v3 pools: %w", err)
	}

	seen := make(map[common.Address]state.Protocol, len(v2)+len(v3))
	targets := make([]PoolTarget, 0, len(v2)+len(v3))
	add := func(addresses []common.Address, protocol state.Protocol) error {
		for _, address := range addresses {
			if prev, ok := seen[address]; ok {
				if prev == protocol {
					continue
				}
				return fmt.Errorf("pool %s listed as both %s and %s", address.Hex(), prev, protocol)
			}
			seen[address] = protocol
			targets = append(targets, PoolTarget{Address: address, Protocol: protocol})
		}
		return nil
	}
	if err := add(v2, state.UniswapV2); err != nil {
		return nil, err
	}
	if err := add(v3, state.UniswapV3); err != nil {
		return nil, err
	}
	return targets, nil
}

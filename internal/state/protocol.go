package state

import (
	"fmt"
	"strings"
)

// Protocol identifies which pool mechanics a pool uses.
type Protocol uint8

const (
	// ProtocolUnknown is the zero value and is never stored.
	ProtocolUnknown Protocol = iota
	// UniswapV2 is a constant-product pool.
	UniswapV2
	// UniswapV3 is a concentrated-liquidity pool.
	UniswapV3
)

func (p Protocol) String() string {
	switch p {
	case UniswapV2:
		return "uniswap_v2"
	case UniswapV3:
		return "uniswap_v3"
	default:
		return "unknown"
	}
}

// ParseProtocol accepts "uniswap_v2"/"v2" and "uniswap_v3"/"v3", case-insensitive.
func ParseProtocol(input string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "uniswap_v2", "uniswapv2", "v2":
		return UniswapV2, nil
	case "uniswap_v3", "uniswapv3", "v3":
		return UniswapV3, nil
	default:
		return ProtocolUnknown, fmt.Errorf("unsupported protocol: %q", input)
	}
}

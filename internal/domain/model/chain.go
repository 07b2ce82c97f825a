package model

import (
	"fmt"
	"strings"
)

type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainBSC      Chain = "bsc"
	ChainPolygon  Chain = "polygon"
	ChainArbitrum Chain = "arbitrum"
	ChainBase     Chain = "base"
	ChainSolana   Chain = "solana"
)

// AllChains lists every supported chain in a stable order.
var AllChains = []Chain{
	ChainEthereum,
	ChainBSC,
	ChainPolygon,
	ChainArbitrum,
	ChainBase,
	ChainSolana,
}

func (c Chain) String() string {
	return string(c)
}

// IsEVM reports whether the chain uses the Ethereum account/calldata model.
func (c Chain) IsEVM() bool {
	return c != ChainSolana
}

// NativeSymbol returns the chain's base currency symbol.
func (c Chain) NativeSymbol() string {
	switch c {
	case ChainEthereum, ChainArbitrum, ChainBase:
		return "ETH"
	case ChainBSC:
		return "BNB"
	case ChainPolygon:
		return "POL"
	case ChainSolana:
		return "SOL"
	}
	return "UNKNOWN"
}

// NativeDecimals returns the decimal scale of the chain's base currency
// (wei for EVM chains, lamports for Solana).
func (c Chain) NativeDecimals() int32 {
	if c == ChainSolana {
		return 9
	}
	return 18
}

// ParseChain validates a chain identifier from external input.
func ParseChain(s string) (Chain, error) {
	c := Chain(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllChains {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unsupported chain %q", s)
}

package model

import "time"

// UnknownTokenSymbol tags deposits from contracts missing in the registry.
const UnknownTokenSymbol = "UNKNOWN"

// UnknownTokenDecimals is the fallback scale for unregistered contracts.
const UnknownTokenDecimals int32 = 18

type Token struct {
	Chain           Chain     `db:"chain"`
	ContractAddress string    `db:"contract_address"` // lowercased
	Symbol          string    `db:"symbol"`
	Decimals        int32     `db:"decimals"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// UnknownToken returns the sentinel entry for an unregistered contract.
func UnknownToken(chain Chain, contractAddress string) Token {
	return Token{
		Chain:           chain,
		ContractAddress: contractAddress,
		Symbol:          UnknownTokenSymbol,
		Decimals:        UnknownTokenDecimals,
	}
}

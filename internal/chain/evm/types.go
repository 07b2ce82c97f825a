package evm

import "encoding/json"

// explorerResponse is the etherscan-style envelope: status "1" with a result
// array on success, status "0" with message "No transactions found" for an
// empty history.
type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// explorerTx is one entry of the account txlist result.
type explorerTx struct {
	Hash          string `json:"hash"`
	From          string `json:"from"`
	To            string `json:"to"`
	Value         string `json:"value"`
	Input         string `json:"input"`
	TimeStamp     string `json:"timeStamp"`
	Confirmations string `json:"confirmations"`
	IsError       string `json:"isError"`
}

package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/kodax/deposit-reconciler/internal/metrics"
	"github.com/kodax/deposit-reconciler/internal/token"
	"github.com/shopspring/decimal"
)

// erc20TransferSelector is the 4-byte selector of transfer(address,uint256).
const erc20TransferSelector = "0xa9059cbb"

// erc20TransferMinLen is the minimum calldata length for a transfer call:
// "0x" + 8 selector chars + two 64-char ABI words.
const erc20TransferMinLen = 138

// Classifier decides whether a raw transaction is an inbound deposit to a
// target address, and decodes token and amount if so.
type Classifier struct {
	registry *token.Registry
	logger   *slog.Logger
}

func New(registry *token.Registry, logger *slog.Logger) *Classifier {
	return &Classifier{
		registry: registry,
		logger:   logger.With("component", "classifier"),
	}
}

// Classify returns the decoded deposit, or nil if the transaction is not a
// deposit to targetAddress. Malformed data is a skip, never an error: one
// undecodable transaction must not poison the cycle.
func (c *Classifier) Classify(ctx context.Context, raw model.RawTransaction, targetAddress string) *model.Deposit {
	target := canonicalAddress(raw.Chain, targetAddress)
	if target == "" {
		return nil
	}

	// Native transfer: recipient is the target and value is positive. This
	// test wins even when the calldata happens to look transfer-like.
	if canonicalAddress(raw.Chain, raw.To) == target {
		if amount, ok := scaleRawValue(raw.Value, raw.Chain.NativeDecimals()); ok && amount.IsPositive() {
			metrics.DepositsClassified.WithLabelValues(string(raw.Chain), "native").Inc()
			return &model.Deposit{
				Chain:       raw.Chain,
				TxHash:      raw.Hash,
				FromAddress: canonicalAddress(raw.Chain, raw.From),
				ToAddress:   target,
				Token:       raw.Chain.NativeSymbol(),
				Amount:      amount,
			}
		}
	}

	if !raw.Chain.IsEVM() {
		return nil
	}

	dep, err := c.classifyTokenTransfer(ctx, raw, target)
	if err != nil {
		c.logger.Warn("skipping undecodable calldata",
			"chain", raw.Chain, "tx_hash", raw.Hash, "error", err)
		return nil
	}
	if dep != nil {
		metrics.DepositsClassified.WithLabelValues(string(raw.Chain), "token").Inc()
	}
	return dep
}

// classifyTokenTransfer applies the ERC-20 transfer(address,uint256) test.
// The outer transaction's `to` is the token contract; the real recipient and
// amount live in the calldata words.
func (c *Classifier) classifyTokenTransfer(ctx context.Context, raw model.RawTransaction, target string) (*model.Deposit, error) {
	input := strings.ToLower(strings.TrimSpace(raw.Input))
	if !strings.HasPrefix(input, erc20TransferSelector) || len(input) < erc20TransferMinLen {
		return nil, nil
	}

	words := input[len(erc20TransferSelector):]
	recipientWord := words[:64]
	amountWord := words[64:128]

	recipient, err := addressFromABIWord(recipientWord)
	if err != nil {
		return nil, fmt.Errorf("decode recipient: %w", err)
	}
	if recipient != target {
		// Token transfer to someone else that happens to be in this
		// address's history (it was the sender).
		return nil, nil
	}

	rawAmount, ok := new(big.Int).SetString(amountWord, 16)
	if !ok {
		return nil, fmt.Errorf("decode amount word %q", amountWord)
	}
	if rawAmount.Sign() <= 0 {
		return nil, nil
	}

	contract := canonicalAddress(raw.Chain, raw.To)
	tok := c.registry.Resolve(ctx, raw.Chain, contract)

	return &model.Deposit{
		Chain:       raw.Chain,
		TxHash:      raw.Hash,
		FromAddress: canonicalAddress(raw.Chain, raw.From),
		ToAddress:   target,
		Token:       tok.Symbol,
		Amount:      decimal.NewFromBigInt(rawAmount, -tok.Decimals),
	}, nil
}

// addressFromABIWord recovers a 20-byte address from a 32-byte ABI word:
// strip the 12 bytes of zero padding and re-validate what remains.
func addressFromABIWord(word string) (string, error) {
	if len(word) != 64 {
		return "", fmt.Errorf("word length %d", len(word))
	}
	padding, addr := word[:24], word[24:]
	if strings.Trim(padding, "0") != "" {
		return "", fmt.Errorf("nonzero padding %q", padding)
	}
	if !isHex(addr) {
		return "", fmt.Errorf("invalid address hex %q", addr)
	}
	return "0x" + addr, nil
}

// scaleRawValue converts a raw integer string to a decimal amount using
// arbitrary-precision integer arithmetic. Large values never pass through a
// float.
func scaleRawValue(value string, decimals int32) (decimal.Decimal, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return decimal.Zero, false
	}
	rawInt, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromBigInt(rawInt, -decimals), true
}

// canonicalAddress normalizes an address for comparison: EVM hex addresses
// compare case-insensitively, Solana base58 is case-sensitive.
func canonicalAddress(chain model.Chain, addr string) string {
	addr = strings.TrimSpace(addr)
	if chain.IsEVM() {
		return strings.ToLower(addr)
	}
	return addr
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return len(s) > 0
}

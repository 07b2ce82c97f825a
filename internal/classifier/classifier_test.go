package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/kodax/deposit-reconciler/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdtContract = "0xdac17f958d2ee523a2206206994597c13d831ec7"
	userAddr     = "0x1111111111111111111111111111111111111111"
	otherAddr    = "0x2222222222222222222222222222222222222222"
)

type fakeTokenStore struct {
	tokens map[string]*model.Token
}

func (f *fakeTokenStore) FindToken(_ context.Context, chain model.Chain, contract string) (*model.Token, error) {
	return f.tokens[string(chain)+":"+contract], nil
}

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	store := &fakeTokenStore{tokens: map[string]*model.Token{
		"ethereum:" + usdtContract: {
			Chain:           model.ChainEthereum,
			ContractAddress: usdtContract,
			Symbol:          "USDT",
			Decimals:        6,
		},
	}}
	registry, err := token.NewRegistry("", store, slog.Default())
	require.NoError(t, err)
	return New(registry, slog.Default())
}

// transferCalldata builds transfer(address,uint256) calldata for recipient
// and a decimal amount string in the token's smallest unit.
func transferCalldata(t *testing.T, recipient, rawAmount string) string {
	t.Helper()
	amt, ok := new(big.Int).SetString(rawAmount, 10)
	require.True(t, ok)
	return "0xa9059cbb" +
		fmt.Sprintf("%064s", strings.TrimPrefix(recipient, "0x")) +
		fmt.Sprintf("%064s", amt.Text(16))
}

func TestClassify_NativeTransfer(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	dep := c.Classify(context.Background(), model.RawTransaction{
		Chain: model.ChainEthereum,
		Hash:  "0xabc",
		From:  otherAddr,
		To:    userAddr,
		Value: "2500000000000000000",
	}, userAddr)

	require.NotNil(t, dep)
	assert.Equal(t, "ETH", dep.Token)
	assert.Equal(t, "2.5", dep.Amount.String())
	assert.Equal(t, userAddr, dep.ToAddress)
	assert.Equal(t, "0xabc", dep.TxHash)
}

func TestClassify_NativeTransfer_FullPrecision(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	dep := c.Classify(context.Background(), model.RawTransaction{
		Chain: model.ChainEthereum,
		To:    userAddr,
		Value: "123456789012345678",
	}, userAddr)

	require.NotNil(t, dep)
	assert.Equal(t, "0.123456789012345678", dep.Amount.String())
}

func TestClassify_NativeTransfer_CaseInsensitiveAddress(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	dep := c.Classify(context.Background(), model.RawTransaction{
		Chain: model.ChainEthereum,
		To:    strings.ToUpper(userAddr[2:]), // no 0x, uppercased
		Value: "1",
	}, userAddr)
	assert.Nil(t, dep, "missing 0x prefix must not match")

	dep = c.Classify(context.Background(), model.RawTransaction{
		Chain: model.ChainEthereum,
		To:    "0x" + strings.ToUpper(userAddr[2:]),
		Value: "1000000000000000000",
	}, userAddr)
	require.NotNil(t, dep)
	assert.Equal(t, "1", dep.Amount.String())
}

func TestClassify_TokenTransfer(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	dep := c.Classify(context.Background(), model.RawTransaction{
		Chain: model.ChainEthereum,
		Hash:  "0xdef",
		From:  otherAddr,
		To:    usdtContract,
		Value: "0",
		Input: transferCalldata(t, userAddr, "1000000"),
	}, userAddr)

	require.NotNil(t, dep)
	assert.Equal(t, "USDT", dep.Token)
	assert.Equal(t, "1", dep.Amount.String())
	assert.Equal(t, userAddr, dep.ToAddress)
}

func TestClassify_NativeWinsOverTransferLikeCalldata(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	// Direct transfer to the user whose calldata happens to carry a
	// transfer selector. The native test runs first and wins.
	dep := c.Classify(context.Background(), model.RawTransaction{
		Chain: model.ChainEthereum,
		To:    userAddr,
		Value: "1000000000000000000",
		Input: transferCalldata(t, userAddr, "99"),
	}, userAddr)

	require.NotNil(t, dep)
	assert.Equal(t, "ETH", dep.Token)
	assert.Equal(t, "1", dep.Amount.String())
}

func TestClassify_TokenTransferToSomeoneElse(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	dep := c.Classify(context.Background(), model.RawTransaction{
		Chain: model.ChainEthereum,
		From:  userAddr,
		To:    usdtContract,
		Value: "0",
		Input: transferCalldata(t, otherAddr, "1000000"),
	}, userAddr)

	assert.Nil(t, dep, "the user as sender of a token transfer is not a deposit")
}

func TestClassify_UnknownContractUsesSentinel(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	unknownContract := "0x3333333333333333333333333333333333333333"
	dep := c.Classify(context.Background(), model.RawTransaction{
		Chain: model.ChainEthereum,
		To:    unknownContract,
		Value: "0",
		Input: transferCalldata(t, userAddr, "5000000000000000000"),
	}, userAddr)

	require.NotNil(t, dep)
	assert.Equal(t, "UNKNOWN", dep.Token)
	// Sentinel assumes 18 decimals.
	assert.Equal(t, "5", dep.Amount.String())
}

func TestClassify_MalformedCalldata(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	cases := []struct {
		name  string
		input string
	}{
		{"truncated", "0xa9059cbb0000"},
		{"nonzero padding", "0xa9059cbbff" + strings.Repeat("0", 22) + userAddr[2:] + fmt.Sprintf("%064d", 1)},
		{"no selector match", "0x095ea7b3" + strings.Repeat("0", 128)},
		{"empty", ""},
		{"bare 0x", "0x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dep := c.Classify(context.Background(), model.RawTransaction{
				Chain: model.ChainEthereum,
				To:    usdtContract,
				Value: "0",
				Input: tc.input,
			}, userAddr)
			assert.Nil(t, dep)
		})
	}
}

func TestClassify_ZeroAndInvalidValues(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	for _, value := range []string{"0", "", "not-a-number"} {
		dep := c.Classify(context.Background(), model.RawTransaction{
			Chain: model.ChainEthereum,
			To:    userAddr,
			Value: value,
		}, userAddr)
		assert.Nil(t, dep, "value %q", value)
	}

	// Zero-amount token transfer is noise, not a deposit.
	dep := c.Classify(context.Background(), model.RawTransaction{
		Chain: model.ChainEthereum,
		To:    usdtContract,
		Value: "0",
		Input: transferCalldata(t, userAddr, "0"),
	}, userAddr)
	assert.Nil(t, dep)
}

func TestClassify_SolanaNative(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	solAddr := "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	dep := c.Classify(context.Background(), model.RawTransaction{
		Chain: model.ChainSolana,
		Hash:  "5sig",
		To:    solAddr,
		Value: "1500000000", // lamports
	}, solAddr)

	require.NotNil(t, dep)
	assert.Equal(t, "SOL", dep.Token)
	assert.Equal(t, "1.5", dep.Amount.String())
}

func TestClassify_SolanaAddressCaseSensitive(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	solAddr := "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	dep := c.Classify(context.Background(), model.RawTransaction{
		Chain: model.ChainSolana,
		To:    strings.ToLower(solAddr),
		Value: "1000000000",
	}, solAddr)

	assert.Nil(t, dep, "base58 addresses must compare case-sensitively")
}

func TestAddressFromABIWord(t *testing.T) {
	t.Parallel()

	addr, err := addressFromABIWord(strings.Repeat("0", 24) + userAddr[2:])
	require.NoError(t, err)
	assert.Equal(t, userAddr, addr)

	_, err = addressFromABIWord("short")
	assert.Error(t, err)

	_, err = addressFromABIWord("1" + strings.Repeat("0", 23) + userAddr[2:])
	assert.Error(t, err, "nonzero padding must be rejected")
}

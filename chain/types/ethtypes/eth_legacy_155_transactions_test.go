package ethtypes

import (
	"testing"

	gocrypto "github.com/filecoin-project/go-crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-types/big"
)

// Example transaction from EIP-155.
func eip155Example(t *testing.T) *EthLegacy155TxArgs {
	to, err := ParseEthAddress("0x3535353535353535353535353535353535353535")
	require.NoError(t, err)

	value, err := big.FromString("1000000000000000000")
	require.NoError(t, err)

	return &EthLegacy155TxArgs{
		ChainID:  1,
		Nonce:    9,
		GasPrice: big.NewInt(20_000_000_000),
		GasLimit: 21000,
		To:       &to,
		Value:    value,
		Input:    []byte{},
	}
}

func TestEthLegacy155SigningPayload(t *testing.T) {
	tx := eip155Example(t)

	unsigned, err := tx.ToRlpUnsignedMsg()
	require.NoError(t, err)
	require.Equal(t, mustDecodeHex("0xec098504a817c800825208943535353535353535353535353535353535353535880de0b6b3a764000080018080"), unsigned)

	hash, err := tx.SigningHash()
	require.NoError(t, err)
	require.Equal(t, mustDecodeHex("0xdaf5a779ae972f972197303d7b574746c7ef83eadac0f2791ad23db92e4c8e53"), hash)
}

func TestEthLegacy155Sign(t *testing.T) {
	tx := eip155Example(t)
	priv := mustDecodeHex("0x4646464646464646464646464646464646464646464646464646464646464646")

	require.NoError(t, tx.Sign(priv))
	// the signature nonce is random, so only the recovery parity varies
	require.Contains(t, []int64{37, 38}, tx.V.Int64())

	sender, err := tx.Sender()
	require.NoError(t, err)

	expected, err := EthAddressFromPubKey(gocrypto.PublicKey(priv))
	require.NoError(t, err)
	require.Equal(t, expected, sender[:])

	signed, err := tx.ToRlpSignedMsg()
	require.NoError(t, err)
	parsed, err := ParseEthLegacy155Tx(signed)
	require.NoError(t, err)
	require.True(t, parsed.V.Equals(tx.V))
	require.True(t, parsed.R.Equals(tx.R))
	require.True(t, parsed.S.Equals(tx.S))

	reencoded, err := parsed.ToRlpSignedMsg()
	require.NoError(t, err)
	require.Equal(t, signed, reencoded)
}

func TestParseEthLegacy155Tx(t *testing.T) {
	priv, err := gocrypto.GenerateKey()
	require.NoError(t, err)

	to, err := ParseEthAddress("0x095e7baea6a6c7c4c2dfeb977efac326af552d87")
	require.NoError(t, err)

	tx := &EthLegacy155TxArgs{
		ChainID:  1287,
		Nonce:    42,
		GasPrice: big.NewInt(1_000_000_000),
		GasLimit: 300_000,
		To:       &to,
		Value:    big.Zero(),
		Input:    mustDecodeHex("0xdeadbeef"),
	}
	require.NoError(t, tx.Sign(priv))

	raw, err := tx.ToRlpSignedMsg()
	require.NoError(t, err)

	parsed, err := ParseEthLegacy155Tx(raw)
	require.NoError(t, err)
	require.EqualValues(t, 1287, parsed.ChainID)
	require.EqualValues(t, 42, parsed.Nonce)
	require.EqualValues(t, 300_000, parsed.GasLimit)
	require.Equal(t, to, *parsed.To)
	require.Equal(t, tx.Input, parsed.Input)
	require.True(t, parsed.GasPrice.Equals(tx.GasPrice))

	origHash, err := tx.TxHash()
	require.NoError(t, err)
	parsedHash, err := parsed.TxHash()
	require.NoError(t, err)
	require.Equal(t, origHash, parsedHash)

	sender, err := parsed.Sender()
	require.NoError(t, err)
	expected, err := EthAddressFromPubKey(gocrypto.PublicKey(priv))
	require.NoError(t, err)
	require.Equal(t, expected, sender[:])
}

func TestParseEthLegacy155TxRejectsHomestead(t *testing.T) {
	// v = 27, no chain id
	raw, err := EncodeRLP([]interface{}{
		[]byte{1}, []byte{1}, []byte{0x52, 0x08}, []byte{}, []byte{}, []byte{},
		[]byte{27}, []byte{1}, []byte{1},
	})
	require.NoError(t, err)

	_, err = ParseEthLegacy155Tx(raw)
	require.ErrorContains(t, err, "EIP-155")
}

func TestDeriveEIP155ChainId(t *testing.T) {
	tests := []struct {
		name            string
		v               big.Int
		expectedChainId big.Int
	}{
		{
			name:            "V equals 27",
			v:               big.NewInt(27),
			expectedChainId: big.NewInt(0),
		},
		{
			name:            "V equals 28",
			v:               big.NewInt(28),
			expectedChainId: big.NewInt(0),
		},
		{
			name:            "V small chain ID",
			v:               big.NewInt(37), // (37 - 35) / 2 = 1
			expectedChainId: big.NewInt(1),
		},
		{
			name:            "V moonbase alpha",
			v:               big.NewInt(1287*2 + 36),
			expectedChainId: big.NewInt(1287),
		},
		{
			name:            "V very large chain ID",
			v:               big.NewInt(1 << 20), // (1048576 - 35) / 2 = 524270
			expectedChainId: big.NewInt(524270),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := deriveEIP155ChainId(tt.v)
			assert.True(t, result.Equals(tt.expectedChainId), "Expected %s, got %s for V=%s", tt.expectedChainId.String(), result.String(), tt.v.String())
		})
	}
}

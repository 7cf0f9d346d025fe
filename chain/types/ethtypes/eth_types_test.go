package ethtypes

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-types/big"
)

func TestEthUint64(t *testing.T) {
	testcases := []TestCase{
		{"\"0x0\"", EthUint64(0)},
		{"\"0x41\"", EthUint64(65)},
		{"\"0x400\"", EthUint64(1024)},
		{"\"12\"", EthUint64(12)},
		{"7", EthUint64(7)},
	}

	for _, tc := range testcases {
		var i EthUint64
		err := i.UnmarshalJSON([]byte(tc.Input.(string)))
		require.Nil(t, err)
		require.Equal(t, tc.Output, i)
	}

	out, err := EthUint64(1024).MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"0x400"`, string(out))
}

func TestEthBigInt(t *testing.T) {
	var b EthBigInt
	require.NoError(t, json.Unmarshal([]byte(`"0x3b9aca00"`), &b))
	require.Equal(t, "1000000000", big.Int(b).String())
	require.Equal(t, "0x3b9aca00", b.String())

	require.Equal(t, "0x0", EthBigIntZero.String())

	require.Error(t, json.Unmarshal([]byte(`"0xzz"`), &b))
}

func TestEthBytes(t *testing.T) {
	var b EthBytes
	require.NoError(t, json.Unmarshal([]byte(`"0xdeadbeef"`), &b))
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, []byte(b))

	out, err := json.Marshal(EthBytes(nil))
	require.NoError(t, err)
	require.Equal(t, `"0x"`, string(out))
}

func TestParseEthAddr(t *testing.T) {
	testcases := []string{
		`"0xd4c5fb16488Aa48081296299d54b0c648C9333dA"`,
		`"0x2C2EC67e3e1FeA8e4A39601cB3A3Cd44f5fa830d"`,
		`"0x01184F793982104363F9a8a5845743f452dE0586"`,
	}

	for _, addr := range testcases {
		var a EthAddress
		err := a.UnmarshalJSON([]byte(addr))

		require.Nil(t, err)
		require.Equal(t, a.String(), strings.ToLower(strings.Trim(addr, `"`)))
	}

	_, err := ParseEthAddress("0x1234")
	require.Error(t, err)
}

func TestEthAddressChecksum(t *testing.T) {
	// Vectors from EIP-55.
	for _, s := range []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	} {
		a, err := ParseEthAddress(s)
		require.NoError(t, err)
		require.Equal(t, s, a.ChecksumString())
	}
}

func TestEthCallMarshal(t *testing.T) {
	to, err := ParseEthAddress("0x0000000000000000000000000000000000000001")
	require.NoError(t, err)

	out, err := json.Marshal(EthCall{To: &to, Data: EthBytes{0x01}})
	require.NoError(t, err)
	require.JSONEq(t, `{"to":"0x0000000000000000000000000000000000000001","data":"0x01"}`, string(out))

	var back EthCall
	require.NoError(t, json.Unmarshal([]byte(`{"to":"0x0000000000000000000000000000000000000001","input":"0x02"}`), &back))
	require.Equal(t, EthBytes{0x02}, back.Data)
}

func TestParseEthRevert(t *testing.T) {
	testcases := []TestCase{
		{"0x4e487b710000000000000000000000000000000000000000000000000000000000000000", "Panic()"},
		{"0x4e487b710000000000000000000000000000000000000000000000000000000000000001", "Assert()"},
		{"0x4e487b710000000000000000000000000000000000000000000000000000000000000011", "ArithmeticOverflow()"},
		{"0x4e487b7100000000000000000000000000000000000000000000000000000000000000ff", "Panic(0xff)"},
		{"0x08c379a0" +
			"0000000000000000000000000000000000000000000000000000000000000020" +
			"000000000000000000000000000000000000000000000000000000000000000e" +
			"4275636b65744e6f74466f756e64000000000000000000000000000000000000", "Error(BucketNotFound)"},
		{"0xdeadbeef", "0xdeadbeef"},
	}

	for _, tc := range testcases {
		data, err := DecodeHexString(tc.Input.(string))
		require.NoError(t, err)
		require.Equal(t, tc.Output, ParseEthRevert(data))
	}
}

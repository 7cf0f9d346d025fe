package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

// first account of the hardhat / anvil development mnemonic
const (
	devKey  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestParseKey(t *testing.T) {
	k, err := ParseKey(devKey)
	require.NoError(t, err)
	require.Equal(t, devAddr, k.Address.ChecksumString())
	require.Len(t, k.PublicKey, 65)

	_, err = ParseKey("0x1234")
	require.Error(t, err)
	_, err = ParseKey("zz")
	require.Error(t, err)
}

func TestSignTx(t *testing.T) {
	k, err := ParseKey(devKey)
	require.NoError(t, err)
	w := KeyWallet(k)

	to := k.Address
	tx := &ethtypes.EthLegacy155TxArgs{
		ChainID:  1287,
		Nonce:    3,
		GasPrice: big.NewInt(1000),
		GasLimit: 21000,
		To:       &to,
		Value:    big.Zero(),
	}
	require.NoError(t, w.SignTx(context.Background(), k.Address, tx))

	sender, err := tx.Sender()
	require.NoError(t, err)
	require.Equal(t, k.Address, sender)

	other, err := GenerateKey()
	require.NoError(t, err)
	err = w.SignTx(context.Background(), other.Address, tx)
	require.ErrorIs(t, err, ErrKeyNotFound)

	w.Import(other)
	require.True(t, w.HasKey(other.Address))
	require.Len(t, w.ListAddrs(), 2)
}

func TestReplyKeyDeterministic(t *testing.T) {
	k, err := ParseKey(devKey)
	require.NoError(t, err)

	priv1, pub1, err := k.ReplyKey()
	require.NoError(t, err)
	priv2, pub2, err := KeyWallet(k).ReplyKey(k.Address)
	require.NoError(t, err)
	require.Equal(t, priv1, priv2)
	require.Equal(t, pub1, pub2)

	other, err := GenerateKey()
	require.NoError(t, err)
	_, pub3, err := other.ReplyKey()
	require.NoError(t, err)
	require.NotEqual(t, pub1, pub3)
}

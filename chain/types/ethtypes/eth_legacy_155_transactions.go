package ethtypes

import (
	"fmt"

	gocrypto "github.com/filecoin-project/go-crypto"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"
)

// EthLegacy155TxArgs is a pre-EIP-1559 transaction with EIP-155 replay
// protection. It is accepted by every EVM chain we target, including the
// parachains that lag on typed transactions.
type EthLegacy155TxArgs struct {
	ChainID  uint64      `json:"chainId"`
	Nonce    uint64      `json:"nonce"`
	GasPrice big.Int     `json:"gasPrice"`
	GasLimit uint64      `json:"gasLimit"`
	To       *EthAddress `json:"to"`
	Value    big.Int     `json:"value"`
	Input    []byte      `json:"input"`
	V        big.Int     `json:"v"`
	R        big.Int     `json:"r"`
	S        big.Int     `json:"s"`
}

func (tx *EthLegacy155TxArgs) packTxFields() []interface{} {
	return []interface{}{
		formatUint64(tx.Nonce),
		formatBigInt(tx.GasPrice),
		formatUint64(tx.GasLimit),
		formatEthAddr(tx.To),
		formatBigInt(tx.Value),
		tx.Input,
	}
}

// ToRlpUnsignedMsg returns the EIP-155 signing payload:
// rlp([nonce, gasPrice, gasLimit, to, value, input, chainId, 0, 0]).
func (tx *EthLegacy155TxArgs) ToRlpUnsignedMsg() ([]byte, error) {
	packed := append(tx.packTxFields(),
		formatUint64(tx.ChainID),
		[]byte{},
		[]byte{},
	)
	return EncodeRLP(packed)
}

func (tx *EthLegacy155TxArgs) ToRlpSignedMsg() ([]byte, error) {
	if tx.R.Int == nil || tx.S.Int == nil || tx.V.Int == nil {
		return nil, xerrors.Errorf("transaction is not signed")
	}
	packed := append(tx.packTxFields(),
		formatBigInt(tx.V),
		formatBigInt(tx.R),
		formatBigInt(tx.S),
	)
	return EncodeRLP(packed)
}

// SigningHash is the keccak-256 digest of the unsigned payload.
func (tx *EthLegacy155TxArgs) SigningHash() ([]byte, error) {
	msg, err := tx.ToRlpUnsignedMsg()
	if err != nil {
		return nil, err
	}
	return Keccak256(msg), nil
}

func (tx *EthLegacy155TxArgs) TxHash() (EthHash, error) {
	encoded, err := tx.ToRlpSignedMsg()
	if err != nil {
		return EthHash{}, err
	}
	return EthHashFromTxBytes(encoded), nil
}

// Sign signs the transaction with a raw secp256k1 private key and fills in
// V, R and S. V carries the chain id: V = chainId*2 + 35 + recovery id.
func (tx *EthLegacy155TxArgs) Sign(privateKey []byte) error {
	hash, err := tx.SigningHash()
	if err != nil {
		return err
	}

	sig, err := gocrypto.Sign(privateKey, hash)
	if err != nil {
		return xerrors.Errorf("signing transaction: %w", err)
	}
	if len(sig) != 65 {
		return xerrors.Errorf("signature should be 65 bytes long, but got %d bytes", len(sig))
	}

	tx.R = big.PositiveFromUnsignedBytes(sig[0:32])
	tx.S = big.PositiveFromUnsignedBytes(sig[32:64])
	tx.V = big.Add(
		big.Mul(big.NewIntUnsigned(tx.ChainID), big.NewInt(2)),
		big.NewInt(35+int64(sig[64])),
	)
	return nil
}

// Sender recovers the address that signed the transaction.
func (tx *EthLegacy155TxArgs) Sender() (EthAddress, error) {
	if err := validateEIP155ChainId(tx.V, tx.ChainID); err != nil {
		return EthAddress{}, xerrors.Errorf("failed to validate EIP155 chain id: %w", err)
	}

	hash, err := tx.SigningHash()
	if err != nil {
		return EthAddress{}, err
	}

	recID := big.Sub(tx.V, big.Add(big.Mul(big.NewIntUnsigned(tx.ChainID), big.NewInt(2)), big.NewInt(35)))
	if recID.Int64() != 0 && recID.Int64() != 1 {
		return EthAddress{}, xerrors.Errorf("invalid 'v' value: %s", tx.V.String())
	}

	sig := append([]byte{}, padLeadingZeros(tx.R.Int.Bytes(), 32)...)
	sig = append(sig, padLeadingZeros(tx.S.Int.Bytes(), 32)...)
	sig = append(sig, byte(recID.Int64()))

	pubk, err := gocrypto.EcRecover(hash, sig)
	if err != nil {
		return EthAddress{}, xerrors.Errorf("failed to recover pubkey: %w", err)
	}

	ethAddr, err := EthAddressFromPubKey(pubk)
	if err != nil {
		return EthAddress{}, xerrors.Errorf("failed to get eth address from pubkey: %w", err)
	}
	return CastEthAddress(ethAddr)
}

// ParseEthLegacy155Tx decodes a signed raw legacy transaction. The chain id
// is derived from V.
func ParseEthLegacy155Tx(data []byte) (*EthLegacy155TxArgs, error) {
	if len(data) == 0 || data[0] <= 0x7f {
		return nil, xerrors.Errorf("not a legacy eth transaction")
	}

	d, err := DecodeRLP(data)
	if err != nil {
		return nil, err
	}
	decoded, ok := d.([]interface{})
	if !ok {
		return nil, xerrors.Errorf("not a legacy transaction: decoded data is not a list")
	}
	if len(decoded) != 9 {
		return nil, xerrors.Errorf("not a legacy transaction: should have 9 elements in the rlp list")
	}

	nonce, err := parseUint64(decoded[0])
	if err != nil {
		return nil, err
	}
	gasPrice, err := parseBigInt(decoded[1])
	if err != nil {
		return nil, err
	}
	gasLimit, err := parseUint64(decoded[2])
	if err != nil {
		return nil, err
	}
	to, err := parseEthAddr(decoded[3])
	if err != nil {
		return nil, err
	}
	value, err := parseBigInt(decoded[4])
	if err != nil {
		return nil, err
	}
	input, err := parseBytes(decoded[5], "input")
	if err != nil {
		return nil, err
	}
	v, err := parseBigInt(decoded[6])
	if err != nil {
		return nil, err
	}
	r, err := parseBigInt(decoded[7])
	if err != nil {
		return nil, err
	}
	s, err := parseBigInt(decoded[8])
	if err != nil {
		return nil, err
	}

	chainID := deriveEIP155ChainId(v)
	if !chainID.IsUint64() || chainID.Sign() == 0 {
		return nil, xerrors.Errorf("legacy transaction without EIP-155 chain id")
	}

	return &EthLegacy155TxArgs{
		ChainID:  chainID.Uint64(),
		Nonce:    nonce,
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		To:       to,
		Value:    value,
		Input:    input,
		V:        v,
		R:        r,
		S:        s,
	}, nil
}

func validateEIP155ChainId(v big.Int, expected uint64) error {
	if v.Int == nil {
		return fmt.Errorf("transaction is not signed")
	}
	chainId := deriveEIP155ChainId(v)
	if !chainId.Equals(big.NewIntUnsigned(expected)) {
		return fmt.Errorf("invalid chain id, expected %d, got %s", expected, chainId.String())
	}
	return nil
}

// deriveEIP155ChainId derives the chain id from the given v parameter
func deriveEIP155ChainId(v big.Int) big.Int {
	if big.BitLen(v) <= 64 {
		vUint64 := v.Uint64()
		if vUint64 == 27 || vUint64 == 28 {
			return big.NewInt(0)
		}
		return big.NewIntUnsigned((vUint64 - 35) / 2)
	}

	v = big.Sub(v, big.NewInt(35))
	return big.Div(v, big.NewInt(2))
}

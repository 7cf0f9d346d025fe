package ethtypes

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	mathbig "math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"
)

var ErrInvalidAddress = errors.New("invalid Eth address")

const (
	EthAddressLength = 20
	EthHashLength    = 32
)

const (
	BlockTagEarliest  = "earliest"
	BlockTagPending   = "pending"
	BlockTagLatest    = "latest"
	BlockTagFinalized = "finalized"
	BlockTagSafe      = "safe"
)

type EthUint64 uint64

func (e EthUint64) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Hex())
}

// UnmarshalJSON should be able to parse these types of input:
// 1. a JSON string containing a hex-encoded uint64 starting with 0x
// 2. a JSON string containing an uint64 in decimal
// 3. a string containing an uint64 in decimal
func (e *EthUint64) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		base := 10
		if strings.HasPrefix(s, "0x") {
			base = 16
			s = s[2:]
		}
		parsedInt, err := strconv.ParseUint(s, base, 64)
		if err != nil {
			return err
		}
		*e = EthUint64(parsedInt)
		return nil
	} else if eint, err := strconv.ParseUint(string(b), 10, 64); err == nil {
		*e = EthUint64(eint)
		return nil
	}
	return xerrors.Errorf("cannot interpret %s as a hex-encoded uint64, or a number", string(b))
}

func EthUint64FromHex(s string) (EthUint64, error) {
	parsedInt, err := strconv.ParseUint(strings.Replace(s, "0x", "", -1), 16, 64)
	if err != nil {
		return EthUint64(0), err
	}
	return EthUint64(parsedInt), nil
}

// EthUint64FromBytes parses a uint64 from big-endian encoded bytes.
func EthUint64FromBytes(b []byte) (EthUint64, error) {
	if len(b) != 32 {
		return 0, xerrors.Errorf("eth int must be 32 bytes long")
	}
	var zeros [32 - 8]byte
	if !bytes.Equal(b[:len(zeros)], zeros[:]) {
		return 0, xerrors.Errorf("eth int overflows 64 bits")
	}
	return EthUint64(binary.BigEndian.Uint64(b[len(zeros):])), nil
}

func (e EthUint64) Hex() string {
	if e == 0 {
		return "0x0"
	}
	return fmt.Sprintf("0x%x", uint64(e))
}

// EthBigInt represents a large integer whose zero value serializes to "0x0".
type EthBigInt big.Int

var EthBigIntZero = EthBigInt{Int: big.Zero().Int}

func (e EthBigInt) String() string {
	if e.Int == nil || e.Int.BitLen() == 0 {
		return "0x0"
	}
	return fmt.Sprintf("0x%x", e.Int)
}

func (e EthBigInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *EthBigInt) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	replaced := strings.Replace(s, "0x", "", -1)
	if len(replaced)%2 == 1 {
		replaced = "0" + replaced
	}

	i := new(mathbig.Int)
	if _, ok := i.SetString(replaced, 16); !ok && replaced != "" {
		return xerrors.Errorf("cannot parse %q as a hex big integer", s)
	}

	*e = EthBigInt(big.NewFromGo(i))
	return nil
}

// EthBytes represent arbitrary bytes. A nil or empty slice serializes to "0x".
type EthBytes []byte

func (e EthBytes) String() string {
	if len(e) == 0 {
		return "0x"
	}
	return "0x" + hex.EncodeToString(e)
}

func (e EthBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *EthBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	decoded, err := DecodeHexString(s)
	if err != nil {
		return err
	}

	*e = decoded
	return nil
}

// EthCall is the call object accepted by eth_call and eth_estimateGas.
type EthCall struct {
	From     *EthAddress `json:"from,omitempty"`
	To       *EthAddress `json:"to"`
	Gas      EthUint64   `json:"gas,omitempty"`
	GasPrice EthBigInt   `json:"gasPrice,omitempty"`
	Value    EthBigInt   `json:"value,omitempty"`
	Data     EthBytes    `json:"data"`
}

// MarshalJSON drops the zero-valued numeric fields so nodes apply their own
// defaults for gas and value.
func (c EthCall) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"to":   c.To,
		"data": c.Data,
	}
	if c.From != nil {
		out["from"] = c.From
	}
	if c.Gas != 0 {
		out["gas"] = c.Gas
	}
	if c.GasPrice.Int != nil && c.GasPrice.Int.Sign() > 0 {
		out["gasPrice"] = c.GasPrice
	}
	if c.Value.Int != nil && c.Value.Int.Sign() > 0 {
		out["value"] = c.Value
	}
	return json.Marshal(out)
}

func (c *EthCall) UnmarshalJSON(b []byte) error {
	type EthCallRaw EthCall // Avoid a recursive call.
	type EthCallDecode struct {
		// The field should be "input" by spec, but many clients use "data" so we support
		// both, but prefer "input".
		Input *EthBytes `json:"input"`
		EthCallRaw
	}

	var params EthCallDecode
	if err := json.Unmarshal(b, &params); err != nil {
		return err
	}

	// If input is specified, prefer it.
	if params.Input != nil {
		params.Data = *params.Input
	}

	*c = EthCall(params.EthCallRaw)
	return nil
}

type EthAddress [EthAddressLength]byte

// EthAddressFromPubKey returns the Ethereum address corresponding to an
// uncompressed secp256k1 public key.
func EthAddressFromPubKey(pubk []byte) ([]byte, error) {
	const pubKeyLen = 65
	if len(pubk) != pubKeyLen {
		return nil, xerrors.Errorf("public key should have %d in length, but got %d", pubKeyLen, len(pubk))
	}
	if pubk[0] != 0x04 {
		return nil, xerrors.Errorf("expected first byte of secp256k1 to be 0x04 (uncompressed)")
	}
	pubk = pubk[1:]

	// Calculate the Ethereum address based on the keccak hash of the pubkey.
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(pubk)
	ethAddr := hasher.Sum(nil)[12:]
	return ethAddr, nil
}

// ParseEthAddress parses an Ethereum address from a hex string.
func ParseEthAddress(s string) (EthAddress, error) {
	b, err := decodeHexString(s, EthAddressLength)
	if err != nil {
		return EthAddress{}, err
	}
	var h EthAddress
	copy(h[EthAddressLength-len(b):], b)
	return h, nil
}

// CastEthAddress interprets bytes as an EthAddress, performing some basic checks.
func CastEthAddress(b []byte) (EthAddress, error) {
	var a EthAddress
	if len(b) != EthAddressLength {
		return EthAddress{}, xerrors.Errorf("cannot parse bytes into an EthAddress: incorrect input length")
	}
	copy(a[:], b[:])
	return a, nil
}

func (ea EthAddress) String() string {
	return "0x" + hex.EncodeToString(ea[:])
}

// ChecksumString renders the address in mixed-case EIP-55 form.
func (ea EthAddress) ChecksumString() string {
	lower := hex.EncodeToString(ea[:])
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(lower))
	hash := hasher.Sum(nil)

	out := []byte(lower)
	for i := range out {
		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if out[i] >= 'a' && nibble&0xf >= 8 {
			out[i] -= 'a' - 'A'
		}
	}
	return "0x" + string(out)
}

func (ea EthAddress) IsZero() bool {
	return ea == EthAddress{}
}

func (ea EthAddress) MarshalJSON() ([]byte, error) {
	return json.Marshal(ea.String())
}

func (ea *EthAddress) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	addr, err := ParseEthAddress(s)
	if err != nil {
		return err
	}
	copy(ea[:], addr[:])
	return nil
}

func (ea EthAddress) MarshalText() ([]byte, error) {
	return []byte(ea.String()), nil
}

func (ea *EthAddress) UnmarshalText(b []byte) error {
	addr, err := ParseEthAddress(string(b))
	if err != nil {
		return err
	}
	copy(ea[:], addr[:])
	return nil
}

type EthHash [EthHashLength]byte

func (h EthHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *EthHash) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	hash, err := ParseEthHash(s)
	if err != nil {
		return err
	}
	copy(h[:], hash[:])
	return nil
}

func (h EthHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func decodeHexString(s string, expectedLen int) ([]byte, error) {
	s = handleHexStringPrefix(s)
	if len(s) != expectedLen*2 {
		return nil, xerrors.Errorf("expected hex string length sans prefix %d, got %d", expectedLen*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, xerrors.Errorf("cannot parse hex value: %w", err)
	}
	return b, nil
}

func DecodeHexString(s string) ([]byte, error) {
	s = handleHexStringPrefix(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, xerrors.Errorf("cannot parse hex value: %w", err)
	}
	return b, nil
}

func DecodeHexStringTrimSpace(s string) ([]byte, error) {
	return DecodeHexString(strings.TrimSpace(s))
}

func handleHexStringPrefix(s string) string {
	// Strip the leading 0x or 0X prefix since hex.DecodeString does not support it.
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	// Sometimes clients will omit a leading zero in a byte; pad so we can decode correctly.
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return s
}

func ParseEthHash(s string) (EthHash, error) {
	b, err := decodeHexString(s, EthHashLength)
	if err != nil {
		return EthHash{}, err
	}
	var h EthHash
	copy(h[EthHashLength-len(b):], b)
	return h, nil
}

func EthHashFromTxBytes(b []byte) EthHash {
	var ethHash EthHash
	copy(ethHash[:], Keccak256(b))
	return ethHash
}

// Keccak256 is the legacy (pre-NIST) keccak hash used throughout Ethereum.
func Keccak256(data ...[]byte) []byte {
	hasher := sha3.NewLegacyKeccak256()
	for _, d := range data {
		hasher.Write(d)
	}
	return hasher.Sum(nil)
}

type EthLog struct {
	Address          EthAddress `json:"address"`
	Data             EthBytes   `json:"data"`
	Topics           []EthHash  `json:"topics"`
	Removed          bool       `json:"removed"`
	LogIndex         EthUint64  `json:"logIndex"`
	TransactionIndex EthUint64  `json:"transactionIndex"`
	TransactionHash  EthHash    `json:"transactionHash"`
	BlockHash        EthHash    `json:"blockHash"`
	BlockNumber      EthUint64  `json:"blockNumber"`
}

type EthTxReceipt struct {
	TransactionHash   EthHash     `json:"transactionHash"`
	TransactionIndex  EthUint64   `json:"transactionIndex"`
	BlockHash         EthHash     `json:"blockHash"`
	BlockNumber       EthUint64   `json:"blockNumber"`
	From              EthAddress  `json:"from"`
	To                *EthAddress `json:"to"`
	Status            EthUint64   `json:"status"`
	ContractAddress   *EthAddress `json:"contractAddress"`
	CumulativeGasUsed EthUint64   `json:"cumulativeGasUsed"`
	GasUsed           EthUint64   `json:"gasUsed"`
	EffectiveGasPrice EthBigInt   `json:"effectiveGasPrice"`
	LogsBloom         EthBytes    `json:"logsBloom"`
	Logs              []EthLog    `json:"logs"`
	Type              EthUint64   `json:"type"`
}

const errorFunctionSelector = "\x08\xc3\x79\xa0" // Error(string)
const panicFunctionSelector = "\x4e\x48\x7b\x71" // Panic(uint256)

// panicErrorCodes maps Solidity panic codes to human-readable descriptions.
var panicErrorCodes = map[uint64]string{
	0x00: "Panic()",
	0x01: "Assert()",
	0x11: "ArithmeticOverflow()",
	0x12: "DivideByZero()",
	0x21: "InvalidEnumVariant()",
	0x22: "InvalidStorageArray()",
	0x31: "PopEmptyArray()",
	0x32: "ArrayIndexOutOfBounds()",
	0x41: "OutOfMemory()",
	0x51: "CalledUninitializedFunction()",
}

// ParseEthRevert decodes an Ethereum ABI-encoded revert reason.
// This handles both Error(string) and Panic(uint256) revert types.
//
// See https://docs.soliditylang.org/en/latest/control-structures.html#panic-via-assert-and-error-via-require
func ParseEthRevert(ret []byte) string {
	// If it's not long enough to contain an ABI encoded response, return immediately.
	if len(ret) < 4+32 {
		return EthBytes(ret).String()
	}
	switch string(ret[:4]) {
	case panicFunctionSelector:
		ret := ret[4 : 4+32]
		// Read and check the code.
		code, err := EthUint64FromBytes(ret)
		if err != nil {
			// If it's too big, just return the raw value.
			codeInt := big.PositiveFromUnsignedBytes(ret)
			return fmt.Sprintf("Panic(%s)", EthBigInt(codeInt).String())
		}
		if s, ok := panicErrorCodes[uint64(code)]; ok {
			return s
		}
		return fmt.Sprintf("Panic(0x%x)", uint64(code))
	case errorFunctionSelector:
		ret := ret[4:]
		retLen := EthUint64(len(ret))
		// Read and check the offset.
		offset, err := EthUint64FromBytes(ret[:32])
		if err != nil {
			break
		}
		if retLen < offset {
			break
		}

		// Read and check the length.
		if retLen-offset < 32 {
			break
		}
		start := offset + 32
		length, err := EthUint64FromBytes(ret[offset : offset+32])
		if err != nil {
			break
		}
		if retLen-start < length {
			break
		}
		// Slice the error message.
		return fmt.Sprintf("Error(%s)", ret[start:start+length])
	}
	return EthBytes(ret).String()
}

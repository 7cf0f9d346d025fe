// Package envelope implements the hybrid encryption used between a client
// and the off-chain worker. Requests are sealed to the worker's X25519 key,
// results to the client's reply key. Both use an ephemeral X25519 exchange,
// HKDF-SHA256 and AES-256-GCM.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/xerrors"

	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

const Version = 1

const (
	requestInfo = "nectar/request/v1"
	resultInfo  = "nectar/result/v1"
)

var ErrDecrypt = xerrors.New("envelope: message authentication failed")

// Aggregate is the routing hint for categorized queries.
type Aggregate struct {
	Type string `json:"type"`
}

// Envelope is the outer request message. Only Ciphertext is confidential;
// Version, RequestID, ReplyKey and PolicyIndexes are authenticated with it.
// CategorizeByDO and Aggregate are routing metadata for worker-side
// infrastructure and are neither encrypted nor authenticated.
type Envelope struct {
	Version       int               `json:"version"`
	RequestID     string            `json:"requestId"`
	EphemeralKey  ethtypes.EthBytes `json:"ephemeralKey"`
	ReplyKey      ethtypes.EthBytes `json:"replyKey"`
	Nonce         ethtypes.EthBytes `json:"nonce"`
	Ciphertext    ethtypes.EthBytes `json:"ciphertext"`
	PolicyIndexes []uint64          `json:"policyIndexes"`

	CategorizeByDO bool       `json:"categorizeByDO,omitempty"`
	Aggregate      *Aggregate `json:"aggregate,omitempty"`
}

func (e *Envelope) Marshal() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func Parse(raw string) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, xerrors.Errorf("parsing envelope: %w", err)
	}
	if e.Version != Version {
		return nil, xerrors.Errorf("unsupported envelope version %d", e.Version)
	}
	return &e, nil
}

// Routing is the unencrypted metadata merged into an envelope.
type Routing struct {
	CategorizeByDO bool
	AggregateType  string
}

func (r Routing) IsZero() bool {
	return !r.CategorizeByDO && r.AggregateType == ""
}

// WithRouting merges routing metadata into the outer JSON of a sealed
// envelope. Other fields are carried over untouched.
func WithRouting(raw string, r Routing) (string, error) {
	if r.IsZero() {
		return raw, nil
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &outer); err != nil {
		return "", xerrors.Errorf("parsing envelope: %w", err)
	}
	if r.CategorizeByDO {
		outer["categorizeByDO"] = json.RawMessage("true")
	}
	if r.AggregateType != "" {
		agg, err := json.Marshal(Aggregate{Type: r.AggregateType})
		if err != nil {
			return "", err
		}
		outer["aggregate"] = agg
	}
	b, err := json.Marshal(outer)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SealRequest encrypts plaintext to the worker key. The reply key travels
// with the envelope so the worker knows whom to encrypt the result to.
func SealRequest(workerKey, replyKey [32]byte, plaintext []byte, policyIndexes []uint64) (*Envelope, error) {
	if policyIndexes == nil {
		policyIndexes = []uint64{}
	}
	e := &Envelope{
		Version:       Version,
		RequestID:     uuid.NewString(),
		ReplyKey:      replyKey[:],
		PolicyIndexes: policyIndexes,
	}

	ephPub, gcm, err := senderCipher(workerKey, requestInfo)
	if err != nil {
		return nil, err
	}
	e.EphemeralKey = ephPub

	e.Nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, e.Nonce); err != nil {
		return nil, xerrors.Errorf("generating nonce: %w", err)
	}
	e.Ciphertext = gcm.Seal(nil, e.Nonce, plaintext, e.aad())
	return e, nil
}

// OpenRequest decrypts a request envelope with the worker's private key.
func OpenRequest(workerPriv [32]byte, raw string) (*Envelope, []byte, error) {
	e, err := Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := recipientCipher(workerPriv, e.EphemeralKey, requestInfo)
	if err != nil {
		return nil, nil, err
	}
	if len(e.Nonce) != gcm.NonceSize() {
		return nil, nil, xerrors.Errorf("invalid nonce length %d", len(e.Nonce))
	}
	pt, err := gcm.Open(nil, e.Nonce, e.Ciphertext, e.aad())
	if err != nil {
		return nil, nil, ErrDecrypt
	}
	return e, pt, nil
}

func (e *Envelope) aad() []byte {
	b, _ := json.Marshal(struct {
		Version       int               `json:"version"`
		RequestID     string            `json:"requestId"`
		ReplyKey      ethtypes.EthBytes `json:"replyKey"`
		PolicyIndexes []uint64          `json:"policyIndexes"`
	}{e.Version, e.RequestID, e.ReplyKey, e.PolicyIndexes})
	return b
}

// Result is a sealed query result.
type Result struct {
	Version      int               `json:"version"`
	EphemeralKey ethtypes.EthBytes `json:"ephemeralKey"`
	Nonce        ethtypes.EthBytes `json:"nonce"`
	Ciphertext   ethtypes.EthBytes `json:"ciphertext"`
}

// SealResult encrypts a result to a reply key.
func SealResult(replyKey [32]byte, plaintext []byte) ([]byte, error) {
	ephPub, gcm, err := senderCipher(replyKey, resultInfo)
	if err != nil {
		return nil, err
	}
	r := Result{Version: Version, EphemeralKey: ephPub}
	r.Nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, r.Nonce); err != nil {
		return nil, xerrors.Errorf("generating nonce: %w", err)
	}
	r.Ciphertext = gcm.Seal(nil, r.Nonce, plaintext, resultAAD(r.Version))
	return json.Marshal(r)
}

// ParseResult reports whether raw is a sealed result.
func ParseResult(raw []byte) (*Result, bool) {
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false
	}
	if r.Version != Version || len(r.EphemeralKey) != 32 || len(r.Ciphertext) == 0 {
		return nil, false
	}
	return &r, true
}

// OpenResult decrypts a sealed result with the reply private key.
func OpenResult(replyPriv [32]byte, raw []byte) ([]byte, error) {
	r, ok := ParseResult(raw)
	if !ok {
		return nil, xerrors.Errorf("not a sealed result")
	}
	gcm, err := recipientCipher(replyPriv, r.EphemeralKey, resultInfo)
	if err != nil {
		return nil, err
	}
	if len(r.Nonce) != gcm.NonceSize() {
		return nil, xerrors.Errorf("invalid nonce length %d", len(r.Nonce))
	}
	pt, err := gcm.Open(nil, r.Nonce, r.Ciphertext, resultAAD(r.Version))
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

func resultAAD(version int) []byte {
	return []byte{byte(version)}
}

// senderCipher runs the sender half of the key agreement with a fresh
// ephemeral key.
func senderCipher(recipient [32]byte, info string) ([]byte, cipher.AEAD, error) {
	ephPriv, ephPub, err := GenerateKey()
	if err != nil {
		return nil, nil, err
	}
	shared, err := curve25519.X25519(ephPriv[:], recipient[:])
	if err != nil {
		return nil, nil, xerrors.Errorf("key agreement: %w", err)
	}
	gcm, err := deriveCipher(shared, ephPub[:], recipient[:], info)
	if err != nil {
		return nil, nil, err
	}
	return ephPub[:], gcm, nil
}

func recipientCipher(priv [32]byte, ephPub []byte, info string) (cipher.AEAD, error) {
	if len(ephPub) != 32 {
		return nil, xerrors.Errorf("invalid ephemeral key length %d", len(ephPub))
	}
	shared, err := curve25519.X25519(priv[:], ephPub)
	if err != nil {
		return nil, xerrors.Errorf("key agreement: %w", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	return deriveCipher(shared, ephPub, pub, info)
}

func deriveCipher(shared, ephPub, recipientPub []byte, info string) (cipher.AEAD, error) {
	salt := append(append([]byte{}, ephPub...), recipientPub...)
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, []byte(info)), key); err != nil {
		return nil, xerrors.Errorf("deriving key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// GenerateKey returns a random X25519 key pair.
func GenerateKey() (priv, pub [32]byte, err error) {
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return priv, pub, xerrors.Errorf("generating key: %w", err)
	}
	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, err
	}
	copy(pub[:], p)
	return priv, pub, nil
}

// ParseKey decodes a hex encoded 32-byte X25519 key.
func ParseKey(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return out, xerrors.Errorf("decoding key: %w", err)
	}
	if len(b) != 32 {
		return out, xerrors.Errorf("key must be 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

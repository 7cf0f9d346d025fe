package wallet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/xerrors"

	gocrypto "github.com/filecoin-project/go-crypto"

	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

var log = logging.Logger("wallet")

var ErrKeyNotFound = xerrors.New("key not found")

const replyKeyInfo = "nectar/reply-key/v1"

// Wallet holds the secp256k1 account keys of a client in memory.
type Wallet struct {
	keys map[ethtypes.EthAddress]*Key

	lk sync.Mutex
}

func KeyWallet(keys ...*Key) *Wallet {
	m := make(map[ethtypes.EthAddress]*Key)
	for _, key := range keys {
		m[key.Address] = key
	}

	return &Wallet{
		keys: m,
	}
}

// SignTx signs a legacy transaction with the key of addr.
func (w *Wallet) SignTx(ctx context.Context, addr ethtypes.EthAddress, tx *ethtypes.EthLegacy155TxArgs) error {
	k, err := w.findKey(addr)
	if err != nil {
		return err
	}
	if err := tx.Sign(k.PrivateKey); err != nil {
		return xerrors.Errorf("signing using key '%s': %w", addr, err)
	}
	return nil
}

// ReplyKey returns the X25519 reply key pair of addr.
func (w *Wallet) ReplyKey(addr ethtypes.EthAddress) (priv, pub [32]byte, err error) {
	k, err := w.findKey(addr)
	if err != nil {
		return priv, pub, err
	}
	return k.ReplyKey()
}

func (w *Wallet) HasKey(addr ethtypes.EthAddress) bool {
	_, err := w.findKey(addr)
	return err == nil
}

func (w *Wallet) Import(k *Key) ethtypes.EthAddress {
	w.lk.Lock()
	defer w.lk.Unlock()

	w.keys[k.Address] = k
	return k.Address
}

func (w *Wallet) ListAddrs() []ethtypes.EthAddress {
	w.lk.Lock()
	defer w.lk.Unlock()

	out := make([]ethtypes.EthAddress, 0, len(w.keys))
	for a := range w.keys {
		out = append(out, a)
	}
	return out
}

func (w *Wallet) findKey(addr ethtypes.EthAddress) (*Key, error) {
	w.lk.Lock()
	defer w.lk.Unlock()

	k, ok := w.keys[addr]
	if !ok {
		log.Warnw("key lookup failed", "address", addr)
		return nil, xerrors.Errorf("%s: %w", addr, ErrKeyNotFound)
	}
	return k, nil
}

type Key struct {
	PrivateKey []byte

	PublicKey []byte
	Address   ethtypes.EthAddress
}

func GenerateKey() (*Key, error) {
	pk, err := gocrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewKey(pk)
}

// ParseKey parses a hex encoded private key, with or without 0x prefix.
func ParseKey(s string) (*Key, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, xerrors.Errorf("decoding private key: %w", err)
	}
	return NewKey(b)
}

func NewKey(priv []byte) (*Key, error) {
	if len(priv) != 32 {
		return nil, xerrors.Errorf("secp256k1 private key must be 32 bytes, got %d", len(priv))
	}
	k := &Key{
		PrivateKey: append([]byte(nil), priv...),
	}

	k.PublicKey = gocrypto.PublicKey(k.PrivateKey)
	a, err := ethtypes.EthAddressFromPubKey(k.PublicKey)
	if err != nil {
		return nil, xerrors.Errorf("converting public key to address: %w", err)
	}
	if k.Address, err = ethtypes.CastEthAddress(a); err != nil {
		return nil, err
	}
	return k, nil
}

// ReplyKey derives the X25519 key pair results are encrypted to. It is a
// deterministic function of the account key.
func (k *Key) ReplyKey() (priv, pub [32]byte, err error) {
	r := hkdf.New(sha256.New, k.PrivateKey, k.Address[:], []byte(replyKeyInfo))
	if _, err := io.ReadFull(r, priv[:]); err != nil {
		return priv, pub, xerrors.Errorf("deriving reply key: %w", err)
	}
	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, xerrors.Errorf("deriving reply public key: %w", err)
	}
	copy(pub[:], p)
	return priv, pub, nil
}

package querymgr

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"github.com/nlpodyssey/gopickle/pickle"
	"golang.org/x/xerrors"

	"github.com/nectarprotocol/nectar-go/lib/envelope"
)

// Decoder turns a result payload into a Go value.
type Decoder struct {
	replyPriv [32]byte
}

func NewDecoder(replyPriv [32]byte) *Decoder {
	return &Decoder{replyPriv: replyPriv}
}

// DecodeResult opens a sealed result with the reply key, or takes the
// payload as plaintext when it is not sealed, and normalizes it.
func (d *Decoder) DecodeResult(raw []byte) (interface{}, error) {
	pt := raw
	if _, ok := envelope.ParseResult(raw); ok {
		var err error
		pt, err = envelope.OpenResult(d.replyPriv, raw)
		if err != nil {
			return nil, xerrors.Errorf("opening query result: %w", err)
		}
	}
	return Normalize(pt), nil
}

// Normalize decodes a plaintext result, trying in order: JSON, UTF-8 text,
// a legacy pickled value. Anything else is returned as raw bytes.
func Normalize(pt []byte) interface{} {
	if utf8.Valid(pt) {
		var v interface{}
		dec := json.NewDecoder(bytes.NewReader(pt))
		if err := dec.Decode(&v); err == nil && !dec.More() {
			return v
		}
		return string(pt)
	}

	v, err := loadPickle(pt)
	if err == nil {
		return v
	}
	log.Debugw("result is neither text nor pickle", "error", err, "size", len(pt))
	return pt
}

// loadPickle unpickles pt. The unpickler panics on unknown opcodes, which is
// reported as an error.
func loadPickle(pt []byte) (v interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, xerrors.Errorf("pickle: %v", r)
		}
	}()
	return pickle.Loads(string(pt))
}

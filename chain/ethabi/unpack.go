package ethabi

import (
	mathbig "math/big"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

// maxDecodeLength bounds lengths read from untrusted return data.
const maxDecodeLength = 1 << 24

// Decode decodes ABI data holding a tuple of the given types. Integers
// decode to big.Int, addresses to ethtypes.EthAddress, fixed bytes and bytes
// to []byte, strings to string, arrays and tuples to []interface{}.
func Decode(types []Type, data []byte) ([]interface{}, error) {
	out := make([]interface{}, len(types))
	pos := 0
	for i, t := range types {
		if t.IsDynamic() {
			off, err := readLength(data, pos)
			if err != nil {
				return nil, xerrors.Errorf("value %d offset: %w", i, err)
			}
			if off > len(data) {
				return nil, xerrors.Errorf("value %d offset %d out of range", i, off)
			}
			v, err := decodeValue(t, data[off:])
			if err != nil {
				return nil, xerrors.Errorf("value %d (%s): %w", i, t, err)
			}
			out[i] = v
		} else {
			if pos+t.headSize() > len(data) {
				return nil, xerrors.Errorf("value %d (%s): data too short", i, t)
			}
			v, err := decodeValue(t, data[pos:])
			if err != nil {
				return nil, xerrors.Errorf("value %d (%s): %w", i, t, err)
			}
			out[i] = v
		}
		pos += t.headSize()
	}
	return out, nil
}

func decodeValue(t Type, data []byte) (interface{}, error) {
	switch t.Kind {
	case UintKind, IntKind:
		if len(data) < 32 {
			return nil, xerrors.Errorf("data too short")
		}
		i := new(mathbig.Int).SetBytes(data[:32])
		if t.Kind == IntKind && i.Cmp(tt255) >= 0 {
			i.Sub(i, tt256)
		}
		return big.NewFromGo(i), nil
	case AddressKind:
		if len(data) < 32 {
			return nil, xerrors.Errorf("data too short")
		}
		return ethtypes.CastEthAddress(data[12:32])
	case BoolKind:
		if len(data) < 32 {
			return nil, xerrors.Errorf("data too short")
		}
		for _, b := range data[:31] {
			if b != 0 {
				return nil, xerrors.Errorf("invalid bool encoding")
			}
		}
		switch data[31] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return nil, xerrors.Errorf("invalid bool encoding")
	case FixedBytesKind:
		if len(data) < 32 {
			return nil, xerrors.Errorf("data too short")
		}
		out := make([]byte, t.Size)
		copy(out, data[:t.Size])
		return out, nil
	case BytesKind, StringKind:
		n, err := readLength(data, 0)
		if err != nil {
			return nil, err
		}
		if 32+n > len(data) {
			return nil, xerrors.Errorf("length %d exceeds data", n)
		}
		b := make([]byte, n)
		copy(b, data[32:32+n])
		if t.Kind == StringKind {
			return string(b), nil
		}
		return b, nil
	case SliceKind:
		n, err := readLength(data, 0)
		if err != nil {
			return nil, err
		}
		if n*t.Elem.headSize() > len(data)-32 {
			return nil, xerrors.Errorf("array length %d exceeds data", n)
		}
		return Decode(repeat(*t.Elem, n), data[32:])
	case ArrayKind:
		return Decode(repeat(*t.Elem, t.Size), data)
	case TupleKind:
		return Decode(argTypes(t.Components), data)
	}
	return nil, xerrors.Errorf("cannot decode type %s", t)
}

func readLength(data []byte, pos int) (int, error) {
	if pos < 0 || pos+32 > len(data) {
		return 0, xerrors.Errorf("data too short")
	}
	i := new(mathbig.Int).SetBytes(data[pos : pos+32])
	if !i.IsInt64() || i.Int64() > maxDecodeLength {
		return 0, xerrors.Errorf("length %s too large", i)
	}
	return int(i.Int64()), nil
}

func repeat(t Type, n int) []Type {
	out := make([]Type, n)
	for i := range out {
		out[i] = t
	}
	return out
}

package ethabi

import (
	mathbig "math/big"
	"reflect"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

var (
	tt256   = new(mathbig.Int).Lsh(mathbig.NewInt(1), 256)
	tt255   = new(mathbig.Int).Lsh(mathbig.NewInt(1), 255)
	maxWord = new(mathbig.Int).Sub(tt256, mathbig.NewInt(1))
)

// Encode ABI-encodes values as a tuple of the given types.
func Encode(types []Type, values []interface{}) ([]byte, error) {
	if len(types) != len(values) {
		return nil, xerrors.Errorf("expected %d values, got %d", len(types), len(values))
	}

	headLen := 0
	for _, t := range types {
		headLen += t.headSize()
	}

	var head, tail []byte
	for i, t := range types {
		enc, err := encodeValue(t, values[i])
		if err != nil {
			return nil, xerrors.Errorf("argument %d (%s): %w", i, t, err)
		}
		if t.IsDynamic() {
			head = append(head, word(mathbig.NewInt(int64(headLen+len(tail))))...)
			tail = append(tail, enc...)
		} else {
			head = append(head, enc...)
		}
	}
	return append(head, tail...), nil
}

func encodeValue(t Type, v interface{}) ([]byte, error) {
	switch t.Kind {
	case UintKind, IntKind:
		i, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		return encodeInt(t, i)
	case AddressKind:
		a, err := toAddress(v)
		if err != nil {
			return nil, err
		}
		return leftPad(a[:]), nil
	case BoolKind:
		b, ok := v.(bool)
		if !ok {
			return nil, xerrors.Errorf("expected bool, got %T", v)
		}
		if b {
			return word(mathbig.NewInt(1)), nil
		}
		return word(mathbig.NewInt(0)), nil
	case FixedBytesKind:
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		if len(b) > t.Size {
			return nil, xerrors.Errorf("%d bytes do not fit in bytes%d", len(b), t.Size)
		}
		return rightPad(b), nil
	case BytesKind, StringKind:
		var b []byte
		if s, ok := v.(string); ok {
			b = []byte(s)
		} else {
			var err error
			if b, err = toBytes(v); err != nil {
				return nil, err
			}
		}
		out := word(mathbig.NewInt(int64(len(b))))
		if len(b) > 0 {
			out = append(out, rightPad(b)...)
		}
		return out, nil
	case SliceKind, ArrayKind:
		items, err := toSlice(v)
		if err != nil {
			return nil, err
		}
		if t.Kind == ArrayKind && len(items) != t.Size {
			return nil, xerrors.Errorf("expected %d elements, got %d", t.Size, len(items))
		}
		types := make([]Type, len(items))
		for i := range types {
			types[i] = *t.Elem
		}
		enc, err := Encode(types, items)
		if err != nil {
			return nil, err
		}
		if t.Kind == SliceKind {
			return append(word(mathbig.NewInt(int64(len(items)))), enc...), nil
		}
		return enc, nil
	case TupleKind:
		items, err := toSlice(v)
		if err != nil {
			return nil, err
		}
		return Encode(argTypes(t.Components), items)
	}
	return nil, xerrors.Errorf("cannot encode type %s", t)
}

func encodeInt(t Type, i *mathbig.Int) ([]byte, error) {
	if t.Kind == UintKind {
		if i.Sign() < 0 {
			return nil, xerrors.Errorf("negative value %s for %s", i, t)
		}
		if i.BitLen() > t.Size {
			return nil, xerrors.Errorf("value %s overflows %s", i, t)
		}
		return word(i), nil
	}

	limit := new(mathbig.Int).Lsh(mathbig.NewInt(1), uint(t.Size-1))
	if i.Cmp(limit) >= 0 || i.Cmp(new(mathbig.Int).Neg(limit)) < 0 {
		return nil, xerrors.Errorf("value %s overflows %s", i, t)
	}
	if i.Sign() < 0 {
		// two's complement
		return word(new(mathbig.Int).And(new(mathbig.Int).Add(tt256, i), maxWord)), nil
	}
	return word(i), nil
}

func word(i *mathbig.Int) []byte {
	out := make([]byte, 32)
	b := i.Bytes()
	copy(out[32-len(b):], b)
	return out
}

func leftPad(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func rightPad(b []byte) []byte {
	n := (len(b) + 31) / 32 * 32
	out := make([]byte, n)
	copy(out, b)
	return out
}

func toBigInt(v interface{}) (*mathbig.Int, error) {
	switch x := v.(type) {
	case big.Int:
		if x.Int == nil {
			return new(mathbig.Int), nil
		}
		return x.Int, nil
	case *big.Int:
		if x == nil || x.Int == nil {
			return new(mathbig.Int), nil
		}
		return x.Int, nil
	case *mathbig.Int:
		if x == nil {
			return new(mathbig.Int), nil
		}
		return x, nil
	case mathbig.Int:
		return &x, nil
	case ethtypes.EthUint64:
		return new(mathbig.Int).SetUint64(uint64(x)), nil
	case ethtypes.EthBigInt:
		if x.Int == nil {
			return new(mathbig.Int), nil
		}
		return x.Int, nil
	case int:
		return mathbig.NewInt(int64(x)), nil
	case int8:
		return mathbig.NewInt(int64(x)), nil
	case int16:
		return mathbig.NewInt(int64(x)), nil
	case int32:
		return mathbig.NewInt(int64(x)), nil
	case int64:
		return mathbig.NewInt(x), nil
	case uint:
		return new(mathbig.Int).SetUint64(uint64(x)), nil
	case uint8:
		return new(mathbig.Int).SetUint64(uint64(x)), nil
	case uint16:
		return new(mathbig.Int).SetUint64(uint64(x)), nil
	case uint32:
		return new(mathbig.Int).SetUint64(uint64(x)), nil
	case uint64:
		return new(mathbig.Int).SetUint64(x), nil
	}
	return nil, xerrors.Errorf("expected an integer, got %T", v)
}

func toAddress(v interface{}) (ethtypes.EthAddress, error) {
	switch x := v.(type) {
	case ethtypes.EthAddress:
		return x, nil
	case *ethtypes.EthAddress:
		if x == nil {
			return ethtypes.EthAddress{}, xerrors.Errorf("nil address")
		}
		return *x, nil
	case string:
		return ethtypes.ParseEthAddress(x)
	}
	return ethtypes.EthAddress{}, xerrors.Errorf("expected an address, got %T", v)
}

func toBytes(v interface{}) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case ethtypes.EthBytes:
		return x, nil
	case ethtypes.EthHash:
		return x[:], nil
	case [32]byte:
		return x[:], nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		out := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(out), rv)
		return out, nil
	}
	return nil, xerrors.Errorf("expected bytes, got %T", v)
}

func toSlice(v interface{}) ([]interface{}, error) {
	if items, ok := v.([]interface{}); ok {
		return items, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, xerrors.Errorf("expected a slice, got %T", v)
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

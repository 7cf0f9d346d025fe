package ethabi

import (
	mathbig "math/big"
	"reflect"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

// The As* helpers convert decoded values into concrete Go types. They also
// accept the natively typed values a simulated ledger hands back.

func AsBigInt(v interface{}) (big.Int, error) {
	i, err := toBigInt(v)
	if err != nil {
		return big.Int{}, err
	}
	return big.NewFromGo(new(mathbig.Int).Set(i)), nil
}

func AsUint64(v interface{}) (uint64, error) {
	i, err := toBigInt(v)
	if err != nil {
		return 0, err
	}
	if !i.IsUint64() {
		return 0, xerrors.Errorf("value %s does not fit in uint64", i)
	}
	return i.Uint64(), nil
}

func AsString(v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}
	return "", xerrors.Errorf("expected string, got %T", v)
}

func AsBool(v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, xerrors.Errorf("expected bool, got %T", v)
	}
	return b, nil
}

func AsAddress(v interface{}) (ethtypes.EthAddress, error) {
	return toAddress(v)
}

// AsTuple unwraps a struct return value. A method with a single tuple
// output decodes to a one-element list holding the tuple.
func AsTuple(v interface{}) ([]interface{}, error) {
	items, err := toSlice(v)
	if err != nil {
		return nil, err
	}
	if len(items) == 1 {
		if inner, ok := items[0].([]interface{}); ok {
			return inner, nil
		}
	}
	return items, nil
}

func AsStrings(v interface{}) ([]string, error) {
	if s, ok := v.([]string); ok {
		return s, nil
	}
	items, err := toSlice(v)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, it := range items {
		if out[i], err = AsString(it); err != nil {
			return nil, xerrors.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

func AsBigInts(v interface{}) ([]big.Int, error) {
	if s, ok := v.([]big.Int); ok {
		return s, nil
	}
	items, err := toSlice(v)
	if err != nil {
		return nil, err
	}
	out := make([]big.Int, len(items))
	for i, it := range items {
		if out[i], err = AsBigInt(it); err != nil {
			return nil, xerrors.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

func AsAddresses(v interface{}) ([]ethtypes.EthAddress, error) {
	if s, ok := v.([]ethtypes.EthAddress); ok {
		return s, nil
	}
	items, err := toSlice(v)
	if err != nil {
		return nil, err
	}
	out := make([]ethtypes.EthAddress, len(items))
	for i, it := range items {
		if out[i], err = AsAddress(it); err != nil {
			return nil, xerrors.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

func AsBools(v interface{}) ([]bool, error) {
	if s, ok := v.([]bool); ok {
		return s, nil
	}
	items, err := toSlice(v)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(items))
	for i, it := range items {
		if out[i], err = AsBool(it); err != nil {
			return nil, xerrors.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

// Len returns the length of a decoded list value, or -1.
func Len(v interface{}) int {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return rv.Len()
	}
	return -1
}

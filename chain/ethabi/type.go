package ethabi

import (
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

type Kind int

const (
	UintKind Kind = iota
	IntKind
	AddressKind
	BoolKind
	FixedBytesKind
	BytesKind
	StringKind
	SliceKind
	ArrayKind
	TupleKind
)

// Type is a parsed Solidity ABI type.
type Type struct {
	Kind Kind
	// Size is the bit width for integers, the length for fixed bytes and
	// the element count for fixed arrays.
	Size int
	Elem *Type
	// Components are the fields of a tuple.
	Components []Argument
}

// Argument is a named, typed method input or output.
type Argument struct {
	Name string
	Type Type
}

// ParseType parses a canonical Solidity type string. Tuples take their
// fields from components.
func ParseType(s string, components []Argument) (Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Type{}, xerrors.Errorf("empty abi type")
	}

	if strings.HasSuffix(s, "]") {
		open := strings.LastIndex(s, "[")
		if open < 0 {
			return Type{}, xerrors.Errorf("invalid abi type %q: unbalanced brackets", s)
		}
		elem, err := ParseType(s[:open], components)
		if err != nil {
			return Type{}, err
		}
		dim := s[open+1 : len(s)-1]
		if dim == "" {
			return Type{Kind: SliceKind, Elem: &elem}, nil
		}
		n, err := strconv.Atoi(dim)
		if err != nil || n <= 0 {
			return Type{}, xerrors.Errorf("invalid abi type %q: bad array length", s)
		}
		return Type{Kind: ArrayKind, Size: n, Elem: &elem}, nil
	}

	switch {
	case s == "address":
		return Type{Kind: AddressKind, Size: 160}, nil
	case s == "bool":
		return Type{Kind: BoolKind}, nil
	case s == "string":
		return Type{Kind: StringKind}, nil
	case s == "bytes":
		return Type{Kind: BytesKind}, nil
	case s == "tuple":
		if len(components) == 0 {
			return Type{}, xerrors.Errorf("tuple type without components")
		}
		return Type{Kind: TupleKind, Components: components}, nil
	case strings.HasPrefix(s, "uint"):
		size, err := parseBits(s, "uint")
		if err != nil {
			return Type{}, err
		}
		return Type{Kind: UintKind, Size: size}, nil
	case strings.HasPrefix(s, "int"):
		size, err := parseBits(s, "int")
		if err != nil {
			return Type{}, err
		}
		return Type{Kind: IntKind, Size: size}, nil
	case strings.HasPrefix(s, "bytes"):
		n, err := strconv.Atoi(s[len("bytes"):])
		if err != nil || n < 1 || n > 32 {
			return Type{}, xerrors.Errorf("invalid abi type %q", s)
		}
		return Type{Kind: FixedBytesKind, Size: n}, nil
	}
	return Type{}, xerrors.Errorf("unsupported abi type %q", s)
}

// MustParseType is for package-level type tables.
func MustParseType(s string) Type {
	t, err := ParseType(s, nil)
	if err != nil {
		panic(err)
	}
	return t
}

func parseBits(s, prefix string) (int, error) {
	rest := s[len(prefix):]
	if rest == "" {
		return 256, nil
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 8 || n > 256 || n%8 != 0 {
		return 0, xerrors.Errorf("invalid abi type %q", s)
	}
	return n, nil
}

// String returns the canonical form used in signatures.
func (t Type) String() string {
	switch t.Kind {
	case UintKind:
		return "uint" + strconv.Itoa(t.Size)
	case IntKind:
		return "int" + strconv.Itoa(t.Size)
	case AddressKind:
		return "address"
	case BoolKind:
		return "bool"
	case FixedBytesKind:
		return "bytes" + strconv.Itoa(t.Size)
	case BytesKind:
		return "bytes"
	case StringKind:
		return "string"
	case SliceKind:
		return t.Elem.String() + "[]"
	case ArrayKind:
		return t.Elem.String() + "[" + strconv.Itoa(t.Size) + "]"
	case TupleKind:
		parts := make([]string, len(t.Components))
		for i, c := range t.Components {
			parts[i] = c.Type.String()
		}
		return "(" + strings.Join(parts, ",") + ")"
	}
	return "unknown"
}

// IsDynamic reports whether values of the type are encoded out of line.
func (t Type) IsDynamic() bool {
	switch t.Kind {
	case BytesKind, StringKind, SliceKind:
		return true
	case ArrayKind:
		return t.Elem.IsDynamic()
	case TupleKind:
		for _, c := range t.Components {
			if c.Type.IsDynamic() {
				return true
			}
		}
	}
	return false
}

// headSize is the number of bytes the type occupies in the head section.
func (t Type) headSize() int {
	if t.IsDynamic() {
		return 32
	}
	switch t.Kind {
	case ArrayKind:
		return t.Size * t.Elem.headSize()
	case TupleKind:
		n := 0
		for _, c := range t.Components {
			n += c.Type.headSize()
		}
		return n
	}
	return 32
}

func argTypes(args []Argument) []Type {
	out := make([]Type, len(args))
	for i, a := range args {
		out[i] = a.Type
	}
	return out
}

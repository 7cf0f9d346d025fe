package ethabi

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/xerrors"

	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

// Method is a contract function.
type Method struct {
	Name            string
	Inputs          []Argument
	Outputs         []Argument
	StateMutability string

	// Sig is the canonical signature, e.g. "approve(address,uint256)".
	Sig      string
	Selector [4]byte
}

// IsConstant reports whether the method can be invoked with eth_call only.
func (m *Method) IsConstant() bool {
	return m.StateMutability == "view" || m.StateMutability == "pure"
}

// Pack encodes a call to the method.
func (m *Method) Pack(args ...interface{}) ([]byte, error) {
	if len(args) != len(m.Inputs) {
		return nil, xerrors.Errorf("%s: expected %d arguments, got %d", m.Name, len(m.Inputs), len(args))
	}
	enc, err := Encode(argTypes(m.Inputs), args)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", m.Name, err)
	}
	return append(m.Selector[:], enc...), nil
}

// Unpack decodes the return data of the method.
func (m *Method) Unpack(data []byte) ([]interface{}, error) {
	if len(m.Outputs) == 0 {
		return nil, nil
	}
	out, err := Decode(argTypes(m.Outputs), data)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", m.Name, err)
	}
	return out, nil
}

// UnpackInputs decodes calldata produced by Pack.
func (m *Method) UnpackInputs(data []byte) ([]interface{}, error) {
	if len(data) < 4 || [4]byte(data[:4]) != m.Selector {
		return nil, xerrors.Errorf("%s: calldata does not start with selector %x", m.Name, m.Selector)
	}
	if len(m.Inputs) == 0 {
		return nil, nil
	}
	in, err := Decode(argTypes(m.Inputs), data[4:])
	if err != nil {
		return nil, xerrors.Errorf("%s inputs: %w", m.Name, err)
	}
	return in, nil
}

// PackOutputs encodes return values of the method.
func (m *Method) PackOutputs(values ...interface{}) ([]byte, error) {
	if len(values) != len(m.Outputs) {
		return nil, xerrors.Errorf("%s: expected %d return values, got %d", m.Name, len(m.Outputs), len(values))
	}
	out, err := Encode(argTypes(m.Outputs), values)
	if err != nil {
		return nil, xerrors.Errorf("%s outputs: %w", m.Name, err)
	}
	return out, nil
}

// OutputIndex returns the position of the named output, or -1.
func (m *Method) OutputIndex(name string) int {
	for i, o := range m.Outputs {
		if o.Name == name {
			return i
		}
	}
	if len(m.Outputs) == 1 && m.Outputs[0].Type.Kind == TupleKind {
		for i, c := range m.Outputs[0].Type.Components {
			if c.Name == name {
				return i
			}
		}
	}
	return -1
}

// ErrorDef is a custom Solidity error.
type ErrorDef struct {
	Name     string
	Inputs   []Argument
	Sig      string
	Selector [4]byte
}

type ABI struct {
	Methods map[string]*Method
	Errors  map[[4]byte]*ErrorDef
}

// Method returns the named method.
func (a *ABI) Method(name string) (*Method, bool) {
	if a == nil {
		return nil, false
	}
	m, ok := a.Methods[name]
	return m, ok
}

// MethodBySelector returns the method a calldata selector refers to.
func (a *ABI) MethodBySelector(sel [4]byte) (*Method, bool) {
	if a == nil {
		return nil, false
	}
	for _, m := range a.Methods {
		if m.Selector == sel {
			return m, true
		}
	}
	return nil, false
}

// PackError encodes revert data for the named custom error.
func (a *ABI) PackError(name string, args ...interface{}) ([]byte, error) {
	for _, e := range a.Errors {
		if e.Name != name {
			continue
		}
		enc, err := Encode(argTypes(e.Inputs), args)
		if err != nil {
			return nil, xerrors.Errorf("%s: %w", name, err)
		}
		return append(e.Selector[:], enc...), nil
	}
	return nil, xerrors.Errorf("unknown error %s", name)
}

// HasMethod reports whether the ABI exposes the named method, optionally
// with exactly the given number of inputs (pass -1 to ignore arity).
func (a *ABI) HasMethod(name string, inputs int) bool {
	m, ok := a.Method(name)
	if !ok {
		return false
	}
	return inputs < 0 || len(m.Inputs) == inputs
}

// DecodeRevert renders revert data as "Name(args)" using the ABI's custom
// errors, falling back to Error(string) / Panic(uint256) decoding.
func (a *ABI) DecodeRevert(data []byte) string {
	if a != nil && len(data) >= 4 {
		var sel [4]byte
		copy(sel[:], data[:4])
		if e, ok := a.Errors[sel]; ok {
			vals, err := Decode(argTypes(e.Inputs), data[4:])
			if err != nil || len(vals) == 0 {
				return e.Name
			}
			parts := make([]string, len(vals))
			for i, v := range vals {
				parts[i] = fmt.Sprint(v)
			}
			return e.Name + "(" + strings.Join(parts, ",") + ")"
		}
	}
	return ethtypes.ParseEthRevert(data)
}

type jsonArgument struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Components []jsonArgument `json:"components,omitempty"`
}

type jsonEntry struct {
	Type            string         `json:"type"`
	Name            string         `json:"name"`
	Inputs          []jsonArgument `json:"inputs"`
	Outputs         []jsonArgument `json:"outputs"`
	StateMutability string         `json:"stateMutability"`
	Constant        bool           `json:"constant"`
}

// JSON parses a contract ABI. Both the bare ABI array and build artifacts
// of the form {"abi": [...]} are accepted.
func JSON(r io.Reader) (*ABI, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseJSON(raw)
}

func ParseJSON(raw []byte) (*ABI, error) {
	var entries []jsonEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		var artifact struct {
			ABI []jsonEntry `json:"abi"`
		}
		if err2 := json.Unmarshal(raw, &artifact); err2 != nil || artifact.ABI == nil {
			return nil, xerrors.Errorf("parsing abi json: %w", err)
		}
		entries = artifact.ABI
	}

	out := &ABI{
		Methods: make(map[string]*Method),
		Errors:  make(map[[4]byte]*ErrorDef),
	}
	for _, e := range entries {
		inputs, err := parseArguments(e.Inputs)
		if err != nil {
			return nil, xerrors.Errorf("%s inputs: %w", e.Name, err)
		}
		switch e.Type {
		case "function", "":
			if _, dup := out.Methods[e.Name]; dup {
				return nil, xerrors.Errorf("overloaded method %s is not supported", e.Name)
			}
			outputs, err := parseArguments(e.Outputs)
			if err != nil {
				return nil, xerrors.Errorf("%s outputs: %w", e.Name, err)
			}
			mut := e.StateMutability
			if mut == "" && e.Constant {
				mut = "view"
			}
			out.Methods[e.Name] = NewMethod(e.Name, mut, inputs, outputs)
		case "error":
			sig := signature(e.Name, inputs)
			var sel [4]byte
			copy(sel[:], ethtypes.Keccak256([]byte(sig)))
			out.Errors[sel] = &ErrorDef{Name: e.Name, Inputs: inputs, Sig: sig, Selector: sel}
		}
	}
	return out, nil
}

// NewMethod builds a method and computes its selector.
func NewMethod(name, mutability string, inputs, outputs []Argument) *Method {
	sig := signature(name, inputs)
	m := &Method{
		Name:            name,
		Inputs:          inputs,
		Outputs:         outputs,
		StateMutability: mutability,
		Sig:             sig,
	}
	copy(m.Selector[:], ethtypes.Keccak256([]byte(sig)))
	return m
}

func signature(name string, args []Argument) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Type.String()
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}

func parseArguments(in []jsonArgument) ([]Argument, error) {
	out := make([]Argument, 0, len(in))
	for _, a := range in {
		var comps []Argument
		if len(a.Components) > 0 {
			c, err := parseArguments(a.Components)
			if err != nil {
				return nil, err
			}
			comps = c
		}
		t, err := ParseType(a.Type, comps)
		if err != nil {
			return nil, err
		}
		out = append(out, Argument{Name: a.Name, Type: t})
	}
	return out, nil
}

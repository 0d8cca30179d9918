package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SigSpec declares one function signature for calldata matching. Decode
// enables argument decoding and is limited to flat (non-tuple) parameter
// lists; tuple-heavy signatures are matched by selector only.
type SigSpec struct {
	Sig    string
	Decode bool
}

// ParsedCall is the outcome of matching calldata against a signature set.
type ParsedCall struct {
	Name string
	Sig  string
	Args []any
}

type signature struct {
	name   string
	sig    string
	args   abi.Arguments
	decode bool
}

// SignatureSet matches transaction input against a fixed set of function
// signatures by 4-byte selector.
type SignatureSet struct {
	bySelector map[[4]byte]*signature
}

// NewSignatureSet compiles the specs. Unparseable specs are an error so a
// bad signature never silently stops matching.
func NewSignatureSet(specs []SigSpec) (*SignatureSet, error) {
	set := &SignatureSet{bySelector: make(map[[4]byte]*signature)}
	for _, spec := range specs {
		name, argTypes, err := splitSig(spec.Sig)
		if err != nil {
			return nil, err
		}
		entry := &signature{name: name, sig: spec.Sig, decode: spec.Decode}
		if spec.Decode {
			for _, t := range argTypes {
				typ, err := abi.NewType(t, "", nil)
				if err != nil {
					return nil, fmt.Errorf("bad type %q in %q: %w", t, spec.Sig, err)
				}
				entry.args = append(entry.args, abi.Argument{Type: typ})
			}
		}
		var sel [4]byte
		copy(sel[:], crypto.Keccak256([]byte(spec.Sig))[:4])
		set.bySelector[sel] = entry
	}
	return set, nil
}

// splitSig separates "name(type,type)" into its parts. Nested parentheses
// (tuples) are allowed but the types are not split further.
func splitSig(sig string) (string, []string, error) {
	open := strings.IndexByte(sig, '(')
	if open <= 0 || !strings.HasSuffix(sig, ")") {
		return "", nil, fmt.Errorf("malformed signature %q", sig)
	}
	name := sig[:open]
	inner := sig[open+1 : len(sig)-1]
	if inner == "" {
		return name, nil, nil
	}
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, inner[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, inner[start:])
	return name, parts, nil
}

// Parse matches hex calldata against the set. Returns false for empty
// input, unknown selectors or undecodable arguments.
func (s *SignatureSet) Parse(input string) (*ParsedCall, bool) {
	data, err := hexutil.Decode(input)
	if err != nil || len(data) < 4 {
		return nil, false
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	entry, ok := s.bySelector[sel]
	if !ok {
		return nil, false
	}
	call := &ParsedCall{Name: entry.name, Sig: entry.sig}
	if entry.decode {
		args, err := entry.args.Unpack(data[4:])
		if err != nil {
			return nil, false
		}
		call.Args = args
	}
	return call, true
}

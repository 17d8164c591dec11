// Package ptb validates the shape of a serialized programmable transaction
// block. A valid block carries exactly one move call to an approve function,
// whose leading pure inputs are the identities the caller wants keys for.
// Parsing is pure and total: any byte string yields either a ValidPtb or a
// typed error, never a panic and never a network call.
package ptb

import (
	"fmt"
	"strings"

	"github.com/CatastropheArena/Catastrophe-Genesis/bcs"
	"github.com/CatastropheArena/Catastrophe-Genesis/core"
)

// ApproveFunctionPrefix is the recognized access-check function family.
const ApproveFunctionPrefix = "seal_approve"

// maxTypeTagDepth bounds recursion while skipping type arguments.
const maxTypeTagDepth = 8

const maxIdentifierLength = 128

// callArg is a decoded transaction input; only pure inputs carry identity
// bytes, object inputs are retained solely to keep decoding strict.
type callArg struct {
	pure  []byte
	isPur bool
}

// ValidPtb is the result of a successful shape validation.
type ValidPtb struct {
	pkgID    core.Address
	module   string
	function string
	innerIDs [][]byte
	raw      []byte
}

// Parse deserializes raw transaction bytes with a strict schema and
// restricts them to the single recognized shape. Every violation maps to
// core.ErrInvalidPTB.
func Parse(raw []byte) (*ValidPtb, error) {
	p, err := parse(raw)
	if err != nil {
		return nil, core.ErrInvalidPTB
	}
	return p, nil
}

func parse(raw []byte) (*ValidPtb, error) {
	r := bcs.NewReader(raw)

	nInputs, err := r.ReadULEB()
	if err != nil {
		return nil, err
	}
	inputs := make([]callArg, nInputs)
	for i := 0; i < nInputs; i++ {
		inputs[i], err = readCallArg(r)
		if err != nil {
			return nil, err
		}
	}

	nCommands, err := r.ReadULEB()
	if err != nil {
		return nil, err
	}
	if nCommands != 1 {
		return nil, fmt.Errorf("ptb: expected exactly one command, got %d", nCommands)
	}

	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if tag != 0 { // MoveCall
		return nil, fmt.Errorf("ptb: command %d is not a move call", tag)
	}

	pkgBytes, err := r.ReadFixedBytes(32)
	if err != nil {
		return nil, err
	}
	var pkgID core.Address
	copy(pkgID[:], pkgBytes)

	module, err := readIdentifier(r)
	if err != nil {
		return nil, err
	}
	function, err := readIdentifier(r)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(function, ApproveFunctionPrefix) {
		return nil, fmt.Errorf("ptb: function %q is not an approve call", function)
	}

	nTypeArgs, err := r.ReadULEB()
	if err != nil {
		return nil, err
	}
	for i := 0; i < nTypeArgs; i++ {
		if err := skipTypeTag(r, 0); err != nil {
			return nil, err
		}
	}

	nArgs, err := r.ReadULEB()
	if err != nil {
		return nil, err
	}
	var innerIDs [][]byte
	leading := true
	for i := 0; i < nArgs; i++ {
		idx, isInput, err := readArgument(r)
		if err != nil {
			return nil, err
		}
		if !leading {
			continue
		}
		if !isInput || int(idx) >= len(inputs) || !inputs[idx].isPur {
			// First non-pure argument ends the identity list.
			leading = false
			continue
		}
		id := inputs[idx].pure
		if len(id) == 0 {
			return nil, fmt.Errorf("ptb: empty identity argument at input %d", idx)
		}
		innerIDs = append(innerIDs, id)
	}
	if len(innerIDs) == 0 {
		return nil, fmt.Errorf("ptb: no identity arguments")
	}

	if err := r.ExpectEOF(); err != nil {
		return nil, err
	}

	return &ValidPtb{
		pkgID:    pkgID,
		module:   module,
		function: function,
		innerIDs: innerIDs,
		raw:      raw,
	}, nil
}

// PackageID is the called (possibly stale) package address.
func (p *ValidPtb) PackageID() core.Address {
	return p.pkgID
}

// Module is the called module name.
func (p *ValidPtb) Module() string {
	return p.module
}

// Function is the called function name.
func (p *ValidPtb) Function() string {
	return p.function
}

// FullFunction is the fully qualified function name pkg::module::function.
func (p *ValidPtb) FullFunction() string {
	return fmt.Sprintf("%s::%s::%s", p.pkgID.String(), p.module, p.function)
}

// InnerIDs returns the identity byte strings in call order.
func (p *ValidPtb) InnerIDs() [][]byte {
	return p.innerIDs
}

// Bytes returns the raw transaction bytes the validator accepted.
func (p *ValidPtb) Bytes() []byte {
	return p.raw
}

func readCallArg(r *bcs.Reader) (callArg, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return callArg{}, err
	}
	switch tag {
	case 0: // Pure
		b, err := r.ReadBytes()
		if err != nil {
			return callArg{}, err
		}
		return callArg{pure: b, isPur: true}, nil
	case 1: // Object
		if err := skipObjectArg(r); err != nil {
			return callArg{}, err
		}
		return callArg{}, nil
	default:
		return callArg{}, fmt.Errorf("ptb: unknown call arg tag %d", tag)
	}
}

func skipObjectArg(r *bcs.Reader) error {
	tag, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch tag {
	case 0, 2: // ImmOrOwnedObject, Receiving: (id, version, digest)
		return skipObjectRef(r)
	case 1: // SharedObject: (id, initial_shared_version, mutable)
		if _, err := r.ReadFixedBytes(32); err != nil {
			return err
		}
		if _, err := r.ReadU64(); err != nil {
			return err
		}
		_, err := r.ReadBool()
		return err
	default:
		return fmt.Errorf("ptb: unknown object arg tag %d", tag)
	}
}

func skipObjectRef(r *bcs.Reader) error {
	if _, err := r.ReadFixedBytes(32); err != nil {
		return err
	}
	if _, err := r.ReadU64(); err != nil {
		return err
	}
	digest, err := r.ReadBytes()
	if err != nil {
		return err
	}
	if len(digest) != 32 {
		return fmt.Errorf("ptb: object digest length %d", len(digest))
	}
	return nil
}

func readArgument(r *bcs.Reader) (idx uint16, isInput bool, err error) {
	tag, err := r.ReadByte()
	if err != nil {
		return 0, false, err
	}
	switch tag {
	case 0: // GasCoin
		return 0, false, nil
	case 1: // Input
		idx, err := r.ReadU16()
		return idx, true, err
	case 2: // Result
		_, err := r.ReadU16()
		return 0, false, err
	case 3: // NestedResult
		if _, err := r.ReadU16(); err != nil {
			return 0, false, err
		}
		_, err := r.ReadU16()
		return 0, false, err
	default:
		return 0, false, fmt.Errorf("ptb: unknown argument tag %d", tag)
	}
}

func readIdentifier(r *bcs.Reader) (string, error) {
	s, err := r.ReadString()
	if err != nil {
		return "", err
	}
	if len(s) == 0 || len(s) > maxIdentifierLength {
		return "", fmt.Errorf("ptb: identifier length %d", len(s))
	}
	for i, c := range s {
		alpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
		digit := c >= '0' && c <= '9'
		if !alpha && !(digit && i > 0) {
			return "", fmt.Errorf("ptb: invalid identifier %q", s)
		}
	}
	return s, nil
}

func skipTypeTag(r *bcs.Reader, depth int) error {
	if depth > maxTypeTagDepth {
		return fmt.Errorf("ptb: type tag nesting too deep")
	}
	tag, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch tag {
	case 0, 1, 2, 3, 4, 5, 8, 9, 10: // primitive tags
		return nil
	case 6: // vector<T>
		return skipTypeTag(r, depth+1)
	case 7: // struct
		if _, err := r.ReadFixedBytes(32); err != nil {
			return err
		}
		if _, err := readIdentifier(r); err != nil {
			return err
		}
		if _, err := readIdentifier(r); err != nil {
			return err
		}
		n, err := r.ReadULEB()
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := skipTypeTag(r, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("ptb: unknown type tag %d", tag)
	}
}

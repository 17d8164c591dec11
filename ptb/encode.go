package ptb

import "encoding/binary"

// BuildApproveCall serializes a minimal approve-call transaction block:
// one pure input per identity plus an optional shared-object input, and a
// single move call consuming them. Used by the offline tooling and tests;
// the server itself only ever parses.
func BuildApproveCall(pkg [32]byte, module, function string, ids [][]byte, sharedObject *[32]byte) []byte {
	var out []byte

	nInputs := len(ids)
	if sharedObject != nil {
		nInputs++
	}
	out = appendULEB(out, nInputs)
	for _, id := range ids {
		out = append(out, 0) // CallArg::Pure
		out = appendULEB(out, len(id))
		out = append(out, id...)
	}
	if sharedObject != nil {
		out = append(out, 1, 1) // CallArg::Object, ObjectArg::SharedObject
		out = append(out, sharedObject[:]...)
		out = binary.LittleEndian.AppendUint64(out, 1) // initial shared version
		out = append(out, 0)                           // immutable reference
	}

	out = appendULEB(out, 1) // one command
	out = append(out, 0)     // Command::MoveCall
	out = append(out, pkg[:]...)
	out = appendULEB(out, len(module))
	out = append(out, module...)
	out = appendULEB(out, len(function))
	out = append(out, function...)
	out = appendULEB(out, 0) // no type arguments

	nArgs := len(ids)
	if sharedObject != nil {
		nArgs++
	}
	out = appendULEB(out, nArgs)
	for i := range ids {
		out = append(out, 1) // Argument::Input
		out = binary.LittleEndian.AppendUint16(out, uint16(i))
	}
	if sharedObject != nil {
		out = append(out, 1)
		out = binary.LittleEndian.AppendUint16(out, uint16(len(ids)))
	}
	return out
}

func appendULEB(out []byte, v int) []byte {
	u := uint64(v)
	for {
		b := byte(u & 0x7f)
		u >>= 7
		if u != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

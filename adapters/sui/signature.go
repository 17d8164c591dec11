package sui

import (
	"context"
	"crypto/ed25519"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/CatastropheArena/Catastrophe-Genesis/core"
)

// Signature scheme flags as they appear on the wire.
const (
	flagEd25519   byte = 0x00
	flagSecp256k1 byte = 0x01
	flagSecp256r1 byte = 0x02
	flagMultiSig  byte = 0x03
)

// serialized ed25519 signature: flag || sig(64) || pubkey(32)
const ed25519SignatureLen = 1 + ed25519.SignatureSize + ed25519.PublicKeySize

// personalMessageIntent prefixes a personal message before hashing:
// scope PersonalMessage, version V0, app id Sui.
var personalMessageIntent = [3]byte{3, 0, 0}

// VerifyPersonalMessage checks a wallet signature over a personal message
// and that the signing key controls addr. Only ed25519 keys are accepted;
// other schemes are rejected as invalid rather than unsupported so the
// response does not leak which schemes the server knows about.
func (c *Client) VerifyPersonalMessage(_ context.Context, message, signature []byte, addr core.Address) error {
	return VerifySignature(message, signature, addr)
}

// VerifySignature is the context-free core of personal message checking,
// shared with the CLI.
func VerifySignature(message, signature []byte, addr core.Address) error {
	if len(signature) != ed25519SignatureLen || signature[0] != flagEd25519 {
		return errors.WithStack(core.ErrInvalidSignature)
	}
	sig := signature[1 : 1+ed25519.SignatureSize]
	pub := ed25519.PublicKey(signature[1+ed25519.SignatureSize:])

	if AddressFromEd25519(pub) != addr {
		return errors.WithStack(core.ErrInvalidSignature)
	}
	if !ed25519.Verify(pub, PersonalMessageDigest(message), sig) {
		return errors.WithStack(core.ErrInvalidSignature)
	}
	return nil
}

// PersonalMessageDigest computes the 32-byte digest a wallet signs for a
// personal message: blake2b-256 over the intent prefix and the
// length-prefixed message body.
func PersonalMessageDigest(message []byte) []byte {
	h, _ := blake2b.New256(nil)
	h.Write(personalMessageIntent[:])
	h.Write(ulebEncode(uint64(len(message))))
	h.Write(message)
	return h.Sum(nil)
}

// AddressFromEd25519 derives the on-chain address controlled by an ed25519
// key: blake2b-256 over the scheme flag and the raw public key.
func AddressFromEd25519(pub ed25519.PublicKey) core.Address {
	h, _ := blake2b.New256(nil)
	h.Write([]byte{flagEd25519})
	h.Write(pub)
	var addr core.Address
	copy(addr[:], h.Sum(nil))
	return addr
}

// SignPersonalMessage produces a wire-format signature for message with the
// given key. Used by the CLI and tests; the server only verifies.
func SignPersonalMessage(priv ed25519.PrivateKey, message []byte) []byte {
	sig := ed25519.Sign(priv, PersonalMessageDigest(message))
	out := make([]byte, 0, ed25519SignatureLen)
	out = append(out, flagEd25519)
	out = append(out, sig...)
	out = append(out, priv.Public().(ed25519.PublicKey)...)
	return out
}

func ulebEncode(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			return append(out, b)
		}
	}
}

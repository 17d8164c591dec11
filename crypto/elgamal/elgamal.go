// Package elgamal re-encrypts derived IBE keys under a caller-supplied
// one-time public key. Messages are G1 elements; the public key lives in G1
// and the verification key in G2, so the pair can be checked for consistency
// with a single pairing before any key material is encrypted to it.
package elgamal

import (
	"crypto/rand"
	"fmt"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// PublicKeyLength is the compressed G1 length.
	PublicKeyLength = 48
	// VerificationKeyLength is the compressed G2 length.
	VerificationKeyLength = 96
)

// SecretKey is the caller-side decryption scalar.
type SecretKey struct {
	s fr.Element
}

// PublicKey is the encryption key g1^s.
type PublicKey struct {
	p bls12381.G1Affine
}

// VerificationKey is g2^s, letting anyone check that a public key was
// honestly formed: e(pk, g2) == e(g1, vk).
type VerificationKey struct {
	p bls12381.G2Affine
}

// Ciphertext is a standard ElGamal pair (g1^r, m + pk^r).
type Ciphertext struct {
	C0 bls12381.G1Affine
	C1 bls12381.G1Affine
}

// GenerateKeys samples a one-time keypair: secret scalar, public key and
// verification key.
func GenerateKeys() (*SecretKey, *PublicKey, *VerificationKey, error) {
	var s fr.Element
	if _, err := s.SetRandom(); err != nil {
		return nil, nil, nil, fmt.Errorf("elgamal: sampling secret: %w", err)
	}
	sBig := new(big.Int)
	s.BigInt(sBig)

	var pk PublicKey
	pk.p.ScalarMultiplicationBase(sBig)
	var vk VerificationKey
	vk.p.ScalarMultiplicationBase(sBig)
	return &SecretKey{s: s}, &pk, &vk, nil
}

// Encrypt seals a G1 message under the public key with fresh randomness, so
// encrypting the same message twice yields different ciphertexts.
func Encrypt(pk *PublicKey, msg *bls12381.G1Affine) (*Ciphertext, error) {
	var r fr.Element
	if _, err := r.SetRandom(); err != nil {
		return nil, fmt.Errorf("elgamal: sampling nonce: %w", err)
	}
	rBig := new(big.Int)
	r.BigInt(rBig)

	var ct Ciphertext
	ct.C0.ScalarMultiplicationBase(rBig)

	var blind bls12381.G1Affine
	blind.ScalarMultiplication(&pk.p, rBig)

	var sum bls12381.G1Jac
	sum.FromAffine(msg)
	sum.AddMixed(&blind)
	ct.C1.FromJacobian(&sum)
	return &ct, nil
}

// Decrypt recovers the message: m = c1 - c0^s.
func Decrypt(sk *SecretKey, ct *Ciphertext) (bls12381.G1Affine, error) {
	sBig := new(big.Int)
	sk.s.BigInt(sBig)

	var shared bls12381.G1Affine
	shared.ScalarMultiplication(&ct.C0, sBig)
	shared.Neg(&shared)

	var sum bls12381.G1Jac
	sum.FromAffine(&ct.C1)
	sum.AddMixed(&shared)

	var msg bls12381.G1Affine
	msg.FromJacobian(&sum)
	return msg, nil
}

// VerifyKeyPair checks that the verification key matches the public key:
// e(pk, g2) == e(g1, vk).
func VerifyKeyPair(pk *PublicKey, vk *VerificationKey) (bool, error) {
	_, _, g1, g2 := bls12381.Generators()
	var negPk bls12381.G1Affine
	negPk.Neg(&pk.p)
	return bls12381.PairingCheck(
		[]bls12381.G1Affine{negPk, g1},
		[]bls12381.G2Affine{g2, vk.p},
	)
}

// EncryptEnvelope seals arbitrary bytes to the public key: a fresh G1 KEM
// share derives a chacha20poly1305 key via blake2b. Output layout is
// c0(48) || nonce(12) || sealed.
func EncryptEnvelope(pk *PublicKey, plaintext []byte) ([]byte, error) {
	var r fr.Element
	if _, err := r.SetRandom(); err != nil {
		return nil, fmt.Errorf("elgamal: sampling nonce: %w", err)
	}
	rBig := new(big.Int)
	r.BigInt(rBig)

	var c0 bls12381.G1Affine
	c0.ScalarMultiplicationBase(rBig)
	var shared bls12381.G1Affine
	shared.ScalarMultiplication(&pk.p, rBig)

	aead, err := chacha20poly1305.New(envelopeKey(&shared))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	c0Bytes := c0.Bytes()
	out := make([]byte, 0, len(c0Bytes)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, c0Bytes[:]...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, c0Bytes[:]), nil
}

// DecryptEnvelope opens an envelope produced by EncryptEnvelope.
func DecryptEnvelope(sk *SecretKey, data []byte) ([]byte, error) {
	if len(data) < PublicKeyLength+chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("elgamal: envelope too short")
	}
	var c0 bls12381.G1Affine
	if _, err := c0.SetBytes(data[:PublicKeyLength]); err != nil {
		return nil, fmt.Errorf("elgamal: invalid envelope share: %w", err)
	}
	nonce := data[PublicKeyLength : PublicKeyLength+chacha20poly1305.NonceSize]
	sealed := data[PublicKeyLength+chacha20poly1305.NonceSize:]

	sBig := new(big.Int)
	sk.s.BigInt(sBig)
	var shared bls12381.G1Affine
	shared.ScalarMultiplication(&c0, sBig)

	aead, err := chacha20poly1305.New(envelopeKey(&shared))
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, sealed, data[:PublicKeyLength])
}

func envelopeKey(shared *bls12381.G1Affine) []byte {
	b := shared.Bytes()
	key := blake2b.Sum256(b[:])
	return key[:]
}

// Bytes serializes the compressed public key.
func (pk *PublicKey) Bytes() []byte {
	b := pk.p.Bytes()
	return b[:]
}

// PublicKeyFromBytes decodes a compressed G1 element with subgroup check.
func PublicKeyFromBytes(raw []byte) (*PublicKey, error) {
	if len(raw) != PublicKeyLength {
		return nil, fmt.Errorf("elgamal: public key length %d", len(raw))
	}
	var pk PublicKey
	if _, err := pk.p.SetBytes(raw); err != nil {
		return nil, fmt.Errorf("elgamal: invalid public key: %w", err)
	}
	return &pk, nil
}

// Bytes serializes the compressed verification key.
func (vk *VerificationKey) Bytes() []byte {
	b := vk.p.Bytes()
	return b[:]
}

// VerificationKeyFromBytes decodes a compressed G2 element.
func VerificationKeyFromBytes(raw []byte) (*VerificationKey, error) {
	if len(raw) != VerificationKeyLength {
		return nil, fmt.Errorf("elgamal: verification key length %d", len(raw))
	}
	var vk VerificationKey
	if _, err := vk.p.SetBytes(raw); err != nil {
		return nil, fmt.Errorf("elgamal: invalid verification key: %w", err)
	}
	return &vk, nil
}

// Bytes serializes the secret scalar.
func (sk *SecretKey) Bytes() []byte {
	b := sk.s.Bytes()
	return b[:]
}

// SecretKeyFromBytes decodes a canonical 32-byte scalar.
func SecretKeyFromBytes(raw []byte) (*SecretKey, error) {
	if len(raw) != 32 {
		return nil, fmt.Errorf("elgamal: secret key length %d", len(raw))
	}
	var sk SecretKey
	if err := sk.s.SetBytesCanonical(raw); err != nil {
		return nil, fmt.Errorf("elgamal: non-canonical secret key: %w", err)
	}
	return &sk, nil
}

// Serialize flattens a ciphertext to compressed (c0, c1) byte strings.
func (ct *Ciphertext) Serialize() (c0, c1 []byte) {
	b0 := ct.C0.Bytes()
	b1 := ct.C1.Bytes()
	return b0[:], b1[:]
}

// CiphertextFromBytes rebuilds a ciphertext from compressed parts.
func CiphertextFromBytes(c0, c1 []byte) (*Ciphertext, error) {
	var ct Ciphertext
	if _, err := ct.C0.SetBytes(c0); err != nil {
		return nil, fmt.Errorf("elgamal: invalid c0: %w", err)
	}
	if _, err := ct.C1.SetBytes(c1); err != nil {
		return nil, fmt.Errorf("elgamal: invalid c1: %w", err)
	}
	return &ct, nil
}

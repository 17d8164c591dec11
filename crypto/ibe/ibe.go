// Package ibe implements Boneh-Franklin identity-based encryption over
// BLS12-381. The server holds one master scalar (one share of a threshold
// scheme spread across independent servers) and extracts per-identity secret
// keys in G1; the master public key lives in G2.
package ibe

import (
	"fmt"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"golang.org/x/crypto/blake2b"
)

const (
	// MasterKeyLength is the byte length of a serialized master scalar.
	MasterKeyLength = 32
	// PublicKeyLength is the compressed G2 length.
	PublicKeyLength = 96
	// UserSecretKeyLength is the compressed G1 length.
	UserSecretKeyLength = 48

	dstHashToG1 = "SUI-SEAL-IBE-BLS12381-00"
	dstPOP      = "SUI-SEAL-IBE-BLS12381-POP-00"
)

// MasterKey is the long-lived master secret. Read-only after boot.
type MasterKey struct {
	s fr.Element
}

// PublicKey is the master public key, published for encryptors.
type PublicKey struct {
	p bls12381.G2Affine
}

// UserSecretKey is a per-identity derived key in G1.
type UserSecretKey struct {
	p bls12381.G1Affine
}

// ProofOfPossession proves the server holds the master key behind its
// registered service id.
type ProofOfPossession struct {
	p bls12381.G1Affine
}

// GenerateMasterKey samples a fresh master scalar.
func GenerateMasterKey() (*MasterKey, error) {
	var s fr.Element
	if _, err := s.SetRandom(); err != nil {
		return nil, fmt.Errorf("ibe: sampling master key: %w", err)
	}
	if s.IsZero() {
		return nil, fmt.Errorf("ibe: zero master key")
	}
	return &MasterKey{s: s}, nil
}

// MasterKeyFromBytes decodes a 32-byte big-endian scalar. The encoding must
// be canonical (below the group order).
func MasterKeyFromBytes(raw []byte) (*MasterKey, error) {
	if len(raw) != MasterKeyLength {
		return nil, fmt.Errorf("ibe: master key length %d", len(raw))
	}
	var s fr.Element
	if err := s.SetBytesCanonical(raw); err != nil {
		return nil, fmt.Errorf("ibe: non-canonical master key: %w", err)
	}
	if s.IsZero() {
		return nil, fmt.Errorf("ibe: zero master key")
	}
	return &MasterKey{s: s}, nil
}

// Bytes serializes the master scalar.
func (mk *MasterKey) Bytes() []byte {
	b := mk.s.Bytes()
	return b[:]
}

// PublicKey returns g2^s.
func (mk *MasterKey) PublicKey() *PublicKey {
	var pk PublicKey
	pk.p.ScalarMultiplicationBase(mk.scalar())
	return &pk
}

// Extract derives the user secret key H1(id)^s for an identity. The
// derivation is deterministic and pure: same master key and id always yield
// the same key.
func (mk *MasterKey) Extract(id []byte) (*UserSecretKey, error) {
	h, err := bls12381.HashToG1(id, []byte(dstHashToG1))
	if err != nil {
		return nil, fmt.Errorf("ibe: hashing identity: %w", err)
	}
	var usk UserSecretKey
	usk.p.ScalarMultiplication(&h, mk.scalar())
	return &usk, nil
}

// ProvePossession signs the service id with the master key, binding the
// on-chain registration to the key material.
func (mk *MasterKey) ProvePossession(serviceID []byte) (*ProofOfPossession, error) {
	pk := mk.PublicKey().Bytes()
	msg := make([]byte, 0, len(pk)+len(serviceID))
	msg = append(msg, pk...)
	msg = append(msg, serviceID...)
	h, err := bls12381.HashToG1(msg, []byte(dstPOP))
	if err != nil {
		return nil, fmt.Errorf("ibe: hashing pop message: %w", err)
	}
	var pop ProofOfPossession
	pop.p.ScalarMultiplication(&h, mk.scalar())
	return &pop, nil
}

// VerifyPossession checks a proof of possession against the public key and
// service id: e(pop, g2) == e(H(pk || id), pk).
func VerifyPossession(pop *ProofOfPossession, pk *PublicKey, serviceID []byte) (bool, error) {
	pkBytes := pk.Bytes()
	msg := make([]byte, 0, len(pkBytes)+len(serviceID))
	msg = append(msg, pkBytes...)
	msg = append(msg, serviceID...)
	h, err := bls12381.HashToG1(msg, []byte(dstPOP))
	if err != nil {
		return false, err
	}
	return pairingEqual(&pop.p, &h, &pk.p)
}

// VerifyUserSecretKey checks a derived key against the master public key:
// e(usk, g2) == e(H1(id), pk).
func VerifyUserSecretKey(usk *UserSecretKey, id []byte, pk *PublicKey) (bool, error) {
	h, err := bls12381.HashToG1(id, []byte(dstHashToG1))
	if err != nil {
		return false, err
	}
	return pairingEqual(&usk.p, &h, &pk.p)
}

// pairingEqual reports e(a, g2) == e(b, pk).
func pairingEqual(a, b *bls12381.G1Affine, pk *bls12381.G2Affine) (bool, error) {
	_, _, _, g2 := bls12381.Generators()
	var negA bls12381.G1Affine
	negA.Neg(a)
	return bls12381.PairingCheck(
		[]bls12381.G1Affine{negA, *b},
		[]bls12381.G2Affine{g2, *pk},
	)
}

// Encrypt seals a 32-byte payload to an identity (Boneh-Franklin KEM plus a
// one-time pad keyed by the pairing output). Offline tooling only; the
// server never encrypts application data itself.
func Encrypt(pk *PublicKey, id []byte, msg [32]byte) (c1 []byte, c2 [32]byte, err error) {
	var r fr.Element
	if _, err := r.SetRandom(); err != nil {
		return nil, c2, err
	}
	rBig := new(big.Int)
	r.BigInt(rBig)

	var eph bls12381.G2Affine
	eph.ScalarMultiplicationBase(rBig)

	h, err := bls12381.HashToG1(id, []byte(dstHashToG1))
	if err != nil {
		return nil, c2, err
	}
	gt, err := bls12381.Pair([]bls12381.G1Affine{h}, []bls12381.G2Affine{pk.p})
	if err != nil {
		return nil, c2, err
	}
	gt.Exp(gt, rBig)

	mask := gtMask(&gt)
	for i := range msg {
		c2[i] = msg[i] ^ mask[i]
	}
	ephBytes := eph.Bytes()
	return ephBytes[:], c2, nil
}

// Decrypt opens a ciphertext with a derived user secret key.
func Decrypt(usk *UserSecretKey, c1 []byte, c2 [32]byte) ([32]byte, error) {
	var msg [32]byte
	var eph bls12381.G2Affine
	if _, err := eph.SetBytes(c1); err != nil {
		return msg, fmt.Errorf("ibe: invalid ephemeral element: %w", err)
	}
	gt, err := bls12381.Pair([]bls12381.G1Affine{usk.p}, []bls12381.G2Affine{eph})
	if err != nil {
		return msg, err
	}
	mask := gtMask(&gt)
	for i := range msg {
		msg[i] = c2[i] ^ mask[i]
	}
	return msg, nil
}

func gtMask(gt *bls12381.GT) [32]byte {
	b := gt.Bytes()
	return blake2b.Sum256(b[:])
}

func (mk *MasterKey) scalar() *big.Int {
	out := new(big.Int)
	mk.s.BigInt(out)
	return out
}

// Bytes serializes the compressed public key.
func (pk *PublicKey) Bytes() []byte {
	b := pk.p.Bytes()
	return b[:]
}

// PublicKeyFromBytes decodes a compressed G2 element, enforcing the
// subgroup check.
func PublicKeyFromBytes(raw []byte) (*PublicKey, error) {
	if len(raw) != PublicKeyLength {
		return nil, fmt.Errorf("ibe: public key length %d", len(raw))
	}
	var pk PublicKey
	if _, err := pk.p.SetBytes(raw); err != nil {
		return nil, fmt.Errorf("ibe: invalid public key: %w", err)
	}
	return &pk, nil
}

// Bytes serializes the compressed user secret key.
func (usk *UserSecretKey) Bytes() []byte {
	b := usk.p.Bytes()
	return b[:]
}

// UserSecretKeyFromBytes decodes a compressed G1 element.
func UserSecretKeyFromBytes(raw []byte) (*UserSecretKey, error) {
	if len(raw) != UserSecretKeyLength {
		return nil, fmt.Errorf("ibe: user secret key length %d", len(raw))
	}
	var usk UserSecretKey
	if _, err := usk.p.SetBytes(raw); err != nil {
		return nil, fmt.Errorf("ibe: invalid user secret key: %w", err)
	}
	return &usk, nil
}

// Element exposes the underlying G1 point for re-encryption.
func (usk *UserSecretKey) Element() bls12381.G1Affine {
	return usk.p
}

// UserSecretKeyFromElement wraps a G1 point recovered by ElGamal decryption.
func UserSecretKeyFromElement(p bls12381.G1Affine) *UserSecretKey {
	return &UserSecretKey{p: p}
}

// Bytes serializes the compressed proof of possession.
func (pop *ProofOfPossession) Bytes() []byte {
	b := pop.p.Bytes()
	return b[:]
}

// ProofOfPossessionFromBytes decodes a compressed G1 element.
func ProofOfPossessionFromBytes(raw []byte) (*ProofOfPossession, error) {
	if len(raw) != UserSecretKeyLength {
		return nil, fmt.Errorf("ibe: proof length %d", len(raw))
	}
	var pop ProofOfPossession
	if _, err := pop.p.SetBytes(raw); err != nil {
		return nil, fmt.Errorf("ibe: invalid proof: %w", err)
	}
	return &pop, nil
}

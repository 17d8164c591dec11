package core

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SessionKeyTTLMax is the maximum certificate lifetime in minutes.
const SessionKeyTTLMax uint16 = 10

// Address is a 32-byte chain address, rendered as 0x-prefixed hex. Package
// ids (object ids) share the same representation.
type Address [32]byte

// ParseAddress decodes a 0x-prefixed hex address. Short inputs are
// left-padded with zeros, matching the chain's canonical form.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) == 0 || len(s) > 64 {
		return a, fmt.Errorf("invalid address length %d", len(s))
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid address hex: %w", err)
	}
	copy(a[32-len(raw):], raw)
	return a, nil
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Base64Bytes is a byte string carried as base64 in JSON bodies.
type Base64Bytes []byte

func (b Base64Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(b))
}

func (b *Base64Bytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	*b = raw
	return nil
}

// Certificate is the wallet-signed, time-bounded delegation that lets a
// short-lived session key act on the wallet's behalf. It is immutable once
// created and lives for a single request (or re-embedded into a session
// token with the same expiry).
type Certificate struct {
	User         Address     `json:"user"`
	SessionVK    Base64Bytes `json:"session_vk"`    // ed25519 public key, 32 bytes
	CreationTime uint64      `json:"creation_time"` // ms since epoch
	TTLMin       uint16      `json:"ttl_min"`
	Signature    Base64Bytes `json:"signature"` // wallet signature, scheme-prefixed
}

// ValidateWindow checks the certificate validity bounds against now (ms).
// creation_time must not be in the future and the TTL window must still be
// open; the TTL itself is capped at SessionKeyTTLMax.
func (c *Certificate) ValidateWindow(nowMs uint64) error {
	if c.TTLMin > SessionKeyTTLMax {
		return ErrInvalidCertificate
	}
	if c.CreationTime > nowMs {
		return ErrInvalidCertificate
	}
	if nowMs-uint64(c.TTLMin)*60_000 > c.CreationTime {
		return ErrInvalidCertificate
	}
	return nil
}

// ExpiresAtMs is the certificate (and derived session token) expiry.
func (c *Certificate) ExpiresAtMs() uint64 {
	return c.CreationTime + uint64(c.TTLMin)*60_000
}

// KeyRequest is a decoded fetch_key / session_token request body. Consumed
// exactly once; never persisted.
type KeyRequest struct {
	PTB                []byte // raw BCS transaction bytes
	EncKey             []byte // compressed ElGamal public key (G1)
	EncVerificationKey []byte // compressed ElGamal verification key (G2)
	RequestSignature   []byte // ed25519 session signature
	Certificate        Certificate
}

// EncryptedKey is an ElGamal ciphertext of a derived key share.
type EncryptedKey struct {
	C0 Base64Bytes `json:"c0"` // ephemeral group element
	C1 Base64Bytes `json:"c1"` // blinded key share
}

// DecryptionKey pairs a key id with the share encrypted to the caller.
// Created fresh per response; derived keys are never cached.
type DecryptionKey struct {
	ID           Base64Bytes  `json:"id"`
	EncryptedKey EncryptedKey `json:"encrypted_key"`
}

// DeriveKeyID builds the stable identity the master key is keyed on:
// the first deployed package address concatenated with the raw identity
// bytes from the transaction. The first address (not the latest) keeps
// identities addressable across package upgrades.
//
// Note the two parts are concatenated without a separator for wire
// compatibility with deployed ciphertexts; a length-prefixed encoding would
// close the theoretical collision between different (package, bytes) pairs.
func DeriveKeyID(firstPkg Address, innerID []byte) []byte {
	out := make([]byte, 0, len(firstPkg)+len(innerID))
	out = append(out, firstPkg[:]...)
	return append(out, innerID...)
}

// EqualAddress reports whether two addresses match in constant form.
func EqualAddress(a, b Address) bool {
	return bytes.Equal(a[:], b[:])
}

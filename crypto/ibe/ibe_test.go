package ibe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMasterKeyRoundTrip(t *testing.T) {
	mk, err := GenerateMasterKey()
	require.NoError(t, err)

	raw := mk.Bytes()
	require.Len(t, raw, MasterKeyLength)

	restored, err := MasterKeyFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, mk.Bytes(), restored.Bytes())
	assert.Equal(t, mk.PublicKey().Bytes(), restored.PublicKey().Bytes())
}

func TestMasterKeyFromBytesRejectsBadInput(t *testing.T) {
	_, err := MasterKeyFromBytes(make([]byte, 16))
	assert.Error(t, err)

	_, err = MasterKeyFromBytes(make([]byte, MasterKeyLength)) // zero scalar
	assert.Error(t, err)

	over := bytes.Repeat([]byte{0xff}, MasterKeyLength) // above the group order
	_, err = MasterKeyFromBytes(over)
	assert.Error(t, err)
}

func TestExtractDeterministic(t *testing.T) {
	mk, err := GenerateMasterKey()
	require.NoError(t, err)

	id := []byte("pkg-prefix/identity-1")
	a, err := mk.Extract(id)
	require.NoError(t, err)
	b, err := mk.Extract(id)
	require.NoError(t, err)
	assert.Equal(t, a.Bytes(), b.Bytes())

	c, err := mk.Extract([]byte("pkg-prefix/identity-2"))
	require.NoError(t, err)
	assert.NotEqual(t, a.Bytes(), c.Bytes())
}

func TestVerifyUserSecretKey(t *testing.T) {
	mk, err := GenerateMasterKey()
	require.NoError(t, err)
	pk := mk.PublicKey()

	id := []byte("identity")
	usk, err := mk.Extract(id)
	require.NoError(t, err)

	ok, err := VerifyUserSecretKey(usk, id, pk)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyUserSecretKey(usk, []byte("other identity"), pk)
	require.NoError(t, err)
	assert.False(t, ok)

	otherMk, err := GenerateMasterKey()
	require.NoError(t, err)
	ok, err = VerifyUserSecretKey(usk, id, otherMk.PublicKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProofOfPossession(t *testing.T) {
	mk, err := GenerateMasterKey()
	require.NoError(t, err)
	serviceID := []byte{0x01, 0x02, 0x03}

	pop, err := mk.ProvePossession(serviceID)
	require.NoError(t, err)

	ok, err := VerifyPossession(pop, mk.PublicKey(), serviceID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPossession(pop, mk.PublicKey(), []byte{0x09})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEncryptDecrypt(t *testing.T) {
	mk, err := GenerateMasterKey()
	require.NoError(t, err)
	id := []byte("encrypt-to-me")

	var msg [32]byte
	copy(msg[:], "a thirty-two byte test payload!!")

	c1, c2, err := Encrypt(mk.PublicKey(), id, msg)
	require.NoError(t, err)

	usk, err := mk.Extract(id)
	require.NoError(t, err)
	got, err := Decrypt(usk, c1, c2)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	// A key for a different identity opens to garbage, not the message.
	wrong, err := mk.Extract([]byte("someone-else"))
	require.NoError(t, err)
	bad, err := Decrypt(wrong, c1, c2)
	require.NoError(t, err)
	assert.NotEqual(t, msg, bad)
}

func TestSerializationRejectsInvalidPoints(t *testing.T) {
	_, err := PublicKeyFromBytes(make([]byte, PublicKeyLength))
	assert.Error(t, err)
	_, err = UserSecretKeyFromBytes(make([]byte, UserSecretKeyLength))
	assert.Error(t, err)
	_, err = UserSecretKeyFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}

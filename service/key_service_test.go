package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CatastropheArena/Catastrophe-Genesis/adapters/events"
	"github.com/CatastropheArena/Catastrophe-Genesis/adapters/profile"
	"github.com/CatastropheArena/Catastrophe-Genesis/adapters/store"
	"github.com/CatastropheArena/Catastrophe-Genesis/adapters/sui"
	"github.com/CatastropheArena/Catastrophe-Genesis/adapters/tokenizer"
	"github.com/CatastropheArena/Catastrophe-Genesis/core"
	"github.com/CatastropheArena/Catastrophe-Genesis/crypto/elgamal"
	"github.com/CatastropheArena/Catastrophe-Genesis/crypto/ibe"
	"github.com/CatastropheArena/Catastrophe-Genesis/ports"
	"github.com/CatastropheArena/Catastrophe-Genesis/ptb"
)

// stubChain serves canned chain state. Personal-message verification is the
// real implementation so the signature path is tested end to end.
type stubChain struct {
	checkpointMs uint64
	gasPrice     uint64
	lineage      ports.PackageLineage
	lineageErr   error
	dryRun       ports.DryRunResult
	dryRunErr    error

	lastDryRunSender   core.Address
	lastDryRunGasPrice uint64
}

func (c *stubChain) LatestCheckpointTimestamp(context.Context) (uint64, error) {
	return c.checkpointMs, nil
}

func (c *stubChain) ReferenceGasPrice(context.Context) (uint64, error) {
	return c.gasPrice, nil
}

func (c *stubChain) PackageLineage(context.Context, core.Address) (ports.PackageLineage, error) {
	return c.lineage, c.lineageErr
}

func (c *stubChain) DryRun(_ context.Context, _ []byte, sender core.Address, gasPrice uint64) (ports.DryRunResult, error) {
	c.lastDryRunSender = sender
	c.lastDryRunGasPrice = gasPrice
	return c.dryRun, c.dryRunErr
}

func (c *stubChain) VerifyPersonalMessage(_ context.Context, msg, sig []byte, addr core.Address) error {
	return sui.VerifySignature(msg, sig, addr)
}

// harness bundles a wired service with the key material needed to forge
// valid and invalid requests.
type harness struct {
	svc   *KeyService
	chain *stubChain
	store *store.MemoryStore

	master     *ibe.MasterKey
	walletPriv ed25519.PrivateKey
	wallet     core.Address
	firstPkg   core.Address
	latestPkg  core.Address
	nowMs      uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	master, err := ibe.GenerateMasterKey()
	require.NoError(t, err)

	walletPub, walletPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	firstPkg, err := core.ParseAddress("0x101")
	require.NoError(t, err)
	latestPkg, err := core.ParseAddress("0x107")
	require.NoError(t, err)

	nowMs := uint64(time.Now().UnixMilli())
	chain := &stubChain{
		checkpointMs: nowMs,
		gasPrice:     750,
		lineage:      ports.PackageLineage{First: firstPkg, Latest: latestPkg},
		dryRun:       ports.DryRunResult{Executed: true, Success: true, Status: "success"},
	}

	fresh := NewFreshness(chain, latestPkg)
	require.NoError(t, fresh.Start(context.Background()))

	tok, err := tokenizer.NewJWTTokenizer()
	require.NoError(t, err)

	memStore := store.NewMemoryStore()
	serviceID, err := core.ParseAddress("0x5e47")
	require.NoError(t, err)

	svc, err := NewKeyService(master, chain, fresh, tok, memStore,
		events.NoopPublisher{}, profile.NewStaticResolver(""), serviceID)
	require.NoError(t, err)

	return &harness{
		svc:        svc,
		chain:      chain,
		store:      memStore,
		master:     master,
		walletPriv: walletPriv,
		wallet:     sui.AddressFromEd25519(walletPub),
		firstPkg:   firstPkg,
		latestPkg:  latestPkg,
		nowMs:      nowMs,
	}
}

// request forges a fully signed request for the given identities. The
// returned secret key decrypts the issued shares.
func (h *harness) request(t *testing.T, innerIDs [][]byte) (*core.KeyRequest, *elgamal.SecretKey) {
	t.Helper()

	sessionPub, sessionPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sk, encKey, encVK, err := elgamal.GenerateKeys()
	require.NoError(t, err)

	ptbBytes := ptb.BuildApproveCall(h.latestPkg, "policy", "seal_approve", innerIDs, nil)

	cert := core.Certificate{
		User:         h.wallet,
		SessionVK:    core.Base64Bytes(sessionPub),
		CreationTime: h.nowMs - 1000,
		TTLMin:       5,
	}
	certMsg := core.CertificateMessage(h.firstPkg, cert.SessionVK, cert.CreationTime, cert.TTLMin)
	cert.Signature = sui.SignPersonalMessage(h.walletPriv, certMsg)

	req := &core.KeyRequest{
		PTB:                ptbBytes,
		EncKey:             encKey.Bytes(),
		EncVerificationKey: encVK.Bytes(),
		Certificate:        cert,
	}
	req.RequestSignature = ed25519.Sign(sessionPriv,
		core.RequestMessage(req.PTB, req.EncKey, req.EncVerificationKey))
	return req, sk
}

func TestFetchKeyEndToEnd(t *testing.T) {
	h := newHarness(t)
	ids := [][]byte{{0xde, 0xad}, {0xbe, 0xef, 0x01}}
	req, sk := h.request(t, ids)

	keys, err := h.svc.FetchKey(context.Background(), req, "req-1")
	require.NoError(t, err)
	require.Len(t, keys, 2)

	// Response order matches input order and ids carry the first-package
	// namespace prefix.
	for i, id := range ids {
		assert.Equal(t, core.DeriveKeyID(h.firstPkg, id), []byte(keys[i].ID))

		ct, err := elgamal.CiphertextFromBytes(keys[i].EncryptedKey.C0, keys[i].EncryptedKey.C1)
		require.NoError(t, err)
		share, err := elgamal.Decrypt(sk, ct)
		require.NoError(t, err)

		ok, err := ibe.VerifyUserSecretKey(
			ibe.UserSecretKeyFromElement(share),
			core.DeriveKeyID(h.firstPkg, id),
			h.master.PublicKey(),
		)
		require.NoError(t, err)
		assert.True(t, ok, "decrypted share %d is not a valid derived key", i)
	}

	assert.Equal(t, h.wallet, h.chain.lastDryRunSender)
	assert.Equal(t, uint64(750), h.chain.lastDryRunGasPrice)
}

func TestFetchKeyFailClosedPolicy(t *testing.T) {
	h := newHarness(t)
	req, _ := h.request(t, [][]byte{{1}})

	h.chain.dryRun = ports.DryRunResult{Executed: true, Success: false, Status: "failure"}
	_, err := h.svc.FetchKey(context.Background(), req, "req-1")
	assert.ErrorIs(t, err, core.ErrNoAccess)

	// A malformed dry-run response is a denial, not an allow.
	h.chain.dryRun = ports.DryRunResult{Executed: false}
	_, err = h.svc.FetchKey(context.Background(), req, "req-2")
	assert.ErrorIs(t, err, core.ErrNoAccess)

	// Transport failure is ambiguity about the chain itself.
	h.chain.dryRun = ports.DryRunResult{}
	h.chain.dryRunErr = context.DeadlineExceeded
	_, err = h.svc.FetchKey(context.Background(), req, "req-3")
	assert.ErrorIs(t, err, core.ErrFailure)
}

func TestFetchKeyStaleChainShortCircuits(t *testing.T) {
	h := newHarness(t)
	req, _ := h.request(t, [][]byte{{1}})

	// Break the signature too: staleness must win because it is checked
	// before any signature work.
	req.Certificate.Signature = []byte{0xff}

	h.svc.fresh.checkpointMs.Store(h.nowMs - 3*60_000)
	_, err := h.svc.FetchKey(context.Background(), req, "req-1")
	assert.ErrorIs(t, err, core.ErrSuiClientNotFresh)
}

func TestFetchKeyRejectsInvalidPtb(t *testing.T) {
	h := newHarness(t)
	req, _ := h.request(t, [][]byte{{1}})
	req.PTB = []byte{0x01, 0x02}

	_, err := h.svc.FetchKey(context.Background(), req, "req-1")
	assert.ErrorIs(t, err, core.ErrInvalidPTB)
}

func TestFetchKeyRejectsOldPackageVersion(t *testing.T) {
	h := newHarness(t)
	req, _ := h.request(t, [][]byte{{1}})

	upgraded, err := core.ParseAddress("0x999")
	require.NoError(t, err)
	h.chain.lineage.Latest = upgraded

	_, err = h.svc.FetchKey(context.Background(), req, "req-1")
	assert.ErrorIs(t, err, core.ErrOldPackageVersion)
}

func TestFetchKeyRejectsUnknownPackage(t *testing.T) {
	h := newHarness(t)
	req, _ := h.request(t, [][]byte{{1}})
	h.chain.lineageErr = context.DeadlineExceeded

	_, err := h.svc.FetchKey(context.Background(), req, "req-1")
	assert.ErrorIs(t, err, core.ErrInvalidPackage)
}

func TestFetchKeyRejectsExpiredCertificate(t *testing.T) {
	h := newHarness(t)
	req, _ := h.request(t, [][]byte{{1}})
	req.Certificate.CreationTime = h.nowMs - 11*60_000

	_, err := h.svc.FetchKey(context.Background(), req, "req-1")
	assert.ErrorIs(t, err, core.ErrInvalidCertificate)
}

func TestFetchKeyRejectsWrongWallet(t *testing.T) {
	h := newHarness(t)
	req, _ := h.request(t, [][]byte{{1}})

	other, err := core.ParseAddress("0xaaaa")
	require.NoError(t, err)
	req.Certificate.User = other

	_, err = h.svc.FetchKey(context.Background(), req, "req-1")
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestFetchKeyRejectsTamperedRequest(t *testing.T) {
	h := newHarness(t)
	req, _ := h.request(t, [][]byte{{1}})
	req2, _ := h.request(t, [][]byte{{1}})

	// Session signature from one request does not transfer to another.
	req.RequestSignature = req2.RequestSignature
	_, err := h.svc.FetchKey(context.Background(), req, "req-1")
	assert.ErrorIs(t, err, core.ErrInvalidSessionSignature)
}

func TestFetchKeyRejectsMismatchedEncryptionKeys(t *testing.T) {
	h := newHarness(t)

	sessionPub, sessionPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, encKey, _, err := elgamal.GenerateKeys()
	require.NoError(t, err)
	_, _, otherVK, err := elgamal.GenerateKeys()
	require.NoError(t, err)

	ptbBytes := ptb.BuildApproveCall(h.latestPkg, "policy", "seal_approve", [][]byte{{1}}, nil)
	cert := core.Certificate{
		User:         h.wallet,
		SessionVK:    core.Base64Bytes(sessionPub),
		CreationTime: h.nowMs - 1000,
		TTLMin:       5,
	}
	certMsg := core.CertificateMessage(h.firstPkg, cert.SessionVK, cert.CreationTime, cert.TTLMin)
	cert.Signature = sui.SignPersonalMessage(h.walletPriv, certMsg)

	req := &core.KeyRequest{
		PTB:                ptbBytes,
		EncKey:             encKey.Bytes(),
		EncVerificationKey: otherVK.Bytes(), // belongs to a different secret
		Certificate:        cert,
	}
	req.RequestSignature = ed25519.Sign(sessionPriv,
		core.RequestMessage(req.PTB, req.EncKey, req.EncVerificationKey))

	_, err = h.svc.FetchKey(context.Background(), req, "req-1")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestDerivedKeysAreSignatureIndependent(t *testing.T) {
	h := newHarness(t)
	id := []byte{0x42}

	// Two requests with distinct session and encryption keys must decrypt
	// to the same derived key for the same identity.
	reqA, skA := h.request(t, [][]byte{id})
	reqB, skB := h.request(t, [][]byte{id})

	keysA, err := h.svc.FetchKey(context.Background(), reqA, "req-a")
	require.NoError(t, err)
	keysB, err := h.svc.FetchKey(context.Background(), reqB, "req-b")
	require.NoError(t, err)

	ctA, err := elgamal.CiphertextFromBytes(keysA[0].EncryptedKey.C0, keysA[0].EncryptedKey.C1)
	require.NoError(t, err)
	ctB, err := elgamal.CiphertextFromBytes(keysB[0].EncryptedKey.C0, keysB[0].EncryptedKey.C1)
	require.NoError(t, err)

	shareA, err := elgamal.Decrypt(skA, ctA)
	require.NoError(t, err)
	shareB, err := elgamal.Decrypt(skB, ctB)
	require.NoError(t, err)

	assert.True(t, shareA.Equal(&shareB))
}

func TestSessionTokenLifecycle(t *testing.T) {
	h := newHarness(t)
	req, _ := h.request(t, [][]byte{{7}})
	ctx := context.Background()

	token, claims, err := h.svc.CreateSessionToken(ctx, req, "req-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, h.wallet, claims.User)
	assert.NotEmpty(t, claims.ProfileID)

	verified, err := h.svc.VerifyToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, claims.TokenID, verified.TokenID)

	require.NoError(t, h.svc.Logout(ctx, token))

	_, err = h.svc.VerifyToken(ctx, token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	// Logging out a revoked token fails the same way.
	assert.ErrorIs(t, h.svc.Logout(ctx, token), core.ErrInvalidToken)
}

func TestEncryptedSessionToken(t *testing.T) {
	h := newHarness(t)
	req, sk := h.request(t, [][]byte{{7}})
	ctx := context.Background()

	sealed, claims, err := h.svc.CreateEncryptedSessionToken(ctx, req, "req-1")
	require.NoError(t, err)
	require.NotEmpty(t, claims.TokenID)

	token, err := elgamal.DecryptEnvelope(sk, sealed)
	require.NoError(t, err)

	verified, err := h.svc.VerifyToken(ctx, string(token))
	require.NoError(t, err)
	assert.Equal(t, claims.TokenID, verified.TokenID)
}

func TestSessionTokenRejectedRequestMintsNothing(t *testing.T) {
	h := newHarness(t)
	req, _ := h.request(t, [][]byte{{7}})
	h.chain.dryRun = ports.DryRunResult{Executed: true, Success: false}

	_, _, err := h.svc.CreateSessionToken(context.Background(), req, "req-1")
	assert.ErrorIs(t, err, core.ErrNoAccess)
}

func TestServiceInfo(t *testing.T) {
	h := newHarness(t)
	info := h.svc.Service()

	pk, err := ibe.PublicKeyFromBytes(info.PublicKey)
	require.NoError(t, err)
	pop, err := ibe.ProofOfPossessionFromBytes(info.ProofOfPossession)
	require.NoError(t, err)

	ok, err := ibe.VerifyPossession(pop, pk, info.ServiceID.Bytes())
	require.NoError(t, err)
	assert.True(t, ok)
}

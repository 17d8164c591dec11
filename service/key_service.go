// Package service orchestrates the issuance pipeline: every stage either
// advances the request or terminates it with one kind from the closed error
// taxonomy. Nothing is written to shared state on the request path; the only
// side effects are the audit events after a decision is final.
package service

import (
	"context"
	"crypto/ed25519"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/CatastropheArena/Catastrophe-Genesis/core"
	"github.com/CatastropheArena/Catastrophe-Genesis/crypto/elgamal"
	"github.com/CatastropheArena/Catastrophe-Genesis/crypto/ibe"
	"github.com/CatastropheArena/Catastrophe-Genesis/metrics"
	"github.com/CatastropheArena/Catastrophe-Genesis/ports"
	"github.com/CatastropheArena/Catastrophe-Genesis/ptb"
)

// ServiceInfo is the public registration record: the service id and a proof
// that this server holds the secret behind it. Encryptors read the master
// public key from the on-chain registration object, so only the proof goes
// over the wire; PublicKey stays server-side for verification and tooling.
type ServiceInfo struct {
	ServiceID         core.Address     `json:"service_id"`
	PublicKey         core.Base64Bytes `json:"-"`
	ProofOfPossession core.Base64Bytes `json:"pop"`
}

// KeyService is the request orchestrator. Immutable after construction;
// safe for concurrent use.
type KeyService struct {
	master    *ibe.MasterKey
	chain     ports.ChainReader
	fresh     *Freshness
	tokenizer ports.Tokenizer
	store     ports.Store
	events    ports.EventPublisher
	profiles  ports.ProfileResolver

	info ServiceInfo
	now  func() time.Time
}

// NewKeyService wires the orchestrator. The proof of possession is computed
// once here; the master key never leaves this struct.
func NewKeyService(
	master *ibe.MasterKey,
	chain ports.ChainReader,
	fresh *Freshness,
	tokenizer ports.Tokenizer,
	store ports.Store,
	events ports.EventPublisher,
	profiles ports.ProfileResolver,
	serviceID core.Address,
) (*KeyService, error) {
	pop, err := master.ProvePossession(serviceID.Bytes())
	if err != nil {
		return nil, err
	}
	return &KeyService{
		master:    master,
		chain:     chain,
		fresh:     fresh,
		tokenizer: tokenizer,
		store:     store,
		events:    events,
		profiles:  profiles,
		info: ServiceInfo{
			ServiceID:         serviceID,
			PublicKey:         master.PublicKey().Bytes(),
			ProofOfPossession: pop.Bytes(),
		},
		now: time.Now,
	}, nil
}

// Service returns the public registration record.
func (s *KeyService) Service() ServiceInfo {
	return s.info
}

// FetchKey runs the full pipeline and, on success, returns one encrypted
// key share per identity argument, in transaction order. Derived keys are
// never cached; each response is computed fresh.
func (s *KeyService) FetchKey(ctx context.Context, req *core.KeyRequest, requestID string) ([]core.DecryptionKey, error) {
	validPtb, lineage, encKey, err := s.checkRequest(ctx, req, requestID)
	if err != nil {
		return nil, err
	}

	innerIDs := validPtb.InnerIDs()
	keys := make([]core.DecryptionKey, 0, len(innerIDs))
	for _, innerID := range innerIDs {
		keyID := core.DeriveKeyID(lineage.First, innerID)
		usk, err := s.master.Extract(keyID)
		if err != nil {
			return nil, core.ErrFailure
		}
		share := usk.Element()
		ct, err := elgamal.Encrypt(encKey, &share)
		if err != nil {
			return nil, core.ErrFailure
		}
		c0, c1 := ct.Serialize()
		keys = append(keys, core.DecryptionKey{
			ID:           keyID,
			EncryptedKey: core.EncryptedKey{C0: c0, C1: c1},
		})
	}

	metrics.KeysIssuedTotal.Add(float64(len(keys)))
	if err := s.events.PublishKeysIssued(ctx, req.Certificate.User.String(), requestID, len(keys)); err != nil {
		log.WithError(err).Warn("publishing keys_issued event")
	}

	log.WithFields(log.Fields{
		"request_id": requestID,
		"user":       req.Certificate.User.String(),
		"function":   validPtb.FullFunction(),
		"key_count":  len(keys),
	}).Info("keys issued")
	return keys, nil
}

// CreateSessionToken runs the same validation chain as FetchKey and mints a
// bearer token bound to the certificate window.
func (s *KeyService) CreateSessionToken(ctx context.Context, req *core.KeyRequest, requestID string) (string, *ports.SessionClaims, error) {
	validPtb, _, _, err := s.checkRequest(ctx, req, requestID)
	if err != nil {
		return "", nil, err
	}

	profileID, err := s.profiles.ResolveProfile(ctx, validPtb.InnerIDs()[0])
	if err != nil {
		log.WithError(err).Warn("resolving profile")
		profileID = ""
	}

	token, claims, err := s.tokenizer.MintSessionToken(&req.Certificate, profileID)
	if err != nil {
		return "", nil, s.classify(err)
	}

	if err := s.events.PublishSessionCreated(ctx, req.Certificate.User.String(), claims.TokenID); err != nil {
		log.WithError(err).Warn("publishing session_created event")
	}
	log.WithFields(log.Fields{
		"request_id": requestID,
		"user":       req.Certificate.User.String(),
		"token_id":   claims.TokenID,
	}).Info("session token minted")
	return token, claims, nil
}

// CreateEncryptedSessionToken mints a session token and seals it to the
// request's encryption key, so only the holder of the matching secret can
// read it.
func (s *KeyService) CreateEncryptedSessionToken(ctx context.Context, req *core.KeyRequest, requestID string) ([]byte, *ports.SessionClaims, error) {
	token, claims, err := s.CreateSessionToken(ctx, req, requestID)
	if err != nil {
		return nil, nil, err
	}
	encKey, err := elgamal.PublicKeyFromBytes(req.EncKey)
	if err != nil {
		return nil, nil, core.ErrInvalidInput
	}
	sealed, err := elgamal.EncryptEnvelope(encKey, []byte(token))
	if err != nil {
		return nil, nil, core.ErrFailure
	}
	return sealed, claims, nil
}

// VerifyToken checks a bearer token and its revocation status.
func (s *KeyService) VerifyToken(ctx context.Context, token string) (*ports.SessionClaims, error) {
	claims, err := s.tokenizer.VerifySessionToken(token)
	if err != nil {
		return nil, s.classify(err)
	}
	revoked, err := s.store.IsTokenInvalidated(ctx, claims.TokenID)
	if err != nil {
		return nil, core.ErrFailure
	}
	if revoked {
		return nil, core.ErrInvalidToken
	}
	return claims, nil
}

// Logout revokes a bearer token until its natural expiry.
func (s *KeyService) Logout(ctx context.Context, token string) error {
	claims, err := s.VerifyToken(ctx, token)
	if err != nil {
		return err
	}

	remaining := time.Until(time.UnixMilli(int64(claims.ExpiresAtMs)))
	if remaining < time.Minute {
		remaining = time.Minute
	}
	if err := s.store.InvalidateToken(ctx, claims.TokenID, remaining); err != nil {
		return core.ErrFailure
	}
	if err := s.events.PublishLogout(ctx, claims.User.String(), claims.TokenID); err != nil {
		log.WithError(err).Warn("publishing logout event")
	}
	return nil
}

// checkRequest is the shared validation chain: shape, freshness, certificate
// window, package lineage, wallet signature, session signature, encryption
// key consistency, then the on-chain policy dry run. Stages run cheapest
// first; the freshness guard fires before any signature work so a stale
// chain view short-circuits everything.
func (s *KeyService) checkRequest(ctx context.Context, req *core.KeyRequest, requestID string) (*ptb.ValidPtb, ports.PackageLineage, *elgamal.PublicKey, error) {
	reject := func(kind core.ErrorKind) (*ptb.ValidPtb, ports.PackageLineage, *elgamal.PublicKey, error) {
		log.WithFields(log.Fields{
			"request_id": requestID,
			"user":       req.Certificate.User.String(),
			"tag":        kind.Tag(),
		}).Warn("request rejected")
		return nil, ports.PackageLineage{}, nil, kind
	}

	validPtb, err := ptb.Parse(req.PTB)
	if err != nil {
		return reject(core.ErrInvalidPTB)
	}

	if err := s.fresh.Guard(); err != nil {
		return reject(core.ErrSuiClientNotFresh)
	}

	nowMs := uint64(s.now().UnixMilli())
	if err := req.Certificate.ValidateWindow(nowMs); err != nil {
		return reject(core.ErrInvalidCertificate)
	}

	lineage, err := s.chain.PackageLineage(ctx, validPtb.PackageID())
	if err != nil {
		return reject(core.ErrInvalidPackage)
	}
	if !core.EqualAddress(validPtb.PackageID(), lineage.Latest) {
		return reject(core.ErrOldPackageVersion)
	}

	certMsg := core.CertificateMessage(
		lineage.First,
		req.Certificate.SessionVK,
		req.Certificate.CreationTime,
		req.Certificate.TTLMin,
	)
	if err := s.chain.VerifyPersonalMessage(ctx, certMsg, req.Certificate.Signature, req.Certificate.User); err != nil {
		return reject(core.ErrInvalidSignature)
	}

	if len(req.Certificate.SessionVK) != ed25519.PublicKeySize ||
		len(req.RequestSignature) != ed25519.SignatureSize {
		return reject(core.ErrInvalidSessionSignature)
	}
	reqMsg := core.RequestMessage(req.PTB, req.EncKey, req.EncVerificationKey)
	if !ed25519.Verify(ed25519.PublicKey(req.Certificate.SessionVK), reqMsg, req.RequestSignature) {
		return reject(core.ErrInvalidSessionSignature)
	}

	encKey, err := elgamal.PublicKeyFromBytes(req.EncKey)
	if err != nil {
		return reject(core.ErrInvalidInput)
	}
	encVK, err := elgamal.VerificationKeyFromBytes(req.EncVerificationKey)
	if err != nil {
		return reject(core.ErrInvalidInput)
	}
	consistent, err := elgamal.VerifyKeyPair(encKey, encVK)
	if err != nil || !consistent {
		return reject(core.ErrInvalidInput)
	}

	started := s.now()
	result, err := s.chain.DryRun(ctx, validPtb.Bytes(), req.Certificate.User, s.fresh.GasPrice())
	metrics.PolicyCheckDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		// Transport failure is ambiguity about the chain, not a denial.
		return reject(core.ErrFailure)
	}
	if !result.Executed || !result.Success {
		return reject(core.ErrNoAccess)
	}

	return validPtb, lineage, encKey, nil
}

// classify folds adapter errors into the closed taxonomy; anything already
// a kind passes through, everything else is an internal failure.
func (s *KeyService) classify(err error) core.ErrorKind {
	if kind, ok := err.(core.ErrorKind); ok {
		return kind
	}
	return core.ErrFailure
}

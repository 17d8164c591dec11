// Package tokenizer mints and verifies bearer session tokens. The HMAC key
// derives from an ephemeral keypair generated at boot, so every restart
// invalidates outstanding tokens without any shared state.
package tokenizer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/CatastropheArena/Catastrophe-Genesis/core"
	"github.com/CatastropheArena/Catastrophe-Genesis/ports"
)

const (
	// Issuer identifies tokens minted by this service.
	Issuer = "catastrophe"

	// TokenAudience scopes tokens to the key-fetch API.
	TokenAudience = "session:access"
)

// hmacSeedMessage is the fixed message the boot keypair signs to derive the
// HMAC secret.
var hmacSeedMessage = []byte("jwt_secret")

// SessionTokenClaims is the JWT shape of a session certificate.
type SessionTokenClaims struct {
	jwt.RegisteredClaims
	SessionVK    string `json:"session_vk"`
	CreationTime uint64 `json:"creation_time"`
	TTLMin       uint16 `json:"ttl_min"`
	Profile      string `json:"profile,omitempty"`
}

// JWTTokenizer implements ports.Tokenizer with HS256.
type JWTTokenizer struct {
	secret []byte
	now    func() time.Time
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)

// NewJWTTokenizer generates the ephemeral keypair and derives the HMAC
// secret from it.
func NewJWTTokenizer() (*JWTTokenizer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &JWTTokenizer{
		secret: ed25519.Sign(priv, hmacSeedMessage),
		now:    time.Now,
	}, nil
}

// NewJWTTokenizerFromSeed derives the keypair deterministically. Test
// deployments only; production tokens must not survive a restart.
func NewJWTTokenizerFromSeed(seed []byte) *JWTTokenizer {
	digest := blake2b.Sum256(seed)
	priv := ed25519.NewKeyFromSeed(digest[:])
	return &JWTTokenizer{
		secret: ed25519.Sign(priv, hmacSeedMessage),
		now:    time.Now,
	}
}

// MintSessionToken issues a bearer token whose lifetime matches the
// certificate window exactly.
func (t *JWTTokenizer) MintSessionToken(cert *core.Certificate, profileID string) (string, *ports.SessionClaims, error) {
	if cert == nil {
		return "", nil, core.ErrInvalidCertificate
	}
	expiresAtMs := cert.ExpiresAtMs()

	claims := &SessionTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   cert.User.String(),
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(time.UnixMilli(int64(expiresAtMs))),
			IssuedAt:  jwt.NewNumericDate(t.now()),
			ID:        uuid.New().String(),
		},
		SessionVK:    base64.StdEncoding.EncodeToString(cert.SessionVK),
		CreationTime: cert.CreationTime,
		TTLMin:       cert.TTLMin,
		Profile:      profileID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", nil, core.ErrFailure
	}

	return token, &ports.SessionClaims{
		TokenID:      claims.ID,
		User:         cert.User,
		SessionVK:    cert.SessionVK,
		CreationTime: cert.CreationTime,
		TTLMin:       cert.TTLMin,
		ExpiresAtMs:  expiresAtMs,
		ProfileID:    profileID,
	}, nil
}

// VerifySessionToken checks signature, issuer, audience and expiry, and
// returns the embedded certificate claims.
func (t *JWTTokenizer) VerifySessionToken(tokenString string) (*ports.SessionClaims, error) {
	claims := &SessionTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, t.keyFunc,
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithTimeFunc(t.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if claims.ExpiresAt != nil && claims.ExpiresAt.Before(t.now()) {
			return nil, core.ErrExpiredToken
		}
		return nil, core.ErrInvalidToken
	}
	if !token.Valid {
		return nil, core.ErrInvalidToken
	}

	user, err := core.ParseAddress(claims.Subject)
	if err != nil {
		return nil, core.ErrInvalidToken
	}
	sessionVK, err := base64.StdEncoding.DecodeString(claims.SessionVK)
	if err != nil {
		return nil, core.ErrInvalidToken
	}

	var expiresAtMs uint64
	if claims.ExpiresAt != nil {
		expiresAtMs = uint64(claims.ExpiresAt.UnixMilli())
	}
	return &ports.SessionClaims{
		TokenID:      claims.ID,
		User:         user,
		SessionVK:    sessionVK,
		CreationTime: claims.CreationTime,
		TTLMin:       claims.TTLMin,
		ExpiresAtMs:  expiresAtMs,
		ProfileID:    claims.Profile,
	}, nil
}

func (t *JWTTokenizer) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, core.ErrInvalidToken
	}
	return t.secret, nil
}

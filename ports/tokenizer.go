package ports

import "github.com/CatastropheArena/Catastrophe-Genesis/core"

// SessionClaims is the domain view of a minted bearer token.
type SessionClaims struct {
	TokenID      string
	User         core.Address
	SessionVK    []byte
	CreationTime uint64 // certificate creation, ms
	TTLMin       uint16
	ExpiresAtMs  uint64
	ProfileID    string // optional application profile
}

// Tokenizer converts between certificates and bearer session tokens.
type Tokenizer interface {
	MintSessionToken(cert *core.Certificate, profileID string) (token string, claims *SessionClaims, err error)
	VerifySessionToken(token string) (*SessionClaims, error)
}

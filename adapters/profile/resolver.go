// Package profile maps identities to application profile ids.
package profile

import (
	"context"
	"encoding/hex"

	"github.com/CatastropheArena/Catastrophe-Genesis/ports"
)

// StaticResolver derives a stable profile id from the identity bytes. It
// stands in until the game backend exposes a real lookup.
type StaticResolver struct {
	Prefix string
}

var _ ports.ProfileResolver = (*StaticResolver)(nil)

// NewStaticResolver creates a resolver with the given id prefix.
func NewStaticResolver(prefix string) *StaticResolver {
	if prefix == "" {
		prefix = "profile"
	}
	return &StaticResolver{Prefix: prefix}
}

// ResolveProfile returns a deterministic id for the identity.
func (r *StaticResolver) ResolveProfile(_ context.Context, identity []byte) (string, error) {
	if len(identity) == 0 {
		return "", nil
	}
	return r.Prefix + ":" + hex.EncodeToString(identity), nil
}

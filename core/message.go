package core

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// CertificateMessage is the canonical personal message the wallet signs to
// issue a certificate. It binds the session key to the first deployed
// package address so a certificate minted for one namespace cannot be
// replayed against another.
func CertificateMessage(firstPkg Address, sessionVK []byte, creationTime uint64, ttlMin uint16) []byte {
	msg := fmt.Sprintf(
		"Accessing keys of package %s for %d mins from %d, session key %s",
		firstPkg.String(),
		ttlMin,
		creationTime,
		base64.StdEncoding.EncodeToString(sessionVK),
	)
	return []byte(msg)
}

// RequestMessage is the canonical digest the session key signs over a
// request. The transaction bytes come first; the two key encodings are
// fixed-width compressed group elements, so the concatenation is
// unambiguous.
func RequestMessage(ptb, encKey, encVerificationKey []byte) []byte {
	h, _ := blake2b.New256(nil)
	h.Write(ptb)
	h.Write(encKey)
	h.Write(encVerificationKey)
	return h.Sum(nil)
}

package core

import "net/http"

// ErrorKind is the closed set of terminal request failures. Every stage of
// the issuance pipeline returns one of these and the HTTP boundary maps each
// kind to a status code and a stable tag. A request never retries internally;
// a rejected request must be resubmitted from scratch.
type ErrorKind int

const (
	ErrInvalidPTB ErrorKind = iota
	ErrInvalidPackage
	ErrNoAccess
	ErrOldPackageVersion
	ErrInvalidSignature
	ErrInvalidSessionSignature
	ErrInvalidCertificate
	ErrFailure
	ErrSuiClientNotFresh
	ErrInvalidInput
	ErrDecryptionError
	ErrSerializationError
	ErrInvalidToken
	ErrExpiredToken
	ErrMissingAuthToken
	ErrInvalidAuthHeader
	ErrUnauthorized
)

var errorTags = map[ErrorKind]string{
	ErrInvalidPTB:              "InvalidPTB",
	ErrInvalidPackage:          "InvalidPackage",
	ErrNoAccess:                "NoAccess",
	ErrOldPackageVersion:       "OldPackageVersion",
	ErrInvalidSignature:        "InvalidSignature",
	ErrInvalidSessionSignature: "InvalidSessionSignature",
	ErrInvalidCertificate:      "InvalidCertificate",
	ErrFailure:                 "Failure",
	ErrSuiClientNotFresh:       "SuiClientNotFresh",
	ErrInvalidInput:            "InvalidInput",
	ErrDecryptionError:         "DecryptionError",
	ErrSerializationError:      "SerializationError",
	ErrInvalidToken:            "InvalidToken",
	ErrExpiredToken:            "ExpiredToken",
	ErrMissingAuthToken:        "MissingAuthToken",
	ErrInvalidAuthHeader:       "InvalidAuthHeader",
	ErrUnauthorized:            "Unauthorized",
}

// Tag returns the stable machine-readable identifier used in responses, logs
// and metrics labels.
func (k ErrorKind) Tag() string {
	if tag, ok := errorTags[k]; ok {
		return tag
	}
	return "Failure"
}

// Error implements the error interface. The messages are intentionally
// generic; denial reasons beyond the kind are never echoed to the client.
func (k ErrorKind) Error() string {
	return k.Message()
}

// Status maps each kind to its HTTP status code.
func (k ErrorKind) Status() int {
	switch k {
	case ErrInvalidToken, ErrExpiredToken, ErrMissingAuthToken, ErrInvalidAuthHeader:
		return http.StatusUnauthorized
	case ErrFailure, ErrSuiClientNotFresh:
		return http.StatusServiceUnavailable
	case ErrInvalidPTB, ErrInvalidPackage, ErrNoAccess, ErrOldPackageVersion,
		ErrInvalidSignature, ErrInvalidSessionSignature, ErrInvalidCertificate,
		ErrInvalidInput, ErrDecryptionError, ErrSerializationError, ErrUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}

// Message is the client-facing error string.
func (k ErrorKind) Message() string {
	switch k {
	case ErrInvalidPTB:
		return "Invalid PTB"
	case ErrInvalidPackage:
		return "Invalid package ID"
	case ErrNoAccess:
		return "Access denied"
	case ErrOldPackageVersion:
		return "Package has been upgraded, please use the latest version"
	case ErrInvalidSignature:
		return "Invalid user signature"
	case ErrInvalidSessionSignature:
		return "Invalid session key signature"
	case ErrInvalidCertificate:
		return "Invalid certificate time or ttl"
	case ErrFailure:
		return "Internal server error, please try again later"
	case ErrSuiClientNotFresh:
		return "Full node data is stale, please try again later"
	case ErrInvalidInput:
		return "Invalid input"
	case ErrDecryptionError:
		return "Decryption error"
	case ErrSerializationError:
		return "Serialization error"
	case ErrInvalidToken:
		return "Invalid authentication token"
	case ErrExpiredToken:
		return "Authentication token has expired"
	case ErrMissingAuthToken:
		return "Authentication token is missing"
	case ErrInvalidAuthHeader:
		return "Invalid Authorization header format"
	case ErrUnauthorized:
		return "User is not authorized to access this resource"
	default:
		return "Internal server error, please try again later"
	}
}

// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Failure taxonomy shared by the session core and the sync repositories.
var (
	// ErrNetwork indicates the remote could not be reached (transport failure, timeout).
	ErrNetwork = errors.New("network failure")

	// ErrAuthorizationExpired indicates the server rejected the access token (HTTP 401).
	ErrAuthorizationExpired = errors.New("authorization expired")

	// ErrValidation indicates a client side failure reported by the server (4xx other than 401).
	ErrValidation = errors.New("validation failure")

	// ErrServer indicates a server side failure (5xx).
	ErrServer = errors.New("server failure")

	// ErrDecode indicates a malformed payload, remote or cached.
	ErrDecode = errors.New("decode failure")

	// ErrUnauthenticated is terminal: the session is gone and the user has to log in again.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Storage and protocol sentinels.
var (
	// ErrNotFound indicates the requested entity or key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnexpectedResponse indicates a response whose shape the client does not understand.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

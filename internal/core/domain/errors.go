package domain

import "errors"

// Sentinel errors naming the gatekeeper's failure kinds. The HTTP handlers
// write their status codes directly; no package in this module returns or
// matches these values.
var (
	// ErrUnknownModel means no endpoint in any visible group serves the
	// requested model id.
	ErrUnknownModel = errors.New("model does not exist")

	// ErrNoRoutableEndpoint means the model is known but every endpoint
	// that serves it is currently out of rotation (none left after the
	// group filter, or the inverted index entry is empty).
	ErrNoRoutableEndpoint = errors.New("no routable endpoint for model")

	// ErrForbidden means the caller's groups do not permit the action,
	// distinct from a missing/invalid token (ErrUnauthenticated).
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthenticated means the bearer token is missing or matches no
	// configured group.
	ErrUnauthenticated = errors.New("unauthenticated")
)

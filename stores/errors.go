package stores

import "errors"

// Sentinel errors returned by the stores. The HTTP layer is the only place
// that translates these into status codes.
var (
	// ErrValidation marks a missing or empty required field.
	ErrValidation = errors.New("missing required field")
	// ErrDuplicateUsername is returned when registering an already taken username.
	ErrDuplicateUsername = errors.New("username already registered")
	// ErrNotFound covers both a nonexistent record and a record owned by another
	// user. Callers must not be able to tell the two apart.
	ErrNotFound = errors.New("not found")
)

package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure without revealing which field was wrong.
	ErrInvalidCredentials = errors.New("incorrect username or password")
	// ErrUnauthenticated covers missing, invalid or expired tokens and tokens whose subject no longer exists.
	ErrUnauthenticated = errors.New("invalid authentication credentials")
	// ErrForbidden indicates a valid identity lacking the required role or permission.
	ErrForbidden = errors.New("not authorized")
	// ErrDuplicateIdentity occurs when a username or email is already registered.
	ErrDuplicateIdentity = errors.New("username or email already registered")
	// ErrNameTaken occurs when a role or permission name is already in use.
	ErrNameTaken = errors.New("name already in use")
	// ErrSeedingPrecondition occurs when seeded RBAC state is required but missing.
	ErrSeedingPrecondition = errors.New("rbac state not seeded")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInUse occurs when deleting a record that is still referenced.
	ErrInUse = errors.New("resource still referenced")
)

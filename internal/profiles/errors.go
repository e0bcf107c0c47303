package profiles

import (
	"errors"
	"fmt"
)

// ValidationKind is the machine-readable reason attached to a ValidationError.
type ValidationKind string

const (
	KindMissingHandle        ValidationKind = "MISSING_HANDLE"
	KindInvalidHandle        ValidationKind = "INVALID_HANDLE"
	KindMissingName          ValidationKind = "MISSING_NAME"
	KindMissingLocation      ValidationKind = "MISSING_LOCATION"
	KindHandleTaken          ValidationKind = "HANDLE_TAKEN"
	KindProfileAlreadyExists ValidationKind = "PROFILE_ALREADY_EXISTS"
)

var validationMessages = map[ValidationKind]string{
	KindMissingHandle:        "handle is required",
	KindInvalidHandle:        fmt.Sprintf("handle must be %d to %d characters", minHandleLength, maxHandleLength),
	KindMissingName:          "display name is required",
	KindMissingLocation:      "location is required",
	KindHandleTaken:          "handle is already taken",
	KindProfileAlreadyExists: "profile already exists",
}

// ValidationError reports a client-correctable problem with a profile submission.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func newValidationError(kind ValidationKind) *ValidationError {
	return &ValidationError{Kind: kind, Message: validationMessages[kind]}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("profiles: %s: %s", e.Kind, e.Message)
}

// IsValidationKind reports whether err is a ValidationError of the given kind.
func IsValidationKind(err error, kind ValidationKind) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr) && validationErr.Kind == kind
}

var (
	// ErrUnauthorized indicates a mutating call arrived without an owner identity.
	ErrUnauthorized = errors.New("profiles: owner identity required")
	// ErrProfileNotFound indicates no profile matched the lookup.
	ErrProfileNotFound = errors.New("profiles: profile not found")
)

// Storage outcomes a Store must distinguish.
var (
	ErrNotFound    = errors.New("profiles store: not found")
	ErrConflict    = errors.New("profiles store: conflict")
	ErrUnavailable = errors.New("profiles store: unavailable")
)

const (
	opServiceNew  = "profiles.service.new"
	opCreate      = "profiles.create"
	opUpsert      = "profiles.upsert"
	opUpdate      = "profiles.update"
	opGetByOwner  = "profiles.get_by_owner"
	opGetByHandle = "profiles.get_by_handle"
	opListAll     = "profiles.list_all"
)

// ServiceError wraps a storage fault with an operation-scoped code. The code is safe to show
// to callers; the wrapped error is not.
type ServiceError struct {
	code string
	err  error
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

package types

import (
	"errors"
	"fmt"
)

// Store errors.
var (
	ErrQuery           = errors.New("query failed")
	ErrPersistence     = errors.New("persistence failed")
	ErrStartupFailure  = errors.New("store failed to start")
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrSessionClosed   = errors.New("session is closed")
	ErrUnknownEntity   = errors.New("unknown entity")
	ErrUnknownField    = errors.New("unknown field")
)

// Entity errors.
var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidData     = errors.New("invalid record data")
	ErrInvalidName     = errors.New("name must not be empty")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrDuplicateName   = errors.New("name already exists")
	ErrSectionNotEmpty = errors.New("section still has items")
	ErrConstraint      = errors.New("constraint violated")
	ErrNotRegistered   = errors.New("record is not registered in this session")
)

// InvariantViolation is the panic value for programming errors: a fetch
// expected to return at most one record returned more, or a store handed
// back a record of the wrong kind. It is never returned as an error.
type InvariantViolation struct {
	Reason string
}

func (v InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s", v.Reason)
}

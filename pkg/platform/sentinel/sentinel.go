package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these
// (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrAlreadyUsed: resource already in the requested state
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrCapacity: a hard bound was reached; permanent for the entity
// - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrCapacity     = errors.New("capacity reached")
	ErrUnavailable  = errors.New("unavailable")
)

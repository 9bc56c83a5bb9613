package domain

import "errors"

var (
	ErrUnknownFeature     = errors.New("unknown feature")
	ErrUnknownProduct     = errors.New("unknown product type")
	ErrInvalidFingerprint = errors.New("invalid device fingerprint")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrPurchaseNotFound   = errors.New("purchase not found")
	// ErrStoreUnavailable is returned while the storage circuit breaker is open.
	ErrStoreUnavailable = errors.New("entitlement store unavailable")
)

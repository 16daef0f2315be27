package domain

import "errors"

// Sentinel errors shared by the cart packages.
// Use errors.Is() to check against these.
var (
	// ErrInvalidQuantity is a local precondition failure; no I/O is attempted.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrItemNotFound    = errors.New("line item not found")
	// ErrPersistence reports a failed browser-scoped read or write. It is logged, never fatal.
	ErrPersistence = errors.New("local cart persistence failed")
	// ErrRemoteUnavailable reports a failed server-side cart operation. In-memory state is kept.
	ErrRemoteUnavailable = errors.New("remote cart unavailable")

	ErrProductNotFound = errors.New("product not found")
	ErrOutOfStock      = errors.New("product out of stock")
	ErrVariantRequired = errors.New("size must be selected")
)

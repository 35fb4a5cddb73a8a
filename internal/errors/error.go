// Package errors provides sentinel errors for cart operations.
package errors

import "errors"

var (
	// ErrStoreNotInScope is returned when a cart store handle is requested from a context that does not carry one.
	ErrStoreNotInScope = errors.New("cart store is not available in this context")

	// ErrPersistence marks a mutation that was applied in memory but could not be written to storage.
	ErrPersistence = errors.New("cart could not be persisted")

	// ErrDecode is returned when a persisted value is not a valid cart document.
	ErrDecode = errors.New("invalid cart document")

	ErrStoreClosed = errors.New("cart store is closed")

	ErrInvalidItemID = errors.New("item id must not be empty")
)

package models

import "errors"

// Domain errors. Every failure is fail-fast: nothing is appended and no
// total is changed unless the whole operation succeeds.
var (
	// ErrInvalidQuantity is returned when qty <= 0 where a positive
	// quantity is required, or quantityAfter < 0 in an adjustment.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInsufficientStock is returned by stockOut when the requested
	// quantity exceeds total on-hand.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInsufficientAvailable is returned by reserve when the requested
	// quantity exceeds what is currently available.
	ErrInsufficientAvailable = errors.New("insufficient available stock")

	// ErrInvalidReason is returned when an adjustment reason note is
	// missing, too short, or the reason category is unknown.
	ErrInvalidReason = errors.New("invalid adjustment reason")

	// ErrInvalidReference is returned when a movement names an unknown
	// reference type.
	ErrInvalidReference = errors.New("invalid reference type")

	// ErrProductNotFound is returned by movements against an unknown
	// product. Status reads default instead of failing.
	ErrProductNotFound = errors.New("product not found")

	// ErrBusy is returned when the per-product lock cannot be acquired
	// within the retry budget. Callers may retry.
	ErrBusy = errors.New("product busy, try again")
)

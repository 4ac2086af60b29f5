package store

import "errors"

// Sentinel errors for store operations.
var (
	// ErrInvalidRecord is returned by InsertDeposit when amount or nonce
	// does not parse as a non-negative decimal integer. Per spec.md §3 the
	// row is rejected, not inserted.
	ErrInvalidRecord = errors.New("store: amount or nonce is not a valid non-negative decimal integer")
)

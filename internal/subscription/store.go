package subscription

import "context"

// Store is the per-user record store. Mutate runs fn against the current
// record (nil if the user has none yet) while holding the row lock; fn
// returns the record to write, or nil to leave the row untouched. Mutate
// returns the record as stored after the call.
type Store interface {
	Get(ctx context.Context, userID int) (*Record, error)
	Mutate(ctx context.Context, userID int, fn func(current *Record) (*Record, error)) (*Record, error)
}

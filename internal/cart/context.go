package cart

import (
	"context"

	carterrors "github.com/abgdnv/gomarketplace/internal/errors"
)

type storeKey struct{}

// WithStore returns a copy of ctx that carries the store.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeKey{}, s)
}

// FromContext returns the store carried by ctx.
// Returns ErrStoreNotInScope if ctx has none.
func FromContext(ctx context.Context) (*Store, error) {
	s, ok := ctx.Value(storeKey{}).(*Store)
	if !ok || s == nil {
		return nil, carterrors.ErrStoreNotInScope
	}
	return s, nil
}

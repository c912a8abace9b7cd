package models

import "context"

type requesterContextKey struct{}

// Requester is the caller identity supplied by the upstream IdentityProvider.
// Values are trusted as given.
type Requester struct {
	Id   string
	Rank int
}

// WithRequester attaches the requester to a context.
func WithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, requesterContextKey{}, r)
}

// GetRequester retrieves the requester from context; ok is false if absent.
func GetRequester(ctx context.Context) (Requester, bool) {
	r, ok := ctx.Value(requesterContextKey{}).(Requester)
	return r, ok
}

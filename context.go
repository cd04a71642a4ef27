package revisionable

import (
	"context"
)

type userKey struct{}
type skipKey struct{}

// WithUser attaches the id of the actor responsible for the following changes.
func WithUser(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

// WithSkip marks the context so no revisions are recorded for it.
func WithSkip(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipKey{}, true)
}

// UserFrom returns the actor attached by WithUser, if any.
func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}

func userPtr(ctx context.Context) *string {
	if id, ok := UserFrom(ctx); ok {
		return &id
	}
	return nil
}

func skipped(ctx context.Context) bool {
	if v, ok := ctx.Value(skipKey{}).(bool); ok {
		return v
	}
	return false
}

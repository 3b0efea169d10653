package contextx

import (
	"context"
	"slices"
)

// Actor is the authenticated caller of an administrative request. The auth
// interceptor stores it in the request context via [WithActor].
type Actor struct {
	Subject string
	Scopes  []string
}

// HasScope reports whether a carries scope.
func (a Actor) HasScope(scope string) bool {
	return slices.Contains(a.Scopes, scope)
}

// WithActor returns a derived context that carries the given Actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext extracts the Actor stored in ctx.
// The boolean return value indicates whether an Actor was present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

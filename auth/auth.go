// Package auth provides the authentication function type used by the
// authentication middleware, and a static bearer-token implementation that
// guards the cache administration methods.
package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/Keksclan/tickercache/contextx"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ScopeCacheAdmin is granted to callers holding the admin token.
const ScopeCacheAdmin = "cache:admin"

// AuthFunc authenticates a gRPC request. It receives the request context,
// the full method name, and the incoming metadata. On success it returns a
// (possibly enriched) context; on failure it returns an error.
type AuthFunc func(ctx context.Context, fullMethod string, md metadata.MD) (context.Context, error)

// BearerToken returns an AuthFunc accepting "authorization: Bearer <token>"
// metadata carrying exactly token. Accepted callers are stored in the
// context as an admin Actor. An empty token rejects every request.
func BearerToken(token string) AuthFunc {
	want := []byte(token)
	return func(ctx context.Context, _ string, md metadata.MD) (context.Context, error) {
		if len(want) == 0 {
			return ctx, status.Error(codes.PermissionDenied, "administration disabled")
		}
		got, ok := bearer(md)
		if !ok {
			return ctx, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			return ctx, status.Error(codes.Unauthenticated, "invalid token")
		}
		return contextx.WithActor(ctx, contextx.Actor{
			Subject: "admin",
			Scopes:  []string{ScopeCacheAdmin},
		}), nil
	}
}

func bearer(md metadata.MD) (string, bool) {
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return "", false
	}
	scheme, tok, ok := strings.Cut(vals[0], " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || tok == "" {
		return "", false
	}
	return strings.TrimSpace(tok), true
}

// Outgoing attaches token to ctx for a client call.
func Outgoing(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

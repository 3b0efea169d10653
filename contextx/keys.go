// Package contextx carries request-scoped values between the RPC
// middleware and the market data consumers.
package contextx

// contextKey is an unexported type used as context key to avoid collisions
// with keys defined in other packages.
type contextKey int

const (
	actorKey contextKey = iota
	requestIDKey
	forceRefreshKey
)

package contextx

import "context"

// WithRequestID tags ctx with the request ID. An empty id leaves ctx
// unchanged.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID, or "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithForceRefresh marks ctx so market data consumers bypass fresh cache
// entries and fetch again.
func WithForceRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, forceRefreshKey, true)
}

// ForceRefresh reports whether ctx was marked by WithForceRefresh.
func ForceRefresh(ctx context.Context) bool {
	v, _ := ctx.Value(forceRefreshKey).(bool)
	return v
}

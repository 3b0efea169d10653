package tickercache

// DefaultOptions returns the recommended set of options for production use:
// panic recovery, request IDs, call logging and the health service.
func DefaultOptions() []Option {
	return []Option{
		WithRecovery(),
		WithRequestID(),
		WithLogging(),
		WithHealth(),
	}
}

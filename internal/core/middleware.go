package core

import (
	"cmp"
	"slices"

	"google.golang.org/grpc"
)

// stage is one named interceptor pair. Stages run in ascending order;
// equal orders keep insertion order.
type stage struct {
	order  int
	name   string
	unary  grpc.UnaryServerInterceptor
	stream grpc.StreamServerInterceptor
}

// MiddlewareBuilder collects interceptor stages for the market server.
type MiddlewareBuilder struct {
	stages []stage
}

// Add appends a stage. Either interceptor may be nil.
func (b *MiddlewareBuilder) Add(order int, name string, unary grpc.UnaryServerInterceptor, stream grpc.StreamServerInterceptor) {
	b.stages = append(b.stages, stage{order: order, name: name, unary: unary, stream: stream})
}

func (b *MiddlewareBuilder) sorted() []stage {
	slices.SortStableFunc(b.stages, func(x, y stage) int { return cmp.Compare(x.order, y.order) })
	return b.stages
}

// Build returns the unary and stream interceptors in execution order,
// skipping nil entries.
func (b *MiddlewareBuilder) Build() (unary []grpc.UnaryServerInterceptor, stream []grpc.StreamServerInterceptor) {
	for _, s := range b.sorted() {
		if s.unary != nil {
			unary = append(unary, s.unary)
		}
		if s.stream != nil {
			stream = append(stream, s.stream)
		}
	}
	return unary, stream
}

// Names lists stage names in execution order.
func (b *MiddlewareBuilder) Names() []string {
	names := make([]string, 0, len(b.stages))
	for _, s := range b.sorted() {
		names = append(names, s.name)
	}
	return names
}

package interceptors

import (
	"context"

	"github.com/Keksclan/tickercache/internal/logging"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errInternal = status.Error(codes.Internal, "internal server error")

// recovered logs r against the request logger and replaces *err with a
// bare Internal status.
func recovered(ctx context.Context, log *zap.Logger, method string, r any, err *error) {
	logging.FromContext(ctx, log).Error("handler panicked",
		zap.String("method", method),
		zap.Any("panic", r),
		zap.Stack("stack"),
	)
	*err = errInternal
}

// RecoveryUnary turns a handler panic into codes.Internal. The panic value
// and stack go to log only; a nil log discards them.
func RecoveryUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	log = orNop(log)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				resp = nil
				recovered(ctx, log, info.FullMethod, r, &err)
			}
		}()
		return handler(ctx, req)
	}
}

// RecoveryStream is the stream counterpart of RecoveryUnary.
func RecoveryStream(log *zap.Logger) grpc.StreamServerInterceptor {
	log = orNop(log)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				recovered(ss.Context(), log, info.FullMethod, r, &err)
			}
		}()
		return handler(srv, ss)
	}
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}

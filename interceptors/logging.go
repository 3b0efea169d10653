package interceptors

import (
	"context"
	"time"

	"github.com/Keksclan/tickercache/internal/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// levelFor logs server-side failures at Error and everything else at Info.
func levelFor(c codes.Code) zapcore.Level {
	switch c {
	case codes.Internal, codes.Unknown, codes.DataLoss:
		return zapcore.ErrorLevel
	case codes.OK:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// LoggingUnary returns a unary server interceptor that logs every call with
// its method, status code and duration.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		logging.FromContext(ctx, log).Log(levelFor(code), "rpc",
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

// LoggingStream returns a stream server interceptor that logs every stream
// when it ends.
func LoggingStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		err := handler(srv, ss)
		code := status.Code(err)
		logging.FromContext(ss.Context(), log).Log(levelFor(code), "rpc stream",
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDKey is the metadata key carrying a caller supplied request id.
const RequestIDKey = "x-request-id"

// UnaryLogging logs one line per call with its method, duration and code.
func UnaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		rid := requestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDKey, rid))

		resp, err := handler(ctx, req)
		logCall(logger, info.FullMethod, rid, start, err)
		return resp, err
	}
}

// StreamLogging logs when a stream ends.
func StreamLogging(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		rid := requestID(ss.Context())
		_ = ss.SetHeader(metadata.Pairs(RequestIDKey, rid))

		err := handler(srv, ss)
		logCall(logger, info.FullMethod, rid, start, err)
		return err
	}
}

func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(RequestIDKey); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return uuid.NewString()
}

func logCall(logger *slog.Logger, method, rid string, start time.Time, err error) {
	code := status.Code(err)
	attrs := []any{
		"method", method,
		"request_id", rid,
		"code", code.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	switch code {
	case codes.OK, codes.Canceled:
		logger.Debug("grpc call", attrs...)
	case codes.Internal, codes.Unknown, codes.Unavailable, codes.DataLoss:
		logger.Error("grpc call failed", append(attrs, "err", err)...)
	default:
		logger.Info("grpc call rejected", append(attrs, "err", err)...)
	}
}

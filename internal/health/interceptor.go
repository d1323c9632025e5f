package health

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

func (s *Server) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	code := status.Code(err)
	args := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start).String()}
	if err != nil {
		s.logger.Warn(ctx, "rpc failed", append(args, "err", err)...)
		return resp, err
	}
	s.logger.Debug(ctx, "rpc", args...)
	return resp, nil
}

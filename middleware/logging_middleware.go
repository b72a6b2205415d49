package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LoggingMiddleware logs one structured line per dispatched request,
// mirroring the teacher's log.Printf(ServiceMethod, Duration) shape but
// through zap so it composes with the rest of the runtime's logging.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) *Response {
			start := time.Now()
			resp := next(ctx, req)
			fields := []zap.Field{
				zap.Stringer("opCode", req.Message.Header.OpCode),
				zap.String("peer", req.Peer.String()),
				zap.Uint64("requestId", req.Message.Header.RequestID),
				zap.Duration("duration", time.Since(start)),
			}
			if resp.Err != nil {
				logger.Warn("dispatch failed", append(fields, zap.Error(resp.Err))...)
				return resp
			}
			fields = append(fields, zap.Stringer("status", resp.Message.Header.Status))
			logger.Info("dispatched", fields...)
			return resp
		}
	}
}

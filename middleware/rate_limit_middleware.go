package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"bankrpc/protocol"
)

// RateLimitMiddleware throttles per source address using a token bucket,
// adapted from the teacher's single global limiter — a single noisy peer
// should not starve every other client sharing the dispatcher.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiters := make(map[string]*rate.Limiter)

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) *Response {
			key := req.Peer.String()
			limiter, ok := limiters[key]
			if !ok {
				limiter = rate.NewLimiter(rate.Limit(r), burst)
				limiters[key] = limiter
			}
			if !limiter.Allow() {
				return &Response{
					Message: protocol.Message{
						Header: protocol.Header{
							MsgType:   protocol.MsgTypeReply,
							OpCode:    req.Message.Header.OpCode,
							Status:    protocol.StatusErrRateLimited,
							RequestID: req.Message.Header.RequestID,
						},
					},
				}
			}
			return next(ctx, req)
		}
	}
}

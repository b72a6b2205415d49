// Package middleware provides the onion-style wrapping the server
// dispatcher (spec §4.5, component C5) applies around its business
// handler, adapted from the teacher's Chain/HandlerFunc shape for the
// UDP request/response pair used by this runtime instead of an
// RPCMessage.
package middleware

import (
	"context"
	"net"

	"bankrpc/protocol"
)

// Request is the unit of work a middleware sees: the decoded request
// message plus the peer address it arrived from.
type Request struct {
	Peer    *net.UDPAddr
	Message protocol.Message
}

// Response is the reply a handler produces.
type Response struct {
	Message protocol.Message
	// Err carries a transport/business failure a middleware may want to
	// log; it never changes what gets sent on the wire — the dispatcher
	// always sends Message once it reaches the end of the chain.
	Err error
}

// HandlerFunc processes one request and produces one response.
type HandlerFunc func(ctx context.Context, req *Request) *Response

// Middleware wraps a HandlerFunc with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into a single Middleware, applied in the
// order given: Chain(A, B)(handler) == A(B(handler)), so A runs first on
// the way in and last on the way out.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

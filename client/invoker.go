// Package client implements the invoking side of the bank RPC runtime:
// the retry loop with request-id correlation (spec §4.6, component C6)
// and the post-call callback drain window (spec §4.7, component C7).
package client

import (
	"errors"
	"math/rand"
	"net"
	"time"

	"go.uber.org/zap"

	"bankrpc/protocol"
)

// ErrNoReply is returned when every retry attempt in a Call exhausts its
// timeout without a matching reply — the spec's NetworkError.
var ErrNoReply = errors.New("client: no reply received after retries")

// recvBufferSize matches the reference implementation's 2 KiB datagrams.
const recvBufferSize = 2048

// Config carries the per-invoker constants named in spec §4.6.
type Config struct {
	Timeout    time.Duration
	RetryCount int
	AtMostOnce bool
}

// Invoker performs one blocking RPC at a time over a connected UDP
// socket, matching the single-threaded cooperative model of spec §5.
type Invoker struct {
	conn   *net.UDPConn
	cfg    Config
	logger *zap.Logger
	rng    *rand.Rand
}

// NewInvoker wraps an already-connected UDP socket (net.DialUDP to the
// server address). The invoker owns the socket's read deadline.
func NewInvoker(conn *net.UDPConn, cfg Config, logger *zap.Logger) *Invoker {
	return &Invoker{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Call implements spec §4.6's attempt loop: send, then drain datagrams
// until either a matching reply arrives or the attempt's deadline
// passes, resending only on a full-attempt timeout. This is the "drain
// until deadline" resolution of the ambiguity spec §9 calls out — a
// stray or mismatched packet never consumes a fresh resend as long as
// the real reply lands before the attempt's timeout.
func (inv *Invoker) Call(opCode protocol.OpCode, body []byte) (protocol.Message, error) {
	reqID := inv.rng.Uint64()
	var flags uint16
	if inv.cfg.AtMostOnce {
		flags = protocol.FlagAtMostOnce
	}
	req := protocol.Message{
		Header: protocol.Header{MsgType: protocol.MsgTypeRequest, OpCode: opCode, Flags: flags, RequestID: reqID},
		Body:   body,
	}
	raw := protocol.Encode(req)
	buf := make([]byte, recvBufferSize)

	for attempt := 1; attempt <= inv.cfg.RetryCount; attempt++ {
		if _, err := inv.conn.Write(raw); err != nil {
			inv.logger.Warn("send failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		deadline := time.Now().Add(inv.cfg.Timeout)
		if err := inv.conn.SetReadDeadline(deadline); err != nil {
			return protocol.Message{}, err
		}

		for {
			n, err := inv.conn.Read(buf)
			if err != nil {
				inv.logger.Debug("attempt timed out", zap.Int("attempt", attempt), zap.Uint64("requestId", reqID))
				break
			}
			reply, err := protocol.Decode(buf[:n])
			if err != nil {
				continue
			}
			if reply.Header.MsgType != protocol.MsgTypeReply || reply.Header.RequestID != reqID {
				continue
			}
			return reply, nil
		}
	}

	return protocol.Message{}, ErrNoReply
}

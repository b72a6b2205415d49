// Package server implements the UDP dispatch loop for the bank RPC
// runtime (spec §4.5, component C5): a single-threaded
// receive→classify→dispatch→reply loop that enforces the configured
// invocation semantics and injects simulated loss.
//
// The pipeline mirrors the teacher's TCP server pipeline (decode →
// middleware chain → business handler → encode → write) but collapses
// accept/connection handling away — there is exactly one UDP socket and
// exactly one goroutine ever touches it, per spec §5.
package server

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"go.uber.org/zap"

	"bankrpc/bank"
	"bankrpc/dedup"
	"bankrpc/middleware"
	"bankrpc/protocol"
	"bankrpc/subscription"
)

// recvBufferSize matches the reference implementation's 2 KiB receive
// buffer (spec §6.1).
const recvBufferSize = 2048

// Server is the RPC dispatcher: one UDP socket, one ledger, one
// subscription registry, one dedup cache.
type Server struct {
	conn      *net.UDPConn
	processor bank.Processor
	subs      subscription.Registry
	replies   *dedup.Cache
	handler   middleware.HandlerFunc
	logger    *zap.Logger
	lossReq   float64
	lossRep   float64
	rng       *rand.Rand
}

// New builds a dispatcher around an already-bound UDP socket. mws are
// applied in the order given, the same convention as middleware.Chain.
func New(conn *net.UDPConn, processor bank.Processor, subs subscription.Registry, replies *dedup.Cache, logger *zap.Logger, lossReq, lossRep float64, mws ...middleware.Middleware) *Server {
	s := &Server{
		conn:      conn,
		processor: processor,
		subs:      subs,
		replies:   replies,
		logger:    logger,
		lossReq:   lossReq,
		lossRep:   lossRep,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.handler = middleware.Chain(mws...)(s.dispatch)
	return s
}

// drop reports whether a Bernoulli(p) draw says the current datagram
// should be simulated as lost.
func (s *Server) drop(p float64) bool {
	if p <= 0 {
		return false
	}
	return s.rng.Float64() < p
}

// Serve runs the dispatch loop until ctx is cancelled or the socket is
// closed; other receive errors are logged and the loop continues. It
// implements spec §4.5 steps 1-12 in order.
func (s *Server) Serve(ctx context.Context) error {
	buf := make([]byte, recvBufferSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		now := time.Now()
		s.subs.Sweep(now)
		s.replies.Sweep(now)

		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Warn("recv failed", zap.Error(err))
			continue
		}

		if s.drop(s.lossReq) {
			s.logger.Debug("simulated request loss", zap.String("peer", peer.String()))
			continue
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])

		msg, err := protocol.Decode(raw)
		if err != nil {
			s.logger.Debug("decode failed", zap.String("peer", peer.String()), zap.Error(err))
			continue
		}
		if msg.Header.MsgType != protocol.MsgTypeRequest {
			s.logger.Debug("unexpected msgType", zap.Stringer("msgType", msg.Header.MsgType))
			continue
		}

		key := dedup.Key{Peer: peer.String(), RequestID: msg.Header.RequestID}
		if msg.Header.AtMostOnce() {
			if cached, ok := s.replies.Get(key); ok {
				if s.drop(s.lossRep) {
					s.logger.Debug("simulated reply loss (replay)", zap.String("peer", peer.String()))
					continue
				}
				if _, err := s.conn.WriteToUDP(cached, peer); err != nil {
					s.logger.Warn("replay send failed", zap.Error(err))
				}
				continue
			}
		}

		resp := s.handler(ctx, &middleware.Request{Peer: peer, Message: msg})
		replyBytes := protocol.Encode(resp.Message)

		if msg.Header.AtMostOnce() {
			s.replies.Put(key, replyBytes, now)
		}

		if s.drop(s.lossRep) {
			s.logger.Debug("simulated reply loss", zap.String("peer", peer.String()))
			continue
		}
		if _, err := s.conn.WriteToUDP(replyBytes, peer); err != nil {
			s.logger.Warn("reply send failed", zap.Error(err))
		}
	}
}

func (s *Server) broadcastUpdate(updateType protocol.OpCode, accountNo int32, currency protocol.Currency, newBalance float64, info string) {
	body := subscription.BuildUpdate(updateType, accountNo, currency, newBalance, info)
	s.subs.Broadcast(body, func(peer *net.UDPAddr, b []byte) error {
		_, err := s.conn.WriteToUDP(b, peer)
		return err
	})
}

func badRequest(h protocol.Header) *middleware.Response {
	h.Status = protocol.StatusErrBadRequest
	return &middleware.Response{Message: protocol.Message{Header: h}}
}

func statusOnly(h protocol.Header, status protocol.Status) *middleware.Response {
	h.Status = status
	return &middleware.Response{Message: protocol.Message{Header: h}}
}

// dispatch is the business handler at the bottom of the middleware chain
// (spec §4.5 steps 8-9): build the reply skeleton, parse the body for the
// given opCode, invoke the processor (or the subscription registry for
// MONITOR_REGISTER, which is not part of bank.Processor), and append
// result fields on success.
func (s *Server) dispatch(ctx context.Context, req *middleware.Request) *middleware.Response {
	reqHeader := req.Message.Header
	replyHeader := protocol.Header{
		MsgType:   protocol.MsgTypeReply,
		OpCode:    reqHeader.OpCode,
		Flags:     reqHeader.Flags,
		RequestID: reqHeader.RequestID,
		Status:    protocol.StatusOK,
	}
	r := protocol.NewReader(req.Message.Body)

	switch reqHeader.OpCode {
	case protocol.OpOpen:
		name, err1 := r.String()
		password, err2 := r.Password16()
		currency, err3 := r.U16()
		initial, err4 := r.Double()
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return badRequest(replyHeader)
		}
		accountNo, balance, status := s.processor.Open(name, password, protocol.Currency(currency), initial)
		if status != protocol.StatusOK {
			return statusOnly(replyHeader, status)
		}
		w := protocol.NewWriter()
		w.PutI32(accountNo)
		w.PutDouble(balance)
		s.broadcastUpdate(protocol.OpOpen, accountNo, protocol.Currency(currency), balance, fmt.Sprintf("OPEN by %s", name))
		return &middleware.Response{Message: protocol.Message{Header: replyHeader, Body: w.Bytes()}}

	case protocol.OpClose:
		name, err1 := r.String()
		accountNo, err2 := r.I32()
		password, err3 := r.Password16()
		if err1 != nil || err2 != nil || err3 != nil {
			return badRequest(replyHeader)
		}
		confirmation, status := s.processor.Close(name, accountNo, password)
		if status != protocol.StatusOK {
			return statusOnly(replyHeader, status)
		}
		w := protocol.NewWriter()
		w.PutString(confirmation)
		currency, balance, _ := s.processor.AccountSnapshot(accountNo)
		s.broadcastUpdate(protocol.OpClose, accountNo, currency, balance, fmt.Sprintf("CLOSE by %s", name))
		return &middleware.Response{Message: protocol.Message{Header: replyHeader, Body: w.Bytes()}}

	case protocol.OpDeposit:
		name, err1 := r.String()
		accountNo, err2 := r.I32()
		password, err3 := r.Password16()
		currency, err4 := r.U16()
		amount, err5 := r.Double()
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return badRequest(replyHeader)
		}
		balance, status := s.processor.Deposit(name, accountNo, password, protocol.Currency(currency), amount)
		if status != protocol.StatusOK {
			return statusOnly(replyHeader, status)
		}
		w := protocol.NewWriter()
		w.PutDouble(balance)
		s.broadcastUpdate(protocol.OpDeposit, accountNo, protocol.Currency(currency), balance, fmt.Sprintf("DEPOSIT %g by %s", amount, name))
		return &middleware.Response{Message: protocol.Message{Header: replyHeader, Body: w.Bytes()}}

	case protocol.OpWithdraw:
		name, err1 := r.String()
		accountNo, err2 := r.I32()
		password, err3 := r.Password16()
		currency, err4 := r.U16()
		amount, err5 := r.Double()
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return badRequest(replyHeader)
		}
		balance, status := s.processor.Withdraw(name, accountNo, password, protocol.Currency(currency), amount)
		if status != protocol.StatusOK {
			return statusOnly(replyHeader, status)
		}
		w := protocol.NewWriter()
		w.PutDouble(balance)
		s.broadcastUpdate(protocol.OpWithdraw, accountNo, protocol.Currency(currency), balance, fmt.Sprintf("WITHDRAW %g by %s", amount, name))
		return &middleware.Response{Message: protocol.Message{Header: replyHeader, Body: w.Bytes()}}

	case protocol.OpTransfer:
		name, err1 := r.String()
		fromAcc, err2 := r.I32()
		password, err3 := r.Password16()
		toAcc, err4 := r.I32()
		currency, err5 := r.U16()
		amount, err6 := r.Double()
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
			return badRequest(replyHeader)
		}
		fromBal, toBal, status := s.processor.Transfer(name, fromAcc, password, toAcc, protocol.Currency(currency), amount)
		if status != protocol.StatusOK {
			return statusOnly(replyHeader, status)
		}
		w := protocol.NewWriter()
		w.PutDouble(fromBal)
		w.PutDouble(toBal)
		s.broadcastUpdate(protocol.OpTransfer, fromAcc, protocol.Currency(currency), fromBal, fmt.Sprintf("TRANSFER out %g to %d by %s", amount, toAcc, name))
		s.broadcastUpdate(protocol.OpTransfer, toAcc, protocol.Currency(currency), toBal, fmt.Sprintf("TRANSFER in %g from %d", amount, fromAcc))
		return &middleware.Response{Message: protocol.Message{Header: replyHeader, Body: w.Bytes()}}

	case protocol.OpQueryBalance:
		name, err1 := r.String()
		accountNo, err2 := r.I32()
		password, err3 := r.Password16()
		if err1 != nil || err2 != nil || err3 != nil {
			return badRequest(replyHeader)
		}
		currency, balance, status := s.processor.QueryBalance(name, accountNo, password)
		if status != protocol.StatusOK {
			return statusOnly(replyHeader, status)
		}
		w := protocol.NewWriter()
		w.PutU16(uint16(currency))
		w.PutDouble(balance)
		return &middleware.Response{Message: protocol.Message{Header: replyHeader, Body: w.Bytes()}}

	case protocol.OpMonitorRegister:
		seconds, err := r.U16()
		if err != nil {
			return badRequest(replyHeader)
		}
		s.subs.Add(req.Peer, time.Duration(seconds)*time.Second, time.Now())
		w := protocol.NewWriter()
		w.PutString(fmt.Sprintf("monitor registered for %ds", seconds))
		return &middleware.Response{Message: protocol.Message{Header: replyHeader, Body: w.Bytes()}}

	default:
		return badRequest(replyHeader)
	}
}

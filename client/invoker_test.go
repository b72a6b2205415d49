package client

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"bankrpc/protocol"
)

// fakeServer runs handle once per received datagram, writing whatever
// bytes it returns (if non-nil) back to the sender's address.
func fakeServer(t *testing.T, handle func(peer *net.UDPAddr, req protocol.Message) []byte) (*net.UDPAddr, func()) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan struct{})
	go func() {
		buf := make([]byte, 2048)
		for {
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			n, peer, err := conn.ReadFromUDP(buf)
			if err != nil {
				select {
				case <-done:
					return
				default:
					continue
				}
			}
			req, err := protocol.Decode(buf[:n])
			if err != nil {
				continue
			}
			if resp := handle(peer, req); resp != nil {
				conn.WriteToUDP(resp, peer)
			}
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr), func() { close(done); conn.Close() }
}

func dialInvoker(t *testing.T, server *net.UDPAddr, cfg Config) *Invoker {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, server)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return NewInvoker(conn, cfg, zap.NewNop())
}

func okReply(req protocol.Message, body []byte) []byte {
	return protocol.Encode(protocol.Message{
		Header: protocol.Header{
			MsgType:   protocol.MsgTypeReply,
			OpCode:    req.Header.OpCode,
			RequestID: req.Header.RequestID,
			Status:    protocol.StatusOK,
		},
		Body: body,
	})
}

func TestCallReturnsMatchingReply(t *testing.T) {
	addr, cleanup := fakeServer(t, func(peer *net.UDPAddr, req protocol.Message) []byte {
		return okReply(req, []byte("hello"))
	})
	defer cleanup()

	inv := dialInvoker(t, addr, Config{Timeout: 200 * time.Millisecond, RetryCount: 3})
	reply, err := inv.Call(protocol.OpQueryBalance, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if reply.Header.Status != protocol.StatusOK || string(reply.Body) != "hello" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestCallRequestIDMatchesGeneratedID(t *testing.T) {
	var seenReqID uint64
	addr, cleanup := fakeServer(t, func(peer *net.UDPAddr, req protocol.Message) []byte {
		seenReqID = req.Header.RequestID
		return okReply(req, nil)
	})
	defer cleanup()

	inv := dialInvoker(t, addr, Config{Timeout: 200 * time.Millisecond, RetryCount: 3})
	reply, err := inv.Call(protocol.OpOpen, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if reply.Header.RequestID != seenReqID {
		t.Fatalf("reply requestId = %d, want %d", reply.Header.RequestID, seenReqID)
	}
}

func TestCallRetriesAfterTimeout(t *testing.T) {
	var attempts int
	addr, cleanup := fakeServer(t, func(peer *net.UDPAddr, req protocol.Message) []byte {
		attempts++
		if attempts < 2 {
			return nil // drop the first attempt entirely
		}
		return okReply(req, nil)
	})
	defer cleanup()

	inv := dialInvoker(t, addr, Config{Timeout: 100 * time.Millisecond, RetryCount: 5})
	_, err := inv.Call(protocol.OpDeposit, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if attempts < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestCallExhaustsRetriesAndReturnsErrNoReply(t *testing.T) {
	addr, cleanup := fakeServer(t, func(peer *net.UDPAddr, req protocol.Message) []byte {
		return nil // never reply
	})
	defer cleanup()

	inv := dialInvoker(t, addr, Config{Timeout: 50 * time.Millisecond, RetryCount: 3})
	_, err := inv.Call(protocol.OpQueryBalance, nil)
	if err != ErrNoReply {
		t.Fatalf("err = %v, want ErrNoReply", err)
	}
}

func TestCallDrainsMismatchedReplyWithinSameAttempt(t *testing.T) {
	addr, cleanup := fakeServer(t, func(peer *net.UDPAddr, req protocol.Message) []byte {
		// The reply to an earlier, unrelated request is held back so that it
		// reaches the invoker while Call waits; Call's own reply follows
		// right after it — both within one attempt's timeout. Both come from
		// the server's address, the only source a connected socket accepts.
		if req.Header.OpCode == protocol.OpQueryBalance {
			time.Sleep(50 * time.Millisecond)
			return okReply(req, []byte("stray"))
		}
		return okReply(req, []byte("real"))
	})
	defer cleanup()

	inv := dialInvoker(t, addr, Config{Timeout: 300 * time.Millisecond, RetryCount: 2})
	inv.conn.Write(protocol.Encode(protocol.Message{
		Header: protocol.Header{MsgType: protocol.MsgTypeRequest, OpCode: protocol.OpQueryBalance, RequestID: 1},
	}))
	reply, err := inv.Call(protocol.OpWithdraw, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if string(reply.Body) != "real" {
		t.Fatalf("expected the matching reply, got %q", reply.Body)
	}
}

func TestDrainCallbacksDeliversUntilDeadline(t *testing.T) {
	// The fake server answers any datagram with one callback frame, sent
	// from the server's own address as the real server's broadcast is.
	addr, cleanup := fakeServer(t, func(peer *net.UDPAddr, req protocol.Message) []byte {
		w := protocol.NewWriter()
		w.PutU16(uint16(protocol.OpOpen))
		w.PutI32(10001)
		w.PutU16(uint16(protocol.CurrencyCNY))
		w.PutDouble(100)
		w.PutString("OPEN by alice")
		return protocol.Encode(protocol.Message{
			Header: protocol.Header{MsgType: protocol.MsgTypeCallback, OpCode: protocol.OpCallbackUpdate},
			Body:   w.Bytes(),
		})
	})
	defer cleanup()

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	inv := NewInvoker(conn, Config{Timeout: time.Second, RetryCount: 1}, zap.NewNop())

	// Prompt the fake server, during the drain window, to send the callback
	// frame to the invoker's socket.
	go func() {
		time.Sleep(50 * time.Millisecond)
		conn.Write(protocol.Encode(protocol.Message{
			Header: protocol.Header{MsgType: protocol.MsgTypeRequest, OpCode: protocol.OpMonitorRegister},
		}))
	}()

	var got []Update
	inv.DrainCallbacks(300*time.Millisecond, func(u Update) {
		got = append(got, u)
	})

	if len(got) != 1 {
		t.Fatalf("expected 1 callback delivered, got %d", len(got))
	}
	if got[0].UpdateType != protocol.OpOpen || got[0].AccountNo != 10001 || got[0].Info != "OPEN by alice" {
		t.Fatalf("unexpected update: %+v", got[0])
	}
}

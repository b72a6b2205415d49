package client

import (
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"bankrpc/protocol"
)

// pollInterval bounds each individual read so DrainCallbacks can notice
// the overall deadline elapsing even with no traffic — grounded on the
// original client's ~1s recv-timeout polling loop for MONITOR windows.
const pollInterval = time.Second

// Update is the parsed payload of a CALLBACK_UPDATE frame.
type Update struct {
	UpdateType protocol.OpCode
	AccountNo  int32
	Currency   protocol.Currency
	NewBalance float64
	Info       string
}

// DrainCallbacks blocks for window, delivering every well-formed
// CALLBACK_UPDATE received on the invoker's socket to onUpdate. The
// caller must not issue another RPC on this socket until it returns —
// spec §4.7 requires the client be blocked during the drain window.
func (inv *Invoker) DrainCallbacks(window time.Duration, onUpdate func(Update)) {
	deadline := time.Now().Add(window)
	buf := make([]byte, recvBufferSize)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		readTimeout := pollInterval
		if remaining < readTimeout {
			readTimeout = remaining
		}
		if err := inv.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}

		n, err := inv.conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			inv.logger.Debug("callback read failed", zap.Error(err))
			continue
		}

		msg, err := protocol.Decode(buf[:n])
		if err != nil {
			continue
		}
		if msg.Header.MsgType != protocol.MsgTypeCallback || msg.Header.OpCode != protocol.OpCallbackUpdate {
			continue
		}

		r := protocol.NewReader(msg.Body)
		updateType, err1 := r.U16()
		accountNo, err2 := r.I32()
		currency, err3 := r.U16()
		newBalance, err4 := r.Double()
		info, err5 := r.String()
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			inv.logger.Debug("malformed callback body")
			continue
		}

		onUpdate(Update{
			UpdateType: protocol.OpCode(updateType),
			AccountNo:  accountNo,
			Currency:   protocol.Currency(currency),
			NewBalance: newBalance,
			Info:       info,
		})
	}
}

// Package protocol implements the wire format for the bank RPC runtime.
//
// Every datagram carries exactly one message: a fixed 24-byte header
// followed by an opaque body whose layout depends on (msgType, opCode).
// The header is always big-endian; the body is a flat concatenation of
// typed fields with no padding (see fields.go).
//
//	0        4  5  6      8      10     12           20           24
//	┌────────┬──┬──┬──────┬──────┬──────┬────────────┬────────────┐
//	│ magic  │v │mt│opCode│flags │status│ requestId  │  bodyLen   │
//	│ 'BANK' │01│  │u16   │u16   │u16   │    u64     │    u32     │
//	└────────┴──┴──┴──────┴──────┴──────┴────────────┴────────────┘
//	 4 bytes  1  1   2      2      2       8            4           = 24 bytes
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Magic identifies a bank-RPC frame: ASCII "BANK".
const Magic uint32 = 0x42414E4B

// Version is the only protocol revision this runtime speaks.
const Version uint8 = 1

// HeaderSize is the fixed width of the header in bytes.
const HeaderSize = 24

// MsgType distinguishes request, reply, and callback frames.
type MsgType uint8

const (
	MsgTypeRequest  MsgType = 1
	MsgTypeReply    MsgType = 2
	MsgTypeCallback MsgType = 3
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeRequest:
		return "REQUEST"
	case MsgTypeReply:
		return "REPLY"
	case MsgTypeCallback:
		return "CALLBACK"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

// OpCode identifies the requested operation.
type OpCode uint16

const (
	OpOpen            OpCode = 1
	OpClose           OpCode = 2
	OpDeposit         OpCode = 3
	OpWithdraw        OpCode = 4
	OpMonitorRegister OpCode = 5
	OpQueryBalance    OpCode = 6
	OpTransfer        OpCode = 7
	OpCallbackUpdate  OpCode = 100
)

func (op OpCode) String() string {
	switch op {
	case OpOpen:
		return "OPEN"
	case OpClose:
		return "CLOSE"
	case OpDeposit:
		return "DEPOSIT"
	case OpWithdraw:
		return "WITHDRAW"
	case OpMonitorRegister:
		return "MONITOR_REGISTER"
	case OpQueryBalance:
		return "QUERY_BALANCE"
	case OpTransfer:
		return "TRANSFER"
	case OpCallbackUpdate:
		return "CALLBACK_UPDATE"
	default:
		return fmt.Sprintf("OpCode(%d)", uint16(op))
	}
}

// FlagAtMostOnce marks a request as wanting at-most-once (dedup-cached)
// semantics. All other bits are reserved and must be zero.
const FlagAtMostOnce uint16 = 0x0001

// Header is the fixed 24-byte frame header. All integer fields are
// big-endian on the wire.
type Header struct {
	MsgType   MsgType
	OpCode    OpCode
	Flags     uint16
	Status    Status
	RequestID uint64
	BodyLen   uint32
}

// AtMostOnce reports whether the at-most-once flag bit is set.
func (h Header) AtMostOnce() bool {
	return h.Flags&FlagAtMostOnce != 0
}

// Message is a decoded (Header, Body) pair.
type Message struct {
	Header Header
	Body   []byte
}

// Encode serializes a message to its wire representation. BodyLen is
// recomputed from len(Body) regardless of what the caller set on Header.
func Encode(msg Message) []byte {
	body := msg.Body
	out := make([]byte, HeaderSize+len(body))

	binary.BigEndian.PutUint32(out[0:4], Magic)
	out[4] = Version
	out[5] = byte(msg.Header.MsgType)
	binary.BigEndian.PutUint16(out[6:8], uint16(msg.Header.OpCode))
	binary.BigEndian.PutUint16(out[8:10], msg.Header.Flags)
	binary.BigEndian.PutUint16(out[10:12], uint16(msg.Header.Status))
	binary.BigEndian.PutUint64(out[12:20], msg.Header.RequestID)
	binary.BigEndian.PutUint32(out[20:24], uint32(len(body)))
	copy(out[HeaderSize:], body)

	return out
}

// Decode parses a wire frame. It rejects magic/version mismatches and
// truncated headers or bodies. Trailing bytes beyond the declared body
// length are ignored: the transport delivers one datagram per message, so
// any excess is unexpected but tolerated rather than rejected.
func Decode(raw []byte) (Message, error) {
	if len(raw) < HeaderSize {
		return Message{}, fmt.Errorf("protocol: short header: %d bytes", len(raw))
	}

	magic := binary.BigEndian.Uint32(raw[0:4])
	if magic != Magic {
		return Message{}, fmt.Errorf("protocol: bad magic: %#x", magic)
	}

	version := raw[4]
	if version != Version {
		return Message{}, fmt.Errorf("protocol: unsupported version: %d", version)
	}

	h := Header{
		MsgType:   MsgType(raw[5]),
		OpCode:    OpCode(binary.BigEndian.Uint16(raw[6:8])),
		Flags:     binary.BigEndian.Uint16(raw[8:10]),
		Status:    Status(binary.BigEndian.Uint16(raw[10:12])),
		RequestID: binary.BigEndian.Uint64(raw[12:20]),
		BodyLen:   binary.BigEndian.Uint32(raw[20:24]),
	}

	if uint32(len(raw)-HeaderSize) < h.BodyLen {
		return Message{}, fmt.Errorf("protocol: truncated body: want %d, have %d", h.BodyLen, len(raw)-HeaderSize)
	}

	body := make([]byte, h.BodyLen)
	copy(body, raw[HeaderSize:HeaderSize+int(h.BodyLen)])

	return Message{Header: h, Body: body}, nil
}

package subscription

import "bankrpc/protocol"

// BuildUpdate encodes a single CALLBACK_UPDATE frame. updateType carries the
// originating opcode (OPEN/CLOSE/DEPOSIT/WITHDRAW/TRANSFER) per spec §4.3;
// callbacks always carry requestId 0 and status OK — they are not replies.
func BuildUpdate(updateType protocol.OpCode, accountNo int32, currency protocol.Currency, newBalance float64, info string) []byte {
	w := protocol.NewWriter()
	w.PutU16(uint16(updateType))
	w.PutI32(accountNo)
	w.PutU16(uint16(currency))
	w.PutDouble(newBalance)
	w.PutString(info)

	return protocol.Encode(protocol.Message{
		Header: protocol.Header{
			MsgType: protocol.MsgTypeCallback,
			OpCode:  protocol.OpCallbackUpdate,
		},
		Body: w.Bytes(),
	})
}

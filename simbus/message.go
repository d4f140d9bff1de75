// Package simbus implements the peer-to-peer UDP "simulation bus" by
// which neighboring simulated power-grid devices discover each other and
// exchange physical-layer values (voltage, equivalent load).
package simbus

import (
	"encoding/binary"
	"math"
)

// Port is the UDP port used for the simulation information exchange
// between devices.
const Port = 20202

// messageLen is the fixed wire size of a Message: 5 uint32s followed by
// 2 float32s, all little-endian.
const messageLen = 28

// MessageID discriminates the bus's small fixed protocol.
type MessageID uint32

const (
	WHOIS    MessageID = 0x00000000 // query the address of a specific device
	IAMHERE  MessageID = 0x00000001 // reply to a WHOIS addressed to us
	GETV     MessageID = 0x00000002 // request a single voltage value
	VOLT     MessageID = 0x00000003 // reply carrying a voltage value
	GETLOAD  MessageID = 0x00000004 // request the equivalent downstream load
	LOAD     MessageID = 0x00000005 // reply carrying an equivalent load value
	NOTREADY MessageID = 0xFFFFFFFE // requested datum not computed yet
	UNKNOWN  MessageID = 0xFFFFFFFF // unsupported message / unknown sender
)

func (m MessageID) String() string {
	switch m {
	case WHOIS:
		return "WHOIS"
	case IAMHERE:
		return "IAMHERE"
	case GETV:
		return "GETV"
	case VOLT:
		return "VOLT"
	case GETLOAD:
		return "GETLOAD"
	case LOAD:
		return "LOAD"
	case NOTREADY:
		return "NOTREADY"
	case UNKNOWN:
		return "UNKNOWN"
	default:
		return "MESSAGE(?)"
	}
}

// Message is the bus's fixed 28-byte UDP datagram:
//
//	0           4             8            12             16             20           24           28
//	[ Sender ID | Receiver ID | Message ID | Integer arg0 | Integer arg1 | Float arg0 | Float arg1 ]
//
// Every field is little-endian. A value not needed by a particular
// MessageID is left zero.
type Message struct {
	SenderID   uint32
	ReceiverID uint32
	MessageID  MessageID
	IntArg0    uint32
	IntArg1    uint32
	FloatArg0  float32
	FloatArg1  float32
}

func (m Message) encode() []byte {
	out := make([]byte, messageLen)
	binary.LittleEndian.PutUint32(out[0:4], m.SenderID)
	binary.LittleEndian.PutUint32(out[4:8], m.ReceiverID)
	binary.LittleEndian.PutUint32(out[8:12], uint32(m.MessageID))
	binary.LittleEndian.PutUint32(out[12:16], m.IntArg0)
	binary.LittleEndian.PutUint32(out[16:20], m.IntArg1)
	binary.LittleEndian.PutUint32(out[20:24], math.Float32bits(m.FloatArg0))
	binary.LittleEndian.PutUint32(out[24:28], math.Float32bits(m.FloatArg1))
	return out
}

func decodeMessage(data []byte) (Message, bool) {
	if len(data) != messageLen {
		return Message{}, false
	}
	return Message{
		SenderID:   binary.LittleEndian.Uint32(data[0:4]),
		ReceiverID: binary.LittleEndian.Uint32(data[4:8]),
		MessageID:  MessageID(binary.LittleEndian.Uint32(data[8:12])),
		IntArg0:    binary.LittleEndian.Uint32(data[12:16]),
		IntArg1:    binary.LittleEndian.Uint32(data[16:20]),
		FloatArg0:  math.Float32frombits(binary.LittleEndian.Uint32(data[20:24])),
		FloatArg1:  math.Float32frombits(binary.LittleEndian.Uint32(data[24:28])),
	}, true
}

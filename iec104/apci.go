package iec104

const startByte = 0x68

// FrameKind is the APCI variant, discriminated by the two lowest bits of
// the first control-field byte.
type FrameKind byte

const (
	// FrameI carries a sequence-numbered ASDU. Bit pattern: .......0
	FrameI FrameKind = iota
	// FrameS is a supervisory acknowledgment. Bit pattern: ......01
	FrameS
	// FrameU is an unnumbered control frame. Bit pattern: ......11
	FrameU
)

func frameKindOf(cf1 byte) FrameKind {
	if cf1&0x01 == 0 {
		return FrameI
	}
	if cf1&0x03 == 0x01 {
		return FrameS
	}
	return FrameU
}

// UFunction selects exactly one of the six U-frame control functions.
type UFunction byte

const (
	StartDTAct UFunction = 0x07
	StartDTCon UFunction = 0x0b
	StopDTAct  UFunction = 0x13
	StopDTCon  UFunction = 0x23
	TestFRAct  UFunction = 0x43
	TestFRCon  UFunction = 0x83
)

func (f UFunction) String() string {
	switch f {
	case StartDTAct:
		return "STARTDT act"
	case StartDTCon:
		return "STARTDT con"
	case StopDTAct:
		return "STOPDT act"
	case StopDTCon:
		return "STOPDT con"
	case TestFRAct:
		return "TESTFR act"
	case TestFRCon:
		return "TESTFR con"
	default:
		return "unknown U function"
	}
}

// IFrame carries the two 15-bit sequence counters, each packed as
// (value<<1) in a little-endian 16-bit word; bit 0 is the I/S
// discriminator, so the counters wrap at 2^15, not 2^16.
type IFrame struct {
	Tx uint16
	Rx uint16
}

func decodeIFrame(cf []byte) IFrame {
	tx := parseLittleEndianUint16(cf[0:2]) >> 1
	rx := parseLittleEndianUint16(cf[2:4]) >> 1
	return IFrame{Tx: tx, Rx: rx}
}

func (f IFrame) encode() []byte {
	out := make([]byte, 4)
	copy(out[0:2], serializeLittleEndianUint16(f.Tx<<1))
	copy(out[2:4], serializeLittleEndianUint16(f.Rx<<1))
	return out
}

// SFrame is a fixed-length acknowledgment carrying only the receive
// counter.
type SFrame struct {
	Rx uint16
}

func decodeSFrame(cf []byte) SFrame {
	return SFrame{Rx: parseLittleEndianUint16(cf[2:4]) >> 1}
}

func (f SFrame) encode() []byte {
	return []byte{0x01, 0x00, byte(f.Rx << 1), byte(f.Rx >> 7)}
}

// UFrame is a fixed-length control frame selecting one of the six
// U-functions.
type UFrame struct {
	Function UFunction
}

func decodeUFrame(cf []byte) UFrame {
	return UFrame{Function: UFunction(cf[0])}
}

func (f UFrame) encode() []byte {
	return []byte{byte(f.Function), 0x00, 0x00, 0x00}
}

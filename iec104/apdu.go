package iec104

// APDU (Application Protocol Data Unit) is a fully decoded frame: the
// 4-byte APCI control field, discriminated by Kind into exactly one of
// I/S/U, plus the ASDU an I-frame may carry.
type APDU struct {
	Kind FrameKind
	I    IFrame
	S    SFrame
	U    UFrame
	Asdu *ASDU // non-nil only for I-frames that carry one
}

// NewIFrame builds an I-frame APDU carrying asdu.
func NewIFrame(tx, rx uint16, asdu ASDU) APDU {
	return APDU{Kind: FrameI, I: IFrame{Tx: tx, Rx: rx}, Asdu: &asdu}
}

// NewSFrame builds a supervisory acknowledgment.
func NewSFrame(rx uint16) APDU {
	return APDU{Kind: FrameS, S: SFrame{Rx: rx}}
}

// NewUFrame builds an unnumbered control frame.
func NewUFrame(fn UFunction) APDU {
	return APDU{Kind: FrameU, U: UFrame{Function: fn}}
}

// Decode parses one APDU from the front of data. It returns the decoded
// APDU and the number of bytes consumed (start byte + length field + the
// declared body), or a *CodecError describing why decoding failed. Decode
// never panics on malformed input.
func Decode(data []byte) (APDU, int, error) {
	if len(data) < 6 {
		return APDU{}, 0, newCodecError(ShortFrame, "need at least 6 bytes, got %d", len(data))
	}
	if data[0] != startByte {
		return APDU{}, 0, newCodecError(BadStart, "got 0x%02x", data[0])
	}
	l := int(data[1])
	if l < 4 {
		return APDU{}, 0, newCodecError(ShortFrame, "length %d below APCI minimum of 4", l)
	}
	consumed := l + 2
	if len(data) < consumed {
		return APDU{}, 0, newCodecError(ShortFrame, "declared length %d needs %d bytes, got %d", l, consumed, len(data))
	}
	cf := data[2:6]
	apdu := APDU{Kind: frameKindOf(cf[0])}
	switch apdu.Kind {
	case FrameI:
		apdu.I = decodeIFrame(cf)
		if l > 4 {
			asdu, err := decodeASDU(data[6:consumed])
			if err != nil {
				return APDU{}, 0, err
			}
			apdu.Asdu = &asdu
		}
	case FrameS:
		apdu.S = decodeSFrame(cf)
	case FrameU:
		apdu.U = decodeUFrame(cf)
	}
	return apdu, consumed, nil
}

// Encode serializes apdu to its wire bytes, the inverse of Decode.
func Encode(apdu APDU) []byte {
	var cf []byte
	var body []byte
	switch apdu.Kind {
	case FrameI:
		cf = apdu.I.encode()
		if apdu.Asdu != nil {
			body = apdu.Asdu.encode()
		}
	case FrameS:
		cf = apdu.S.encode()
	case FrameU:
		cf = apdu.U.encode()
	}
	l := len(cf) + len(body)
	out := make([]byte, 0, l+2)
	out = append(out, startByte, byte(l))
	out = append(out, cf...)
	out = append(out, body...)
	return out
}

package iec104

// COT is the 6-bit Cause-of-Transmission code (bits 0-5 of the ASDU's third
// header byte); bit 6 is the negative-confirmation flag, bit 7 is the test
// flag.
type COT uint8

const (
	CotPeriodic   COT = 1
	CotBackground COT = 2
	CotSpontaneous COT = 3
	CotInit       COT = 4
	CotRequest    COT = 5
	CotActivation COT = 6
	CotActCon     COT = 7
	CotDeact      COT = 8
	CotDeactCon   COT = 9
	CotActTerm    COT = 10
	CotInrogen    COT = 20
	CotUnknownType   COT = 44
	CotUnknownCause  COT = 45
	CotUnknownAddr   COT = 46
	CotUnknownIOA    COT = 47
)

const asduHeaderLen = 6

// ASDU (Application Service Data Unit) carries a type identifier, the
// structure qualifier and object count, cause of transmission, originator
// address, common address, and one or more information objects.
type ASDU struct {
	TypeID   TypeID
	SQ       bool // true: a single object whose IOA is a base for by-offset elements
	NumIx    uint8
	Test     bool
	Negative bool
	Cot      COT
	OA       uint8
	CA       uint16
	Objects  []InformationObject
}

func decodeASDU(data []byte) (ASDU, error) {
	if len(data) < asduHeaderLen {
		return ASDU{}, newCodecError(ShortFrame, "asdu header needs %d bytes, got %d", asduHeaderLen, len(data))
	}
	asdu := ASDU{
		TypeID:   TypeID(data[0]),
		SQ:       data[1]&0x80 != 0,
		NumIx:    data[1] & 0x7f,
		Test:     data[2]&0x80 != 0,
		Negative: data[2]&0x40 != 0,
		Cot:      COT(data[2] & 0x3f),
		OA:       data[3],
		CA:       parseLittleEndianUint16(data[4:6]),
	}
	objs, err := decodeInformationObjects(asdu.TypeID, asdu.SQ, asdu.NumIx, data[asduHeaderLen:])
	if err != nil {
		return ASDU{}, err
	}
	asdu.Objects = objs
	return asdu, nil
}

func (a ASDU) encode() []byte {
	out := make([]byte, asduHeaderLen)
	out[0] = byte(a.TypeID)
	if a.SQ {
		out[1] = 0x80 | (a.NumIx & 0x7f)
	} else {
		out[1] = a.NumIx & 0x7f
	}
	cot := byte(a.Cot) & 0x3f
	if a.Negative {
		cot |= 0x40
	}
	if a.Test {
		cot |= 0x80
	}
	out[2] = cot
	out[3] = a.OA
	copy(out[4:6], serializeLittleEndianUint16(a.CA))
	if a.SQ && len(a.Objects) > 0 {
		out = append(out, serializeIOA24(a.Objects[0].IOA)...)
		for _, obj := range a.Objects {
			out = append(out, obj.Payload.encode()...)
		}
	} else {
		for _, obj := range a.Objects {
			out = append(out, obj.encode()...)
		}
	}
	return out
}

// decodeInformationObjects implements spec 4.1's decode rule: SQ=0 reads
// NumIx full IOA+payload objects; SQ=1 reads one full object, then reuses
// its IOA as a base incremented by index for the remaining payload-only
// elements.
func decodeInformationObjects(t TypeID, sq bool, numIx uint8, body []byte) ([]InformationObject, error) {
	plen, ok := payloadLen(t)
	if !ok {
		return nil, newCodecError(UnknownTypeId, "type %d", t)
	}
	if numIx == 0 {
		return nil, nil
	}
	if sq {
		want := ioaLen + plen + (int(numIx)-1)*plen
		if len(body) < want {
			return nil, newCodecError(Truncated, "sq=1 body needs %d bytes, got %d", want, len(body))
		}
		baseIOA := parseIOA24(body[0:ioaLen])
		objs := make([]InformationObject, 0, numIx)
		offset := ioaLen
		for i := 0; i < int(numIx); i++ {
			payload, err := decodePayload(t, body[offset:offset+plen])
			if err != nil {
				return nil, err
			}
			objs = append(objs, InformationObject{IOA: baseIOA + uint32(i), Payload: payload})
			offset += plen
		}
		return objs, nil
	}
	objLen := ioaLen + plen
	want := objLen * int(numIx)
	if len(body) < want {
		return nil, newCodecError(Truncated, "sq=0 body needs %d bytes, got %d", want, len(body))
	}
	objs := make([]InformationObject, 0, numIx)
	for i := 0; i < int(numIx); i++ {
		start := i * objLen
		ioa := parseIOA24(body[start : start+ioaLen])
		payload, err := decodePayload(t, body[start+ioaLen:start+objLen])
		if err != nil {
			return nil, err
		}
		objs = append(objs, InformationObject{IOA: ioa, Payload: payload})
	}
	return objs, nil
}

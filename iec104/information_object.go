package iec104

import "fmt"

// TypeID identifies the structure of an information object's payload. Only
// the subset actually exchanged by the devices this codec serves is
// implemented; anything else decodes as UnknownTypeId.
type TypeID uint8

const (
	MSpNa1 TypeID = 1   // single-point information with quality
	MDpNa1 TypeID = 3   // double-point information with quality
	MStNa1 TypeID = 5   // step-position information with quality
	MBoNa1 TypeID = 7   // bitstring of 32 bit
	MMeNa1 TypeID = 9   // measured value, normalized
	MMeNc1 TypeID = 13  // measured value, short floating point
	MSpTb1 TypeID = 30  // single-point information with CP56Time
	MDpTb1 TypeID = 31  // double-point information with CP56Time
	MMeTf1 TypeID = 36  // measured, short floating point with CP56Time
	CScNa1 TypeID = 45  // single command
	CSeNc1 TypeID = 50  // set-point command, short floating point
	MEiNa1 TypeID = 70  // end of initialization
	CIcNa1 TypeID = 100 // interrogation command
	CCsNa1 TypeID = 103 // clock synchronization command
)

const ioaLen = 3

// payloadLen is the authoritative type -> payload-byte-length table used
// both to reject unknown types and to size SQ=1 continuation elements.
func payloadLen(t TypeID) (int, bool) {
	switch t {
	case MSpNa1:
		return 1, true
	case MDpNa1:
		return 1, true
	case MStNa1:
		return 2, true
	case MBoNa1:
		return 5, true
	case MMeNa1:
		return 3, true
	case MMeNc1:
		return 5, true
	case MSpTb1:
		return 1 + cp56TimeLen, true
	case MDpTb1:
		return 1 + cp56TimeLen, true
	case MMeTf1:
		return 4 + 1 + cp56TimeLen, true
	case CScNa1:
		return 1, true
	case CSeNc1:
		return 5, true
	case MEiNa1:
		return 1, true
	case CIcNa1:
		return 1, true
	case CCsNa1:
		return cp56TimeLen, true
	default:
		return 0, false
	}
}

// QualityFlags are the IV/NT/SB/BL bits shared by every quality-carrying
// payload (bits 4-7 of the relevant byte).
type QualityFlags byte

const (
	QualityIV QualityFlags = 1 << 7 // invalid
	QualityNT QualityFlags = 1 << 6 // not topical
	QualitySB QualityFlags = 1 << 5 // substituted
	QualityBL QualityFlags = 1 << 4 // blocked
)

func (q QualityFlags) Has(f QualityFlags) bool { return q&f == f }

// DPIValue is the 2-bit double-point indication.
type DPIValue byte

const (
	DPIIndeterminate0 DPIValue = 0
	DPIOff            DPIValue = 1
	DPIOn             DPIValue = 2
	DPIIndeterminate3 DPIValue = 3
)

// InformationObject pairs a 3-byte IOA with its type-specific payload.
type InformationObject struct {
	IOA     uint32
	Payload IOPayload
}

// IOPayload is the closed set of supported information-object bodies;
// decoding dispatches once on TypeID rather than through open-ended
// dynamic dispatch.
type IOPayload interface {
	TypeID() TypeID
	encode() []byte
}

type SinglePoint struct {
	Value   bool
	Quality QualityFlags
}

func (SinglePoint) TypeID() TypeID { return MSpNa1 }
func (p SinglePoint) encode() []byte {
	b := byte(p.Quality)
	if p.Value {
		b |= 0x01
	}
	return []byte{b}
}
func decodeSinglePoint(data []byte) SinglePoint {
	return SinglePoint{Value: data[0]&0x01 != 0, Quality: QualityFlags(data[0] & 0xf0)}
}

type DoublePoint struct {
	Value   DPIValue
	Quality QualityFlags
}

func (DoublePoint) TypeID() TypeID { return MDpNa1 }
func (p DoublePoint) encode() []byte {
	return []byte{byte(p.Quality) | byte(p.Value&0x03)}
}
func decodeDoublePoint(data []byte) DoublePoint {
	return DoublePoint{Value: DPIValue(data[0] & 0x03), Quality: QualityFlags(data[0] & 0xf0)}
}

type StepPosition struct {
	Transient bool
	Value     int8 // 7-bit signed value, range [-64, 63]
	Quality   QualityFlags
}

func (StepPosition) TypeID() TypeID { return MStNa1 }
func (p StepPosition) encode() []byte {
	vti := byte(p.Value) & 0x7f
	if p.Transient {
		vti |= 0x80
	}
	return []byte{vti, byte(p.Quality)}
}
func decodeStepPosition(data []byte) StepPosition {
	raw := data[0] & 0x7f
	if raw&0x40 != 0 {
		raw |= 0x80 // sign-extend bit 6 into bit 7 for an int8 two's complement read
	}
	return StepPosition{Transient: data[0]&0x80 != 0, Value: int8(raw), Quality: QualityFlags(data[1] & 0xf0)}
}

type Bitstring32 struct {
	Value   uint32
	Quality QualityFlags
}

func (Bitstring32) TypeID() TypeID { return MBoNa1 }
func (p Bitstring32) encode() []byte {
	return append(serializeLittleEndianUint32(p.Value), byte(p.Quality))
}
func decodeBitstring32(data []byte) Bitstring32 {
	return Bitstring32{Value: parseLittleEndianUint32(data[0:4]), Quality: QualityFlags(data[4] & 0xf0)}
}

type MeasuredNormalized struct {
	Value   int16
	Quality QualityFlags
}

func (MeasuredNormalized) TypeID() TypeID { return MMeNa1 }
func (p MeasuredNormalized) encode() []byte {
	return append(serializeLittleEndianUint16(uint16(p.Value)), byte(p.Quality))
}
func decodeMeasuredNormalized(data []byte) MeasuredNormalized {
	return MeasuredNormalized{Value: parseLittleEndianInt16(data[0:2]), Quality: QualityFlags(data[2] & 0xf0)}
}

type MeasuredFloat struct {
	Value   float32
	Quality QualityFlags
}

func (MeasuredFloat) TypeID() TypeID { return MMeNc1 }
func (p MeasuredFloat) encode() []byte {
	return append(serializeLittleEndianFloat32(p.Value), byte(p.Quality))
}
func decodeMeasuredFloat(data []byte) MeasuredFloat {
	return MeasuredFloat{Value: parseLittleEndianFloat32(data[0:4]), Quality: QualityFlags(data[4] & 0xf0)}
}

type SinglePointTime struct {
	Value   bool
	Quality QualityFlags
	Time    CP56Time
}

func (SinglePointTime) TypeID() TypeID { return MSpTb1 }
func (p SinglePointTime) encode() []byte {
	sp := SinglePoint{Value: p.Value, Quality: p.Quality}
	return append(sp.encode(), p.Time.encode()...)
}
func decodeSinglePointTime(data []byte) (SinglePointTime, error) {
	sp := decodeSinglePoint(data[0:1])
	t, err := decodeCP56Time(data[1:])
	if err != nil {
		return SinglePointTime{}, err
	}
	return SinglePointTime{Value: sp.Value, Quality: sp.Quality, Time: t}, nil
}

type DoublePointTime struct {
	Value   DPIValue
	Quality QualityFlags
	Time    CP56Time
}

func (DoublePointTime) TypeID() TypeID { return MDpTb1 }
func (p DoublePointTime) encode() []byte {
	dp := DoublePoint{Value: p.Value, Quality: p.Quality}
	return append(dp.encode(), p.Time.encode()...)
}
func decodeDoublePointTime(data []byte) (DoublePointTime, error) {
	dp := decodeDoublePoint(data[0:1])
	t, err := decodeCP56Time(data[1:])
	if err != nil {
		return DoublePointTime{}, err
	}
	return DoublePointTime{Value: dp.Value, Quality: dp.Quality, Time: t}, nil
}

type MeasuredFloatTime struct {
	Value   float32
	Quality QualityFlags
	Time    CP56Time
}

func (MeasuredFloatTime) TypeID() TypeID { return MMeTf1 }
func (p MeasuredFloatTime) encode() []byte {
	out := append(serializeLittleEndianFloat32(p.Value), byte(p.Quality))
	return append(out, p.Time.encode()...)
}
func decodeMeasuredFloatTime(data []byte) (MeasuredFloatTime, error) {
	t, err := decodeCP56Time(data[5:])
	if err != nil {
		return MeasuredFloatTime{}, err
	}
	return MeasuredFloatTime{
		Value:   parseLittleEndianFloat32(data[0:4]),
		Quality: QualityFlags(data[4] & 0xf0),
		Time:    t,
	}, nil
}

// SingleCommand is the type-45 SCO payload used for select-before-operate.
// SE selects between SELECT (true) and EXECUTE (false); QU is the
// qualifier of command (unused here beyond round-tripping); SCS is the
// single command state (close=true/open=false in this emulator's usage).
type SingleCommand struct {
	Select bool
	QU     uint8
	SCS    bool
}

func (SingleCommand) TypeID() TypeID { return CScNa1 }
func (p SingleCommand) encode() []byte {
	b := (p.QU & 0x3f) << 1
	if p.Select {
		b |= 0x80
	}
	if p.SCS {
		b |= 0x01
	}
	return []byte{b}
}
func decodeSingleCommand(data []byte) SingleCommand {
	return SingleCommand{
		Select: data[0]&0x80 != 0,
		QU:     (data[0] >> 1) & 0x3f,
		SCS:    data[0]&0x01 != 0,
	}
}

type SetPointFloat struct {
	Value float32
	QOS   byte
}

func (SetPointFloat) TypeID() TypeID { return CSeNc1 }
func (p SetPointFloat) encode() []byte {
	return append(serializeLittleEndianFloat32(p.Value), p.QOS)
}
func decodeSetPointFloat(data []byte) SetPointFloat {
	return SetPointFloat{Value: parseLittleEndianFloat32(data[0:4]), QOS: data[4]}
}

type EndOfInitialization struct {
	COI byte
}

func (EndOfInitialization) TypeID() TypeID { return MEiNa1 }
func (p EndOfInitialization) encode() []byte { return []byte{p.COI} }
func decodeEndOfInitialization(data []byte) EndOfInitialization {
	return EndOfInitialization{COI: data[0]}
}

type InterrogationCommand struct {
	QOI byte
}

func (InterrogationCommand) TypeID() TypeID { return CIcNa1 }
func (p InterrogationCommand) encode() []byte { return []byte{p.QOI} }
func decodeInterrogationCommand(data []byte) InterrogationCommand {
	return InterrogationCommand{QOI: data[0]}
}

type ClockSync struct {
	Time CP56Time
}

func (ClockSync) TypeID() TypeID { return CCsNa1 }
func (p ClockSync) encode() []byte { return p.Time.encode() }
func decodeClockSync(data []byte) (ClockSync, error) {
	t, err := decodeCP56Time(data)
	if err != nil {
		return ClockSync{}, err
	}
	return ClockSync{Time: t}, nil
}

// decodePayload decodes a single payload of the given type from data,
// which must be exactly payloadLen(t) bytes.
func decodePayload(t TypeID, data []byte) (IOPayload, error) {
	switch t {
	case MSpNa1:
		return decodeSinglePoint(data), nil
	case MDpNa1:
		return decodeDoublePoint(data), nil
	case MStNa1:
		return decodeStepPosition(data), nil
	case MBoNa1:
		return decodeBitstring32(data), nil
	case MMeNa1:
		return decodeMeasuredNormalized(data), nil
	case MMeNc1:
		return decodeMeasuredFloat(data), nil
	case MSpTb1:
		return decodeSinglePointTime(data)
	case MDpTb1:
		return decodeDoublePointTime(data)
	case MMeTf1:
		return decodeMeasuredFloatTime(data)
	case CScNa1:
		return decodeSingleCommand(data), nil
	case CSeNc1:
		return decodeSetPointFloat(data), nil
	case MEiNa1:
		return decodeEndOfInitialization(data), nil
	case CIcNa1:
		return decodeInterrogationCommand(data), nil
	case CCsNa1:
		return decodeClockSync(data)
	default:
		return nil, newCodecError(UnknownTypeId, "type %d", t)
	}
}

func (io InformationObject) encode() []byte {
	return append(serializeIOA24(io.IOA), io.Payload.encode()...)
}

func (t TypeID) String() string {
	return fmt.Sprintf("TypeID(%d)", uint8(t))
}

package iec104

import (
	"bytes"
	"testing"
)

func mustDecode(t *testing.T, data []byte) (APDU, int) {
	t.Helper()
	apdu, n, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode(% X): %v", data, err)
	}
	return apdu, n
}

func TestDecodeEncodeByteVectors(t *testing.T) {
	tests := []struct {
		name string
		want []byte
		apdu APDU
	}{
		{
			"STARTDT act",
			[]byte{0x68, 0x04, 0x07, 0x00, 0x00, 0x00},
			NewUFrame(StartDTAct),
		},
		{
			"STARTDT con",
			[]byte{0x68, 0x04, 0x0B, 0x00, 0x00, 0x00},
			NewUFrame(StartDTCon),
		},
		{
			"STOPDT act",
			[]byte{0x68, 0x04, 0x13, 0x00, 0x00, 0x00},
			NewUFrame(StopDTAct),
		},
		{
			"STOPDT con",
			[]byte{0x68, 0x04, 0x23, 0x00, 0x00, 0x00},
			NewUFrame(StopDTCon),
		},
		{
			"TESTFR act",
			[]byte{0x68, 0x04, 0x43, 0x00, 0x00, 0x00},
			NewUFrame(TestFRAct),
		},
		{
			"TESTFR con",
			[]byte{0x68, 0x04, 0x83, 0x00, 0x00, 0x00},
			NewUFrame(TestFRCon),
		},
		{
			"S-frame Rx=0x111F",
			[]byte{0x68, 0x04, 0x01, 0x00, 0x3E, 0x22},
			NewSFrame(0x111F),
		},
		{
			"I-frame type-3 breaker DPI=ON",
			[]byte{0x68, 0x0E, 0x1C, 0x00, 0x08, 0x00, 0x03, 0x01, 0x03, 0x00, 0x0A, 0x00, 0x65, 0x00, 0x00, 0x02},
			NewIFrame(14, 4, ASDU{
				TypeID: MDpNa1,
				NumIx:  1,
				Cot:    CotSpontaneous,
				CA:     10,
				Objects: []InformationObject{
					{IOA: 101, Payload: DoublePoint{Value: DPIOn}},
				},
			}),
		},
		{
			"I-frame type-36 voltage with timestamp",
			[]byte{
				0x68, 0x19, 0x6C, 0x00, 0x94, 0x00,
				0x24, 0x01, 0x03, 0x00, 0x21, 0x00,
				0xC9, 0x04, 0x00, 0x58, 0xFD, 0x79, 0x41, 0x00,
				0x6F, 0x33, 0x09, 0x16, 0x78, 0x03, 0x15,
			},
			NewIFrame(54, 74, ASDU{
				TypeID: MMeTf1,
				NumIx:  1,
				Cot:    CotSpontaneous,
				CA:     33,
				Objects: []InformationObject{
					{IOA: 1225, Payload: MeasuredFloatTime{
						Value: 15.624351501464844,
						Time: CP56Time{
							Millisecond: 13167,
							Minute:      9,
							Hour:        22,
							Day:         24,
							DayOfWeek:   3,
							Month:       3,
							Year:        21,
						},
					}},
				},
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.apdu)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode() = % X, want % X", got, tt.want)
			}
			decoded, n := mustDecode(t, tt.want)
			if n != len(tt.want) {
				t.Errorf("consumed %d, want %d", n, len(tt.want))
			}
			roundTripped := Encode(decoded)
			if !bytes.Equal(roundTripped, tt.want) {
				t.Errorf("decode->encode round trip = % X, want % X", roundTripped, tt.want)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Run("bad start byte", func(t *testing.T) {
		_, _, err := Decode([]byte{0x00, 0x04, 0x07, 0x00, 0x00, 0x00})
		if !IsCodecError(err, BadStart) {
			t.Fatalf("err = %v, want BadStart", err)
		}
	})
	t.Run("too short to hold header", func(t *testing.T) {
		_, _, err := Decode([]byte{0x68, 0x04, 0x07})
		if !IsCodecError(err, ShortFrame) {
			t.Fatalf("err = %v, want ShortFrame", err)
		}
	})
	t.Run("declared length exceeds buffer", func(t *testing.T) {
		_, _, err := Decode([]byte{0x68, 0x20, 0x07, 0x00, 0x00, 0x00})
		if !IsCodecError(err, ShortFrame) {
			t.Fatalf("err = %v, want ShortFrame", err)
		}
	})
	t.Run("unknown type id", func(t *testing.T) {
		data := []byte{
			0x68, 0x0A, 0x00, 0x00, 0x00, 0x00,
			0xFE, 0x01, 0x03, 0x00, 0x0A, 0x00,
		}
		_, _, err := Decode(data)
		if !IsCodecError(err, UnknownTypeId) {
			t.Fatalf("err = %v, want UnknownTypeId", err)
		}
	})
}

func TestRoundTripConstructibleTypes(t *testing.T) {
	time := CP56Time{Millisecond: 1500, Minute: 30, Hour: 12, Day: 15, DayOfWeek: 2, Month: 6, Year: 24}
	objects := []InformationObject{
		{IOA: 1, Payload: SinglePoint{Value: true, Quality: QualityIV}},
		{IOA: 2, Payload: DoublePoint{Value: DPIOn, Quality: QualityBL}},
		{IOA: 3, Payload: StepPosition{Transient: true, Value: -12, Quality: QualitySB}},
		{IOA: 4, Payload: Bitstring32{Value: 0xdeadbeef, Quality: QualityNT}},
		{IOA: 5, Payload: MeasuredNormalized{Value: -1234}},
		{IOA: 6, Payload: MeasuredFloat{Value: 3.25}},
		{IOA: 7, Payload: SinglePointTime{Value: true, Time: time}},
		{IOA: 8, Payload: DoublePointTime{Value: DPIOff, Time: time}},
		{IOA: 9, Payload: MeasuredFloatTime{Value: -99.5, Time: time}},
		{IOA: 10, Payload: SingleCommand{Select: true, QU: 0, SCS: true}},
		{IOA: 11, Payload: SetPointFloat{Value: 42.0, QOS: 0}},
		{IOA: 12, Payload: EndOfInitialization{COI: 0}},
		{IOA: 13, Payload: InterrogationCommand{QOI: 20}},
		{IOA: 14, Payload: ClockSync{Time: time}},
	}
	for _, obj := range objects {
		asdu := ASDU{TypeID: obj.Payload.TypeID(), NumIx: 1, Cot: CotSpontaneous, CA: 1, Objects: []InformationObject{obj}}
		apdu := NewIFrame(0, 0, asdu)
		encoded := Encode(apdu)
		decoded, n, err := Decode(encoded)
		if err != nil {
			t.Fatalf("type %v: decode: %v", obj.Payload.TypeID(), err)
		}
		if n != len(encoded) {
			t.Fatalf("type %v: consumed %d, want %d", obj.Payload.TypeID(), n, len(encoded))
		}
		reEncoded := Encode(decoded)
		if !bytes.Equal(reEncoded, encoded) {
			t.Errorf("type %v: round trip mismatch: % X != % X", obj.Payload.TypeID(), reEncoded, encoded)
		}
	}
}

func TestSQ1ContinuationAddressing(t *testing.T) {
	asdu := ASDU{
		TypeID: MSpNa1,
		SQ:     true,
		NumIx:  3,
		Cot:    CotSpontaneous,
		CA:     1,
		Objects: []InformationObject{
			{IOA: 100, Payload: SinglePoint{Value: true}},
			{IOA: 101, Payload: SinglePoint{Value: false}},
			{IOA: 102, Payload: SinglePoint{Value: true}},
		},
	}
	apdu := NewIFrame(0, 0, asdu)
	encoded := Encode(apdu)
	decoded, _, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Asdu.Objects) != 3 {
		t.Fatalf("got %d objects, want 3", len(decoded.Asdu.Objects))
	}
	for i, obj := range decoded.Asdu.Objects {
		if obj.IOA != 100+uint32(i) {
			t.Errorf("object %d IOA = %d, want %d", i, obj.IOA, 100+i)
		}
	}
}

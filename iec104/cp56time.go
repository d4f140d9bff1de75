package iec104

// CP56Time is the 7-byte binary timestamp used by the timestamped
// information object types (30, 31, 36) and the clock-sync command (103).
//
//	| <-              8 bits              -> |
//	| Milliseconds                    [LSB]  |  --
//	| Milliseconds                    [MSB]  |    |
//	| IV  | 0 | Minutes                      |    |
//	| SU  | 0 | 0  | Hours                   |  CP56Time (7 bytes)
//	| Day of week  | Day of month            |    |
//	| 0   | 0  | 0 | 0 | Month               |    |
//	| 0   | Year                             |  --
//
// IV (bit 7 of the minute byte) marks the timestamp invalid; SU (bit 7 of
// the hour byte) marks summer time. The day-of-week field occupies the
// upper 3 bits of the day byte; some IEC-104 stacks ignore it, but it is
// preserved here verbatim on both encode and decode.
type CP56Time struct {
	Millisecond int    // 0-59999 (seconds*1000+ms)
	Minute      int    // 0-59
	Invalid     bool   // IV
	Hour        int    // 0-23
	SummerTime  bool   // SU
	Day         int    // 1-31 (day of month)
	DayOfWeek   int    // 1-7 (ISO weekday; 0 also accepted/emitted verbatim)
	Month       int    // 1-12
	Year        int    // 0-99 (two-digit year, i.e. year-2000)
}

const cp56TimeLen = 7

func decodeCP56Time(data []byte) (CP56Time, error) {
	if len(data) < cp56TimeLen {
		return CP56Time{}, newCodecError(Truncated, "CP56Time needs %d bytes, got %d", cp56TimeLen, len(data))
	}
	ms := int(parseLittleEndianUint16(data[0:2]))
	minByte := data[2]
	hourByte := data[3]
	dayByte := data[4]
	monthByte := data[5]
	yearByte := data[6]
	return CP56Time{
		Millisecond: ms,
		Minute:      int(minByte & 0x3f),
		Invalid:     minByte&0x80 != 0,
		Hour:        int(hourByte & 0x1f),
		SummerTime:  hourByte&0x80 != 0,
		Day:         int(dayByte & 0x1f),
		DayOfWeek:   int(dayByte >> 5 & 0x07),
		Month:       int(monthByte & 0x0f),
		Year:        int(yearByte & 0x7f),
	}, nil
}

func (t CP56Time) encode() []byte {
	out := make([]byte, cp56TimeLen)
	copy(out[0:2], serializeLittleEndianUint16(uint16(t.Millisecond)))
	minByte := byte(t.Minute & 0x3f)
	if t.Invalid {
		minByte |= 0x80
	}
	out[2] = minByte
	hourByte := byte(t.Hour & 0x1f)
	if t.SummerTime {
		hourByte |= 0x80
	}
	out[3] = hourByte
	out[4] = byte(t.Day&0x1f) | byte(t.DayOfWeek&0x07)<<5
	out[5] = byte(t.Month & 0x0f)
	out[6] = byte(t.Year & 0x7f)
	return out
}

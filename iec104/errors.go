package iec104

import "fmt"

// ErrorKind discriminates the closed set of recoverable codec failures.
// The codec never panics or aborts on malformed input; every failure
// mode surfaces as one of these.
type ErrorKind int

const (
	// BadStart means the first byte of the buffer was not 0x68.
	BadStart ErrorKind = iota
	// ShortFrame means the buffer is too small to hold the declared length,
	// or the declared length is below the 4-byte APCI minimum.
	ShortFrame
	// UnknownTypeId means an ASDU's type identifier is not in the
	// supported type table.
	UnknownTypeId
	// Truncated means an information object/element ran past the end of
	// its containing buffer.
	Truncated
	// LengthMismatch means the ASDU's encoded length didn't divide evenly
	// across its declared number of objects (SQ=0) or elements (SQ=1).
	LengthMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case BadStart:
		return "bad start byte"
	case ShortFrame:
		return "short frame"
	case UnknownTypeId:
		return "unknown type id"
	case Truncated:
		return "truncated"
	case LengthMismatch:
		return "length mismatch"
	default:
		return "unknown codec error"
	}
}

// CodecError is returned by Decode for every malformed-input case. It is
// always recoverable by the caller: drop the frame (or the connection, on
// repeated corruption) and keep going.
type CodecError struct {
	Kind ErrorKind
	Msg  string
}

func (e *CodecError) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newCodecError(kind ErrorKind, format string, args ...interface{}) *CodecError {
	return &CodecError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsCodecError reports whether err is a *CodecError of the given kind.
func IsCodecError(err error, kind ErrorKind) bool {
	ce, ok := err.(*CodecError)
	return ok && ce.Kind == kind
}

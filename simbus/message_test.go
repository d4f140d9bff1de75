package simbus

import (
	"bytes"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"whois", Message{SenderID: 1, ReceiverID: 2, MessageID: WHOIS}},
		{"iamhere", Message{SenderID: 2, ReceiverID: 1, MessageID: IAMHERE}},
		{"volt", Message{SenderID: 2, ReceiverID: 1, MessageID: VOLT, FloatArg0: 219.5}},
		{"load", Message{SenderID: 3, ReceiverID: 2, MessageID: LOAD, FloatArg0: 47.125, FloatArg1: 12}},
		{"unknown", Message{SenderID: 9, ReceiverID: 1, MessageID: UNKNOWN}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.msg.encode()
			if len(encoded) != messageLen {
				t.Fatalf("encode() len = %d, want %d", len(encoded), messageLen)
			}
			decoded, ok := decodeMessage(encoded)
			if !ok {
				t.Fatalf("decodeMessage() failed on own output")
			}
			if decoded != tt.msg {
				t.Errorf("round trip = %+v, want %+v", decoded, tt.msg)
			}
			if !bytes.Equal(decoded.encode(), encoded) {
				t.Errorf("re-encode mismatch")
			}
		})
	}
}

func TestDecodeMessageRejectsBadLength(t *testing.T) {
	if _, ok := decodeMessage(make([]byte, messageLen-1)); ok {
		t.Fatal("expected decode failure on short datagram")
	}
	if _, ok := decodeMessage(make([]byte, messageLen+1)); ok {
		t.Fatal("expected decode failure on long datagram")
	}
}

func TestMessageIDString(t *testing.T) {
	tests := []struct {
		id   MessageID
		want string
	}{
		{WHOIS, "WHOIS"},
		{VOLT, "VOLT"},
		{NOTREADY, "NOTREADY"},
		{UNKNOWN, "UNKNOWN"},
		{MessageID(0x1234), "MESSAGE(?)"},
	}
	for _, tt := range tests {
		if got := tt.id.String(); got != tt.want {
			t.Errorf("MessageID(%d).String() = %q, want %q", tt.id, got, tt.want)
		}
	}
}

package grid

import (
	"testing"

	"github.com/nefics/iec104grid/iec104"
	"github.com/nefics/iec104grid/simbus"
)

func TestSourcePollValuesReportsFixedVoltage(t *testing.T) {
	src := NewSource(1, 2, 500)
	values := src.PollValues()
	if len(values) != 1 {
		t.Fatalf("len(PollValues()) = %d, want 1", len(values))
	}
	payload, ok := values[0].Objects[0].Payload.(iec104.MeasuredFloatTime)
	if !ok {
		t.Fatalf("payload type = %T, want MeasuredFloatTime", values[0].Objects[0].Payload)
	}
	if payload.Value != 500 {
		t.Errorf("Value = %v, want 500", payload.Value)
	}
}

func TestSourceHandleIFrameAlwaysUnknownCause(t *testing.T) {
	src := NewSource(1, 2, 500)
	in := iec104.ASDU{TypeID: iec104.CIcNa1, NumIx: 1, Cot: iec104.CotActivation}
	reply, ok := src.HandleIFrame(in)
	if !ok || reply.Cot != iec104.CotUnknownCause {
		t.Errorf("Cot = %v, ok = %v, want CotUnknownCause/true", reply.Cot, ok)
	}
}

func TestSourceHandlePeerMessageAnswersGetVFromOutbound(t *testing.T) {
	src := NewSource(1, 2, 219.5)
	reply := src.HandlePeerMessage(simbus.Message{MessageID: simbus.GETV}, false)
	if reply == nil || reply.MessageID != simbus.VOLT || reply.FloatArg0 != 219.5 {
		t.Errorf("reply = %+v, want VOLT/219.5", reply)
	}
}

func TestSourceHandlePeerMessageRejectsInbound(t *testing.T) {
	src := NewSource(1, 2, 219.5)
	reply := src.HandlePeerMessage(simbus.Message{MessageID: simbus.GETV}, true)
	if reply == nil || reply.MessageID != simbus.UNKNOWN {
		t.Errorf("reply = %+v, want UNKNOWN", reply)
	}
}

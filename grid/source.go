package grid

import (
	"fmt"
	"time"

	"github.com/nefics/iec104grid/iec104"
	"github.com/nefics/iec104grid/simbus"
)

// Source is the generator at the head of a grid line: it supplies a
// fixed output voltage to a single downstream (outbound) neighbor and
// never draws from an upstream one. Grounded on simplepowergrid.py's
// Source class.
type Source struct {
	guid     uint32
	outbound uint32
	voltage  float32
}

// NewSource builds a Source device with guid reporting voltage to the
// neighbor identified by outbound.
func NewSource(guid, outbound uint32, voltage float32) *Source {
	return &Source{guid: guid, outbound: outbound, voltage: voltage}
}

func (s *Source) GUID() uint32 { return s.guid }

func (s *Source) String() string {
	return fmt.Sprintf("Vout: %6.3f V\n", s.voltage)
}

// PollValues reports the fixed output voltage as a single type-36
// measured value, the only datum a Source exposes over IEC-104.
func (s *Source) PollValues() []iec104.ASDU {
	return []iec104.ASDU{measuredFloat(BaseIOA, s.voltage)}
}

// HandleIFrame answers any I-frame with an unknown-cause-of-transmission
// ASDU: a Source has no controllable process, so nothing it can be
// asked to do over IEC-104 is meaningful.
func (s *Source) HandleIFrame(asdu iec104.ASDU) (iec104.ASDU, bool) {
	reply := asdu
	reply.Cot = iec104.CotUnknownCause
	return reply, true
}

// SimulationTick is a no-op: a Source's voltage is a fixed parameter,
// not a computed one.
func (s *Source) SimulationTick(bus *simbus.Bus) {
	time.Sleep(333 * time.Millisecond)
}

// HandlePeerMessage answers GETV from its outbound neighbor with its
// fixed voltage; anything else from a known neighbor is UNKNOWN.
func (s *Source) HandlePeerMessage(msg simbus.Message, fromInbound bool) *simbus.Message {
	if fromInbound {
		return &simbus.Message{MessageID: simbus.UNKNOWN}
	}
	switch msg.MessageID {
	case simbus.GETV:
		return &simbus.Message{MessageID: simbus.VOLT, FloatArg0: s.voltage}
	default:
		return &simbus.Message{MessageID: simbus.UNKNOWN}
	}
}

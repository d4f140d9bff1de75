package grid

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nefics/iec104grid/iec104"
	"github.com/nefics/iec104grid/simbus"
)

// Load is a terminal consumer at the tail of a grid line: it reports
// an equivalent resistance to its single upstream (inbound) neighbor
// and derives its current draw from the voltage that neighbor supplies.
// Grounded on simplepowergrid.py's Load class.
type Load struct {
	mu      sync.Mutex
	guid    uint32
	inbound uint32
	load    float32 // ohms; +Inf models an open circuit

	vin *float32
	amp *float32
}

// NewLoad builds a Load device drawing voltage from the neighbor
// identified by inbound and presenting resistance load ohms.
func NewLoad(guid, inbound uint32, load float32) *Load {
	return &Load{guid: guid, inbound: inbound, load: load}
}

func (l *Load) GUID() uint32 { return l.guid }

func (l *Load) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.vin == nil || l.amp == nil {
		return "Awaiting data from configured neighbors ...\n"
	}
	return fmt.Sprintf("Vin:  %6.3f V\nI:    %6.3f A\nR:    %6.3f Ohm\n", *l.vin, *l.amp, l.load)
}

// SetLoad replaces the equivalent resistance this device presents. A
// negative value is ignored, matching the original's "zero models a
// failure, negative is invalid" convention.
func (l *Load) SetLoad(ohms float32) {
	if ohms < 0 {
		return
	}
	l.mu.Lock()
	l.load = ohms
	l.mu.Unlock()
}

func (l *Load) PollValues() []iec104.ASDU {
	l.mu.Lock()
	vin, amp := l.vin, l.amp
	l.mu.Unlock()
	if vin == nil || amp == nil {
		return nil
	}
	return []iec104.ASDU{
		measuredFloat(BaseIOA, *vin),
		measuredFloat(BaseIOA+1, *amp),
	}
}

// HandleIFrame answers any I-frame with an unknown-cause-of-transmission
// ASDU: a Load exposes no controllable process.
func (l *Load) HandleIFrame(asdu iec104.ASDU) (iec104.ASDU, bool) {
	reply := asdu
	reply.Cot = iec104.CotUnknownCause
	return reply, true
}

// SimulationTick asks the inbound neighbor for the supply voltage, then
// recomputes the drawn current from the latest voltage and resistance.
func (l *Load) SimulationTick(bus *simbus.Bus) {
	if bus.AllResolved() {
		bus.Send(l.inbound, simbus.Message{MessageID: simbus.GETV})
		time.Sleep(500 * time.Millisecond)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.vin == nil {
		time.Sleep(333 * time.Millisecond)
		return
	}
	var amp float32
	if math.IsInf(float64(l.load), 1) {
		amp = 0
	} else if l.load == 0 {
		_lg.Warnf("grid: load %d is in short circuit condition", l.guid)
		amp = float32(math.Inf(1))
	} else {
		amp = *l.vin / l.load
	}
	l.amp = &amp
	time.Sleep(333 * time.Millisecond)
}

// HandlePeerMessage answers GETLOAD from its inbound neighbor with its
// equivalent resistance, and records VOLT replies to its own GETV
// requests.
func (l *Load) HandlePeerMessage(msg simbus.Message, fromInbound bool) *simbus.Message {
	if !fromInbound {
		return &simbus.Message{MessageID: simbus.UNKNOWN}
	}
	switch msg.MessageID {
	case simbus.GETLOAD:
		l.mu.Lock()
		load := l.load
		l.mu.Unlock()
		return &simbus.Message{MessageID: simbus.LOAD, FloatArg0: load}
	case simbus.VOLT:
		v := msg.FloatArg0
		l.mu.Lock()
		l.vin = &v
		l.mu.Unlock()
		return nil
	default:
		return &simbus.Message{MessageID: simbus.UNKNOWN}
	}
}

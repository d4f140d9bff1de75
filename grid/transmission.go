package grid

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nefics/iec104grid/iec104"
	"github.com/nefics/iec104grid/simbus"
)

// Transmission is a substation between a single upstream (inbound) and
// downstream (outbound) neighbor. It exposes one breaker per branch
// load and implements the Select-Before-Operate command pattern for
// type-45 single commands. Grounded on simplepowergrid.py's
// Transmission class; the breaker-apply bit mapping follows the
// bit-per-breaker form (bit=1 means the branch is connected).
type Transmission struct {
	guid     uint32
	inbound  uint32
	outbound uint32
	loads    []float32 // ohms per branch; 0 models a shorted branch

	mu            sync.Mutex
	state         uint32
	stateKnown    bool
	lastState     uint32
	pendingSelect *uint32

	load  *float32 // aggregated local resistance
	vin   *float32
	vout  *float32
	amp   *float32
	rload *float32 // equivalent resistance reported by the outbound neighbor
}

// NewTransmission builds a Transmission substation with the given
// branch resistances and initial breaker bitfield state (bit i set
// means branch i is connected).
func NewTransmission(guid, inbound, outbound uint32, loads []float32, state uint32) *Transmission {
	return &Transmission{guid: guid, inbound: inbound, outbound: outbound, loads: loads, state: state}
}

func (t *Transmission) GUID() uint32 { return t.guid }

func (t *Transmission) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.vin == nil || t.vout == nil || t.amp == nil || t.load == nil || t.rload == nil {
		return "Awaiting data from configured neighbors ...\n"
	}
	return fmt.Sprintf(
		"Vin:  %6.3f V\nVout: %6.3f V\nI:    %6.3f A\nBreakers: %0*b\nR:    %6.3f Ohm\nLoad: %6.3f Ohm\n",
		*t.vin, *t.vout, *t.amp, len(t.loads), t.state, *t.load, *t.rload,
	)
}

func (t *Transmission) breakerBaseIOA() uint32 {
	return BaseIOA/10 + 1
}

func (t *Transmission) PollValues() []iec104.ASDU {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.vin == nil || t.amp == nil {
		return nil
	}
	out := []iec104.ASDU{
		measuredFloat(BaseIOA, *t.vin),
		measuredFloat(BaseIOA+1, *t.amp),
	}
	for i := range t.loads {
		dpi := iec104.DPIOff
		if t.state&(1<<uint(i)) != 0 {
			dpi = iec104.DPIOn
		}
		out = append(out, iec104.ASDU{
			TypeID: iec104.MDpNa1,
			NumIx:  1,
			Cot:    iec104.CotSpontaneous,
			Objects: []iec104.InformationObject{
				{IOA: t.breakerBaseIOA() + uint32(i), Payload: iec104.DoublePoint{Value: dpi}},
			},
		})
	}
	return out
}

// HandleIFrame implements the Select-Before-Operate protocol for type-45
// single commands against each configured breaker; any other ASDU is
// echoed back with an unknown-cause-of-transmission.
func (t *Transmission) HandleIFrame(asdu iec104.ASDU) (iec104.ASDU, bool) {
	if asdu.TypeID != iec104.CScNa1 || len(asdu.Objects) != 1 {
		reply := asdu
		reply.Cot = iec104.CotUnknownCause
		return reply, true
	}
	obj := asdu.Objects[0]
	cmd, ok := obj.Payload.(iec104.SingleCommand)
	if !ok {
		reply := asdu
		reply.Cot = iec104.CotUnknownCause
		return reply, true
	}
	idx := int(obj.IOA) - int(t.breakerBaseIOA())
	known := idx >= 0 && idx < len(t.loads)

	t.mu.Lock()
	defer t.mu.Unlock()

	reply := asdu
	switch {
	case t.pendingSelect == nil && cmd.Select && asdu.Cot == iec104.CotActivation:
		if known {
			ioa := obj.IOA
			t.pendingSelect = &ioa
			reply.Cot = iec104.CotActCon
		} else {
			_lg.Warnf("grid: type-45 select on unknown IOA %d", obj.IOA)
			reply.Cot = iec104.CotUnknownIOA
		}
	case t.pendingSelect != nil && !cmd.Select && asdu.Cot == iec104.CotActivation:
		if *t.pendingSelect == obj.IOA {
			reply.Cot = iec104.CotActCon
			t.pendingSelect = nil
			mask := uint32(1) << uint(idx)
			if cmd.SCS {
				t.state |= mask
			} else {
				t.state &^= mask
			}
		} else {
			_lg.Warnf("grid: type-45 execute on unexpected IOA %d", obj.IOA)
			reply.Cot = iec104.CotUnknownIOA
		}
	case t.pendingSelect != nil && cmd.Select && asdu.Cot == iec104.CotDeact:
		t.pendingSelect = nil
		reply.Cot = iec104.CotDeactCon
	default:
		_lg.Warnf("grid: unexpected type-45 command on IOA %d", obj.IOA)
		reply.Cot = iec104.CotUnknownCause
	}
	return reply, true
}

// SimulationTick requests the inbound voltage and outbound equivalent
// load, recomputes the local aggregated resistance when the breaker
// bitfield has changed, then derives Vout and the branch current.
func (t *Transmission) SimulationTick(bus *simbus.Bus) {
	if bus.AllResolved() {
		bus.Send(t.outbound, simbus.Message{MessageID: simbus.GETLOAD})
		bus.Send(t.inbound, simbus.Message{MessageID: simbus.GETV})
		time.Sleep(500 * time.Millisecond)
	}

	t.mu.Lock()
	if !t.stateKnown || t.state != t.lastState {
		t.stateKnown = true
		t.lastState = t.state
		if t.state == 0 {
			_lg.Warn("grid: all breakers are OPEN")
			inf := float32(math.Inf(1))
			t.load = &inf
		} else {
			var load *float32
			for i, r := range t.loads {
				if t.state&(1<<uint(i)) == 0 {
					continue
				}
				if r == 0 {
					_lg.Errorf("grid: short circuit detected on breaker %d", t.breakerBaseIOA()+uint32(i))
					zero := float32(0)
					load = &zero
					break
				}
				if load == nil {
					v := r
					load = &v
				} else {
					combined := (*load * r) / (*load + r)
					load = &combined
				}
			}
			t.load = load
		}
	}

	switch {
	case t.load != nil && math.IsInf(float64(*t.load), 1):
		zero := float32(0)
		t.vout = &zero
		t.amp = &zero
	case t.vin != nil && t.load != nil && t.rload != nil:
		var vout float32
		if math.IsInf(float64(*t.rload), 1) {
			_lg.Warn("grid: breakers OPEN somewhere on the grid")
			vout = *t.vin
		} else {
			vout = *t.vin * *t.rload / (*t.rload + *t.load)
		}
		t.vout = &vout
		if *t.load == 0 {
			_lg.Error("grid: short circuit somewhere on the grid")
			amp := float32(math.Inf(1))
			t.amp = &amp
		} else {
			amp := (*t.vin - vout) / *t.load
			t.amp = &amp
		}
	}
	t.mu.Unlock()

	time.Sleep(333 * time.Millisecond)
}

// HandlePeerMessage answers GETV from the outbound neighbor with Vout
// and GETLOAD from the inbound neighbor with the aggregated local and
// downstream resistance; it records VOLT and LOAD replies to its own
// requests.
func (t *Transmission) HandlePeerMessage(msg simbus.Message, fromInbound bool) *simbus.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case msg.MessageID == simbus.GETV && !fromInbound:
		if t.vout == nil {
			return &simbus.Message{MessageID: simbus.NOTREADY}
		}
		return &simbus.Message{MessageID: simbus.VOLT, FloatArg0: *t.vout}
	case msg.MessageID == simbus.VOLT && fromInbound:
		v := msg.FloatArg0
		t.vin = &v
		return nil
	case msg.MessageID == simbus.GETLOAD && fromInbound:
		if t.load == nil || t.rload == nil {
			return &simbus.Message{MessageID: simbus.NOTREADY}
		}
		return &simbus.Message{MessageID: simbus.LOAD, FloatArg0: *t.load + *t.rload}
	case msg.MessageID == simbus.LOAD && !fromInbound:
		v := msg.FloatArg0
		t.rload = &v
		return nil
	default:
		return &simbus.Message{MessageID: simbus.UNKNOWN}
	}
}

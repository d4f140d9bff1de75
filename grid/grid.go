// Package grid implements the simulated resistive power-grid devices
// exposed over IEC 60870-5-104: a Source (generator), one or more
// Transmission substations, and terminal Loads. Devices are linked in a
// line topology and additionally exchange physical-layer values over
// the simbus peer protocol.
package grid

import (
	"time"

	"github.com/nefics/iec104grid/iec104"
	"github.com/nefics/iec104grid/simbus"
)

// BaseIOA is the first information object address used by every
// device's measured-value reporting; breaker status objects are
// addressed starting at BaseIOA/10 + 1.
const BaseIOA = 1001

// Device is what the IEC-104 session and the simulation bus drive. A
// session calls PollValues/HandleIFrame; SimulationTick and
// HandlePeerMessage are driven by the device's own goroutines.
type Device interface {
	GUID() uint32
	String() string

	// PollValues returns the ASDUs to report during one second of an
	// active data-transfer connection.
	PollValues() []iec104.ASDU
	// HandleIFrame answers one incoming I-frame's ASDU, returning the
	// reply ASDU to send (if any).
	HandleIFrame(asdu iec104.ASDU) (iec104.ASDU, bool)

	// SimulationTick advances the physical model by one step, using bus
	// to request fresh values from neighbors.
	SimulationTick(bus *simbus.Bus)
	// HandlePeerMessage answers a bus message from a recognized
	// neighbor.
	HandlePeerMessage(msg simbus.Message, fromInbound bool) *simbus.Message
}

func nowCP56() iec104.CP56Time {
	now := time.Now()
	dow := int(now.Weekday())
	if dow == 0 {
		dow = 7
	}
	return iec104.CP56Time{
		Millisecond: now.Second()*1000 + now.Nanosecond()/1e6,
		Minute:      now.Minute(),
		Hour:        now.Hour(),
		Day:         now.Day(),
		DayOfWeek:   dow,
		Month:       int(now.Month()),
		Year:        now.Year() - 2000,
	}
}

func measuredFloat(ioa uint32, value float32) iec104.ASDU {
	return iec104.ASDU{
		TypeID: iec104.MMeTf1,
		NumIx:  1,
		Cot:    iec104.CotSpontaneous,
		Objects: []iec104.InformationObject{
			{IOA: ioa, Payload: iec104.MeasuredFloatTime{Value: value, Time: nowCP56()}},
		},
	}
}

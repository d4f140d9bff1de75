// Package session implements the per-connection IEC-104 engine: the
// Stopped/Started data-transfer lifecycle, frame dispatch, sequence
// counters, and the one-per-second data pump.
package session

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nefics/iec104grid/iec104"
)

var _lg = logrus.StandardLogger()

// SetLogger overrides the package-level logger used by sessions and
// listeners.
func SetLogger(l *logrus.Logger) {
	_lg = l
}

// T1 is the idle-inactivity timeout: a connection that sees no traffic
// for this long is closed.
const T1 = 15 * time.Second

// pumpInterval is how often the data pump calls Device.PollValues while
// a session is Started.
const pumpInterval = time.Second

type lifecycle int

const (
	lifecycleStopped lifecycle = iota
	lifecycleStarted
)

// Device is the subset of a grid device a session drives. Declared
// locally rather than imported from package grid so iec104/session has
// no dependency on the device model; grid.Device satisfies this
// interface structurally.
type Device interface {
	PollValues() []iec104.ASDU
	HandleIFrame(asdu iec104.ASDU) (iec104.ASDU, bool)
}

// Session is one SCADA client's IEC-104 connection to a device. It owns
// its own Tx/Rx sequence counters and pump goroutine; the device it
// drives is shared (and must be safe for concurrent use by however many
// sessions and background loops touch it).
type Session struct {
	conn   net.Conn
	device Device
	seq    sequence

	mu        sync.Mutex
	state     lifecycle
	pumpStop  context.CancelFunc
	pumpDone  chan struct{}
}

// NewSession wraps an accepted connection, starting in the Stopped
// state.
func NewSession(conn net.Conn, device Device) *Session {
	return &Session{conn: conn, device: device, state: lifecycleStopped}
}

// Serve reads and dispatches APDUs until the connection closes, a
// protocol violation closes it, T1 expires, or ctx is canceled. It
// always leaves the pump stopped and the socket closed before
// returning.
func (s *Session) Serve(ctx context.Context) {
	defer s.stopPump()
	defer s.conn.Close()

	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	header := make([]byte, 2)
	for {
		if ctx.Err() != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(T1))
		if _, err := io.ReadFull(s.conn, header); err != nil {
			s.logReadError(err, "apci header")
			return
		}
		if header[0] != iec104StartByte {
			_lg.Warnf("session: bad start byte 0x%02x, closing", header[0])
			return
		}
		l := int(header[1])
		if l < 4 {
			_lg.Warnf("session: declared length %d below APCI minimum, closing", l)
			return
		}
		body := make([]byte, l)
		if _, err := io.ReadFull(s.conn, body); err != nil {
			s.logReadError(err, "apdu body")
			return
		}
		frame := make([]byte, 0, 2+l)
		frame = append(frame, header...)
		frame = append(frame, body...)

		apdu, _, err := iec104.Decode(frame)
		if err != nil {
			_lg.WithError(err).Warn("session: dropping malformed apdu")
			continue
		}
		if !s.handle(apdu) {
			return
		}
	}
}

// iec104StartByte mirrors iec104.Decode's own start-byte check; kept
// here only so a bad byte can be logged and the connection closed
// without first allocating and handing a too-short frame to Decode.
const iec104StartByte = 0x68

func (s *Session) logReadError(err error, what string) {
	var ne net.Error
	switch {
	case errors.As(err, &ne) && ne.Timeout():
		_lg.WithField("remote", s.conn.RemoteAddr()).Warn("session: T1 expired, closing")
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		_lg.WithField("remote", s.conn.RemoteAddr()).Debug("session: connection closed")
	default:
		_lg.WithError(err).Warnf("session: read failed on %s", what)
	}
}

// handle dispatches one decoded APDU per the Stopped/Started rules and
// reports whether the connection should stay open.
func (s *Session) handle(apdu iec104.APDU) bool {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	switch apdu.Kind {
	case iec104.FrameU:
		return s.handleUFrame(apdu)
	case iec104.FrameI:
		if st != lifecycleStarted {
			_lg.Warn("session: I-frame received while Stopped, closing")
			return false
		}
		return s.handleIFrame(apdu)
	case iec104.FrameS:
		if st != lifecycleStarted {
			_lg.Warn("session: S-frame received while Stopped, closing")
			return false
		}
		s.seq.onReceiveSFrame(apdu.S.Rx)
		return true
	default:
		return false
	}
}

func (s *Session) handleUFrame(apdu iec104.APDU) bool {
	switch apdu.U.Function {
	case iec104.StartDTAct:
		s.send(iec104.NewUFrame(iec104.StartDTCon))
		s.mu.Lock()
		alreadyStarted := s.state == lifecycleStarted
		s.state = lifecycleStarted
		s.mu.Unlock()
		if !alreadyStarted {
			s.startPump()
		}
		return true
	case iec104.StopDTAct:
		s.stopPump()
		s.mu.Lock()
		s.state = lifecycleStopped
		s.mu.Unlock()
		s.send(iec104.NewUFrame(iec104.StopDTCon))
		return true
	case iec104.TestFRAct:
		s.send(iec104.NewUFrame(iec104.TestFRCon))
		return true
	case iec104.StartDTCon, iec104.StopDTCon, iec104.TestFRCon:
		// These are master-direction confirmations; a SCADA client
		// sending one to us is a protocol oddity, not a reason to tear
		// down the connection.
		_lg.Debugf("session: unexpected confirmation %v from client", apdu.U.Function)
		return true
	default:
		_lg.Warnf("session: unrecognized u-frame function 0x%02x, closing", byte(apdu.U.Function))
		return false
	}
}

func (s *Session) handleIFrame(apdu iec104.APDU) bool {
	s.seq.onReceiveIFrame(apdu.I.Rx)
	if apdu.Asdu == nil {
		return true
	}
	reply, ok := s.device.HandleIFrame(*apdu.Asdu)
	if ok {
		s.sendASDU(reply)
	}
	return true
}

func (s *Session) send(apdu iec104.APDU) {
	if _, err := s.conn.Write(iec104.Encode(apdu)); err != nil {
		_lg.WithError(err).Warn("session: write failed")
	}
}

func (s *Session) sendASDU(asdu iec104.ASDU) {
	tx := s.seq.nextTx()
	rx := s.seq.currentRx()
	s.send(iec104.NewIFrame(tx, rx, asdu))
}

// startPump launches the per-second polling loop; it is a no-op to call
// twice without an intervening stopPump.
func (s *Session) startPump() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pumpStop != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.pumpStop = cancel
	s.pumpDone = done
	go s.pump(ctx, done)
}

func (s *Session) pump(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, asdu := range s.device.PollValues() {
				if ctx.Err() != nil {
					return
				}
				s.sendASDU(asdu)
			}
		}
	}
}

// stopPump cancels the pump and waits for its current iteration to
// drain before returning: the pump is cooperatively torn down, not
// killed.
func (s *Session) stopPump() {
	s.mu.Lock()
	cancel := s.pumpStop
	done := s.pumpDone
	s.pumpStop = nil
	s.pumpDone = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

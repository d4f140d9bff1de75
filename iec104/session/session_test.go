package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nefics/iec104grid/iec104"
)

type fakeDevice struct {
	polled chan struct{}
}

func (d *fakeDevice) PollValues() []iec104.ASDU {
	if d.polled != nil {
		select {
		case d.polled <- struct{}{}:
		default:
		}
	}
	return []iec104.ASDU{
		{
			TypeID: iec104.MMeTf1,
			NumIx:  1,
			Cot:    iec104.CotSpontaneous,
			CA:     1,
			Objects: []iec104.InformationObject{
				{IOA: 1001, Payload: iec104.MeasuredFloatTime{Value: 500}},
			},
		},
	}
}

func (d *fakeDevice) HandleIFrame(asdu iec104.ASDU) (iec104.ASDU, bool) {
	reply := asdu
	reply.Cot = iec104.CotUnknownCause
	return reply, true
}

func readAPDU(t *testing.T, conn net.Conn) iec104.APDU {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	header := make([]byte, 2)
	if _, err := readFull(conn, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	body := make([]byte, header[1])
	if _, err := readFull(conn, body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	frame := append(header, body...)
	apdu, _, err := iec104.Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return apdu
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestStoppedClosesOnIFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	sess := NewSession(server, &fakeDevice{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { sess.Serve(ctx); close(done) }()

	iframe := iec104.NewIFrame(0, 0, iec104.ASDU{
		TypeID: iec104.MSpNa1, NumIx: 1, Cot: iec104.CotSpontaneous,
		Objects: []iec104.InformationObject{{IOA: 1, Payload: iec104.SinglePoint{}}},
	})
	go client.Write(iec104.Encode(iframe))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close on unexpected I-frame while Stopped")
	}
}

func TestStoppedClosesOnSFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	sess := NewSession(server, &fakeDevice{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { sess.Serve(ctx); close(done) }()

	go client.Write(iec104.Encode(iec104.NewSFrame(0)))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close on unexpected S-frame while Stopped")
	}
}

func TestStartDTStartsPumpAndIFrameFlows(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	polled := make(chan struct{}, 4)
	sess := NewSession(server, &fakeDevice{polled: polled})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { sess.Serve(ctx); close(done) }()

	go client.Write(iec104.Encode(iec104.NewUFrame(iec104.StartDTAct)))
	con := readAPDU(t, client)
	if con.Kind != iec104.FrameU || con.U.Function != iec104.StartDTCon {
		t.Fatalf("expected STARTDT con, got %+v", con)
	}

	select {
	case <-polled:
	case <-time.After(2 * time.Second):
		t.Fatal("pump never polled the device after STARTDT")
	}
	reply := readAPDU(t, client)
	if reply.Kind != iec104.FrameI || reply.Asdu == nil {
		t.Fatalf("expected I-frame from pump, got %+v", reply)
	}

	cancel()
	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not exit after context cancellation")
	}
}

func TestTestFRKeepsSessionAlive(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	sess := NewSession(server, &fakeDevice{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { sess.Serve(ctx); close(done) }()

	go client.Write(iec104.Encode(iec104.NewUFrame(iec104.StartDTAct)))
	readAPDU(t, client) // STARTDT con

	go client.Write(iec104.Encode(iec104.NewUFrame(iec104.TestFRAct)))
	con := readAPDU(t, client)
	if con.Kind != iec104.FrameU || con.U.Function != iec104.TestFRCon {
		t.Fatalf("expected TESTFR con, got %+v", con)
	}

	select {
	case <-done:
		t.Fatal("session closed unexpectedly after TESTFR")
	default:
	}
}

func TestStopDTDrainsPumpAndConfirms(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	sess := NewSession(server, &fakeDevice{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { sess.Serve(ctx); close(done) }()

	go client.Write(iec104.Encode(iec104.NewUFrame(iec104.StartDTAct)))
	readAPDU(t, client) // STARTDT con

	go client.Write(iec104.Encode(iec104.NewUFrame(iec104.StopDTAct)))
	con := readAPDU(t, client)
	if con.Kind != iec104.FrameU || con.U.Function != iec104.StopDTCon {
		t.Fatalf("expected STOPDT con, got %+v", con)
	}

	sess.mu.Lock()
	st := sess.state
	sess.mu.Unlock()
	if st != lifecycleStopped {
		t.Errorf("session state = %v, want lifecycleStopped", st)
	}
}

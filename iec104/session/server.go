package session

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
)

// Port is the standard TCP port SCADA clients connect to.
const Port = 2404

// Listener accepts SCADA connections for one device and spawns a
// Session per accepted client.
type Listener struct {
	device Device
	ln     net.Listener

	allowConcurrent bool
	active          int32 // atomic; only meaningful when !allowConcurrent
}

// NewListener binds addr (typically fmt.Sprintf(":%d", session.Port))
// and prepares to serve device. allowConcurrent false (the default)
// rejects any SCADA connection while another accepted one is still
// being served, whether or not it has been Started.
func NewListener(addr string, device Device, allowConcurrent bool) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{device: device, ln: ln, allowConcurrent: allowConcurrent}, nil
}

// Addr returns the bound local address; useful for tests that bind to
// port 0.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts connections until ctx is canceled, spawning one Session
// goroutine per accepted client, and returns once every spawned session
// has exited.
func (l *Listener) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			_lg.WithError(err).Warn("session: accept failed")
			continue
		}
		if !l.allowConcurrent && !atomic.CompareAndSwapInt32(&l.active, 0, 1) {
			_lg.WithField("remote", conn.RemoteAddr()).Warn("session: rejecting concurrent SCADA connection")
			conn.Close()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !l.allowConcurrent {
				defer atomic.StoreInt32(&l.active, 0)
			}
			NewSession(conn, l.device).Serve(ctx)
		}()
	}
	wg.Wait()
}

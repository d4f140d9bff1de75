package simbus

import (
	"context"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

var _lg = logrus.StandardLogger()

// SetLogger overrides the package-level logger.
func SetLogger(l *logrus.Logger) {
	_lg = l
}

// discoveryInterval is how often WHOIS is re-broadcast for any neighbor
// whose address is still unresolved.
const discoveryInterval = 333 * time.Millisecond

// inboxDepth bounds how many not-yet-dispatched datagrams a Bus holds;
// a device that falls behind drops the oldest rather than blocking the
// socket reader, mirroring a bounded deque.
const inboxDepth = 64

// Handler reacts to a bus message addressed to this device from a
// recognized neighbor. fromInbound is true when the sender is one of
// this device's upstream (inbound) neighbors, false for downstream
// (outbound). A non-nil return is sent back to the sender; nil means no
// reply.
type Handler func(msg Message, fromInbound bool) *Message

type rawDatagram struct {
	msg  Message
	addr *net.UDPAddr
}

// Bus is one device's UDP peer for the simulation bus: it resolves the
// addresses of its configured neighbors by broadcast discovery, then
// exchanges fixed-format Messages with them.
type Bus struct {
	guid          uint32
	broadcastAddr *net.UDPAddr
	conn          *net.UDPConn
	handler       Handler

	mu           sync.RWMutex
	inboundAddr  map[uint32]*net.UDPAddr
	outboundAddr map[uint32]*net.UDPAddr

	inbox chan rawDatagram
}

// Config describes one device's position in the simulated grid topology.
type Config struct {
	GUID          uint32
	Inbound       []uint32 // neighbors this device draws a value from
	Outbound      []uint32 // neighbors that draw a value from this device
	ListenAddr    string   // local "host:port" to bind
	BroadcastAddr string   // "host:port" to reach every device on the bus
}

// NewBus binds the bus socket and prepares (but does not yet resolve)
// the neighbor tables described by cfg.
func NewBus(cfg Config) (*Bus, error) {
	baddr, err := net.ResolveUDPAddr("udp4", cfg.BroadcastAddr)
	if err != nil {
		return nil, err
	}
	laddr, err := net.ResolveUDPAddr("udp4", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	lc := net.ListenConfig{Control: reuseAddrPort}
	pc, err := lc.ListenPacket(context.Background(), "udp4", laddr.String())
	if err != nil {
		return nil, err
	}
	conn := pc.(*net.UDPConn)
	if err := setBroadcast(conn); err != nil {
		conn.Close()
		return nil, err
	}
	b := &Bus{
		guid:          cfg.GUID,
		broadcastAddr: baddr,
		conn:          conn,
		inboundAddr:   make(map[uint32]*net.UDPAddr, len(cfg.Inbound)),
		outboundAddr:  make(map[uint32]*net.UDPAddr, len(cfg.Outbound)),
		inbox:         make(chan rawDatagram, inboxDepth),
	}
	for _, g := range cfg.Inbound {
		b.inboundAddr[g] = nil
	}
	for _, g := range cfg.Outbound {
		b.outboundAddr[g] = nil
	}
	return b, nil
}

// reuseAddrPort lets several devices in a local demo bind the same
// broadcast-reachable port without EADDRINUSE.
func reuseAddrPort(network, address string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			ctrlErr = err
			return
		}
		ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var ctrlErr error
	err = raw.Control(func(fd uintptr) {
		ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

// SetHandler installs the device-specific message handler. Must be
// called before Run.
func (b *Bus) SetHandler(h Handler) {
	b.handler = h
}

// CloseForTest closes the bus's underlying socket without running Run's
// goroutine lifecycle, for tests that only need a bound Bus to drive a
// device's SimulationTick/HandlePeerMessage without ever calling Run.
func (b *Bus) CloseForTest() {
	b.conn.Close()
}

// AllResolved reports whether every configured neighbor's address has
// been learned via discovery.
func (b *Bus) AllResolved() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, a := range b.inboundAddr {
		if a == nil {
			return false
		}
	}
	for _, a := range b.outboundAddr {
		if a == nil {
			return false
		}
	}
	return true
}

// Run drives the bus until ctx is canceled: a reader goroutine decodes
// inbound datagrams, a dispatcher goroutine handles discovery traffic
// and forwards the rest to the handler, and a discovery goroutine
// re-broadcasts WHOIS for any neighbor still unresolved. Run blocks
// until all three have exited.
func (b *Bus) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		b.recvLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		b.dispatchLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		b.discoveryLoop(ctx)
	}()
	<-ctx.Done()
	b.conn.Close()
	wg.Wait()
}

func (b *Bus) recvLoop(ctx context.Context) {
	buf := make([]byte, 256)
	for {
		n, addr, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			_lg.WithError(err).Warn("simbus: read failed")
			continue
		}
		msg, ok := decodeMessage(buf[:n])
		if !ok {
			_lg.WithField("len", n).Debug("simbus: dropped malformed datagram")
			continue
		}
		select {
		case b.inbox <- rawDatagram{msg: msg, addr: addr}:
		default:
			_lg.Warn("simbus: inbox full, dropping oldest")
			select {
			case <-b.inbox:
			default:
			}
			select {
			case b.inbox <- rawDatagram{msg: msg, addr: addr}:
			default:
			}
		}
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-b.inbox:
			b.dispatch(d)
		}
	}
}

func (b *Bus) dispatch(d rawDatagram) {
	switch d.msg.MessageID {
	case WHOIS:
		if d.msg.ReceiverID != b.guid {
			return
		}
		reply := Message{SenderID: b.guid, ReceiverID: d.msg.SenderID, MessageID: IAMHERE}
		if _, err := b.conn.WriteToUDP(reply.encode(), d.addr); err != nil {
			_lg.WithError(err).Warn("simbus: IAMHERE reply failed")
		}
		b.learn(d.msg.SenderID, d.addr)
		return
	case IAMHERE:
		b.learn(d.msg.SenderID, d.addr)
		return
	}
	if d.msg.ReceiverID != b.guid {
		return
	}
	fromInbound, known := b.classify(d.msg.SenderID, d.addr)
	if !known {
		b.reply(d.addr, Message{SenderID: b.guid, ReceiverID: d.msg.SenderID, MessageID: UNKNOWN})
		return
	}
	if b.handler == nil {
		return
	}
	if reply := b.handler(d.msg, fromInbound); reply != nil {
		reply.SenderID = b.guid
		reply.ReceiverID = d.msg.SenderID
		b.reply(d.addr, *reply)
	}
}

// classify reports whether senderID is a known neighbor, recording its
// address if this is the first datagram seen from it, and whether it
// is on the inbound or outbound side.
func (b *Bus) classify(senderID uint32, addr *net.UDPAddr) (fromInbound bool, known bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.inboundAddr[senderID]; ok {
		if a == nil {
			b.inboundAddr[senderID] = addr
		}
		return true, true
	}
	if a, ok := b.outboundAddr[senderID]; ok {
		if a == nil {
			b.outboundAddr[senderID] = addr
		}
		return false, true
	}
	return false, false
}

func (b *Bus) learn(guid uint32, addr *net.UDPAddr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.inboundAddr[guid]; ok && a == nil {
		b.inboundAddr[guid] = addr
	}
	if a, ok := b.outboundAddr[guid]; ok && a == nil {
		b.outboundAddr[guid] = addr
	}
}

func (b *Bus) reply(addr *net.UDPAddr, msg Message) {
	if _, err := b.conn.WriteToUDP(msg.encode(), addr); err != nil {
		_lg.WithError(err).Warn("simbus: reply failed")
	}
}

func (b *Bus) discoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.broadcastWhoIsUnresolved()
		}
	}
}

func (b *Bus) broadcastWhoIsUnresolved() {
	b.mu.RLock()
	var unresolved []uint32
	for g, a := range b.inboundAddr {
		if a == nil {
			unresolved = append(unresolved, g)
		}
	}
	for g, a := range b.outboundAddr {
		if a == nil {
			unresolved = append(unresolved, g)
		}
	}
	b.mu.RUnlock()
	for _, g := range unresolved {
		msg := Message{SenderID: b.guid, ReceiverID: g, MessageID: WHOIS}
		if _, err := b.conn.WriteToUDP(msg.encode(), b.broadcastAddr); err != nil {
			_lg.WithError(err).Warn("simbus: WHOIS broadcast failed")
			return
		}
	}
}

// Send addresses msg to neighbor guid, provided its address has been
// resolved. msg.SenderID and msg.ReceiverID are overwritten.
func (b *Bus) Send(guid uint32, msg Message) bool {
	b.mu.RLock()
	addr, ok := b.inboundAddr[guid]
	if !ok {
		addr, ok = b.outboundAddr[guid]
	}
	b.mu.RUnlock()
	if !ok || addr == nil {
		return false
	}
	msg.SenderID = b.guid
	msg.ReceiverID = guid
	if _, err := b.conn.WriteToUDP(msg.encode(), addr); err != nil {
		_lg.WithError(err).WithField("to", guid).Warn("simbus: send failed")
		return false
	}
	return true
}

// InboundGUIDs returns the configured upstream neighbor GUIDs.
func (b *Bus) InboundGUIDs() []uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]uint32, 0, len(b.inboundAddr))
	for g := range b.inboundAddr {
		out = append(out, g)
	}
	return out
}

// OutboundGUIDs returns the configured downstream neighbor GUIDs.
func (b *Bus) OutboundGUIDs() []uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]uint32, 0, len(b.outboundAddr))
	for g := range b.outboundAddr {
		out = append(out, g)
	}
	return out
}

package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ErrICMPNotAvailable is returned when the raw ICMP socket cannot be opened,
// typically because the process lacks CAP_NET_RAW or root privileges.
var ErrICMPNotAvailable = errors.New("raw ICMP socket not available (are you root?)")

const (
	// protocolICMP is the IANA protocol number for ICMPv4, used by icmp.ParseMessage.
	protocolICMP = 1
	// readPollInterval bounds how long the receiver blocks before checking for Close.
	readPollInterval = 250 * time.Millisecond
	// probePayload is sent as the Echo data so our probes are easy to spot in captures.
	probePayload = "mtr-go-probe...."
)

// icmpReply is what the receiver hands to a waiting probe.
type icmpReply struct {
	kind OutcomeKind
	from netip.Addr
	dst  netip.Addr // Destination of the Echo request the answer refers to
	at   time.Time
}

// pendingProbe is an outstanding Echo request waiting for an answer.
type pendingProbe struct {
	target netip.Addr
	result chan icmpReply
}

// packetConn is the part of a raw ICMP socket the transport uses.
type packetConn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	WriteTo(b []byte, dst net.Addr) (int, error)
	SetReadDeadline(t time.Time) error
	SetTTL(ttl int) error
	Close() error
}

// ipv4Conn sets the TTL through the IPv4 view of the socket.
type ipv4Conn struct {
	*icmp.PacketConn
}

func (c ipv4Conn) SetTTL(ttl int) error {
	return c.IPv4PacketConn().SetTTL(ttl)
}

// ICMPTransport sends ICMP Echo requests over a single raw socket and
// demultiplexes the answers by Echo sequence number.
type ICMPTransport struct {
	conn packetConn
	id   int

	// The TTL is a socket option, so setting it and writing must happen
	// atomically with respect to other probes.
	writeMu sync.Mutex

	pending *ttlcache.Cache[uint16, *pendingProbe]

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewICMPTransport opens a raw ICMPv4 socket bound to source ("0.0.0.0" for
// any) and starts the receive routine.
func NewICMPTransport(source string) (*ICMPTransport, error) {
	if source == "" {
		source = "0.0.0.0"
	}
	conn, err := icmp.ListenPacket("ip4:icmp", source)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrICMPNotAvailable, err)
		}
		return nil, fmt.Errorf("failed to open ICMP socket: %w", err)
	}

	t := newICMPTransport(ipv4Conn{conn}, os.Getpid()&0xffff)
	slog.Debug("Opened ICMP socket", "source", source, "id", t.id)
	return t, nil
}

// newICMPTransport starts the expiry loop and the receiver on conn.
func newICMPTransport(conn packetConn, id int) *ICMPTransport {
	t := &ICMPTransport{
		conn: conn,
		id:   id,
		pending: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[uint16, *pendingProbe](),
		),
		stop: make(chan struct{}),
	}
	t.pending.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[uint16, *pendingProbe]) {
		if reason == ttlcache.EvictionReasonExpired {
			item.Value().deliver(icmpReply{kind: OutcomeTimeout})
		}
	})
	go t.pending.Start()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.receive()
	}()

	return t
}

func (p *pendingProbe) deliver(r icmpReply) {
	select {
	case p.result <- r:
	default:
	}
}

// SendProbe implements Transport.
func (t *ICMPTransport) SendProbe(ctx context.Context, target netip.Addr, ttl uint8, seq uint16, timeout time.Duration) Outcome {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   t.id,
			Seq:  int(seq),
			Data: []byte(probePayload),
		},
	}
	b, err := msg.Marshal(nil)
	if err != nil {
		return TransportError(fmt.Errorf("failed to marshal echo request: %w", err))
	}

	p := &pendingProbe{target: target, result: make(chan icmpReply, 1)}
	t.pending.Set(seq, p, timeout)

	sent, err := t.write(b, target, ttl)
	if err != nil {
		t.pending.Delete(seq)
		return TransportError(err)
	}

	select {
	case r := <-p.result:
		switch r.kind {
		case OutcomeReplyFromTarget:
			return ReplyFromTarget(r.from, r.at.Sub(sent))
		case OutcomeReplyFromIntermediate:
			return ReplyFromIntermediate(r.from, r.at.Sub(sent))
		case OutcomeUnreachable:
			return Unreachable(r.from)
		case OutcomeTimeout, OutcomeTransportError:
			return Timeout()
		}
		return Timeout()
	case <-ctx.Done():
		t.pending.Delete(seq)
		return Timeout()
	}
}

func (t *ICMPTransport) write(b []byte, target netip.Addr, ttl uint8) (time.Time, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetTTL(int(ttl)); err != nil {
		return time.Time{}, fmt.Errorf("failed to set TTL %d: %w", ttl, err)
	}
	sent := time.Now()
	if _, err := t.conn.WriteTo(b, &net.IPAddr{IP: target.AsSlice()}); err != nil {
		return time.Time{}, fmt.Errorf("failed to send echo request: %w", err)
	}
	return sent, nil
}

// receive reads ICMP messages until Close is called and hands every answer
// to the probe waiting for it.
func (t *ICMPTransport) receive() {
	buf := make([]byte, 1500)
	for {
		select {
		case <-t.stop:
			slog.Debug("Stopping ICMP receiver")
			return
		default:
		}

		if err := t.conn.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
			slog.Error("Failed to set read deadline", "error", err)
			return
		}
		n, peer, err := t.conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-t.stop:
				return
			default:
			}
			slog.Debug("ICMP read failed", "error", err)
			continue
		}
		at := time.Now()

		seq, reply, ok := t.classify(buf[:n], peer)
		if !ok {
			continue
		}
		reply.at = at

		item := t.pending.Get(seq)
		if item == nil {
			slog.Debug("Received answer for unknown or expired probe", "seq", seq, "from", reply.from)
			continue
		}
		// Another socket's traffic can share our Echo ID and sequence
		p := item.Value()
		if reply.dst != p.target {
			slog.Debug("Ignoring answer for another destination", "seq", seq, "dst", reply.dst, "target", p.target)
			continue
		}
		t.pending.Delete(seq)
		p.deliver(reply)
	}
}

// classify parses an ICMP message and returns the sequence number of the
// probe it answers.
func (t *ICMPTransport) classify(b []byte, peer net.Addr) (uint16, icmpReply, bool) {
	msg, err := icmp.ParseMessage(protocolICMP, b)
	if err != nil {
		slog.Debug("Failed to parse ICMP message", "error", err)
		return 0, icmpReply{}, false
	}
	from := addrFromNet(peer)

	switch msg.Type {
	case ipv4.ICMPTypeEchoReply:
		echo, ok := msg.Body.(*icmp.Echo)
		if !ok || echo.ID != t.id {
			return 0, icmpReply{}, false
		}
		return uint16(echo.Seq), icmpReply{kind: OutcomeReplyFromTarget, from: from, dst: from}, true
	case ipv4.ICMPTypeTimeExceeded:
		body, ok := msg.Body.(*icmp.TimeExceeded)
		if !ok {
			return 0, icmpReply{}, false
		}
		echo, ok := decodeEmbeddedEcho(body.Data)
		if !ok || echo.id != uint16(t.id) {
			return 0, icmpReply{}, false
		}
		return echo.seq, icmpReply{kind: OutcomeReplyFromIntermediate, from: from, dst: echo.dst}, true
	case ipv4.ICMPTypeDestinationUnreachable:
		body, ok := msg.Body.(*icmp.DstUnreach)
		if !ok {
			return 0, icmpReply{}, false
		}
		echo, ok := decodeEmbeddedEcho(body.Data)
		if !ok || echo.id != uint16(t.id) {
			return 0, icmpReply{}, false
		}
		return echo.seq, icmpReply{kind: OutcomeUnreachable, from: from, dst: echo.dst}, true
	}
	return 0, icmpReply{}, false
}

func addrFromNet(a net.Addr) netip.Addr {
	var ip net.IP
	switch v := a.(type) {
	case *net.IPAddr:
		ip = v.IP
	case *net.UDPAddr:
		ip = v.IP
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}

// Close stops the receiver and closes the socket. Outstanding probes time out.
func (t *ICMPTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stop)
		err = t.conn.Close()
		t.wg.Wait()
		t.pending.Stop()
	})
	return err
}

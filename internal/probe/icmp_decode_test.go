package probe

import (
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const testEchoID = 0x1234

// quotedDatagram builds the IPv4 packet a router quotes back to us.
func quotedDatagram(t *testing.T, protocol layers.IPProtocol, typeCode layers.ICMPv4TypeCode, id, seq uint16) []byte {
	t.Helper()

	ip := &layers.IPv4{
		Version:  4,
		TTL:      1,
		Protocol: protocol,
		SrcIP:    net.IPv4(192, 0, 2, 100),
		DstIP:    net.IP(testTarget.Addr.AsSlice()),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}

	var err error
	switch protocol {
	case layers.IPProtocolICMPv4:
		echo := &layers.ICMPv4{TypeCode: typeCode, Id: id, Seq: seq}
		err = gopacket.SerializeLayers(buf, opts, ip, echo, gopacket.Payload(probePayload))
	default:
		udp := &layers.UDP{SrcPort: 33434, DstPort: 33435}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
		err = gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(probePayload))
	}
	require.NoError(t, err)
	return buf.Bytes()
}

func echoRequest(t *testing.T, id, seq uint16) []byte {
	return quotedDatagram(t, layers.IPProtocolICMPv4,
		layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), id, seq)
}

func TestDecodeEmbeddedEcho(t *testing.T) {
	echo, ok := decodeEmbeddedEcho(echoRequest(t, testEchoID, 42))
	require.True(t, ok)
	assert.Equal(t, uint16(testEchoID), echo.id)
	assert.Equal(t, uint16(42), echo.seq)
	assert.Equal(t, testTarget.Addr, echo.dst)
}

func TestDecodeEmbeddedEcho_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{
			name:    "short",
			payload: echoRequest(t, testEchoID, 1)[:20],
		},
		{
			name:    "udp",
			payload: quotedDatagram(t, layers.IPProtocolUDP, 0, 0, 0),
		},
		{
			name: "echo reply",
			payload: quotedDatagram(t, layers.IPProtocolICMPv4,
				layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoReply, 0), testEchoID, 1),
		},
		{
			name:    "garbage",
			payload: make([]byte, 40),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := decodeEmbeddedEcho(tt.payload)
			assert.False(t, ok)
		})
	}
}

func marshalICMP(t *testing.T, typ ipv4.ICMPType, code int, body icmp.MessageBody) []byte {
	t.Helper()
	msg := icmp.Message{Type: typ, Code: code, Body: body}
	b, err := msg.Marshal(nil)
	require.NoError(t, err)
	return b
}

func TestICMPTransport_Classify(t *testing.T) {
	transport := &ICMPTransport{id: testEchoID}
	router := &net.IPAddr{IP: net.IPv4(192, 0, 2, 7)}
	target := &net.IPAddr{IP: net.IP(testTarget.Addr.AsSlice())}

	tests := []struct {
		name     string
		msg      []byte
		peer     net.Addr
		wantOK   bool
		wantSeq  uint16
		wantKind OutcomeKind
		wantFrom netip.Addr
	}{
		{
			name: "echo reply",
			msg: marshalICMP(t, ipv4.ICMPTypeEchoReply, 0,
				&icmp.Echo{ID: testEchoID, Seq: 7, Data: []byte(probePayload)}),
			peer:     target,
			wantOK:   true,
			wantSeq:  7,
			wantKind: OutcomeReplyFromTarget,
			wantFrom: testTarget.Addr,
		},
		{
			name: "echo reply for another process",
			msg: marshalICMP(t, ipv4.ICMPTypeEchoReply, 0,
				&icmp.Echo{ID: testEchoID + 1, Seq: 7, Data: []byte(probePayload)}),
			peer: target,
		},
		{
			name: "time exceeded",
			msg: marshalICMP(t, ipv4.ICMPTypeTimeExceeded, 0,
				&icmp.TimeExceeded{Data: echoRequest(t, testEchoID, 9)}),
			peer:     router,
			wantOK:   true,
			wantSeq:  9,
			wantKind: OutcomeReplyFromIntermediate,
			wantFrom: netip.MustParseAddr("192.0.2.7"),
		},
		{
			name: "time exceeded for another process",
			msg: marshalICMP(t, ipv4.ICMPTypeTimeExceeded, 0,
				&icmp.TimeExceeded{Data: echoRequest(t, 0x4321, 9)}),
			peer: router,
		},
		{
			name: "destination unreachable",
			msg: marshalICMP(t, ipv4.ICMPTypeDestinationUnreachable, 1,
				&icmp.DstUnreach{Data: echoRequest(t, testEchoID, 11)}),
			peer:     router,
			wantOK:   true,
			wantSeq:  11,
			wantKind: OutcomeUnreachable,
			wantFrom: netip.MustParseAddr("192.0.2.7"),
		},
		{
			name: "our own echo request",
			msg: marshalICMP(t, ipv4.ICMPTypeEcho, 0,
				&icmp.Echo{ID: testEchoID, Seq: 3, Data: []byte(probePayload)}),
			peer: target,
		},
		{
			name: "truncated",
			msg:  []byte{0},
			peer: router,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, reply, ok := transport.classify(tt.msg, tt.peer)
			require.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantSeq, seq)
			assert.Equal(t, tt.wantKind, reply.kind)
			assert.Equal(t, tt.wantFrom, reply.from)
			assert.Equal(t, testTarget.Addr, reply.dst)
		})
	}
}

func TestAddrFromNet(t *testing.T) {
	assert.Equal(t, netip.MustParseAddr("192.0.2.1"), addrFromNet(&net.IPAddr{IP: net.ParseIP("192.0.2.1")}))
	assert.Equal(t, netip.MustParseAddr("192.0.2.2"), addrFromNet(&net.UDPAddr{IP: net.IPv4(192, 0, 2, 2)}))
	assert.False(t, addrFromNet(&net.TCPAddr{}).IsValid())
}

func TestOutcomeKind_String(t *testing.T) {
	tests := map[OutcomeKind]string{
		OutcomeTimeout:               "timeout",
		OutcomeReplyFromTarget:       "reply",
		OutcomeReplyFromIntermediate: "ttl-exceeded",
		OutcomeUnreachable:           "unreachable",
		OutcomeTransportError:        "transport-error",
		OutcomeKind(99):              "unknown",
	}
	for kind, want := range tests {
		assert.Equal(t, want, kind.String())
	}
}

package probe

import (
	"log/slog"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// embeddedEcho identifies the Echo request quoted inside an ICMP error.
type embeddedEcho struct {
	id  uint16
	seq uint16
	dst netip.Addr
}

// decodeEmbeddedEcho decodes the original datagram that a router quotes in
// Time Exceeded and Destination Unreachable messages: the IPv4 header of our
// probe followed by at least the first 8 bytes of the ICMP Echo request.
func decodeEmbeddedEcho(payload []byte) (embeddedEcho, bool) {
	if len(payload) < 28 {
		return embeddedEcho{}, false
	}

	packet := gopacket.NewPacket(payload, layers.LayerTypeIPv4, gopacket.Default)
	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return embeddedEcho{}, false
	}
	ip := ipLayer.(*layers.IPv4)
	if ip.Protocol != layers.IPProtocolICMPv4 {
		return embeddedEcho{}, false
	}

	icmpLayer := packet.Layer(layers.LayerTypeICMPv4)
	if icmpLayer == nil {
		slog.Debug("Quoted datagram without ICMP layer", "packet", packet)
		return embeddedEcho{}, false
	}
	echo := icmpLayer.(*layers.ICMPv4)
	if echo.TypeCode.Type() != layers.ICMPv4TypeEchoRequest {
		return embeddedEcho{}, false
	}

	dst, ok := netip.AddrFromSlice(ip.DstIP)
	if !ok {
		return embeddedEcho{}, false
	}
	return embeddedEcho{
		id:  echo.Id,
		seq: echo.Seq,
		dst: dst.Unmap(),
	}, true
}

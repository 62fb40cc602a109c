//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package route

import (
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/net/route"
)

// fetchRIBMessages retrieves the IPv4 routing table from the kernel.
// Variable for mocking in tests.
var fetchRIBMessages = func() ([]route.Message, error) {
	rib, err := route.FetchRIB(syscall.AF_INET, route.RIBTypeRoute, 0)
	if err != nil {
		return nil, err
	}
	return route.ParseRIB(route.RIBTypeRoute, rib)
}

// inet4 returns the IPv4 address at index i of a route message's address
// list. Indexes follow the RTAX_* constants.
func inet4(addrs []route.Addr, i int) (netip.Addr, bool) {
	if i >= len(addrs) {
		return netip.Addr{}, false
	}
	a, ok := addrs[i].(*route.Inet4Addr)
	if !ok {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4(a.IP), true
}

// prefixLen returns the length of the route's netmask. Host routes are /32
// and a default route without a mask is /0.
func prefixLen(rm *route.RouteMessage, dst netip.Addr) (int, bool) {
	if rm.Flags&syscall.RTF_HOST != 0 {
		return 32, true
	}
	mask, ok := inet4(rm.Addrs, syscall.RTAX_NETMASK)
	if !ok {
		if dst.IsUnspecified() {
			return 0, true
		}
		return 0, false
	}
	ones, bits := net.IPMask(mask.AsSlice()).Size()
	if bits == 0 {
		// Non-canonical mask
		return 0, false
	}
	return ones, true
}

// mostSpecificRoute does a longest prefix match for ip over the routing
// table. The first route wins on equal prefix lengths.
func mostSpecificRoute(ip netip.Addr, msgs []route.Message) (Route, error) {
	var (
		best     *route.RouteMessage
		bestBits = -1
		bestDst  netip.Addr
	)

	for _, msg := range msgs {
		rm, ok := msg.(*route.RouteMessage)
		if !ok || rm.Flags&syscall.RTF_UP == 0 {
			continue
		}
		dst, ok := inet4(rm.Addrs, syscall.RTAX_DST)
		if !ok {
			continue
		}
		bits, ok := prefixLen(rm, dst)
		if !ok || !netip.PrefixFrom(dst, bits).Contains(ip) {
			continue
		}
		if bits > bestBits {
			best, bestBits, bestDst = rm, bits, dst
		}
	}

	if best == nil {
		return Route{}, ErrNoRoute
	}

	r := Route{Destination: ip}
	if gw, ok := inet4(best.Addrs, syscall.RTAX_GATEWAY); ok {
		r.Gateway = gw
	}
	src, ok := inet4(best.Addrs, syscall.RTAX_IFA)
	if !ok {
		return Route{}, fmt.Errorf("route %s/%d has no source address", bestDst, bestBits)
	}
	r.Source = src

	intf, err := interfaceByIndex(best.Index)
	if err != nil {
		return Route{}, fmt.Errorf("failed to get interface by index %d: %w", best.Index, err)
	}
	if intf.Flags&net.FlagUp == 0 {
		return Route{}, fmt.Errorf("interface %s is down", intf.Name)
	}
	r.Interface = intf

	return r, nil
}

func get(ip netip.Addr) (Route, error) {
	if !ip.Is4() {
		return Route{}, ErrNoRoute
	}
	msgs, err := fetchRIBMessages()
	if err != nil {
		return Route{}, fmt.Errorf("route lookup for %s: %w", ip, err)
	}
	return mostSpecificRoute(ip, msgs)
}

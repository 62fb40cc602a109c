//go:build linux

package route

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/jsimonetti/rtnetlink"
	"golang.org/x/sys/unix"
)

// fetchRouteMessages asks the kernel for the route to ip.
// Variable for mocking in tests.
var fetchRouteMessages = func(ip netip.Addr) ([]rtnetlink.RouteMessage, error) {
	c, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	family := unix.AF_INET
	if ip.Is6() {
		family = unix.AF_INET6
	}

	return c.Route.Get(&rtnetlink.RouteMessage{
		Family: uint8(family),
		Table:  unix.RT_TABLE_MAIN,
		Attributes: rtnetlink.RouteAttributes{
			Dst: ip.AsSlice(),
		},
	})
}

// routeFromMessages converts the RTM_GETROUTE answer for ip. The kernel
// answers with the single route it would use.
func routeFromMessages(ip netip.Addr, msgs []rtnetlink.RouteMessage) (Route, error) {
	switch len(msgs) {
	case 0:
		return Route{}, ErrNoRoute
	case 1:
	default:
		return Route{}, fmt.Errorf("multiple routes found for %s", ip)
	}
	m := msgs[0]

	dst, ok := netip.AddrFromSlice(m.Attributes.Dst)
	if !ok || dst.Unmap() != ip {
		return Route{}, fmt.Errorf("route for %v does not match %s", m.Attributes.Dst, ip)
	}
	src, ok := netip.AddrFromSlice(m.Attributes.Src)
	if !ok {
		return Route{}, fmt.Errorf("route to %s has no source address", ip)
	}
	r := Route{
		Destination: dst.Unmap(),
		Source:      src.Unmap(),
	}
	if gw, ok := netip.AddrFromSlice(m.Attributes.Gateway); ok {
		r.Gateway = gw.Unmap()
	}

	intf, err := interfaceByIndex(int(m.Attributes.OutIface))
	if err != nil {
		return Route{}, fmt.Errorf("failed to get interface by index %d: %w", m.Attributes.OutIface, err)
	}
	if intf.Flags&net.FlagUp == 0 {
		return Route{}, fmt.Errorf("interface %s is down", intf.Name)
	}
	r.Interface = intf

	return r, nil
}

func get(ip netip.Addr) (Route, error) {
	msgs, err := fetchRouteMessages(ip)
	if err != nil {
		return Route{}, fmt.Errorf("route lookup for %s: %w", ip, err)
	}
	return routeFromMessages(ip, msgs)
}

package route

import (
	"errors"
	"net"
	"net/netip"
)

var (
	// ErrNoRoute is returned when the kernel has no usable route to the address.
	ErrNoRoute = errors.New("no route to host")
	// ErrUnsupported is returned on systems without a route lookup.
	ErrUnsupported = errors.New("route lookup not supported on this platform")
)

// interfaceByIndex is replaced in tests.
var interfaceByIndex = net.InterfaceByIndex

// Route is the kernel's choice for reaching a single destination.
type Route struct {
	Destination netip.Addr
	Gateway     netip.Addr // Invalid for directly connected destinations
	Source      netip.Addr // Address the kernel will use for probes
	Interface   *net.Interface
}

// InterfaceName returns the name of the outgoing interface, or "" if unknown.
func (r Route) InterfaceName() string {
	if r.Interface == nil {
		return ""
	}
	return r.Interface.Name
}

// Get asks the kernel which route, source address and interface it would
// use to reach ip.
func Get(ip netip.Addr) (Route, error) {
	return get(ip.Unmap())
}

package probe

import (
	"errors"
	"net"
	"net/netip"
)

var (
	errCouldNotResolve = errors.New("could not resolve destination")
	errIPv6Destination = errors.New("IPv6 destinations are not supported")
)

// lookupHost is replaced in tests.
var lookupHost = net.LookupHost

// ResolveTarget parses or resolves destination to an IPv4 address.
func ResolveTarget(destination string) (Target, error) {
	target := Target{Name: destination}

	if ip, err := netip.ParseAddr(destination); err == nil {
		ip = ip.Unmap()
		if !ip.Is4() {
			return target, errIPv6Destination
		}
		target.Addr = ip
		return target, nil
	}

	records, err := lookupHost(destination)
	if err != nil {
		return target, errCouldNotResolve
	}

	// find the first IPv4 address
	for _, record := range records {
		ip, err := netip.ParseAddr(record)
		if err != nil {
			continue
		}
		if ip = ip.Unmap(); ip.Is4() {
			target.Addr = ip
			return target, nil
		}
	}

	if len(records) > 0 {
		return target, errIPv6Destination
	}
	return target, errCouldNotResolve
}

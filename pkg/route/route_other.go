//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package route

import "net/netip"

func get(netip.Addr) (Route, error) {
	return Route{}, ErrUnsupported
}

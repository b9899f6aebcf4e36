// Package netutil finds the host's LAN address and the matching broadcast address.
package netutil

import (
	"errors"
	"fmt"
	"net"
)

var ErrNoLANAddress = errors.New("netutil: no non-loopback ipv4 address")

// addrSource is swapped in tests.
var addrSource = interfaceAddrs

func interfaceAddrs() ([]net.Addr, error) {
	return net.InterfaceAddrs()
}

// LANIPv4 returns the first non-loopback IPv4 address bound on this host.
func LANIPv4() (net.IP, error) {
	nets, err := lanNets()
	if err != nil {
		return nil, err
	}
	return nets[0].IP.To4(), nil
}

// BroadcastFor returns the directed broadcast address of the interface network
// that contains local.
func BroadcastFor(local net.IP) (net.IP, error) {
	nets, err := lanNets()
	if err != nil {
		return nil, err
	}
	for _, n := range nets {
		if n.IP.Equal(local) {
			return Broadcast(n), nil
		}
	}
	return nil, fmt.Errorf("%w: %s not bound", ErrNoLANAddress, local)
}

// Broadcast computes ip | ^mask for an IPv4 network.
func Broadcast(n *net.IPNet) net.IP {
	ip := n.IP.To4()
	if ip == nil {
		return nil
	}
	mask := n.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	out := make(net.IP, net.IPv4len)
	for i := range out {
		out[i] = ip[i] | ^mask[i]
	}
	return out
}

// DefaultBroadcastAddr derives "<lan broadcast>:<port>", falling back to the
// limited broadcast address when no LAN interface is found.
func DefaultBroadcastAddr(port int) string {
	local, err := LANIPv4()
	if err == nil {
		if bcast, err := BroadcastFor(local); err == nil {
			return net.JoinHostPort(bcast.String(), fmt.Sprint(port))
		}
	}
	return net.JoinHostPort(net.IPv4bcast.String(), fmt.Sprint(port))
}

func lanNets() ([]*net.IPNet, error) {
	addrs, err := addrSource()
	if err != nil {
		return nil, err
	}
	var out []*net.IPNet
	for _, a := range addrs {
		n, ok := a.(*net.IPNet)
		if !ok || n.IP.IsLoopback() || n.IP.To4() == nil {
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, ErrNoLANAddress
	}
	return out, nil
}

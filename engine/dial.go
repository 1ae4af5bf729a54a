package engine

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// newSocket creates a non-blocking TCP socket of the address family
// target requires and binds it to iface (port 0, kernel-assigned). The
// actual connect is left to the ring: the caller submits it as an
// IORING_OP_CONNECT so the engine's single thread never blocks on it.
func newSocket(target *net.TCPAddr, iface net.IP) (fd int, err error) {
	domain := unix.AF_INET
	if target.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err = unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return 0, fmt.Errorf("socket: %w", err)
	}

	var sa unix.Sockaddr
	if domain == unix.AF_INET {
		var addr [4]byte
		copy(addr[:], iface.To4())
		sa = &unix.SockaddrInet4{Addr: addr}
	} else {
		var addr [16]byte
		copy(addr[:], iface.To16())
		sa = &unix.SockaddrInet6{Addr: addr}
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("bind %s: %w", iface, err)
	}
	return fd, nil
}

func unixClose(fd int) {
	unix.Close(fd)
}

// dialSameFamily opens a fresh socket toward peer, picking the first
// interface in ifaces whose address family matches. Used when a
// reconnect needs a brand-new fd for the same remote address.
func dialSameFamily(peer net.Addr, ifaces []net.IP) (int, error) {
	tcpPeer, ok := peer.(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("peer %v is not a TCP address", peer)
	}
	for _, iface := range ifaces {
		if familyMatches(tcpPeer.IP, iface) {
			return newSocket(tcpPeer, iface)
		}
	}
	return 0, fmt.Errorf("no interface matches the address family of %v", tcpPeer)
}

//go:build linux

// Package netio provides raw non-blocking socket primitives and the
// suspend-on-would-block Conn adapter (spec §4.2). Listening and accepting
// operate directly on syscall-level file descriptors — bypassing net.Listen
// — so the resulting fds can be registered with our own poller instead of
// fighting Go's built-in netpoller for ownership of the descriptor. This
// mirrors the retrieved raw-epoll reference server
// (other_examples/d6f88aa8_..._raw_epoll_http_server), generalized from its
// single IPv4 listener to IPv4/IPv6 + optional SO_REUSEADDR/SO_REUSEPORT.
package netio

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Listen creates, binds and starts listening on a non-blocking TCP socket.
// It returns the raw fd; the caller owns registering it with a poller.
func Listen(host string, port int, reuseAddr bool) (int, error) {
	ip := net.ParseIP(host)
	family := unix.AF_INET
	if ip != nil && ip.To4() == nil {
		family = unix.AF_INET6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("netio: socket: %w", err)
	}

	if reuseAddr {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("netio: SO_REUSEADDR: %w", err)
		}
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	}

	if family == unix.AF_INET6 {
		var addr16 [16]byte
		copy(addr16[:], ip.To16())
		sa := &unix.SockaddrInet6{Port: port, Addr: addr16}
		if err := unix.Bind(fd, sa); err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("netio: bind: %w", err)
		}
	} else {
		var addr4 [4]byte
		if ip != nil {
			copy(addr4[:], ip.To4())
		}
		sa := &unix.SockaddrInet4{Port: port, Addr: addr4}
		if err := unix.Bind(fd, sa); err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("netio: bind: %w", err)
		}
	}

	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netio: listen: %w", err)
	}
	return fd, nil
}

// Accept4 accepts one pending connection as a non-blocking fd, plus the
// peer's address. Returns (-1, nil, unix.EAGAIN) when nothing is pending.
func Accept4(listenFD int) (int, net.Addr, error) {
	connFD, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, nil, err
	}
	return connFD, sockaddrToAddr(sa), nil
}

// LocalAddr reads back the local address a listening/connected fd is bound
// to, used to populate Conn.LocalAddr().
func LocalAddr(fd int) net.Addr {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil
	}
	return sockaddrToAddr(sa)
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IPv4(v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3]), Port: v.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, v.Addr[:])
		return &net.TCPAddr{IP: ip, Port: v.Port}
	default:
		return nil
	}
}

// Package mcast implements MulticastIO: opening, joining, and leaving a UDP
// multicast group, and sending/receiving raw datagrams. It is adapted from
// the teacher's internal/mcast.Sender/Receiver (golang.org/x/net/ipv4 for
// group membership and TTL, a ListenConfig.Control hook for socket reuse
// options), generalized from single-purpose JPEG-frame transport to the
// generic byte-datagram transport the LCM wire protocol needs, and widened
// to expose the sender's (address, port) with each received datagram so the
// reassembler can key fragment buffers per spec.md's SenderKey.
package mcast

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"sync"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"lcm-go/lcmerr"
)

// DefaultAddr is LCM's conventional multicast group:port.
const DefaultAddr = "239.255.76.67:7667"

// DefaultTTL is process-local: datagrams never leave the host's loopback,
// per spec.md §4.4.
const DefaultTTL = 0

// Config configures a MulticastIO.
type Config struct {
	Addr         string // "host:port"; DefaultAddr if empty
	Interface    string // network interface name; system default if empty
	TTL          int
	RecvBufSize  int  // 0 leaves the OS default
	TransmitOnly bool // skip group join; RecvInto becomes an error
}

// SenderAddr identifies the remote endpoint a datagram arrived from.
type SenderAddr struct {
	IP   [4]byte
	Port uint16
}

func senderAddrFromUDP(a *net.UDPAddr) SenderAddr {
	var sa SenderAddr
	if ip4 := a.IP.To4(); ip4 != nil {
		copy(sa.IP[:], ip4)
	}
	sa.Port = uint16(a.Port)
	return sa
}

// Socket is a joined (or transmit-only) multicast socket.
type Socket struct {
	conn         *net.UDPConn
	pc           *ipv4.PacketConn
	sendAddr     *net.UDPAddr
	transmitOnly bool

	sendMu sync.Mutex
}

// Open binds a UDP socket on cfg.Addr's port, enabling SO_REUSEADDR and (on
// non-Windows platforms) SO_REUSEPORT so multiple processes on the host can
// all join and receive, joins the multicast group unless TransmitOnly is
// set, and sets the requested TTL and receive buffer size.
func Open(cfg Config) (*Socket, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("mcast: resolve %q: %w", addr, lcmerr.ErrInvalidArgument)
	}

	lc := net.ListenConfig{Control: setReuseAddrAndPort}
	pc0, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", udpAddr.Port))
	if err != nil {
		return nil, fmt.Errorf("mcast: listen :%d: %w", udpAddr.Port, lcmerr.ErrIO)
	}
	conn, ok := pc0.(*net.UDPConn)
	if !ok {
		pc0.Close()
		return nil, fmt.Errorf("mcast: unexpected PacketConn type %T", pc0)
	}

	if cfg.RecvBufSize > 0 {
		_ = conn.SetReadBuffer(cfg.RecvBufSize)
	}

	pc := ipv4.NewPacketConn(conn)
	_ = pc.SetMulticastLoopback(true)

	sock := &Socket{conn: conn, pc: pc, transmitOnly: cfg.TransmitOnly}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	_ = pc.SetMulticastTTL(ttl)

	ifi, err := resolveInterface(cfg.Interface)
	if err == nil && ifi != nil {
		_ = pc.SetMulticastInterface(ifi)
	}

	if !cfg.TransmitOnly {
		if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: udpAddr.IP}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("mcast: join group %s: %w", udpAddr.IP, lcmerr.ErrIO)
		}
	}

	sock.sendAddr = udpAddr
	return sock, nil
}

// resolveInterface returns the named interface, or (if name is empty) the
// first up, multicast-capable, non-loopback interface, matching the
// teacher's NewReceiver interface-selection fallback.
func resolveInterface(name string) (*net.Interface, error) {
	if name != "" {
		return net.InterfaceByName(name)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		ifi := ifaces[i]
		if (ifi.Flags&net.FlagUp) != 0 && (ifi.Flags&net.FlagMulticast) != 0 && (ifi.Flags&net.FlagLoopback) == 0 {
			return &ifi, nil
		}
	}
	return nil, nil
}

func setReuseAddrAndPort(network, address string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
			ctrlErr = e
			return
		}
		if runtime.GOOS != "windows" {
			// best-effort: older kernels or sandboxes may reject this.
			_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		}
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

// Send transmits datagram to the configured multicast group. Non-blocking
// where the OS permits (UDP sends to a multicast group don't block on
// backpressure from receivers).
func (m *Socket) Send(datagram []byte) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	if _, err := m.conn.WriteToUDP(datagram, m.sendAddr); err != nil {
		return fmt.Errorf("mcast: send: %w", lcmerr.ErrIO)
	}
	return nil
}

// RecvInto reads one datagram into buf, returning the sender's address and
// the number of bytes read. It is an error to call RecvInto on a
// TransmitOnly Socket.
func (m *Socket) RecvInto(buf []byte) (SenderAddr, int, error) {
	if m.transmitOnly {
		return SenderAddr{}, 0, fmt.Errorf("mcast: recv on transmit-only socket: %w", lcmerr.ErrInvalidState)
	}
	n, addr, err := m.conn.ReadFromUDP(buf)
	if err != nil {
		return SenderAddr{}, 0, fmt.Errorf("mcast: recv: %w", lcmerr.ErrIO)
	}
	return senderAddrFromUDP(addr), n, nil
}

// Fd exposes the underlying socket's file descriptor for external readiness
// multiplexing (select/epoll/kqueue).
func (m *Socket) Fd() (uintptr, error) {
	raw, err := m.conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd uintptr
	ctrlErr := raw.Control(func(f uintptr) { fd = f })
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	return fd, nil
}

// Close leaves the multicast group (if joined) and closes the socket.
func (m *Socket) Close() error {
	if m.pc != nil {
		_ = m.pc.Close()
	}
	return m.conn.Close()
}

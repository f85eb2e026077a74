package mcast

import (
	"net"
	"testing"
)

func TestSenderAddrFromUDPExtractsIPv4AndPort(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 7667}
	sa := senderAddrFromUDP(addr)
	want := [4]byte{10, 0, 0, 5}
	if sa.IP != want {
		t.Fatalf("IP = %v, want %v", sa.IP, want)
	}
	if sa.Port != 7667 {
		t.Fatalf("Port = %d, want 7667", sa.Port)
	}
}

// TestSelfLoop exercises the real multicast path end to end: a Socket
// joined on the loopback-capable default group sends a datagram to itself
// (SetMulticastLoopback is enabled in Open) and RecvInto observes it. This
// requires a host that permits multicast on loopback; skipped when Open
// fails so it doesn't flake out sandboxed CI that blocks multicast joins.
func TestSelfLoop(t *testing.T) {
	sock, err := Open(Config{Addr: "239.255.76.67:17667", TTL: 0})
	if err != nil {
		t.Skipf("multicast unavailable in this environment: %v", err)
	}
	defer sock.Close()

	payload := []byte("hello")
	if err := sock.Send(payload); err != nil {
		t.Skipf("multicast send unavailable: %v", err)
	}

	buf := make([]byte, 1500)
	_, n, err := sock.RecvInto(buf)
	if err != nil {
		t.Skipf("multicast recv unavailable: %v", err)
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("recv = %q, want %q", buf[:n], payload)
	}
}

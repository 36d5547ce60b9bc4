package testutil

import (
	"context"
	"net"
	"sync"
	"testing"
)

// StartSinkUDPServer returns a UDP socket that records every datagram it
// receives and never replies. The returned func reports what arrived.
func StartSinkUDPServer(t *testing.T, ctx context.Context) (*net.UDPConn, func() [][]byte) {
	t.Helper()

	lc := net.ListenConfig{}
	pc, err := lc.ListenPacket(ctx, "udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	conn := pc.(*net.UDPConn)
	t.Cleanup(func() { _ = conn.Close() })

	var (
		mu       sync.Mutex
		received [][]byte
	)
	go func() {
		buf := make([]byte, 64*1024)
		for {
			n, _, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			cp := make([]byte, n)
			copy(cp, buf[:n])
			mu.Lock()
			received = append(received, cp)
			mu.Unlock()
		}
	}()

	return conn, func() [][]byte {
		mu.Lock()
		defer mu.Unlock()
		cp := make([][]byte, len(received))
		copy(cp, received)
		return cp
	}
}

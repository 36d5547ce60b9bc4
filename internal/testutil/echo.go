package testutil

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

// StartEchoUDPServer returns a UDP socket that echoes every datagram back
// to its sender until the test ends.
func StartEchoUDPServer(t *testing.T, ctx context.Context) *net.UDPConn {
	t.Helper()

	lc := net.ListenConfig{}
	pc, err := lc.ListenPacket(ctx, "udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	conn := pc.(*net.UDPConn)
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, 64*1024)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			_, _ = conn.WriteTo(buf[:n], addr)
		}
	}()

	return conn
}

// AssertEchoUDP sends msg on the connected socket and expects the same
// bytes back within the deadline.
func AssertEchoUDP(t *testing.T, conn net.Conn, msg []byte) {
	t.Helper()

	if _, err := conn.Write(msg); err != nil {
		t.Fatal(err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64*1024)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Fatalf("expected %q got %q", string(msg), string(buf[:n]))
	}
}

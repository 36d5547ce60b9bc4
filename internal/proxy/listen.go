package proxy

import (
	"context"
	"fmt"
	"net"
)

// ListenUDP binds the local listening port. On unix platforms the socket
// gets SO_REUSEADDR and an enlarged receive buffer so bursts of datagrams
// are not dropped by the kernel before the engine reads them.
func ListenUDP(ctx context.Context, addr string) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: listenControl}

	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}

	return pc.(*net.UDPConn), nil
}

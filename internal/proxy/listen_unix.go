//go:build unix

package proxy

import (
	"syscall"

	"golang.org/x/sys/unix"
)

const recvBufferSize = 4 << 20

func listenControl(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if serr != nil {
			return
		}
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, recvBufferSize)
	})
	if err != nil {
		return err
	}
	return serr
}

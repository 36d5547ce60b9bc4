// Package session tracks active UDP flows. A session binds one client
// address to one upstream endpoint and owns the outbound socket used to
// relay that flow; the table expires sessions after a configurable idle
// period.
package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Key is the flow identity: the client's address/port and the upstream
// endpoint's address/port. Two packets with the same key belong to the
// same flow regardless of arrival order.
type Key struct {
	Client   netip.AddrPort
	Upstream netip.AddrPort
}

func (k Key) String() string {
	return fmt.Sprintf("%s->%s", k.Client, k.Upstream)
}

// ReceiveFunc handles one reply datagram read from a session's endpoint
// socket. The payload slice is only valid for the duration of the call.
type ReceiveFunc func(payload []byte, s *Session)

// Session is the tracked state for one active flow. It is owned by the
// Table; callers interact with it only within a single packet's handling
// and never hold a reference across calls.
type Session struct {
	key  Key
	conn net.Conn

	// lastActive is unix nanoseconds, advanced by Touch. Monotonically
	// non-decreasing.
	lastActive atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(key Key, conn net.Conn, now time.Time) *Session {
	s := &Session{
		key:  key,
		conn: conn,
		done: make(chan struct{}),
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

// Key returns the flow identity.
func (s *Session) Key() Key { return s.key }

// Touch advances the last-activity timestamp. Concurrent touches may
// arrive out of order; the timestamp never moves backwards.
func (s *Session) Touch(now time.Time) {
	ts := now.UnixNano()
	for {
		cur := s.lastActive.Load()
		if ts <= cur || s.lastActive.CompareAndSwap(cur, ts) {
			return
		}
	}
}

// LastActive returns the time of the most recent Touch.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Send writes one datagram to the session's upstream endpoint.
func (s *Session) Send(payload []byte) error {
	if _, err := s.conn.Write(payload); err != nil {
		return fmt.Errorf("session %s send: %w", s.key, err)
	}
	return nil
}

// Close releases the session's socket and stops its receive loop. Safe to
// call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// run reads replies from the endpoint socket and hands them to onReceive
// until the session is closed. Transient read errors are logged and do
// not end the flow.
func (s *Session) run(onReceive ReceiveFunc) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			logrus.WithField("session", s.key.String()).Debugf("read: %v", err)
			continue
		}
		onReceive(buf[:n], s)
	}
}

const maxDatagramSize = 64 * 1024

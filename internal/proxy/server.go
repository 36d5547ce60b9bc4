package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pylonproxy/pylon/internal/dialer"
	"github.com/pylonproxy/pylon/internal/endpoint"
	"github.com/pylonproxy/pylon/internal/filter"
	"github.com/pylonproxy/pylon/internal/session"
)

const maxDatagramSize = 64 * 1024

type Config struct {
	SessionTimeout time.Duration
	SweepInterval  time.Duration

	Dialer dialer.Dialer
}

// Server is the forwarding engine. Each datagram read from the listening
// port runs the filter chain against the current endpoint snapshot; on
// acceptance with exactly one destination left, the session table binds
// the flow and the payload is written to the endpoint. Replies read by
// each session's receive loop run the chain the other way and are written
// back to the client through the listening socket.
type Server struct {
	cfg      Config
	registry *endpoint.Registry
	chain    *filter.Chain
	sessions *session.Table
	tap      *PcapTap
	pool     *bufferPool

	conn *net.UDPConn

	droppedFilter     atomic.Uint64
	droppedUnresolved atomic.Uint64
	forwardErrors     atomic.Uint64
}

// Stats is a snapshot of engine counters for the admin surface.
type Stats struct {
	ActiveSessions    int    `json:"activeSessions"`
	ExpiredSessions   uint64 `json:"expiredSessions"`
	DroppedFilter     uint64 `json:"droppedFilter"`
	DroppedUnresolved uint64 `json:"droppedUnresolved"`
	ForwardErrors     uint64 `json:"forwardErrors"`
	PcapDropped       uint64 `json:"pcapDropped,omitempty"`
}

// New builds a server. tap may be nil to disable packet capture.
func New(cfg Config, registry *endpoint.Registry, chain *filter.Chain, tap *PcapTap) *Server {
	if cfg.Dialer == nil {
		cfg.Dialer = dialer.NewDirectDialer(dialer.Config{})
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		chain:    chain,
		sessions: session.NewTable(session.Config{
			Timeout: cfg.SessionTimeout,
			Sweep:   cfg.SweepInterval,
		}),
		tap:  tap,
		pool: newBufferPool(maxDatagramSize),
	}
}

// Sessions exposes the session table for the admin surface and tests.
func (s *Server) Sessions() *session.Table {
	return s.sessions
}

// Stats returns the current engine counters.
func (s *Server) Stats() Stats {
	st := Stats{
		ActiveSessions:    s.sessions.Len(),
		ExpiredSessions:   s.sessions.Expired(),
		DroppedFilter:     s.droppedFilter.Load(),
		DroppedUnresolved: s.droppedUnresolved.Load(),
		ForwardErrors:     s.forwardErrors.Load(),
	}
	if s.tap != nil {
		st.PcapDropped = s.tap.Dropped()
	}
	return st
}

// Serve reads datagrams from conn until ctx is canceled, processing each
// in its own goroutine so one flow never blocks another. On shutdown the
// session table is drained and every session socket closed.
func (s *Server) Serve(ctx context.Context, conn *net.UDPConn) error {
	s.conn = conn
	context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.sessions.Run(gctx)
	})

	g.Go(func() error {
		for {
			buf := s.pool.Get()
			n, src, err := conn.ReadFromUDPAddrPort(buf)
			if err != nil {
				s.pool.Put(buf)
				if gctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				return fmt.Errorf("read: %w", err)
			}

			src = netip.AddrPortFrom(src.Addr().Unmap(), src.Port())
			go func() {
				defer s.pool.Put(buf)
				s.processClientPacket(gctx, buf[:n], src)
			}()
		}
	})

	return g.Wait()
}

// processClientPacket drives one client datagram through the pipeline:
// filter, resolve, session bind, forward.
func (s *Server) processClientPacket(ctx context.Context, payload []byte, src netip.AddrPort) {
	fctx := filter.NewContext(payload, filter.ClientToUpstream, src, s.registry.Snapshot().All())
	if s.chain.Run(fctx) == filter.Drop {
		s.droppedFilter.Add(1)
		return
	}

	// The chain must leave exactly one destination; anything else is a
	// configuration problem, not a reason to guess.
	if len(fctx.Endpoints) != 1 {
		s.droppedUnresolved.Add(1)
		logrus.WithFields(logrus.Fields{
			"client":     src.String(),
			"candidates": len(fctx.Endpoints),
		}).Debug("unresolved destination, dropping")
		return
	}
	dest := fctx.Endpoints[0]

	key := session.Key{Client: src, Upstream: dest.Addr}
	sess, _, err := s.sessions.GetOrCreate(key, time.Now(), func() (net.Conn, error) {
		return s.cfg.Dialer.DialContext(ctx, "udp", dest.Addr.String())
	}, s.handleReply)
	if err != nil {
		s.forwardErrors.Add(1)
		logrus.WithField("session", key.String()).Errorf("session create: %v", err)
		return
	}

	if s.tap != nil {
		s.tap.Capture(src, dest.Addr, fctx.Payload)
	}

	if err := sess.Send(fctx.Payload); err != nil {
		// The session stays; the next packet may succeed.
		s.forwardErrors.Add(1)
		logrus.WithField("session", key.String()).Debugf("forward: %v", err)
	}
}

// handleReply relays one endpoint datagram back to the session's client.
// Runs on the session's receive goroutine.
func (s *Server) handleReply(payload []byte, sess *session.Session) {
	key := sess.Key()

	ep, ok := s.registry.Snapshot().Find(key.Upstream)
	if !ok {
		// The endpoint left the registry; the established session still
		// relays until it expires.
		ep = endpoint.New(key.Upstream)
	}

	fctx := filter.NewContext(payload, filter.UpstreamToClient, key.Upstream, []endpoint.Endpoint{ep})
	if s.chain.Run(fctx) == filter.Drop {
		s.droppedFilter.Add(1)
		return
	}

	sess.Touch(time.Now())

	if s.tap != nil {
		s.tap.Capture(key.Upstream, key.Client, fctx.Payload)
	}

	if _, err := s.conn.WriteToUDPAddrPort(fctx.Payload, key.Client); err != nil {
		s.forwardErrors.Add(1)
		logrus.WithField("session", key.String()).Debugf("reply: %v", err)
	}
}

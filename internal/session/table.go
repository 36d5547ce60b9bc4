package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout is the idle period after which a session expires.
const DefaultTimeout = 60 * time.Second

// DefaultSweep is how often the reaper scans for expired sessions.
// Expiry is approximate: a session may outlive the timeout by at most one
// sweep interval.
const DefaultSweep = 2 * time.Second

// ErrTableClosed is returned by GetOrCreate after the table shut down.
var ErrTableClosed = errors.New("session table closed")

// Config tunes the table's expiry behavior. Zero values pick defaults.
type Config struct {
	Timeout time.Duration
	Sweep   time.Duration
}

// DialFunc creates the outbound socket for a new session. It is called
// without any table lock held; when two packets race to create the same
// flow, the loser's socket is closed and the winner's session is used.
type DialFunc func() (net.Conn, error)

// Table is the concurrent session map. Lookups and touches of unrelated
// flows never contend with session removal.
type Table struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[Key]*Session
	closed   bool

	expired atomic.Uint64
}

// NewTable returns an empty table. Call Run to start the reaper.
func NewTable(cfg Config) *Table {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Sweep <= 0 {
		cfg.Sweep = DefaultSweep
	}
	return &Table{
		cfg:      cfg,
		sessions: map[Key]*Session{},
	}
}

// Lookup returns the session for key if one exists. It never creates.
func (t *Table) Lookup(key Key) (*Session, bool) {
	t.mu.RLock()
	s, ok := t.sessions[key]
	t.mu.RUnlock()
	return s, ok
}

// GetOrCreate returns the session for key, creating it if absent. Exactly
// one session is created per key even under concurrent first packets: the
// socket is dialed speculatively outside the lock, and a loser closes its
// socket and adopts the winner's session. The second return value reports
// whether this call created the session.
func (t *Table) GetOrCreate(key Key, now time.Time, dial DialFunc, onReceive ReceiveFunc) (*Session, bool, error) {
	t.mu.RLock()
	s, ok := t.sessions[key]
	t.mu.RUnlock()
	if ok {
		s.Touch(now)
		return s, false, nil
	}

	conn, err := dial()
	if err != nil {
		return nil, false, err
	}

	t.mu.Lock()
	if s, ok := t.sessions[key]; ok {
		t.mu.Unlock()
		_ = conn.Close()
		s.Touch(now)
		return s, false, nil
	}
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return nil, false, ErrTableClosed
	}
	s = newSession(key, conn, now)
	t.sessions[key] = s
	t.mu.Unlock()

	go s.run(onReceive)
	logrus.WithField("session", key.String()).Debug("session created")
	return s, true, nil
}

// Len returns the number of active sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Expired returns the total number of sessions the reaper has removed.
func (t *Table) Expired() uint64 {
	return t.expired.Load()
}

// Run drives the reaper until ctx is canceled, then closes every
// remaining session.
func (t *Table) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.Sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.closeAll()
			return nil
		case now := <-ticker.C:
			t.reap(now)
		}
	}
}

// reap removes sessions idle for strictly longer than the timeout.
// Candidates are collected under the read lock; each removal re-checks
// the timestamp under the write lock so a concurrent Touch wins, and
// sockets are closed outside any lock.
func (t *Table) reap(now time.Time) {
	cutoff := now.Add(-t.cfg.Timeout)

	var stale []*Session
	t.mu.RLock()
	for _, s := range t.sessions {
		if s.LastActive().Before(cutoff) {
			stale = append(stale, s)
		}
	}
	t.mu.RUnlock()

	for _, s := range stale {
		t.mu.Lock()
		cur, ok := t.sessions[s.Key()]
		if !ok || cur != s || !cur.LastActive().Before(cutoff) {
			t.mu.Unlock()
			continue
		}
		delete(t.sessions, s.Key())
		t.mu.Unlock()

		s.Close()
		t.expired.Add(1)
		logrus.WithField("session", s.Key().String()).Debug("session expired")
	}
}

func (t *Table) closeAll() {
	t.mu.Lock()
	remaining := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		remaining = append(remaining, s)
	}
	t.sessions = map[Key]*Session{}
	t.closed = true
	t.mu.Unlock()

	for _, s := range remaining {
		s.Close()
	}
}

package filter

import (
	"errors"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

type rateLimitConfig struct {
	// MaxPackets allowed per client per period.
	MaxPackets int `yaml:"maxPackets"`
	// PeriodSeconds is the window length; defaults to 1.
	PeriodSeconds int `yaml:"periodSeconds"`
}

// rateLimit drops client packets beyond a per-source token bucket. This
// is the one stage that intentionally consults the clock; the rest of the
// chain stays deterministic.
type rateLimit struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[netip.AddrPort]*clientLimiter
	lastPrune time.Time
}

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const rateLimitPruneEvery = time.Minute

func newRateLimit(node *yaml.Node) (Filter, error) {
	cfg := rateLimitConfig{PeriodSeconds: 1}
	if err := decodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	if cfg.MaxPackets <= 0 {
		return nil, errors.New("maxPackets must be > 0")
	}
	if cfg.PeriodSeconds <= 0 {
		return nil, errors.New("periodSeconds must be > 0")
	}

	period := time.Duration(cfg.PeriodSeconds) * time.Second
	return &rateLimit{
		limit:     rate.Every(period / time.Duration(cfg.MaxPackets)),
		burst:     cfg.MaxPackets,
		clients:   map[netip.AddrPort]*clientLimiter{},
		lastPrune: time.Now(),
	}, nil
}

func (f *rateLimit) Name() string { return "rateLimit" }

func (f *rateLimit) Process(ctx *Context) Verdict {
	if ctx.Direction != ClientToUpstream {
		return Continue
	}

	now := time.Now()

	f.mu.Lock()
	cl, ok := f.clients[ctx.Source]
	if !ok {
		cl = &clientLimiter{lim: rate.NewLimiter(f.limit, f.burst)}
		f.clients[ctx.Source] = cl
	}
	cl.lastSeen = now
	f.maybePrune(now)
	f.mu.Unlock()

	if !cl.lim.AllowN(now, 1) {
		return Drop
	}
	return Continue
}

// maybePrune drops limiters for clients not seen recently so the map does
// not grow without bound. Caller holds f.mu.
func (f *rateLimit) maybePrune(now time.Time) {
	if now.Sub(f.lastPrune) < rateLimitPruneEvery {
		return
	}
	f.lastPrune = now
	for src, cl := range f.clients {
		if now.Sub(cl.lastSeen) >= rateLimitPruneEvery {
			delete(f.clients, src)
		}
	}
}

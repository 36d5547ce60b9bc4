package dialer

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/txthinking/socks5"
)

type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyAddr string
	user      string
	pass      string
}

func NewSOCKS5ProxyDialer(cfg Config, proxyAddr, user, pass string) Dialer {
	return &SOCKS5ProxyDialer{cfg: cfg, proxyAddr: proxyAddr, user: user, pass: pass}
}

func (f *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	_ = ctx
	if network != "udp" {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, address)
	}

	timeout := 0
	if f.cfg.DialTimeout > 0 {
		timeout = int(time.Duration(f.cfg.DialTimeout).Seconds())
		if timeout <= 0 {
			timeout = 1
		}
	}

	client, err := socks5.NewClient(f.proxyAddr, f.user, f.pass, timeout, timeout)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy init: %w", err)
	}

	// UDP ASSOCIATE: the returned conn relays datagrams via the proxy.
	c, err := client.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: %w", network, address, err)
	}
	return c, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/pylonproxy/pylon/internal/admin"
	"github.com/pylonproxy/pylon/internal/config"
	"github.com/pylonproxy/pylon/internal/dialer"
	"github.com/pylonproxy/pylon/internal/endpoint"
	"github.com/pylonproxy/pylon/internal/proxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = pflag.String("config", "pylon.yaml", "Path to the YAML configuration file")

		port           = pflag.Uint16("port", 0, "UDP listening port; overrides the config file when set")
		sessionTimeout = pflag.Duration("session-timeout", 0, "Session inactivity expiry; overrides the config file when set")
		sweepInterval  = pflag.Duration("sweep-interval", 0, "How often expired sessions are reaped; overrides the config file when set")
		adminListen    = pflag.String("admin-listen", "", "Admin HTTP listen address (e.g. 127.0.0.1:9091); overrides the config file when set")

		upstream    = pflag.String("upstream", "direct://", "Endpoint transport: direct:// | socks5://[user:pass@]host:port (UDP ASSOCIATE)")
		dialTimeout = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for creating a session's endpoint socket")

		pcapPath = pflag.String("pcap", "", "Write forwarded datagrams to this pcap file. Empty disables.")
		verbose  = pflag.Bool("verbose", false, "Enable per-packet debug logging")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Proxy.Port = *port
	}
	if *sessionTimeout != 0 {
		cfg.Proxy.SessionTimeout = config.Duration(*sessionTimeout)
	}
	if *sweepInterval != 0 {
		cfg.Proxy.SweepInterval = config.Duration(*sweepInterval)
	}
	if *adminListen != "" {
		cfg.Admin.Listen = *adminListen
	}

	set, err := cfg.EndpointSet()
	if err != nil {
		return err
	}
	registry := endpoint.NewRegistry(set)

	chain, err := cfg.BuildChain()
	if err != nil {
		return err
	}

	dial, err := dialer.New(dialer.Config{DialTimeout: *dialTimeout}, *upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	var tap *proxy.PcapTap
	if *pcapPath != "" {
		f, err := os.Create(*pcapPath)
		if err != nil {
			return fmt.Errorf("pcap: %w", err)
		}
		tap = proxy.NewPcapTap(f)
	}

	srv := proxy.New(proxy.Config{
		SessionTimeout: time.Duration(cfg.Proxy.SessionTimeout),
		SweepInterval:  time.Duration(cfg.Proxy.SweepInterval),
		Dialer:         dial,
	}, registry, chain, tap)

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := proxy.ListenUDP(ctx, fmt.Sprintf(":%d", cfg.Proxy.Port))
	if err != nil {
		return err
	}

	g.Go(func() error {
		if err := srv.Serve(ctx, conn); err != nil {
			return fmt.Errorf("proxy serve: %w", err)
		}
		return nil
	})
	logrus.WithFields(logrus.Fields{
		"port":      cfg.Proxy.Port,
		"endpoints": set.Len(),
		"filters":   chain.Stages(),
	}).Info("proxy listening")

	if cfg.Admin.Listen != "" {
		adm := admin.New(registry, srv, chain.Stages())
		g.Go(func() error {
			if err := adm.Run(ctx, cfg.Admin.Listen); err != nil {
				return fmt.Errorf("admin serve: %w", err)
			}
			return nil
		})
		logrus.Infof("admin listening on %s", cfg.Admin.Listen)
	}

	// SIGHUP swaps in the endpoint set from the config file without
	// touching established sessions.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				next, err := config.Load(*configPath)
				if err != nil {
					logrus.Errorf("reload: %v", err)
					continue
				}
				set, err := next.EndpointSet()
				if err != nil {
					logrus.Errorf("reload: %v", err)
					continue
				}
				registry.Store(set)
				logrus.Infof("reloaded %d endpoints", set.Len())
			}
		}
	})

	err = g.Wait()

	if tap != nil {
		if cerr := tap.Close(); cerr != nil {
			logrus.Errorf("pcap close: %v", cerr)
		}
	}

	logrus.Info("shutting down")
	return err
}

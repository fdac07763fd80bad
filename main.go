package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/table"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/sockd/internal/auth"
	"github.com/die-net/sockd/internal/config"
	"github.com/die-net/sockd/internal/dialer"
	"github.com/die-net/sockd/internal/proxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		socksListen = pflag.String("socks5-listen", ":"+strconv.Itoa(proxy.DefaultPort), "SOCKS5 listen address (IPv4 only)")
		configPath  = pflag.String("config", "", "YAML configuration file. Empty uses built-in defaults.")
		overrides   = pflag.StringArray("set", nil, "Configuration override key=value (repeatable), e.g. proxy_server.socks.5.auth.method.usr_pwd.enable=true")
		credsPath   = pflag.String("credentials-file", "", "File of username:password lines for username/password authentication; passwords may be bcrypt hashes")

		upstream = pflag.String("upstream", defaultUpstream(), "Upstream forwarding target URL: direct:// | socks5://[user:pass@]host:port")

		debugListen       = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")
		dialTimeout       = pflag.Duration("dial-timeout", proxy.DefaultDialTimeout, "Timeout for outbound TCP connect")
		clientReadTimeout = pflag.Duration("client-read-timeout", proxy.DefaultClientReadTimeout, "Timeout for each read from a client")
		drainTimeout      = pflag.Duration("drain-timeout", proxy.DefaultDrainTimeout, "Time connections get to finish on shutdown before they are closed")
		tcpKeepAlive      = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		logLevel          = pflag.String("log-level", "info", "Log level: trace|debug|info|warn|error")
		verbose           = pflag.Bool("verbose", false, "Enable per-connection logging (same as --log-level=debug)")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	logger, err := newLogger(*logLevel, *verbose)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	values, err := config.Load(*configPath, os.Environ(), auth.ConfigKeys()...)
	if err != nil {
		return err
	}
	if err := values.MergeOverrides(*overrides); err != nil {
		return fmt.Errorf("invalid --set: %w", err)
	}
	applyDefaults(values)

	creds := auth.NewCredentials()
	if *credsPath != "" {
		if err := loadCredentials(creds, *credsPath); err != nil {
			return err
		}
	}

	registry, err := auth.FromConfig(values, auth.Options{Credentials: creds, Logger: logger})
	if err != nil {
		return fmt.Errorf("auth config: %w", err)
	}
	if len(registry.Enabled()) == 0 {
		logger.Warn().Msg("no authentication method enabled; every client will be refused")
	}

	dialCfg := dialer.Config{
		DialTimeout: *dialTimeout,
		KeepAlive:   ka,
	}

	d, err := dialer.New(dialCfg, *upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	cfg := proxy.Config{
		Logger:            logger,
		Registry:          registry,
		Dialer:            d,
		DialTimeout:       *dialTimeout,
		ClientReadTimeout: *clientReadTimeout,
		DrainTimeout:      *drainTimeout,
		KeepAlive:         ka,
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *debugListen != "" {
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: ka}
		debugLn, err := lc.Listen(ctx, "tcp", *debugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		logger.Info().Str("addr", *debugListen).Msg("debug listening")
	}

	ln, err := proxy.ListenTCP(*socksListen, ka)
	if err != nil {
		return fmt.Errorf("socks5 listen: %w", err)
	}

	// Connections are drained by Close, not by canceling their context.
	s5 := proxy.NewSOCKS5Server(context.WithoutCancel(ctx), cfg)

	g.Go(func() error {
		if err := s5.Serve(ln); err != nil && !errors.Is(err, proxy.ErrServerClosed) {
			return fmt.Errorf("socks5 serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return s5.Close()
	})

	err = g.Wait()

	logger.Info().Msg("shut down")
	fmt.Fprintln(os.Stderr, renderStats(s5.Stats().Snapshot()))
	return err
}

func newLogger(level string, verbose bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Logger{}, err
	}
	if verbose && lvl > zerolog.DebugLevel {
		lvl = zerolog.DebugLevel
	}
	// Trace is filtered globally unless lowered here.
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}).Level(lvl).With().Timestamp().Logger(), nil
}

// applyDefaults enables no-auth unless configuration says otherwise.
func applyDefaults(v config.Values) {
	key := config.Key(auth.KeyPrefix, auth.KeyNoAuth, "enable")
	if _, ok := v[key]; !ok {
		v.Set(key, "true")
	}
}

func loadCredentials(creds *auth.Credentials, path string) error {
	f, err := os.Open(path) //nolint:gosec // Path is from the command line.
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	defer f.Close()

	if err := creds.Load(f); err != nil {
		return fmt.Errorf("credentials %s: %w", path, err)
	}
	return nil
}

func renderStats(s proxy.StatsSnapshot) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Total accepted", "Current"})
	t.AppendRow(table.Row{s.TotalAccepted, s.Current})
	return t.Render()
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false, Idle: -1}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

// defaultUpstream honours ALL_PROXY when it names a SOCKS5 proxy.
func defaultUpstream() string {
	for _, name := range []string{"ALL_PROXY", "all_proxy"} {
		if p := os.Getenv(name); strings.HasPrefix(strings.ToLower(p), "socks5://") {
			return p
		}
	}
	return "direct://"
}

package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http/httputil"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/die-net/sockd/internal/socks5"
	"github.com/die-net/sockd/internal/workpool"
)

// ErrServerClosed is returned by Serve once Close has been called.
var ErrServerClosed = errors.New("socks5: server closed")

// State is the lifecycle state of a SOCKS5Server.
type State int32

const (
	StateNotStarted State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const maxAcceptBackoff = time.Second

type SOCKS5Server struct {
	cfg     Config
	log     zerolog.Logger
	pool    *workpool.Pool
	buffers httputil.BufferPool

	versions map[byte]versionHandler
	commands map[byte]Builder

	stats Stats

	// mu orders state transitions against publishing ln and bound.
	mu         sync.Mutex
	state      atomic.Int32
	ln         net.Listener
	bound      socks5.Endpoint
	acceptDone chan struct{}
	stopped    chan struct{}
}

// NewSOCKS5Server returns a server that is not yet accepting. Handler
// goroutines run under ctx; canceling it force-closes their sockets.
func NewSOCKS5Server(ctx context.Context, cfg Config) *SOCKS5Server {
	cfg = cfg.withDefaults()
	s := &SOCKS5Server{
		cfg:        cfg,
		log:        cfg.Logger,
		pool:       workpool.New(ctx),
		buffers:    NewBufferPool(relayBufferSize),
		acceptDone: make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	s.versions = map[byte]versionHandler{
		socks5.Version: s.negotiate,
	}
	s.commands = map[byte]Builder{
		socks5.CmdConnect: &connectBuilder{s: s},
	}
	return s
}

// Serve accepts connections on ln until Close is called, and then returns
// ErrServerClosed. ln must be bound to an IPv4 address; that address is
// echoed in every reply.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	bound, err := socks5.NewEndpoint(ln.Addr())
	if err != nil {
		return fmt.Errorf("socks5 serve: %w", err)
	}

	s.mu.Lock()
	if !s.state.CompareAndSwap(int32(StateNotStarted), int32(StateRunning)) {
		st := s.State()
		s.mu.Unlock()
		if st == StateRunning {
			s.log.Warn().Msg("socks5 server already started")
			return errors.New("socks5: server already started")
		}
		return ErrServerClosed
	}
	s.ln = ln
	s.bound = bound
	s.mu.Unlock()

	defer close(s.acceptDone)

	s.log.Info().Stringer("addr", ln.Addr()).Msg("socks5 server running")

	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.State() != StateRunning {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				s.log.Error().Err(err).Msg("socks5 listener closed unexpectedly")
				return fmt.Errorf("socks5 accept: %w", err)
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			s.log.Error().Err(err).Dur("retry_in", backoff).Msg("socks5 accept")
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.stats.accepted()
		conn := &readTimeoutConn{Conn: c, timeout: s.cfg.ClientReadTimeout}
		if err := s.pool.Go(func(ctx context.Context) {
			s.handleConn(ctx, conn)
		}); err != nil {
			// Not handled, so not current either.
			_ = c.Close()
			return ErrServerClosed
		}
	}
}

// Close stops the server. It closes the listener, waits for the accept
// loop, then gives running connections up to DrainTimeout to finish before
// their sockets are closed. Close blocks until all of that is done; later
// calls wait for the first one.
func (s *SOCKS5Server) Close() error {
	s.mu.Lock()
	if s.state.CompareAndSwap(int32(StateNotStarted), int32(StateStopped)) {
		s.mu.Unlock()
		s.pool.Shutdown(0)
		close(s.stopped)
		return nil
	}
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		s.mu.Unlock()
		s.log.Debug().Msg("socks5 server already stopping")
		<-s.stopped
		return nil
	}
	ln := s.ln
	s.mu.Unlock()

	s.log.Info().Msg("socks5 server stopping")

	err := ln.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	<-s.acceptDone

	if !s.pool.Shutdown(s.cfg.DrainTimeout) {
		s.log.Warn().Dur("drain_timeout", s.cfg.DrainTimeout).Int64("current", s.stats.Current()).
			Msg("connections still open after drain timeout; closed them")
	}

	s.state.Store(int32(StateStopped))
	close(s.stopped)
	s.log.Info().Int64("total_accepted", s.stats.TotalAccepted()).Msg("socks5 server stopped")

	if err != nil {
		return fmt.Errorf("socks5 close: %w", err)
	}
	return nil
}

// State returns the current lifecycle state.
func (s *SOCKS5Server) State() State { return State(s.state.Load()) }

// IsRunning reports whether the server is accepting connections.
func (s *SOCKS5Server) IsRunning() bool { return s.State() == StateRunning }

// Addr returns the listener address, or nil before Serve.
func (s *SOCKS5Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stats returns the connection counters. They stay readable after Close.
func (s *SOCKS5Server) Stats() *Stats { return &s.stats }

func (s *SOCKS5Server) TotalAccepted() int64 { return s.stats.TotalAccepted() }

func (s *SOCKS5Server) Current() int64 { return s.stats.Current() }

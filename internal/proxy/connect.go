package proxy

import (
	"context"
	"errors"
	"net"
	"net/http/httputil"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/die-net/sockd/internal/dialer"
	"github.com/die-net/sockd/internal/socks5"
	"github.com/die-net/sockd/internal/workpool"
)

// Builder prepares a command from the request's destination octets. On
// anything but Success the returned Command is nil and nothing needs
// releasing.
type Builder interface {
	Build(ctx context.Context, client net.Conn, addr, port []byte) (Command, socks5.ReplyCode)
}

// Command is a prepared request, run after the success reply is written.
type Command interface {
	// Execute runs the command and returns once the client side is done.
	Execute(ctx context.Context)
	// Close releases the command's resources. It is safe to call more
	// than once.
	Close(ctx context.Context)
}

type connectBuilder struct {
	s *SOCKS5Server
}

func (b *connectBuilder) Build(ctx context.Context, client net.Conn, addr, port []byte) (Command, socks5.ReplyCode) {
	log := zerolog.Ctx(ctx)

	dst, err := socks5.DecodeIPv4(addr, port)
	if err != nil {
		log.Debug().Err(err).Msg("connect: bad destination")
		return nil, socks5.GeneralFailure
	}

	dctx, cancel := context.WithTimeout(ctx, b.s.cfg.DialTimeout)
	defer cancel()

	upstream, err := b.s.cfg.Dialer.DialContext(dctx, "tcp4", dst)
	if err != nil {
		code := dialer.Classify(err)
		log.Debug().Err(err).Stringer("reply", code).Msg("connect: dial")
		return nil, code
	}
	log.Debug().Str("dst", dst).Stringer("local", upstream.LocalAddr()).Msg("connect: upstream established")

	return &relay{
		client:       client,
		upstream:     upstream,
		pool:         b.s.pool,
		buffers:      b.s.buffers,
		stopUpstream: workpool.CloseOnCancel(ctx, upstream),
	}, socks5.Success
}

// relay copies bytes between the client and upstream. Client to upstream
// ("forward") runs on the caller's goroutine; upstream to client
// ("backward") is a separate pool task. Neither waits for the other: the
// two only share the sockets.
type relay struct {
	client   net.Conn
	upstream net.Conn
	pool     *workpool.Pool
	buffers  httputil.BufferPool

	// forwardStopped silences backward's read error once the upstream
	// is about to be closed underneath it.
	forwardStopped  atomic.Bool
	backwardStopped atomic.Bool

	stopUpstream func() bool
	closeOnce    sync.Once
}

func (r *relay) Execute(ctx context.Context) {
	log := zerolog.Ctx(ctx)

	if err := r.pool.Go(func(context.Context) { r.backward(ctx) }); err != nil {
		log.Debug().Err(err).Msg("relay: backward not started")
		return
	}
	r.forward(ctx)
}

func (r *relay) forward(ctx context.Context) {
	log := zerolog.Ctx(ctx)
	defer r.forwardStopped.Store(true)

	// A client read timeout is a chance to notice shutdown or a finished
	// backward direction; otherwise keep waiting for the client.
	keepWaiting := func() bool {
		return !r.pool.IsDraining() && !r.backwardStopped.Load()
	}

	n, err := pump(ctx, r.upstream, r.client, r.buffers, "forward", keepWaiting)
	ev := log.Debug()
	if err != nil && !isTimeout(err) {
		ev = ev.Err(err)
	}
	ev.Int64("bytes", n).Msg("relay: forward done")
}

func (r *relay) backward(ctx context.Context) {
	log := zerolog.Ctx(ctx)

	n, err := pump(ctx, r.client, r.upstream, r.buffers, "backward", nil)

	r.backwardStopped.Store(true)
	// Wake forward if it is blocked reading from the client.
	_ = r.client.SetReadDeadline(time.Now())

	ev := log.Debug()
	if err != nil && !r.forwardStopped.Load() && !errors.Is(err, net.ErrClosed) {
		ev = ev.Err(err)
	}
	ev.Int64("bytes", n).Msg("relay: backward done")
}

func (r *relay) Close(ctx context.Context) {
	r.closeOnce.Do(func() {
		r.stopUpstream()
		if err := r.upstream.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("relay: close upstream")
		}
	})
}

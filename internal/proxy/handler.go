package proxy

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/die-net/sockd/internal/workpool"
)

// versionHandler serves a connection after its version byte was read.
type versionHandler func(ctx context.Context, conn net.Conn) error

func (s *SOCKS5Server) handleConn(ctx context.Context, conn net.Conn) {
	s.stats.begin()

	log := s.log.With().
		Str("conn", uuid.NewString()).
		Stringer("remote", conn.RemoteAddr()).
		Logger()
	ctx = log.WithContext(ctx)

	stop := workpool.CloseOnCancel(ctx, conn)
	defer func() {
		stop()
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debug().Err(err).Msg("close client")
		}
		s.stats.end()
	}()

	var ver [1]byte
	if _, err := io.ReadFull(conn, ver[:]); err != nil {
		log.Debug().Err(err).Msg("read version")
		return
	}

	handle, ok := s.versions[ver[0]]
	if !ok {
		log.Debug().Uint8("version", ver[0]).Msg("unsupported protocol version; dropping connection")
		return
	}

	if err := handle(ctx, conn); err != nil {
		logEnd(log, err)
		return
	}
	log.Debug().Msg("connection finished")
}

// logEnd reports why a connection ended. Client misbehaviour is routine and
// logged at debug level.
func logEnd(log zerolog.Logger, err error) {
	if errors.Is(err, errUpstream) {
		log.Info().Err(err).Msg("connection failed")
		return
	}
	log.Debug().Err(err).Msg("connection failed")
}

package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/rs/zerolog"

	"github.com/die-net/sockd/internal/socks5"
)

var (
	errNoAcceptableMethod = errors.New("no acceptable authentication method")
	errUpstream           = errors.New("upstream connect failed")
)

// negotiate runs method selection, authentication, request parsing,
// command dispatch, the reply and the relay, in that order. The version
// byte has already been consumed.
func (s *SOCKS5Server) negotiate(ctx context.Context, conn net.Conn) error {
	log := zerolog.Ctx(ctx)

	if err := s.authenticate(ctx, conn); err != nil {
		return err
	}

	req, err := socks5.ReadRequest(conn)
	if err != nil {
		code := socks5.GeneralFailure
		var reqErr *socks5.RequestError
		if errors.As(err, &reqErr) {
			code = reqErr.Code
		}
		if werr := s.reply(conn, code); werr != nil {
			log.Debug().Err(werr).Msg("write reply")
		}
		return fmt.Errorf("request: %w", err)
	}

	builder, ok := s.commands[req.Command]
	if !ok {
		if werr := s.reply(conn, socks5.UnsupportedCommand); werr != nil {
			log.Debug().Err(werr).Msg("write reply")
		}
		return fmt.Errorf("request: unsupported %s", socks5.CommandName(req.Command))
	}

	log.Debug().Str("cmd", socks5.CommandName(req.Command)).Str("dst", req.Destination()).Msg("request")

	cmd, code := builder.Build(ctx, conn, req.Addr, req.Port)

	if err := s.reply(conn, code); err != nil {
		if cmd != nil {
			cmd.Close(ctx)
		}
		return fmt.Errorf("write reply: %w", err)
	}
	if code != socks5.Success {
		return fmt.Errorf("%w: %s: %s", errUpstream, req.Destination(), code)
	}

	defer cmd.Close(ctx)
	cmd.Execute(ctx)
	return nil
}

// authenticate reads the method list, selects a method and runs it. If no
// offered method is enabled the client gets [05 FF] and nothing more is
// read.
func (s *SOCKS5Server) authenticate(ctx context.Context, conn net.Conn) error {
	var n [1]byte
	if _, err := io.ReadFull(conn, n[:]); err != nil {
		return fmt.Errorf("read method count: %w", err)
	}
	offered := make([]byte, n[0])
	if _, err := io.ReadFull(conn, offered); err != nil {
		return fmt.Errorf("read methods: %w", err)
	}

	method, ok := s.cfg.Registry.Select(offered)
	if !ok {
		if err := socks5.WriteMethodSelection(conn, socks5.MethodNoAcceptable); err != nil {
			return fmt.Errorf("write method selection: %w", err)
		}
		return fmt.Errorf("%w: offered %x", errNoAcceptableMethod, offered)
	}

	if err := socks5.WriteMethodSelection(conn, method.Code); err != nil {
		return fmt.Errorf("write method selection: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("method", socks5.MethodName(method.Code)).Msg("method selected")

	if err := method.Authenticate(ctx, conn); err != nil {
		return err
	}
	return nil
}

func (s *SOCKS5Server) reply(w io.Writer, code socks5.ReplyCode) error {
	return socks5.WriteReply(w, code, s.bound)
}

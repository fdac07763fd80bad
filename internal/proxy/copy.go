package proxy

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net/http/httputil"

	"github.com/rs/zerolog"
)

// pump copies src to dst through a pooled buffer until src reports EOF or
// an error. A timed out read is retried while keepWaiting returns true; a
// nil keepWaiting ends the copy on the first timeout. EOF is not an error.
func pump(ctx context.Context, dst io.Writer, src io.Reader, buffers httputil.BufferPool, dir string, keepWaiting func() bool) (int64, error) {
	log := zerolog.Ctx(ctx)

	buf := buffers.Get()
	defer buffers.Put(buf)

	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			if ev := log.Trace(); ev.Enabled() {
				ev.Str("dir", dir).Str("data", hex.EncodeToString(buf[:nr])).Msg("relay")
			}
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, nil
			}
			if isTimeout(rerr) && keepWaiting != nil && keepWaiting() {
				continue
			}
			return written, rerr
		}
	}
}

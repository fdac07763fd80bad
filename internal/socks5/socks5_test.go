package socks5

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"golang.org/x/sync/errgroup"
)

// serveOnce plays a minimal server for the client helpers: it accepts the
// method the client offers last and answers the request with rep.
func serveOnce(conn net.Conn, auth Auth, rep ReplyCode) error {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return err
	}
	methods := make([]byte, hdr[1])
	if _, err := io.ReadFull(conn, methods); err != nil {
		return err
	}
	method := methods[len(methods)-1]
	if err := WriteMethodSelection(conn, method); err != nil {
		return err
	}

	if method == MethodUsernamePassword {
		var b [1]byte
		if _, err := io.ReadFull(conn, b[:]); err != nil {
			return err
		}
		fields := make([]string, 2)
		for i := range fields {
			if _, err := io.ReadFull(conn, b[:]); err != nil {
				return err
			}
			f := make([]byte, b[0])
			if _, err := io.ReadFull(conn, f); err != nil {
				return err
			}
			fields[i] = string(f)
		}
		status := byte(0)
		if fields[0] != auth.Username || fields[1] != auth.Password {
			status = 1
		}
		if _, err := conn.Write([]byte{1, status}); err != nil {
			return err
		}
	}

	req, err := ReadRequest(conn)
	if err != nil {
		return err
	}
	if req.Command != CmdConnect {
		return fmt.Errorf("unexpected command: %d", req.Command)
	}

	ep, err := NewEndpoint(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345})
	if err != nil {
		return err
	}
	return WriteReply(conn, rep, ep)
}

func TestClientDialToServer(t *testing.T) {
	tests := []struct {
		name    string
		auth    Auth
		rep     ReplyCode
		wantErr bool
	}{
		{name: "no_auth", rep: Success},
		{name: "user_pass", auth: Auth{Username: "user", Password: "pass"}, rep: Success},
		{name: "refused", rep: ConnectionRefused, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				return serveOnce(serverConn, tt.auth, tt.rep)
			})

			err := ClientDial(clientConn, tt.auth, "127.0.0.1:80")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestReadRequest(t *testing.T) {
	tests := []struct {
		name     string
		in       []byte
		wantCode ReplyCode
		wantErr  bool
		wantLeft int
	}{
		{
			name: "connect ipv4",
			in:   []byte{5, 1, 0, 1, 127, 0, 0, 1, 0x04, 0x38},
		},
		{
			name:     "bad version",
			in:       []byte{4, 1, 0, 1, 127, 0, 0, 1, 0x04, 0x38},
			wantErr:  true,
			wantCode: GeneralFailure,
			wantLeft: 9,
		},
		{
			name:     "bind unsupported",
			in:       []byte{5, 2, 0, 1, 127, 0, 0, 1, 0x04, 0x38},
			wantErr:  true,
			wantCode: UnsupportedCommand,
			wantLeft: 8,
		},
		{
			name:     "unknown command",
			in:       []byte{5, 9, 0, 1},
			wantErr:  true,
			wantCode: UnsupportedCommand,
			wantLeft: 2,
		},
		{
			name:     "nonzero reserved",
			in:       []byte{5, 1, 7, 1, 127, 0, 0, 1, 0x04, 0x38},
			wantErr:  true,
			wantCode: GeneralFailure,
			wantLeft: 7,
		},
		{
			name:     "domain unsupported",
			in:       []byte{5, 1, 0, 3, 3, 'f', 'o', 'o', 0, 80},
			wantErr:  true,
			wantCode: UnsupportedAddressType,
			wantLeft: 6,
		},
		{
			name:     "ipv6 unsupported",
			in:       []byte{5, 1, 0, 4},
			wantErr:  true,
			wantCode: UnsupportedAddressType,
		},
		{
			name:     "short address",
			in:       []byte{5, 1, 0, 1, 127, 0},
			wantErr:  true,
			wantCode: GeneralFailure,
		},
		{
			name:     "short port",
			in:       []byte{5, 1, 0, 1, 127, 0, 0, 1, 0x04},
			wantErr:  true,
			wantCode: GeneralFailure,
		},
		{
			name:     "empty",
			in:       nil,
			wantErr:  true,
			wantCode: GeneralFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader(tt.in)
			req, err := ReadRequest(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if r.Len() != tt.wantLeft {
				t.Fatalf("left %d unread bytes, want %d", r.Len(), tt.wantLeft)
			}
			if tt.wantErr {
				var re *RequestError
				if !errors.As(err, &re) {
					t.Fatalf("got %T, want *RequestError", err)
				}
				if re.Code != tt.wantCode {
					t.Fatalf("got code %s, want %s", re.Code, tt.wantCode)
				}
				return
			}
			if got := req.Destination(); got != "127.0.0.1:1080" {
				t.Fatalf("got destination %q", got)
			}
		})
	}
}

func TestWriteReply(t *testing.T) {
	ep, err := NewEndpoint(&net.TCPAddr{IP: net.IPv4(10, 1, 2, 3), Port: 1080})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteReply(&buf, HostUnreachable, ep); err != nil {
		t.Fatal(err)
	}
	want := []byte{5, 4, 0, 1, 10, 1, 2, 3, 0x04, 0x38}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % x want % x", buf.Bytes(), want)
	}

	buf.Reset()
	if err := WriteMethodSelection(&buf, MethodNoAcceptable); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0x05, 0xff}) {
		t.Fatalf("got % x", buf.Bytes())
	}
}

func TestNewEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		addr    net.Addr
		want    string
		wantErr bool
	}{
		{name: "ipv4", addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1080}, want: "127.0.0.1:1080"},
		{name: "unspecified", addr: &net.TCPAddr{IP: net.IPv4zero, Port: 9}, want: "0.0.0.0:9"},
		{name: "ipv6", addr: &net.TCPAddr{IP: net.IPv6loopback, Port: 1080}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := NewEndpoint(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedAddress) {
					t.Fatalf("got %v, want ErrUnsupportedAddress", err)
				}
				return
			}
			if got := ep.String(); got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeIPv4Malformed(t *testing.T) {
	if _, err := DecodeIPv4([]byte{1, 2, 3}, []byte{0, 80}); err == nil {
		t.Fatal("expected error for 3 address octets")
	}
	if _, err := DecodeIPv4([]byte{1, 2, 3, 4}, []byte{80}); err == nil {
		t.Fatal("expected error for 1 port octet")
	}
}

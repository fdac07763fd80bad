// Package socks5 holds the SOCKS5 wire vocabulary and frame codecs used by
// sockd.
//
// Protocol constants come from github.com/txthinking/socks5 and reply frames
// are written through its types, so the byte layout lives in one place. The
// server-side request parser is local because sockd answers every malformed
// request with a specific reply code instead of just dropping it.
//
// Only IPv4 addresses and the CONNECT command are understood; everything
// else is reported back to the caller as the matching reply code.
package socks5

// Package proxy implements the sockd SOCKS5 server.
//
// A SOCKS5Server accepts IPv4 TCP clients and hands each one to a worker
// pool. The handler checks the protocol version and runs the negotiation:
// method selection and authentication, request parsing, command dispatch,
// the reply frame and finally the relay. Only CONNECT is served. The relay
// copies client to upstream on the handler's goroutine and upstream to
// client on a second pool task.
package proxy

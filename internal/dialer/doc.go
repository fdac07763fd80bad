// Package dialer opens the upstream side of a relayed connection.
//
// A Dialer either connects directly, tuning the TCP socket for
// interactive relaying, or chains through another SOCKS5 proxy. Classify
// turns a dial error into the SOCKS5 reply code reported to the client.
package dialer

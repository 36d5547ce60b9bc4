package dialer

// Package dialer provides outbound dialing implementations used by pylon.
//
// Dialers implement a small interface (DialContext) and are used by the
// forwarding engine to create each session's datagram socket toward an
// endpoint, either directly or through an upstream SOCKS5 proxy (UDP
// ASSOCIATE).

package proxy

// Package proxy implements the pylon forwarding engine.
//
// It contains the UDP listener, the per-datagram pipeline driving the
// filter chain and session table, and shared plumbing such as the buffer
// pool and the optional pcap tap.

package filter

import (
	"net/netip"

	"github.com/pylonproxy/pylon/internal/endpoint"
)

// Direction says which way a packet is traveling through the proxy.
type Direction int

const (
	// ClientToUpstream is a packet read from the listening port.
	ClientToUpstream Direction = iota
	// UpstreamToClient is a reply read from a session's endpoint socket.
	UpstreamToClient
)

func (d Direction) String() string {
	if d == UpstreamToClient {
		return "upstream-to-client"
	}
	return "client-to-upstream"
}

// Context carries one packet through the chain. It is ephemeral: built
// per packet, discarded after the chain returns.
type Context struct {
	// Payload is the datagram contents. Stages may replace it.
	Payload []byte
	// Direction of travel.
	Direction Direction
	// Source is the address the datagram was received from.
	Source netip.AddrPort
	// Endpoints is the candidate destination set. For client packets it
	// starts as the full registry snapshot; for replies it is the single
	// endpoint the session is bound to. Stages narrow it, never grow it.
	Endpoints []endpoint.Endpoint
	// Metadata accumulates values across stages, e.g. captured tokens.
	Metadata map[string]any
}

// NewContext builds a context for one chain execution.
func NewContext(payload []byte, dir Direction, src netip.AddrPort, candidates []endpoint.Endpoint) *Context {
	return &Context{
		Payload:   payload,
		Direction: dir,
		Source:    src,
		Endpoints: candidates,
		Metadata:  map[string]any{},
	}
}

package endpoint

import (
	"fmt"
	"net/netip"
)

// MetadataNamespace is the reserved top-level metadata key holding
// proxy-internal fields. Everything outside it is opaque operator data.
const MetadataNamespace = "pylon.dev"

// TokensKey is the field inside MetadataNamespace listing the opaque
// routing tokens an endpoint accepts.
const TokensKey = "tokens"

// Endpoint is one upstream destination the proxy can forward to. It is
// immutable per registry snapshot; nothing in the forwarding path writes
// to it.
type Endpoint struct {
	Addr     netip.AddrPort
	Metadata map[string]any
}

// New returns an Endpoint with an empty metadata bag.
func New(addr netip.AddrPort) Endpoint {
	return Endpoint{Addr: addr, Metadata: map[string]any{}}
}

// Tokens returns the routing tokens stored under the reserved namespace,
// or nil if the endpoint has none. Token bytes are decoded at config load
// time; this is a pure read.
func (e Endpoint) Tokens() [][]byte {
	ns, ok := e.Metadata[MetadataNamespace].(map[string]any)
	if !ok {
		return nil
	}
	tokens, _ := ns[TokensKey].([][]byte)
	return tokens
}

func (e Endpoint) String() string {
	return fmt.Sprintf("endpoint %s", e.Addr)
}

// Set is an immutable collection of endpoints. Callers must not modify
// the slice returned by All; the registry hands the same backing array to
// every concurrent reader.
type Set struct {
	endpoints []Endpoint
}

// NewSet copies eps into a fresh immutable Set.
func NewSet(eps ...Endpoint) *Set {
	cp := make([]Endpoint, len(eps))
	copy(cp, eps)
	return &Set{endpoints: cp}
}

// All returns the endpoints in the set.
func (s *Set) All() []Endpoint {
	return s.endpoints
}

// Len returns the number of endpoints in the set.
func (s *Set) Len() int {
	return len(s.endpoints)
}

// Find returns the endpoint with the given address, if present.
func (s *Set) Find(addr netip.AddrPort) (Endpoint, bool) {
	for _, ep := range s.endpoints {
		if ep.Addr == addr {
			return ep, true
		}
	}
	return Endpoint{}, false
}

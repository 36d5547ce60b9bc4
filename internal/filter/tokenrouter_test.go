package filter

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pylonproxy/pylon/internal/endpoint"
)

func tokenEndpoint(addr string, tokens ...string) endpoint.Endpoint {
	ep := endpoint.New(netip.MustParseAddrPort(addr))
	raw := make([][]byte, len(tokens))
	for i, tok := range tokens {
		raw[i] = []byte(tok)
	}
	ep.Metadata[endpoint.MetadataNamespace] = map[string]any{
		endpoint.TokensKey: raw,
	}
	return ep
}

func routerContext(token string, eps ...endpoint.Endpoint) *Context {
	ctx := NewContext([]byte("hello"), ClientToUpstream, netip.MustParseAddrPort("127.0.0.1:40000"), eps)
	if token != "" {
		ctx.Metadata[CapturedKey] = []byte(token)
	}
	return ctx
}

func TestTokenRouterSelectsMatch(t *testing.T) {
	f, err := newTokenRouter(nil)
	require.NoError(t, err)

	e1 := tokenEndpoint("127.0.0.1:26000", "abc")
	e2 := tokenEndpoint("127.0.0.1:26001", "xyz")

	ctx := routerContext("abc", e1, e2)
	require.Equal(t, Continue, f.Process(ctx))

	require.Len(t, ctx.Endpoints, 1)
	assert.Equal(t, e1.Addr, ctx.Endpoints[0].Addr)
}

func TestTokenRouterNoMatchDrops(t *testing.T) {
	f, err := newTokenRouter(nil)
	require.NoError(t, err)

	ctx := routerContext("nope", tokenEndpoint("127.0.0.1:26000", "abc"))
	assert.Equal(t, Drop, f.Process(ctx))
}

func TestTokenRouterMissingTokenDrops(t *testing.T) {
	f, err := newTokenRouter(nil)
	require.NoError(t, err)

	ctx := routerContext("", tokenEndpoint("127.0.0.1:26000", "abc"))
	assert.Equal(t, Drop, f.Process(ctx))
}

func TestTokenRouterSharedTokenKeepsBoth(t *testing.T) {
	f, err := newTokenRouter(nil)
	require.NoError(t, err)

	e1 := tokenEndpoint("127.0.0.1:26000", "abc")
	e2 := tokenEndpoint("127.0.0.1:26001", "abc", "xyz")

	ctx := routerContext("abc", e1, e2)
	require.Equal(t, Continue, f.Process(ctx))
	// Leaving two candidates is legal here; the engine treats an
	// unresolved destination as a drop.
	assert.Len(t, ctx.Endpoints, 2)
}

func TestTokenRouterCustomMetadataKey(t *testing.T) {
	f, err := newTokenRouter(yamlNode(t, `{metadataKey: TOKEN}`))
	require.NoError(t, err)

	ctx := routerContext("", tokenEndpoint("127.0.0.1:26000", "abc"))
	ctx.Metadata["TOKEN"] = []byte("abc")
	require.Equal(t, Continue, f.Process(ctx))
	assert.Len(t, ctx.Endpoints, 1)
}

func TestTokenRouterReplyPassesThrough(t *testing.T) {
	f, err := newTokenRouter(nil)
	require.NoError(t, err)

	ep := tokenEndpoint("127.0.0.1:26000", "abc")
	ctx := NewContext([]byte("hi"), UpstreamToClient, ep.Addr, []endpoint.Endpoint{ep})
	assert.Equal(t, Continue, f.Process(ctx))
}

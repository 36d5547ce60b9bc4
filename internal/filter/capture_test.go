package filter

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pylonproxy/pylon/internal/endpoint"
)

func yamlNode(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(s), &doc))
	require.NotEmpty(t, doc.Content)
	return doc.Content[0]
}

func TestCaptureSuffixRemove(t *testing.T) {
	f, err := newCapture(yamlNode(t, `{suffix: {size: 3, remove: true}}`))
	require.NoError(t, err)

	ctx := testContext("helloabc")
	require.Equal(t, Continue, f.Process(ctx))

	assert.Equal(t, []byte("hello"), ctx.Payload)
	assert.Equal(t, []byte("abc"), ctx.Metadata[CapturedKey])
	assert.Equal(t, true, ctx.Metadata[CapturedKey+"/is_present"])
}

func TestCaptureSuffixKeep(t *testing.T) {
	f, err := newCapture(yamlNode(t, `{suffix: {size: 3}}`))
	require.NoError(t, err)

	ctx := testContext("helloabc")
	require.Equal(t, Continue, f.Process(ctx))

	assert.Equal(t, []byte("helloabc"), ctx.Payload)
	assert.Equal(t, []byte("abc"), ctx.Metadata[CapturedKey])
}

func TestCapturePrefixRemove(t *testing.T) {
	f, err := newCapture(yamlNode(t, `{prefix: {size: 3, remove: true}, metadataKey: TOKEN}`))
	require.NoError(t, err)

	ctx := testContext("abchello")
	require.Equal(t, Continue, f.Process(ctx))

	assert.Equal(t, []byte("hello"), ctx.Payload)
	assert.Equal(t, []byte("abc"), ctx.Metadata["TOKEN"])
}

func TestCaptureRegexKeepsPayload(t *testing.T) {
	f, err := newCapture(yamlNode(t, `{regex: '.{3}$'}`))
	require.NoError(t, err)

	ctx := testContext("helloabc")
	require.Equal(t, Continue, f.Process(ctx))

	assert.Equal(t, []byte("helloabc"), ctx.Payload)
	assert.Equal(t, []byte("abc"), ctx.Metadata[CapturedKey])
}

func TestCaptureShortPayloadDrops(t *testing.T) {
	f, err := newCapture(yamlNode(t, `{suffix: {size: 99, remove: true}}`))
	require.NoError(t, err)

	ctx := testContext("abc")
	assert.Equal(t, Drop, f.Process(ctx))
	assert.Equal(t, false, ctx.Metadata[CapturedKey+"/is_present"])
	assert.NotContains(t, ctx.Metadata, CapturedKey)
}

func TestCaptureReplyPassesThrough(t *testing.T) {
	f, err := newCapture(yamlNode(t, `{suffix: {size: 3, remove: true}}`))
	require.NoError(t, err)

	ep := endpoint.New(netip.MustParseAddrPort("127.0.0.1:26000"))
	ctx := NewContext([]byte("ab"), UpstreamToClient, ep.Addr, []endpoint.Endpoint{ep})

	assert.Equal(t, Continue, f.Process(ctx))
	assert.Equal(t, []byte("ab"), ctx.Payload)
	assert.Empty(t, ctx.Metadata)
}

func TestCaptureConfigErrors(t *testing.T) {
	_, err := newCapture(nil)
	assert.Error(t, err, "no strategy configured")

	_, err = newCapture(yamlNode(t, `{prefix: {size: 3}, suffix: {size: 3}}`))
	assert.Error(t, err, "two strategies configured")

	_, err = newCapture(yamlNode(t, `{regex: '['}`))
	assert.Error(t, err, "invalid regex")

	_, err = newCapture(yamlNode(t, `{suffix: {size: WRONG}}`))
	assert.Error(t, err, "non-integer size")
}

package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestBuildResolvesInOrder(t *testing.T) {
	chain, err := Build([]Spec{
		{Name: "capture", Config: *yamlNode(t, `{suffix: {size: 3, remove: true}}`)},
		{Name: "tokenRouter"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"capture", "tokenRouter"}, chain.Stages())
}

func TestBuildFromUnmarshaledSpecs(t *testing.T) {
	var specs []Spec
	require.NoError(t, yaml.Unmarshal([]byte(`
- name: capture
  config:
    suffix:
      size: 3
      remove: true
`), &specs))

	chain, err := Build(specs)
	require.NoError(t, err)

	// The config block must survive unmarshaling: the suffix strategy
	// strips the token and records it under the default key.
	ctx := testContext("helloabc")
	require.Equal(t, Continue, chain.Run(ctx))
	assert.Equal(t, []byte("abc"), ctx.Metadata[CapturedKey])
	assert.Equal(t, []byte("hello"), ctx.Payload)
}

func TestBuildUnknownFilter(t *testing.T) {
	_, err := Build([]Spec{{Name: "shredder"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shredder")
}

func TestBuildBadConfigFailsWhole(t *testing.T) {
	_, err := Build([]Spec{
		{Name: "debug"},
		{Name: "capture"}, // missing strategy
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture")
}

func TestRegisterDuplicate(t *testing.T) {
	err := Register("capture", func(cfg *yaml.Node) (Filter, error) { return nil, nil })
	require.Error(t, err)
}

func TestKnownIsSorted(t *testing.T) {
	names := Known()
	require.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
}

package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugAlwaysContinues(t *testing.T) {
	f, err := newDebug(yamlNode(t, `{id: test}`))
	require.NoError(t, err)

	ctx := testContext("hello")
	assert.Equal(t, Continue, f.Process(ctx))
	assert.Equal(t, []byte("hello"), ctx.Payload)
	assert.Len(t, ctx.Endpoints, 1)
}

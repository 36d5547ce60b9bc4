package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pylonproxy/pylon/internal/endpoint"
	"github.com/pylonproxy/pylon/internal/proxy"
)

func startAdmin(t *testing.T) *httptest.Server {
	t.Helper()

	ep := endpoint.New(netip.MustParseAddrPort("127.0.0.1:26000"))
	ep.Metadata["region"] = "eu-west"
	registry := endpoint.NewRegistry(endpoint.NewSet(ep))

	engine := proxy.New(proxy.Config{}, registry, nil, nil)
	adm := New(registry, engine, []string{"capture", "tokenRouter"})

	srv := httptest.NewServer(adm.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec // Test-local URL.
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestLive(t *testing.T) {
	srv := startAdmin(t)
	code, body := get(t, srv.URL+"/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", string(body))
}

func TestConfig(t *testing.T) {
	srv := startAdmin(t)
	code, body := get(t, srv.URL+"/config")
	require.Equal(t, http.StatusOK, code)

	var got struct {
		Endpoints []struct {
			Address  string         `json:"address"`
			Metadata map[string]any `json:"metadata"`
		} `json:"endpoints"`
		Filters []string `json:"filters"`
	}
	require.NoError(t, json.Unmarshal(body, &got))

	require.Len(t, got.Endpoints, 1)
	assert.Equal(t, "127.0.0.1:26000", got.Endpoints[0].Address)
	assert.Equal(t, "eu-west", got.Endpoints[0].Metadata["region"])
	assert.Equal(t, []string{"capture", "tokenRouter"}, got.Filters)
}

func TestSessions(t *testing.T) {
	srv := startAdmin(t)
	code, body := get(t, srv.URL+"/sessions")
	require.Equal(t, http.StatusOK, code)

	var stats proxy.Stats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 0, stats.ActiveSessions)
}

func TestUnknownPath(t *testing.T) {
	srv := startAdmin(t)
	code, _ := get(t, srv.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

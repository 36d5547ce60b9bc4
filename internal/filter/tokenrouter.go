package filter

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/pylonproxy/pylon/internal/endpoint"
)

type tokenRouterConfig struct {
	MetadataKey string `yaml:"metadataKey"`
}

// tokenRouter narrows the candidate set to endpoints whose reserved
// metadata token list contains the token a prior capture stage recorded.
// A packet with no captured token, or a token no endpoint accepts, is
// dropped.
type tokenRouter struct {
	metadataKey string
}

func newTokenRouter(node *yaml.Node) (Filter, error) {
	cfg := tokenRouterConfig{MetadataKey: CapturedKey}
	if err := decodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	return &tokenRouter{metadataKey: cfg.MetadataKey}, nil
}

func (f *tokenRouter) Name() string { return "tokenRouter" }

func (f *tokenRouter) Process(ctx *Context) Verdict {
	if ctx.Direction != ClientToUpstream {
		return Continue
	}

	token, ok := ctx.Metadata[f.metadataKey].([]byte)
	if !ok || len(token) == 0 {
		return Drop
	}

	var matched []endpoint.Endpoint
	for _, ep := range ctx.Endpoints {
		for _, accepted := range ep.Tokens() {
			if bytes.Equal(token, accepted) {
				matched = append(matched, ep)
				break
			}
		}
	}
	if len(matched) == 0 {
		return Drop
	}

	ctx.Endpoints = matched
	return Continue
}

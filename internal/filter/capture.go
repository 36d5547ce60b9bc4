package filter

import (
	"errors"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/pylonproxy/pylon/internal/endpoint"
)

// CapturedKey is the default metadata key the capture filter stores token
// bytes under.
const CapturedKey = endpoint.MetadataNamespace + "/captured"

// captureStrategy pulls token bytes out of a payload. It returns the
// token, the payload to forward (with the token removed if configured),
// and whether anything was captured.
type captureStrategy interface {
	capture(payload []byte) (token, rest []byte, ok bool)
}

type affixConfig struct {
	Size   int  `yaml:"size"`
	Remove bool `yaml:"remove"`
}

type captureConfig struct {
	MetadataKey string       `yaml:"metadataKey"`
	Prefix      *affixConfig `yaml:"prefix"`
	Suffix      *affixConfig `yaml:"suffix"`
	Regex       string       `yaml:"regex"`
}

// capture extracts a routing token from each client payload and records
// it in the context metadata for a later routing stage. A packet the
// strategy cannot capture from is dropped. Replies pass through
// untouched.
type capture struct {
	strategy     captureStrategy
	metadataKey  string
	isPresentKey string
}

func newCapture(node *yaml.Node) (Filter, error) {
	cfg := captureConfig{MetadataKey: CapturedKey}
	if err := decodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	var strategy captureStrategy
	n := 0
	if cfg.Prefix != nil {
		strategy = prefixCapture{affix: *cfg.Prefix}
		n++
	}
	if cfg.Suffix != nil {
		strategy = suffixCapture{affix: *cfg.Suffix}
		n++
	}
	if cfg.Regex != "" {
		re, err := regexp.Compile(cfg.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid regex: %w", err)
		}
		strategy = regexCapture{re: re}
		n++
	}
	if n != 1 {
		return nil, errors.New("exactly one of prefix, suffix, regex must be set")
	}

	return &capture{
		strategy:     strategy,
		metadataKey:  cfg.MetadataKey,
		isPresentKey: cfg.MetadataKey + "/is_present",
	}, nil
}

func (f *capture) Name() string { return "capture" }

func (f *capture) Process(ctx *Context) Verdict {
	if ctx.Direction != ClientToUpstream {
		return Continue
	}

	token, rest, ok := f.strategy.capture(ctx.Payload)
	ctx.Metadata[f.isPresentKey] = ok
	if !ok {
		return Drop
	}

	ctx.Payload = rest
	ctx.Metadata[f.metadataKey] = token
	return Continue
}

type prefixCapture struct {
	affix affixConfig
}

func (c prefixCapture) capture(payload []byte) ([]byte, []byte, bool) {
	if len(payload) < c.affix.Size {
		return nil, payload, false
	}
	token := payload[:c.affix.Size]
	if c.affix.Remove {
		return token, payload[c.affix.Size:], true
	}
	return token, payload, true
}

type suffixCapture struct {
	affix affixConfig
}

func (c suffixCapture) capture(payload []byte) ([]byte, []byte, bool) {
	if len(payload) < c.affix.Size {
		return nil, payload, false
	}
	cut := len(payload) - c.affix.Size
	token := payload[cut:]
	if c.affix.Remove {
		return token, payload[:cut], true
	}
	return token, payload, true
}

// regexCapture never removes its match from the payload.
type regexCapture struct {
	re *regexp.Regexp
}

func (c regexCapture) capture(payload []byte) ([]byte, []byte, bool) {
	m := c.re.Find(payload)
	if m == nil {
		return nil, payload, false
	}
	return m, payload, true
}

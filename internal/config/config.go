// Package config loads and validates the pylon YAML configuration.
// Validation is all-or-nothing: a bad endpoint address, a non-string
// metadata key, or an unknown filter fails the load and no partial state
// is applied.
package config

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pylonproxy/pylon/internal/endpoint"
	"github.com/pylonproxy/pylon/internal/filter"
)

// Defaults applied to fields the file leaves unset.
const (
	DefaultPort           = 7000
	DefaultSessionTimeout = 60 * time.Second
	DefaultSweepInterval  = 2 * time.Second
)

type Config struct {
	Version   string        `yaml:"version"`
	Proxy     Proxy         `yaml:"proxy"`
	Admin     Admin         `yaml:"admin"`
	Endpoints []Endpoint    `yaml:"endpoints"`
	Filters   []filter.Spec `yaml:"filters"`
}

type Proxy struct {
	Port           uint16   `yaml:"port"`
	SessionTimeout Duration `yaml:"sessionTimeout"`
	SweepInterval  Duration `yaml:"sweepInterval"`
}

type Admin struct {
	// Listen is the admin HTTP address, e.g. 127.0.0.1:9091. Empty
	// disables the admin surface.
	Listen string `yaml:"listen"`
}

type Endpoint struct {
	Address  string    `yaml:"address"`
	Metadata yaml.Node `yaml:"metadata"`
}

// Duration accepts either a Go duration string ("60s", "1m30s") or a
// plain number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	// A bare int scalar decodes into a string without error, so the
	// plain-seconds form has to be checked by tag first.
	if node.Tag == "!!int" {
		var secs int64
		if err := node.Decode(&secs); err != nil {
			return fmt.Errorf("invalid duration at line %d", node.Line)
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration at line %d", node.Line)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data, rejecting unknown fields, and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}

	if cfg.Proxy.Port == 0 {
		cfg.Proxy.Port = DefaultPort
	}
	if cfg.Proxy.SessionTimeout <= 0 {
		cfg.Proxy.SessionTimeout = Duration(DefaultSessionTimeout)
	}
	if cfg.Proxy.SweepInterval <= 0 {
		cfg.Proxy.SweepInterval = Duration(DefaultSweepInterval)
	}

	return cfg, nil
}

// EndpointSet validates and converts the configured endpoints into an
// immutable set: addresses must resolve, metadata keys must be strings,
// and routing tokens under the reserved namespace must be valid base64.
func (c *Config) EndpointSet() (*endpoint.Set, error) {
	eps := make([]endpoint.Endpoint, 0, len(c.Endpoints))
	for i, ec := range c.Endpoints {
		addr, err := resolveAddr(ec.Address)
		if err != nil {
			return nil, fmt.Errorf("endpoint %d: %w", i, err)
		}

		md, err := decodeMetadata(&ec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("endpoint %d (%s): %w", i, ec.Address, err)
		}
		if err := decodeTokens(md); err != nil {
			return nil, fmt.Errorf("endpoint %d (%s): %w", i, ec.Address, err)
		}

		eps = append(eps, endpoint.Endpoint{Addr: addr, Metadata: md})
	}
	return endpoint.NewSet(eps...), nil
}

// BuildChain resolves the configured filters into an executable chain.
func (c *Config) BuildChain() (*filter.Chain, error) {
	return filter.Build(c.Filters)
}

func resolveAddr(s string) (netip.AddrPort, error) {
	if s == "" {
		return netip.AddrPort{}, errors.New("missing address")
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap, nil
	}
	ua, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	ap := ua.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}

// decodeMetadata converts the raw YAML metadata into a map, requiring
// every mapping key at every depth to be a string.
func decodeMetadata(node *yaml.Node) (map[string]any, error) {
	if node == nil || node.Kind == 0 || node.Tag == "!!null" {
		return map[string]any{}, nil
	}
	v, err := decodeValue(node)
	if err != nil {
		return nil, err
	}
	md, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("metadata at line %d must be a mapping", node.Line)
	}
	return md, nil
}

func decodeValue(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.MappingNode:
		m := make(map[string]any, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, v := node.Content[i], node.Content[i+1]
			if k.Kind != yaml.ScalarNode || k.Tag != "!!str" {
				return nil, fmt.Errorf("metadata key at line %d must be a string", k.Line)
			}
			val, err := decodeValue(v)
			if err != nil {
				return nil, err
			}
			m[k.Value] = val
		}
		return m, nil

	case yaml.SequenceNode:
		list := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			val, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, val)
		}
		return list, nil

	case yaml.AliasNode:
		return decodeValue(node.Alias)

	default:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// decodeTokens replaces the base64 token strings under the reserved
// namespace with their decoded bytes so routing filters compare raw
// bytes at packet time.
func decodeTokens(md map[string]any) error {
	ns, ok := md[endpoint.MetadataNamespace].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := ns[endpoint.TokensKey]
	if !ok {
		return nil
	}

	list, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("%s.%s must be a list", endpoint.MetadataNamespace, endpoint.TokensKey)
	}
	tokens := make([][]byte, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return fmt.Errorf("%s.%s entries must be strings", endpoint.MetadataNamespace, endpoint.TokensKey)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("invalid base64 token %q: %w", s, err)
		}
		tokens = append(tokens, b)
	}
	ns[endpoint.TokensKey] = tokens
	return nil
}

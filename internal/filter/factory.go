package filter

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Spec names one configured stage and its raw YAML configuration. Config
// is a value node because yaml.v3 leaves pointer-typed node fields empty
// during unmarshal; a zero Kind means no config block was given.
type Spec struct {
	Name   string    `yaml:"name"`
	Config yaml.Node `yaml:"config"`
}

// Factory builds a filter from its raw configuration node. A nil node
// means the stage was configured without a config block.
type Factory func(cfg *yaml.Node) (Filter, error)

var factories = map[string]Factory{
	"capture":     newCapture,
	"debug":       newDebug,
	"rateLimit":   newRateLimit,
	"tokenRouter": newTokenRouter,
}

// Register adds a factory under name so configs can reference it. It
// returns an error if the name is already taken.
func Register(name string, f Factory) error {
	if _, ok := factories[name]; ok {
		return fmt.Errorf("filter %q already registered", name)
	}
	factories[name] = f
	return nil
}

// Known returns the registered filter names, sorted.
func Known() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build resolves specs into a chain. Any unknown name or invalid config
// fails the whole build; no partial chain is returned.
func Build(specs []Spec) (*Chain, error) {
	stages := make([]Filter, 0, len(specs))
	for _, spec := range specs {
		factory, ok := factories[spec.Name]
		if !ok {
			return nil, fmt.Errorf("unknown filter %q (known: %v)", spec.Name, Known())
		}
		f, err := factory(&spec.Config)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", spec.Name, err)
		}
		stages = append(stages, f)
	}
	return NewChain(stages...), nil
}

func decodeConfig(node *yaml.Node, out any) error {
	if node == nil || node.Kind == 0 {
		return nil
	}
	if err := node.Decode(out); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

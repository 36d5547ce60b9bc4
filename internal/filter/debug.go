package filter

import (
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type debugConfig struct {
	// ID distinguishes multiple debug stages in one chain.
	ID string `yaml:"id"`
}

// debug logs every packet at debug level and always continues.
type debug struct {
	id string
}

func newDebug(node *yaml.Node) (Filter, error) {
	cfg := debugConfig{ID: "debug"}
	if err := decodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	return &debug{id: cfg.ID}, nil
}

func (f *debug) Name() string { return "debug" }

func (f *debug) Process(ctx *Context) Verdict {
	logrus.WithFields(logrus.Fields{
		"id":         f.id,
		"direction":  ctx.Direction.String(),
		"source":     ctx.Source.String(),
		"size":       len(ctx.Payload),
		"candidates": len(ctx.Endpoints),
	}).Debug("packet")
	return Continue
}

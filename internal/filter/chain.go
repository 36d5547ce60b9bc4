package filter

import (
	"github.com/sirupsen/logrus"
)

// Chain is a fixed ordered sequence of filters, resolved once at config
// load time. Execution is strictly sequential and short-circuits on the
// first Drop.
type Chain struct {
	stages []Filter
}

// NewChain returns a chain running stages in order.
func NewChain(stages ...Filter) *Chain {
	return &Chain{stages: stages}
}

// Stages returns the ordered stage names, for logs and the admin surface.
func (c *Chain) Stages() []string {
	names := make([]string, len(c.stages))
	for i, f := range c.stages {
		names[i] = f.Name()
	}
	return names
}

// Run drives ctx through every stage. A stage that panics is treated as
// having dropped the packet; the failure is contained to this one packet.
func (c *Chain) Run(ctx *Context) Verdict {
	for _, f := range c.stages {
		if runStage(f, ctx) == Drop {
			return Drop
		}
	}
	return Continue
}

func runStage(f Filter, ctx *Context) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("filter", f.Name()).Errorf("filter panicked, dropping packet: %v", r)
			v = Drop
		}
	}()
	return f.Process(ctx)
}

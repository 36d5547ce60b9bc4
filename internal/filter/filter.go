// Package filter implements the per-packet inspection pipeline. A chain
// of filters runs over every datagram before it is forwarded; each stage
// may mutate the payload, narrow the candidate destination set, or drop
// the packet outright.
package filter

// Verdict is the outcome of one filter stage.
type Verdict int

const (
	// Continue passes the (possibly mutated) context to the next stage.
	Continue Verdict = iota
	// Drop discards the packet; no later stage runs.
	Drop
)

func (v Verdict) String() string {
	switch v {
	case Continue:
		return "continue"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}

// Filter is one stage of the chain. Process must not perform socket I/O,
// and must not retain ctx after returning; the context only lives for one
// chain execution.
type Filter interface {
	// Name identifies the stage in logs and telemetry.
	Name() string
	// Process inspects and possibly mutates ctx.
	Process(ctx *Context) Verdict
}

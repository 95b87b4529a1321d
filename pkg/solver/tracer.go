package solver

import (
	"fmt"
	"io"
)

// SearchPosition describes the state of an objective whose most
// significant bits have been settled by the search.
type SearchPosition interface {
	Objective() string
	Direction() Direction
	// Settled returns the number of settled bits and their value,
	// aligned to the objective's width.
	Settled() (n uint, prefix uint64)
}

type Tracer interface {
	Trace(p SearchPosition)
}

type DefaultTracer struct{}

func (DefaultTracer) Trace(_ SearchPosition) {
}

type LoggingTracer struct {
	Writer io.Writer
}

func (t LoggingTracer) Trace(p SearchPosition) {
	n, prefix := p.Settled()
	fmt.Fprintf(t.Writer, "---\nObjective: %s\n", p.Objective())
	fmt.Fprintf(t.Writer, "Direction: %s\n", p.Direction())
	fmt.Fprintf(t.Writer, "Settled: %d bits, %#x\n", n, prefix)
}

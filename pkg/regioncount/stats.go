package regioncount

import (
	"fmt"
	"io"
	"time"
)

// Stats accumulates the counters of a run. Counters only grow.
type Stats struct {
	Attempted uint64
	Succeeded uint64
	// Distinct is the number of distinct satisfying samples. It is
	// only maintained when distinct tracking is enabled.
	Distinct   int
	BoundTime  time.Duration
	SampleTime time.Duration
}

// SuccessRate is the fraction of attempted samples that satisfied
// the formula.
func (s Stats) SuccessRate() float64 {
	if s.Attempted == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Attempted)
}

// Snapshot is the observable state of a run at one point in time.
type Snapshot struct {
	State State
	Stats Stats
	// Final is set on the last snapshot of a run that stopped early.
	Final bool
}

// Reporter receives snapshots while a run progresses.
type Reporter interface {
	Report(s Snapshot)
}

type nopReporter struct{}

func (nopReporter) Report(Snapshot) {}

// ConsoleReporter prints snapshots as plain text.
type ConsoleReporter struct {
	Writer io.Writer
}

func (r ConsoleReporter) Report(s Snapshot) {
	if s.Final {
		fmt.Fprintf(r.Writer, "final statistics (%s):\n", s.State)
	}
	WriteStats(r.Writer, s.Stats)
}

// WriteStats prints stats in the format of the console report.
func WriteStats(w io.Writer, s Stats) {
	fmt.Fprintf(w, "solver time: %s\n", s.BoundTime)
	fmt.Fprintf(w, "sample total time: %s\n", s.SampleTime)
	fmt.Fprintf(w, "samples number: %d\n", s.Attempted)
	fmt.Fprintf(w, "samples success: %d\n", s.Succeeded)
	fmt.Fprintf(w, "distinct models: %d\n", s.Distinct)
}

type multiReporter []Reporter

func (m multiReporter) Report(s Snapshot) {
	for _, r := range m {
		r.Report(s)
	}
}

// MultiReporter returns a Reporter forwarding every snapshot to each
// of rs in order.
func MultiReporter(rs ...Reporter) Reporter {
	return multiReporter(rs)
}

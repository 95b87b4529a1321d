package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/regioncount/regioncount/pkg/regioncount"
)

const (
	StateLabel = "state"
	Outcome    = "outcome"
	Succeeded  = "succeeded"
	Failed     = "failed"
)

// To add new metrics:
// 1. Register new metrics in Register() below.
// 2. Update them from Reporter.Report or Reporter.ObserveResult.
var (
	samplesAttempted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "regioncount_samples_attempted_total",
			Help: "Number of samples drawn from the region",
		},
	)

	samplesSucceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "regioncount_samples_succeeded_total",
			Help: "Number of drawn samples that satisfied the formula",
		},
	)

	distinctModels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "regioncount_distinct_models",
			Help: "Number of distinct satisfying samples of the current run, 0 unless tracking is enabled",
		},
	)

	boundSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "regioncount_bound_discovery_seconds",
			Help: "Time spent discovering the region of the current run",
		},
	)

	samplingSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "regioncount_sampling_seconds",
			Help: "Time spent sampling in the current run",
		},
	)

	regionLog2Volume = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "regioncount_region_log2_volume",
			Help: "Base 2 logarithm of the number of points in the sampled region",
		},
	)

	runState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "regioncount_run_state",
			Help: "State of the current run. 1 marks the state the run is in, 0 every other state.",
		},
		[]string{StateLabel},
	)

	runDurationSummary = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "regioncount_run_duration_seconds",
			Help:       "The duration of a counting run",
			Objectives: map[float64]float64{0.95: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{Outcome},
	)
)

func Register() {
	prometheus.MustRegister(samplesAttempted)
	prometheus.MustRegister(samplesSucceeded)
	prometheus.MustRegister(distinctModels)
	prometheus.MustRegister(boundSeconds)
	prometheus.MustRegister(samplingSeconds)
	prometheus.MustRegister(regionLog2Volume)
	prometheus.MustRegister(runState)
	prometheus.MustRegister(runDurationSummary)
}

var states = []regioncount.State{
	regioncount.StateInit,
	regioncount.StateBounding,
	regioncount.StateSampling,
	regioncount.StateStoppedByCount,
	regioncount.StateStoppedByTimeout,
	regioncount.StateStoppedByCancel,
	regioncount.StateStoppedByError,
}

// Reporter mirrors the snapshots of one run into the collectors. The
// sample counters are cumulative across runs, so a Reporter remembers
// what it has already added.
type Reporter struct {
	mu   sync.Mutex
	last regioncount.Stats
}

func NewReporter() *Reporter {
	return &Reporter{}
}

func (r *Reporter) Report(s regioncount.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.Stats.Attempted < r.last.Attempted || s.Stats.Succeeded < r.last.Succeeded {
		// A new run started with this reporter.
		r.last = regioncount.Stats{}
	}
	samplesAttempted.Add(float64(s.Stats.Attempted - r.last.Attempted))
	samplesSucceeded.Add(float64(s.Stats.Succeeded - r.last.Succeeded))
	r.last = s.Stats

	distinctModels.Set(float64(s.Stats.Distinct))
	boundSeconds.Set(s.Stats.BoundTime.Seconds())
	samplingSeconds.Set(s.Stats.SampleTime.Seconds())
	setState(s.State)
}

// ObserveResult records the terminal state of a run.
func (r *Reporter) ObserveResult(res *regioncount.Result) {
	r.Report(regioncount.Snapshot{State: res.State, Stats: res.Stats})
	regionLog2Volume.Set(res.Bounds.Log2Volume())

	outcome := Succeeded
	if res.State == regioncount.StateStoppedByError {
		outcome = Failed
	}
	runDurationSummary.WithLabelValues(outcome).Observe((res.Stats.BoundTime + res.Stats.SampleTime).Seconds())
}

func setState(current regioncount.State) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		runState.WithLabelValues(string(s)).Set(v)
	}
}

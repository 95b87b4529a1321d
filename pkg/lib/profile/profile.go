package profile

import (
	"net/http"
	"net/http/pprof"
)

type profileConfig struct {
	cpu   bool
	trace bool
}

// Option applies a configuration option to the given config.
type Option func(p *profileConfig)

// WithoutCPU leaves out the CPU profile endpoint.
func WithoutCPU() Option {
	return func(p *profileConfig) {
		p.cpu = false
	}
}

// WithoutTrace leaves out the execution trace endpoint.
func WithoutTrace() Option {
	return func(p *profileConfig) {
		p.trace = false
	}
}

// RegisterHandlers registers the pprof handlers with the given
// ServeMux. The index handler is always registered.
func RegisterHandlers(mux *http.ServeMux, options ...Option) {
	config := &profileConfig{cpu: true, trace: true}
	for _, o := range options {
		o(config)
	}

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	if config.cpu {
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	}
	if config.trace {
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
}

package solver

import (
	"context"
	"sync"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/regioncount/regioncount/pkg/bv"
)

const (
	satisfiable   = 1
	unsatisfiable = -1
	unknown       = 0
)

// solveSlice bounds a single call into gini so that cancellation of
// the context is noticed while a hard instance is being solved.
const solveSlice = 100 * time.Millisecond

// Direction selects minimization or maximization of the objectives.
type Direction int

const (
	Minimize Direction = iota
	Maximize
)

func (d Direction) String() string {
	if d == Maximize {
		return "max"
	}
	return "min"
}

// Status is the outcome of optimizing a single objective.
type Status int

const (
	// Unknown means the deadline passed before the constraint was
	// known to be satisfiable.
	Unknown Status = iota
	// Optimal means Value is the exact extremum.
	Optimal
	// Bounded means the deadline passed during the search. Value
	// is still a sound bound: no satisfying assignment lies beyond
	// it.
	Bounded
	// Infeasible means the constraint is unsatisfiable.
	Infeasible
)

var statusNames = map[Status]string{
	Unknown:    "unknown",
	Optimal:    "optimal",
	Bounded:    "bounded",
	Infeasible: "infeasible",
}

func (s Status) String() string {
	return statusNames[s]
}

// HasValue reports whether an Extremum with this status carries a
// usable bound.
func (s Status) HasValue() bool {
	return s == Optimal || s == Bounded
}

// Extremum is the result of optimizing one objective.
type Extremum struct {
	Status Status
	Value  uint64
}

// Optimizer answers batched extremum queries over bit-vector formulas
// by translating them to SAT and solving with gini. It also evaluates
// formulas under concrete models.
type Optimizer struct {
	log    logrus.FieldLogger
	tracer Tracer

	mu       sync.Mutex
	programs map[*bv.Term]*bv.Program
}

type Option func(o *Optimizer) error

func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Optimizer) error {
		o.log = log
		return nil
	}
}

func WithTracer(t Tracer) Option {
	return func(o *Optimizer) error {
		o.tracer = t
		return nil
	}
}

var defaults = []Option{
	func(o *Optimizer) error {
		if o.log == nil {
			l := logrus.New()
			l.SetLevel(logrus.WarnLevel)
			o.log = l
		}
		return nil
	},
	func(o *Optimizer) error {
		if o.tracer == nil {
			o.tracer = DefaultTracer{}
		}
		return nil
	},
}

func New(options ...Option) (*Optimizer, error) {
	o := Optimizer{programs: make(map[*bv.Term]*bv.Program)}
	for _, option := range append(options, defaults...) {
		if err := option(&o); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

// MinimizeAll computes, for every objective independently, its
// smallest unsigned value over the assignments satisfying constraint.
// All objectives share one solver instance and one deadline; a
// non-positive timeout means no deadline beyond that of ctx.
func (o *Optimizer) MinimizeAll(ctx context.Context, constraint *bv.Term, objectives []*bv.Term, timeout time.Duration) ([]Extremum, error) {
	return o.optimize(ctx, Minimize, constraint, objectives, timeout)
}

// MaximizeAll is MinimizeAll for the largest values.
func (o *Optimizer) MaximizeAll(ctx context.Context, constraint *bv.Term, objectives []*bv.Term, timeout time.Duration) ([]Extremum, error) {
	return o.optimize(ctx, Maximize, constraint, objectives, timeout)
}

// Evaluate reports whether formula holds under m. Compiled formulas
// are cached for the lifetime of the Optimizer.
func (o *Optimizer) Evaluate(formula *bv.Term, m bv.Model) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.programs[formula]
	if !ok {
		if formula == nil || !formula.Sort.IsBool() {
			return false, errors.New("can only evaluate formulas")
		}
		var err error
		if p, err = bv.Compile(formula); err != nil {
			return false, err
		}
		o.programs[formula] = p
	}
	return p.Satisfied(m)
}

func (o *Optimizer) optimize(ctx context.Context, dir Direction, constraint *bv.Term, objectives []*bv.Term, timeout time.Duration) ([]Extremum, error) {
	if constraint == nil || !constraint.Sort.IsBool() {
		return nil, errors.New("constraint must be a formula")
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}

	b := newBlaster()
	root, err := b.blast(constraint)
	if err != nil {
		return nil, errors.Wrap(err, "translating constraint")
	}
	objs := make([]bits, len(objectives))
	for i, obj := range objectives {
		if objs[i], err = b.blast(obj); err != nil {
			return nil, errors.Wrapf(err, "translating objective %d", i)
		}
	}

	g := gini.New()
	b.c.ToCnf(g)
	g.Add(root[0])
	g.Add(z.LitNull)
	// Objective inputs may have been simplified out of the circuit;
	// register them so that every model defines their values.
	for _, obj := range objs {
		for _, m := range obj {
			g.Add(m)
			g.Add(m.Not())
			g.Add(z.LitNull)
		}
	}

	log := o.log.WithFields(logrus.Fields{
		"direction":  dir,
		"objectives": len(objs),
	})

	result := make([]Extremum, len(objs))
	switch o.solve(ctx, g, deadline, nil) {
	case unsatisfiable:
		for i := range result {
			result[i] = Extremum{Status: Infeasible}
		}
		log.Debug("constraint is unsatisfiable")
		return result, nil
	case unknown:
		log.Debug("deadline passed before the constraint was decided")
		return result, nil
	}

	positions := make([]*position, len(objs))
	for i, obj := range objs {
		positions[i] = &position{
			name:  objectives[i].String(),
			dir:   dir,
			lits:  obj,
			model: value(g, obj),
		}
	}

	expired := false
	for i, p := range positions {
		if expired {
			result[i] = Extremum{Status: Bounded, Value: p.loosen(uint(len(p.lits)))}
			continue
		}
		result[i] = o.extremum(ctx, g, deadline, p)
		expired = result[i].Status != Optimal
	}

	if expired {
		log.Debug("deadline passed during optimization, reporting partial bounds")
	} else {
		log.Debug("optimization finished")
	}
	return result, nil
}

// extremum settles the bits of one objective from the most
// significant down, each time asking whether the preferred value of
// the bit is consistent with the bits settled so far.
func (o *Optimizer) extremum(ctx context.Context, g *gini.Gini, deadline time.Time, p *position) Extremum {
	prefix := make([]z.Lit, 0, len(p.lits))
	for k := len(p.lits) - 1; k >= 0; k-- {
		preferred := p.lits[k]
		if p.dir == Minimize {
			preferred = preferred.Not()
		}
		if (p.model>>uint(k)&1 == 1) == (p.dir == Maximize) {
			prefix = append(prefix, preferred)
			p.settled++
			continue
		}

		switch o.solve(ctx, g, deadline, append(prefix, preferred)) {
		case satisfiable:
			p.model = value(g, p.lits)
			prefix = append(prefix, preferred)
		case unsatisfiable:
			prefix = append(prefix, preferred.Not())
			p.settled++
			o.tracer.Trace(p)
			continue
		default:
			return Extremum{Status: Bounded, Value: p.loosen(uint(k + 1))}
		}
		p.settled++
	}
	return Extremum{Status: Optimal, Value: p.model}
}

// solve runs gini under the given assumptions until it decides the
// problem, the deadline passes or ctx is done.
func (o *Optimizer) solve(ctx context.Context, g *gini.Gini, deadline time.Time, assumptions []z.Lit) int {
	for {
		if ctx.Err() != nil {
			return unknown
		}
		slice := solveSlice
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				return unknown
			}
			if left < slice {
				slice = left
			}
		}
		// Assumptions are consumed by every call, decided or not.
		g.Assume(assumptions...)
		if r := g.Try(slice); r != unknown {
			return r
		}
	}
}

func value(g *gini.Gini, lits bits) uint64 {
	var v uint64
	for i, m := range lits {
		if g.Value(m) {
			v |= 1 << uint(i)
		}
	}
	return v
}

// position tracks the search for the extremum of one objective. The
// settled most significant bits of model are those of the extremum.
type position struct {
	name    string
	dir     Direction
	lits    bits
	model   uint64
	settled uint
}

func (p *position) Objective() string {
	return p.name
}

func (p *position) Direction() Direction {
	return p.dir
}

func (p *position) Settled() (uint, uint64) {
	return p.settled, p.model &^ bv.Mask(uint(len(p.lits))-p.settled)
}

// loosen returns the bound implied by the settled bits when the low
// n bits are still open.
func (p *position) loosen(n uint) uint64 {
	if p.dir == Minimize {
		return p.model &^ bv.Mask(n)
	}
	return p.model | bv.Mask(n)
}

// Package variables collects the free symbols of a formula.
package variables

import (
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/regioncount/regioncount/pkg/bv"
)

// Extract returns the free constant symbols of formula, one per
// name, ordered by name. Each distinct sub-term is walked once.
//
// If the formula cannot be walked, Extract returns nil and the error;
// no partial result is ever returned.
func Extract(formula *bv.Term) ([]*bv.Term, error) {
	if formula == nil {
		return nil, errors.New("cannot extract variables of a nil formula")
	}

	var (
		visited = sets.New[*bv.Term]()
		byName  = make(map[string]*bv.Term)
		stack   = []*bv.Term{formula}
	)
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited.Has(t) {
			continue
		}
		visited.Insert(t)

		switch {
		case t.IsVar():
			if prev, ok := byName[t.Name]; ok && prev.Sort != t.Sort {
				return nil, errors.Errorf("symbol %s used with sorts %s and %s", t.Name, prev.Sort, t.Sort)
			}
			byName[t.Name] = t
			continue
		case t.Op == bv.OpInvalid:
			return nil, errors.Errorf("malformed term %v", t)
		}
		for i, a := range t.Args {
			if a == nil {
				return nil, errors.Errorf("argument %d of %s is nil", i, t.Op)
			}
			stack = append(stack, a)
		}
	}

	names := sets.List(sets.KeySet(byName))
	vars := make([]*bv.Term, 0, len(names))
	for _, name := range names {
		vars = append(vars, byName[name])
	}
	return vars, nil
}

// Names returns the names of vars, in order.
func Names(vars []*bv.Term) []string {
	names := make([]string, 0, len(vars))
	for _, v := range vars {
		names = append(names, v.Name)
	}
	return names
}

// Difference returns the variables of a whose names do not occur in
// b, preserving the order of a.
func Difference(a, b []*bv.Term) []*bv.Term {
	exclude := sets.New(Names(b)...)
	var out []*bv.Term
	for _, v := range a {
		if !exclude.Has(v.Name) {
			out = append(out, v)
		}
	}
	return out
}

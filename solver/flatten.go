package solver

import (
	"errors"

	"github.com/tenet-verify/tenet/symbolic"
)

// A lit is an atomic comparison between two if-then-else-free terms.
// Negation is normalized away: !(a < b) becomes b <= a, !(a == b)
// becomes a != b.
type lit struct {
	op   symbolic.Op // Eq, Neq, Lt, Le
	l, r symbolic.Expr
}

var errBudget = errors.New("solver: path budget exceeded")

// dnf flattens a boolean expression (or its negation) into disjunctive
// normal form: a slice of conjunctive paths of literals. Conditional
// terms are lifted into path guards, so every literal is Ite-free.
func dnf(e symbolic.Expr, neg bool, budget int) ([][]lit, error) {
	switch e := e.(type) {
	case *symbolic.Const:
		if symbolic.IsTrue(e) != neg {
			return [][]lit{{}}, nil // one trivially true path
		}
		return nil, nil // no satisfiable path

	case *symbolic.Sym, *symbolic.Select:
		want := symbolic.True
		if neg {
			want = symbolic.False
		}
		return [][]lit{{{op: symbolic.Eq, l: e, r: want}}}, nil

	case *symbolic.Not:
		return dnf(e.X, !neg, budget)

	case *symbolic.Ite:
		// boolean-sorted conditional: (c && t) || (!c && e)
		return splitPair(e.Cond, false, e.Then, neg, e.Cond, true, e.Else, neg, budget)

	case *symbolic.Binary:
		switch e.Op {
		case symbolic.And:
			if neg {
				return unionOf(e.L, true, e.R, true, budget)
			}
			return crossOf(e.L, false, e.R, false, budget)
		case symbolic.Or:
			if neg {
				return crossOf(e.L, true, e.R, true, budget)
			}
			return unionOf(e.L, false, e.R, false, budget)
		case symbolic.Implies:
			if neg { // L && !R
				return crossOf(e.L, false, e.R, true, budget)
			}
			return unionOf(e.L, true, e.R, false, budget)
		case symbolic.Iff:
			if neg {
				return splitPair(e.L, false, e.R, true, e.L, true, e.R, false, budget)
			}
			return splitPair(e.L, false, e.R, false, e.L, true, e.R, true, budget)
		case symbolic.Eq, symbolic.Neq, symbolic.Lt, symbolic.Le:
			if e.L.Sort() == symbolic.Bool && (e.Op == symbolic.Eq || e.Op == symbolic.Neq) {
				// boolean equality is iff; push through the boolean
				// structure instead of treating operands as terms
				if (e.Op == symbolic.Neq) != neg {
					return splitPair(e.L, false, e.R, true, e.L, true, e.R, false, budget)
				}
				return splitPair(e.L, false, e.R, false, e.L, true, e.R, true, budget)
			}
			return atomPaths(e.Op, e.L, e.R, neg, budget)
		default:
			return nil, errBudget
		}

	default:
		return nil, errBudget
	}
}

// splitPair builds (a1 && b1) || (a2 && b2) with per-operand negation.
func splitPair(a1 symbolic.Expr, na1 bool, b1 symbolic.Expr, nb1 bool,
	a2 symbolic.Expr, na2 bool, b2 symbolic.Expr, nb2 bool, budget int) ([][]lit, error) {
	left, err := crossOf(a1, na1, b1, nb1, budget)
	if err != nil {
		return nil, err
	}
	right, err := crossOf(a2, na2, b2, nb2, budget)
	if err != nil {
		return nil, err
	}
	return capPaths(append(left, right...), budget)
}

// crossOf conjoins the path sets of two subformulas.
func crossOf(l symbolic.Expr, nl bool, r symbolic.Expr, nr bool, budget int) ([][]lit, error) {
	a, err := dnf(l, nl, budget)
	if err != nil {
		return nil, err
	}
	b, err := dnf(r, nr, budget)
	if err != nil {
		return nil, err
	}
	var out [][]lit
	for _, pa := range a {
		for _, pb := range b {
			path := make([]lit, 0, len(pa)+len(pb))
			path = append(path, pa...)
			path = append(path, pb...)
			out = append(out, path)
		}
	}
	return capPaths(out, budget)
}

// unionOf disjoins the path sets of two subformulas.
func unionOf(l symbolic.Expr, nl bool, r symbolic.Expr, nr bool, budget int) ([][]lit, error) {
	a, err := dnf(l, nl, budget)
	if err != nil {
		return nil, err
	}
	b, err := dnf(r, nr, budget)
	if err != nil {
		return nil, err
	}
	return capPaths(append(a, b...), budget)
}

// atomPaths lifts Ite terms out of a comparison's operands and emits the
// (possibly negated) atom under each guard combination.
func atomPaths(op symbolic.Op, l, r symbolic.Expr, neg bool, budget int) ([][]lit, error) {
	lbs, err := liftTerm(l, budget)
	if err != nil {
		return nil, err
	}
	rbs, err := liftTerm(r, budget)
	if err != nil {
		return nil, err
	}

	var out [][]lit
	for _, lb := range lbs {
		for _, rb := range rbs {
			guard, err := symbolic.AndExpr(lb.cond, rb.cond)
			if err != nil {
				return nil, err
			}
			guardPaths, err := dnf(guard, false, budget)
			if err != nil {
				return nil, err
			}
			atom := negate(op, lb.term, rb.term, neg)
			for _, gp := range guardPaths {
				path := make([]lit, 0, len(gp)+1)
				path = append(path, gp...)
				path = append(path, atom)
				out = append(out, path)
			}
		}
	}
	return capPaths(out, budget)
}

func negate(op symbolic.Op, l, r symbolic.Expr, neg bool) lit {
	if !neg {
		return lit{op: op, l: l, r: r}
	}
	switch op {
	case symbolic.Eq:
		return lit{op: symbolic.Neq, l: l, r: r}
	case symbolic.Neq:
		return lit{op: symbolic.Eq, l: l, r: r}
	case symbolic.Lt: // !(l < r)  ==  r <= l
		return lit{op: symbolic.Le, l: r, r: l}
	default: // !(l <= r)  ==  r < l
		return lit{op: symbolic.Lt, l: r, r: l}
	}
}

// branch is one Ite-free alternative of a term, valid under cond.
type branch struct {
	cond symbolic.Expr // Bool
	term symbolic.Expr // Ite-free
}

// liftTerm rewrites a numeric/boolean term into guarded Ite-free
// alternatives.
func liftTerm(e symbolic.Expr, budget int) ([]branch, error) {
	switch e := e.(type) {
	case *symbolic.Const, *symbolic.Sym:
		return []branch{{cond: symbolic.True, term: e}}, nil

	case *symbolic.Cast:
		inner, err := liftTerm(e.X, budget)
		if err != nil {
			return nil, err
		}
		for i := range inner {
			inner[i].term = &symbolic.Cast{X: inner[i].term, S: e.S}
		}
		return inner, nil

	case *symbolic.Select:
		// lift each key; rebuild the select per combination
		branches := []branch{{cond: symbolic.True, term: &symbolic.Select{Map: e.Map, S: e.S}}}
		for _, key := range e.Key {
			kbs, err := liftTerm(key, budget)
			if err != nil {
				return nil, err
			}
			var next []branch
			for _, b := range branches {
				sel := b.term.(*symbolic.Select)
				for _, kb := range kbs {
					cond, err := symbolic.AndExpr(b.cond, kb.cond)
					if err != nil {
						return nil, err
					}
					keys := make([]symbolic.Expr, len(sel.Key), len(sel.Key)+1)
					copy(keys, sel.Key)
					next = append(next, branch{
						cond: cond,
						term: &symbolic.Select{Map: sel.Map, Key: append(keys, kb.term), S: sel.S},
					})
				}
			}
			branches = next
			if len(branches) > budget {
				return nil, errBudget
			}
		}
		return branches, nil

	case *symbolic.Binary:
		lbs, err := liftTerm(e.L, budget)
		if err != nil {
			return nil, err
		}
		rbs, err := liftTerm(e.R, budget)
		if err != nil {
			return nil, err
		}
		var out []branch
		for _, lb := range lbs {
			for _, rb := range rbs {
				cond, err := symbolic.AndExpr(lb.cond, rb.cond)
				if err != nil {
					return nil, err
				}
				out = append(out, branch{
					cond: cond,
					term: &symbolic.Binary{Op: e.Op, L: lb.term, R: rb.term},
				})
			}
		}
		if len(out) > budget {
			return nil, errBudget
		}
		return out, nil

	case *symbolic.Ite:
		tbs, err := liftTerm(e.Then, budget)
		if err != nil {
			return nil, err
		}
		ebs, err := liftTerm(e.Else, budget)
		if err != nil {
			return nil, err
		}
		notCond, err := symbolic.NotExpr(e.Cond)
		if err != nil {
			return nil, err
		}
		var out []branch
		for _, b := range tbs {
			cond, err := symbolic.AndExpr(e.Cond, b.cond)
			if err != nil {
				return nil, err
			}
			out = append(out, branch{cond: cond, term: b.term})
		}
		for _, b := range ebs {
			cond, err := symbolic.AndExpr(notCond, b.cond)
			if err != nil {
				return nil, err
			}
			out = append(out, branch{cond: cond, term: b.term})
		}
		if len(out) > budget {
			return nil, errBudget
		}
		return out, nil

	case *symbolic.Not:
		// boolean term in value position
		inner, err := liftTerm(e.X, budget)
		if err != nil {
			return nil, err
		}
		for i := range inner {
			inner[i].term = &symbolic.Not{X: inner[i].term}
		}
		return inner, nil

	default:
		return nil, errBudget
	}
}

func capPaths(paths [][]lit, budget int) ([][]lit, error) {
	if len(paths) > budget {
		return nil, errBudget
	}
	return paths, nil
}

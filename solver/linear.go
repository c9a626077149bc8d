package solver

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/tenet-verify/tenet/symbolic"
)

// errOutOfFragment marks a path the linearizer cannot express; the
// caller reports Unknown for it, never a wrong verdict.
var errOutOfFragment = errors.New("solver: constraint outside the linear fragment")

var ratOne = new(big.Rat).SetInt64(1)

// linExpr is sum(coeffs[v] * v) + k over the rationals.
type linExpr struct {
	coeffs map[string]*big.Rat
	k      *big.Rat
}

func newLin() *linExpr {
	return &linExpr{coeffs: map[string]*big.Rat{}, k: new(big.Rat)}
}

func (l *linExpr) clone() *linExpr {
	out := newLin()
	out.k.Set(l.k)
	for v, c := range l.coeffs {
		out.coeffs[v] = new(big.Rat).Set(c)
	}
	return out
}

// addScaled adds q*other into l.
func (l *linExpr) addScaled(other *linExpr, q *big.Rat) {
	l.k.Add(l.k, new(big.Rat).Mul(other.k, q))
	for v, c := range other.coeffs {
		cur, ok := l.coeffs[v]
		if !ok {
			cur = new(big.Rat)
			l.coeffs[v] = cur
		}
		cur.Add(cur, new(big.Rat).Mul(c, q))
		if cur.Sign() == 0 {
			delete(l.coeffs, v)
		}
	}
}

func (l *linExpr) scale(q *big.Rat) {
	l.k.Mul(l.k, q)
	for v, c := range l.coeffs {
		c.Mul(c, q)
		if c.Sign() == 0 {
			delete(l.coeffs, v)
		}
	}
}

func (l *linExpr) isConst() bool { return len(l.coeffs) == 0 }

// linAtom is a normalized constraint: expr >= 0, expr > 0, or expr == 0.
type linAtom struct {
	e      *linExpr
	strict bool
	eq     bool
}

// lctx is the per-path linearization context: symbol/cell variable
// naming, sorts for bounds, and auxiliary constraints introduced for
// integer division.
type lctx struct {
	addr  map[int]*big.Int
	sorts map[string]symbolic.Sort
	extra []linAtom
	nAux  int
}

func symVar(id int) string { return "s" + strconv.Itoa(id) }

func (c *lctx) auxVar() string {
	c.nAux++
	return "q" + strconv.Itoa(c.nAux)
}

func (c *lctx) touch(v string, s symbolic.Sort) {
	if _, ok := c.sorts[v]; !ok {
		c.sorts[v] = s
	}
}

// lin linearizes an Ite-free term.
func (c *lctx) lin(e symbolic.Expr) (*linExpr, error) {
	switch e := e.(type) {
	case *symbolic.Const:
		out := newLin()
		out.k.SetInt(e.Value)
		return out, nil

	case *symbolic.Sym:
		if e.S == symbolic.Address {
			v, ok := c.addr[e.ID]
			if !ok {
				return nil, errOutOfFragment
			}
			out := newLin()
			out.k.SetInt(v)
			return out, nil
		}
		out := newLin()
		out.coeffs[symVar(e.ID)] = new(big.Rat).Set(ratOne)
		c.touch(symVar(e.ID), e.S)
		return out, nil

	case *symbolic.Cast:
		// value-preserving; range obligations travel separately
		return c.lin(e.X)

	case *symbolic.Not:
		inner, err := c.lin(e.X)
		if err != nil {
			return nil, err
		}
		out := newLin()
		out.k.SetInt64(1)
		out.addScaled(inner, new(big.Rat).SetInt64(-1))
		return out, nil

	case *symbolic.Select:
		cell, err := c.resolveCell(e)
		if err != nil {
			return nil, err
		}
		out := newLin()
		out.coeffs[cell] = new(big.Rat).Set(ratOne)
		c.touch(cell, e.S)
		return out, nil

	case *symbolic.Binary:
		return c.linBinary(e)

	default:
		return nil, errOutOfFragment
	}
}

func (c *lctx) linBinary(e *symbolic.Binary) (*linExpr, error) {
	switch e.Op {
	case symbolic.Add, symbolic.Sub:
		l, err := c.lin(e.L)
		if err != nil {
			return nil, err
		}
		r, err := c.lin(e.R)
		if err != nil {
			return nil, err
		}
		q := new(big.Rat).SetInt64(1)
		if e.Op == symbolic.Sub {
			q.SetInt64(-1)
		}
		l.addScaled(r, q)
		return l, nil

	case symbolic.Mul:
		l, err := c.lin(e.L)
		if err != nil {
			return nil, err
		}
		r, err := c.lin(e.R)
		if err != nil {
			return nil, err
		}
		if l.isConst() {
			r.scale(l.k)
			return r, nil
		}
		if r.isConst() {
			l.scale(r.k)
			return l, nil
		}
		// nonlinear: abstract with a fresh unconstrained variable,
		// sound for unsat answers; sat models are verified by exact
		// evaluation afterwards
		out := newLin()
		v := c.auxVar()
		out.coeffs[v] = new(big.Rat).Set(ratOne)
		c.touch(v, symbolic.Mathint)
		return out, nil

	case symbolic.Div:
		num, err := c.lin(e.L)
		if err != nil {
			return nil, err
		}
		den, err := c.lin(e.R)
		if err != nil {
			return nil, err
		}
		if !den.isConst() || den.k.Sign() <= 0 || !den.k.IsInt() {
			out := newLin()
			v := c.auxVar()
			out.coeffs[v] = new(big.Rat).Set(ratOne)
			c.touch(v, symbolic.Mathint)
			return out, nil
		}
		// truncated division by a positive constant d:
		// q*d <= num  and  num <= q*d + (d-1), for non-negative num
		q := c.auxVar()
		c.touch(q, symbolic.Mathint)
		d := new(big.Rat).Set(den.k)

		lower := num.clone() // num - q*d >= 0
		qd := newLin()
		qd.coeffs[q] = new(big.Rat).Set(d)
		lower.addScaled(qd, new(big.Rat).SetInt64(-1))
		c.extra = append(c.extra, linAtom{e: lower})

		upper := qd.clone() // q*d + (d-1) - num >= 0
		upper.k.Add(upper.k, new(big.Rat).Sub(d, ratOne))
		upper.addScaled(num, new(big.Rat).SetInt64(-1))
		c.extra = append(c.extra, linAtom{e: upper})

		out := newLin()
		out.coeffs[q] = new(big.Rat).Set(ratOne)
		return out, nil

	default:
		// comparison in term position: encode as 0/1 via a fresh
		// variable is not sound; bail out
		return nil, errOutOfFragment
	}
}

// resolveCell evaluates a select's keys to concrete values under the
// address assignment.
func (c *lctx) resolveCell(sel *symbolic.Select) (string, error) {
	keys := make([]*big.Int, len(sel.Key))
	for i, k := range sel.Key {
		v, err := c.constOf(k)
		if err != nil {
			return "", err
		}
		keys[i] = v
	}
	return cellKey(sel.Map, keys), nil
}

func (c *lctx) constOf(e symbolic.Expr) (*big.Int, error) {
	l, err := c.lin(e)
	if err != nil {
		return nil, err
	}
	if !l.isConst() || !l.k.IsInt() {
		return nil, errOutOfFragment
	}
	return new(big.Int).Set(l.k.Num()), nil
}

// solveLinear decides one conjunctive path under a fixed address
// assignment.
func solveLinear(ctx context.Context, path []lit, addr map[int]*big.Int) (Result, error) {
	c := &lctx{addr: addr, sorts: map[string]symbolic.Sort{}}

	var atoms []linAtom
	var neqs []*linExpr
	for _, l := range path {
		le, err := c.lin(l.l)
		if err != nil {
			if errors.Is(err, errOutOfFragment) {
				return Result{Status: Unknown}, nil
			}
			return Result{Status: Unknown}, err
		}
		re, err := c.lin(l.r)
		if err != nil {
			if errors.Is(err, errOutOfFragment) {
				return Result{Status: Unknown}, nil
			}
			return Result{Status: Unknown}, err
		}
		diff := re.clone() // r - l
		diff.addScaled(le, new(big.Rat).SetInt64(-1))
		switch l.op {
		case symbolic.Eq:
			atoms = append(atoms, linAtom{e: diff, eq: true})
		case symbolic.Neq:
			neqs = append(neqs, diff)
		case symbolic.Lt:
			atoms = append(atoms, linAtom{e: diff, strict: true})
		case symbolic.Le:
			atoms = append(atoms, linAtom{e: diff})
		}
	}
	atoms = append(atoms, c.extra...)

	// domain bounds for every bounded variable
	for v, s := range c.sorts {
		switch s {
		case symbolic.Bool:
			atoms = append(atoms, varBound(v, big.NewInt(0), big.NewInt(1))...)
		case symbolic.Uint256, symbolic.Address:
			atoms = append(atoms, varBound(v, big.NewInt(0), s.Max())...)
		}
	}

	// each disequality splits into two strict orderings
	return branchNeqs(ctx, atoms, neqs, c, path)
}

func varBound(v string, lo, hi *big.Int) []linAtom {
	lower := newLin() // v - lo >= 0
	lower.coeffs[v] = new(big.Rat).Set(ratOne)
	lower.k.SetInt(new(big.Int).Neg(lo))
	upper := newLin() // hi - v >= 0
	upper.coeffs[v] = new(big.Rat).SetInt64(-1)
	upper.k.SetInt(hi)
	return []linAtom{{e: lower}, {e: upper}}
}

func branchNeqs(ctx context.Context, atoms []linAtom, neqs []*linExpr, c *lctx, path []lit) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Status: Unknown}, err
	}
	if len(neqs) == 0 {
		return finishPath(atoms, c, path)
	}
	head, rest := neqs[0], neqs[1:]
	sawUnknown := false
	for _, sign := range []int64{1, -1} {
		branch := head.clone()
		branch.scale(new(big.Rat).SetInt64(sign))
		res, err := branchNeqs(ctx, append(append([]linAtom{}, atoms...), linAtom{e: branch, strict: true}), rest, c, path)
		if err != nil {
			return res, err
		}
		switch res.Status {
		case Sat:
			return res, nil
		case Unknown:
			sawUnknown = true
		}
	}
	if sawUnknown {
		return Result{Status: Unknown}, nil
	}
	return Result{Status: Unsat}, nil
}

func finishPath(atoms []linAtom, c *lctx, path []lit) (Result, error) {
	sample, sat := fmSolve(atoms)
	if !sat {
		return Result{Status: Unsat}, nil
	}
	if sample == nil {
		// real-feasible but no integer point found
		return Result{Status: Unknown}, nil
	}

	model := buildModel(sample, c)
	for _, l := range path {
		holds, err := evalLit(l, model)
		if err != nil || !holds {
			return Result{Status: Unknown}, nil
		}
	}
	return Result{Status: Sat, Model: model}, nil
}

// buildModel converts an integer sample into a Model, splitting symbol
// variables from mapping cells and merging the address assignment.
func buildModel(sample map[string]*big.Int, c *lctx) *Model {
	m := &Model{
		Values:  map[int]*big.Int{},
		Selects: map[string]*big.Int{},
	}
	for id, v := range c.addr {
		m.Values[id] = new(big.Int).Set(v)
	}
	for v := range c.sorts {
		val, ok := sample[v]
		if !ok {
			val = big.NewInt(0)
		}
		if strings.HasPrefix(v, "s") {
			if id, err := strconv.Atoi(v[1:]); err == nil {
				m.Values[id] = new(big.Int).Set(val)
				continue
			}
		}
		if strings.HasPrefix(v, "q") {
			continue // auxiliary, not part of the witness
		}
		m.Selects[v] = new(big.Int).Set(val)
	}
	return m
}

// fmSolve runs Gaussian substitution for equalities followed by
// Fourier-Motzkin elimination for inequalities. It returns (nil, true)
// when the system is feasible over the rationals but no integer sample
// was found, and (nil, false) when infeasible.
func fmSolve(atoms []linAtom) (map[string]*big.Int, bool) {
	type subst struct {
		v string
		e *linExpr // v = e
	}
	var substs []subst

	work := make([]linAtom, 0, len(atoms))
	for _, a := range atoms {
		work = append(work, linAtom{e: a.e.clone(), strict: a.strict, eq: a.eq})
	}

	// equalities first: solve and substitute
	for {
		idx := -1
		for i, a := range work {
			if a.eq && !a.e.isConst() {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		a := work[idx]
		work = append(work[:idx], work[idx+1:]...)
		v := pickVar(a.e)
		cv := a.e.coeffs[v]
		// v = -(rest)/cv
		sol := newLin()
		sol.k.Set(a.e.k)
		for ov, oc := range a.e.coeffs {
			if ov != v {
				sol.coeffs[ov] = new(big.Rat).Set(oc)
			}
		}
		sol.scale(new(big.Rat).Quo(new(big.Rat).SetInt64(-1), cv))
		substs = append(substs, subst{v: v, e: sol})
		for _, w := range work {
			substituteVar(w.e, v, sol)
		}
		for _, s := range substs[:len(substs)-1] {
			substituteVar(s.e, v, sol)
		}
	}

	// leftover constant equalities
	kept := work[:0]
	for _, a := range work {
		if a.eq {
			if a.e.k.Sign() != 0 {
				return nil, false
			}
			continue
		}
		kept = append(kept, a)
	}
	work = kept

	// Fourier-Motzkin elimination, recording eliminated bounds
	var elims []elim

	vars := collectVars(work)
	for _, v := range vars {
		var lowers, uppers, rest []linAtom
		for _, a := range work {
			cv, ok := a.e.coeffs[v]
			switch {
			case !ok:
				rest = append(rest, a)
			case cv.Sign() > 0:
				lowers = append(lowers, a)
			default:
				uppers = append(uppers, a)
			}
		}
		for _, lo := range lowers {
			for _, up := range uppers {
				// combine: lo.e/clo + up.e/(-cup) >= 0 with v eliminated
				clo := lo.e.coeffs[v]
				cup := new(big.Rat).Neg(up.e.coeffs[v])
				comb := lo.e.clone()
				comb.scale(new(big.Rat).Inv(clo))
				scaledUp := up.e.clone()
				scaledUp.scale(new(big.Rat).Inv(cup))
				comb.addScaled(scaledUp, ratOne)
				delete(comb.coeffs, v)
				rest = append(rest, linAtom{e: comb, strict: lo.strict || up.strict})
			}
		}
		elims = append(elims, elim{v: v, lowers: lowers, uppers: uppers})
		work = rest
	}

	// only constants remain
	for _, a := range work {
		s := a.e.k.Sign()
		if s < 0 || (s == 0 && a.strict) {
			return nil, false
		}
	}

	// back-substitute integer values; a variable missing from the
	// sample is unconstrained and defaults to zero
	sample := map[string]*big.Int{}
	ratOf := func(e *linExpr) (*big.Rat, bool) {
		out := new(big.Rat).Set(e.k)
		for v, cv := range e.coeffs {
			iv, ok := sample[v]
			if !ok {
				iv = big.NewInt(0)
				sample[v] = iv
			}
			out.Add(out, new(big.Rat).Mul(cv, new(big.Rat).SetInt(iv)))
		}
		return out, true
	}
	for i := len(elims) - 1; i >= 0; i-- {
		el := elims[i]
		val, ok := chooseInteger(el, ratOf)
		if !ok {
			return nil, true // rationally feasible, integer gap
		}
		sample[el.v] = val
	}
	for i := len(substs) - 1; i >= 0; i-- {
		v, ok := ratOf(substs[i].e)
		if !ok || !v.IsInt() {
			return nil, true
		}
		sample[substs[i].v] = new(big.Int).Set(v.Num())
	}
	return sample, true
}

// elim records the bound atoms a Fourier-Motzkin step eliminated, for
// integer back-substitution.
type elim struct {
	v      string
	lowers []linAtom // coefficient on v positive: v >= -(rest)/cv
	uppers []linAtom
}

// chooseInteger picks an integer for an eliminated variable within the
// interval its recorded bounds induce under the partial sample.
func chooseInteger(el elim, ratOf func(*linExpr) (*big.Rat, bool)) (*big.Int, bool) {
	var lo, hi *big.Rat
	loStrict, hiStrict := false, false
	for _, a := range el.lowers {
		// a.e >= 0 with coeff cv > 0 on v: v >= -(rest)/cv
		bound, ok := boundOf(a, el.v, ratOf)
		if !ok {
			return nil, false
		}
		if lo == nil || bound.Cmp(lo) > 0 || (bound.Cmp(lo) == 0 && a.strict) {
			lo, loStrict = bound, a.strict
		}
	}
	for _, a := range el.uppers {
		bound, ok := boundOf(a, el.v, ratOf)
		if !ok {
			return nil, false
		}
		if hi == nil || bound.Cmp(hi) < 0 || (bound.Cmp(hi) == 0 && a.strict) {
			hi, hiStrict = bound, a.strict
		}
	}

	var pick *big.Int
	switch {
	case lo == nil && hi == nil:
		pick = big.NewInt(0)
	case lo == nil:
		pick = floorRat(hi)
		if hiStrict && new(big.Rat).SetInt(pick).Cmp(hi) == 0 {
			pick.Sub(pick, big.NewInt(1))
		}
	default:
		pick = ceilRat(lo)
		if loStrict && new(big.Rat).SetInt(pick).Cmp(lo) == 0 {
			pick.Add(pick, big.NewInt(1))
		}
	}
	if lo != nil {
		c := new(big.Rat).SetInt(pick).Cmp(lo)
		if c < 0 || (c == 0 && loStrict) {
			return nil, false
		}
	}
	if hi != nil {
		c := new(big.Rat).SetInt(pick).Cmp(hi)
		if c > 0 || (c == 0 && hiStrict) {
			return nil, false
		}
	}
	return pick, true
}

// boundOf solves atom a for v under the partial sample: the bound value
// of v implied by a.
func boundOf(a linAtom, v string, ratOf func(*linExpr) (*big.Rat, bool)) (*big.Rat, bool) {
	rest := newLin()
	rest.k.Set(a.e.k)
	cv := a.e.coeffs[v]
	for ov, oc := range a.e.coeffs {
		if ov != v {
			rest.coeffs[ov] = new(big.Rat).Set(oc)
		}
	}
	val, ok := ratOf(rest)
	if !ok {
		return nil, false
	}
	// cv*v + val >= 0  =>  v >= -val/cv (cv>0) or v <= -val/cv (cv<0)
	out := new(big.Rat).Neg(val)
	out.Quo(out, cv)
	return out, true
}

func pickVar(e *linExpr) string {
	vars := make([]string, 0, len(e.coeffs))
	for v := range e.coeffs {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars[0]
}

func substituteVar(e *linExpr, v string, sol *linExpr) {
	cv, ok := e.coeffs[v]
	if !ok {
		return
	}
	delete(e.coeffs, v)
	e.addScaled(sol, cv)
}

func collectVars(atoms []linAtom) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range atoms {
		for v := range a.e.coeffs {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out
}

func floorRat(r *big.Rat) *big.Int {
	out := new(big.Int)
	out.Div(r.Num(), r.Denom())
	return out
}

func ceilRat(r *big.Rat) *big.Int {
	out := floorRat(r)
	if !r.IsInt() {
		out.Add(out, big.NewInt(1))
	}
	return out
}

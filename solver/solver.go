// Package solver decides satisfiability of accumulated path constraints
// and produces concrete witness models.
//
// The engine treats the solver as an external dependency behind the
// Solver interface; a cgo binding to an SMT solver slots in there. The
// built-in SmallModel solver decides the fragment the rule language
// produces: boolean structure over linear integer arithmetic with
// symbolic mapping reads keyed by addresses. It answers Sat only with a
// verified concrete model, Unsat only after exhausting the search space
// soundly, and Unknown otherwise.
package solver

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/tenet-verify/tenet/symbolic"
)

// Status is a satisfiability answer.
type Status uint8

const (
	Unsat Status = iota
	Sat
	Unknown
)

func (s Status) String() string {
	switch s {
	case Unsat:
		return "unsat"
	case Sat:
		return "sat"
	default:
		return "unknown"
	}
}

// Model is a concrete assignment satisfying a formula: one value per
// symbol, plus one value per reachable mapping cell.
type Model struct {
	Values  map[int]*big.Int    // symbol ID -> value
	Selects map[string]*big.Int // rendered mapping cell -> value
}

// Value returns the assignment of sym, defaulting to zero for symbols
// the formula does not constrain.
func (m *Model) Value(sym *symbolic.Sym) *big.Int {
	if v, ok := m.Values[sym.ID]; ok {
		return v
	}
	return big.NewInt(0)
}

// Result is a solver answer. Model is non-nil iff Status is Sat.
type Result struct {
	Status Status
	Model  *Model
}

// Solver decides whether a conjunction of boolean constraints is
// satisfiable. Implementations must honor ctx cancellation and report
// Unknown (never a wrong Sat/Unsat) when they give up.
type Solver interface {
	Solve(ctx context.Context, constraints []symbolic.Expr) (Result, error)
}

// Option configures the built-in solver.
type Option func(*SmallModel)

// WithMaxPaths bounds the number of disjunctive paths explored before
// the solver gives up with Unknown.
func WithMaxPaths(n int) Option {
	return func(s *SmallModel) { s.maxPaths = n }
}

// WithMaxAssignments bounds the number of address aliasing assignments
// tried per path.
func WithMaxAssignments(n int) Option {
	return func(s *SmallModel) { s.maxAssignments = n }
}

// SmallModel is the built-in constraint solver.
type SmallModel struct {
	maxPaths       int
	maxAssignments int
}

// NewSmallModel returns the built-in solver with default budgets.
func NewSmallModel(opts ...Option) *SmallModel {
	s := &SmallModel{
		maxPaths:       8192,
		maxAssignments: 65536,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Solve decides the conjunction of constraints.
func (s *SmallModel) Solve(ctx context.Context, constraints []symbolic.Expr) (Result, error) {
	formula := symbolic.Expr(symbolic.True)
	var err error
	for _, c := range constraints {
		if c.Sort() != symbolic.Bool {
			return Result{Status: Unknown}, &symbolic.TypeError{Op: "constraint", Left: c.Sort()}
		}
		formula, err = symbolic.AndExpr(formula, c)
		if err != nil {
			return Result{Status: Unknown}, err
		}
	}

	paths, err := dnf(formula, false, s.maxPaths)
	if err != nil {
		// budget exceeded: cannot enumerate the path space
		return Result{Status: Unknown}, nil
	}

	sawUnknown := false
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return Result{Status: Unknown}, err
		}
		res, err := s.solvePath(ctx, path)
		if err != nil {
			return Result{Status: Unknown}, err
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

// solvePath decides one conjunctive path: enumerate address aliasing,
// reduce to linear arithmetic and run elimination.
func (s *SmallModel) solvePath(ctx context.Context, path []lit) (Result, error) {
	addrs, candidates, ordered := addressUniverse(path)

	total := 1
	for range addrs {
		total *= len(candidates)
		if total > s.maxAssignments {
			return Result{Status: Unknown}, nil
		}
	}

	assignment := make(map[int]*big.Int, len(addrs))
	sawUnknown := false

	var try func(i int) (Result, error)
	try = func(i int) (Result, error) {
		if err := ctx.Err(); err != nil {
			return Result{Status: Unknown}, err
		}
		if i == len(addrs) {
			res, err := solveLinear(ctx, path, assignment)
			if err != nil {
				return Result{Status: Unknown}, err
			}
			if res.Status == Unknown {
				sawUnknown = true
			}
			return res, nil
		}
		for _, c := range candidates {
			assignment[addrs[i].ID] = c
			res, err := try(i + 1)
			if err != nil {
				return res, err
			}
			if res.Status == Sat {
				return res, nil
			}
		}
		delete(assignment, addrs[i].ID)
		return Result{Status: Unsat}, nil
	}

	res, err := try(0)
	if err != nil {
		return res, err
	}
	if res.Status == Unsat && (sawUnknown || ordered) {
		// an ordered address grid is not exhaustive; never claim unsat
		return Result{Status: Unknown}, nil
	}
	return res, nil
}

// addressUniverse collects the address symbols of a path and the
// candidate concrete values to try for them: the zero sentinel, every
// address constant occurring in the path, successors bridging the gaps
// between those constants when the path orders addresses, and enough
// distinct fresh addresses for a full aliasing pattern. ordered reports
// that the path compares address terms with < or <=.
func addressUniverse(path []lit) (addrs []*symbolic.Sym, candidates []*big.Int, ordered bool) {
	seen := bitset.New(64)
	pool := map[string]*big.Int{"0": big.NewInt(0)}
	for _, l := range path {
		if (l.op == symbolic.Lt || l.op == symbolic.Le) && (addressTerm(l.l) || addressTerm(l.r)) {
			ordered = true
		}
		for _, e := range []symbolic.Expr{l.l, l.r} {
			for _, sym := range symbolic.Syms(e) {
				if sym.S == symbolic.Address && !seen.Test(uint(sym.ID)) {
					seen.Set(uint(sym.ID))
					addrs = append(addrs, sym)
				}
			}
			collectAddrConsts(e, pool)
		}
	}

	if ordered {
		base := make([]*big.Int, 0, len(pool))
		for _, v := range pool {
			base = append(base, v)
		}
		for _, v := range base {
			succ := new(big.Int).Add(v, big.NewInt(1))
			if symbolic.Address.InRange(succ) {
				pool[succ.String()] = succ
			}
		}
	}

	keys := make([]string, 0, len(pool))
	for k := range pool {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	candidates = append(candidates, pool["0"])
	for _, k := range keys {
		if k != "0" {
			candidates = append(candidates, pool[k])
		}
	}
	// fresh pairwise-distinct addresses, clear of small constants
	base := new(big.Int).Lsh(big.NewInt(1), 20)
	for i := 0; i < len(addrs); i++ {
		candidates = append(candidates, new(big.Int).Add(base, big.NewInt(int64(i))))
	}
	return addrs, candidates, ordered
}

// addressTerm reports whether a comparison operand denotes an address
// value, possibly widened into mathint.
func addressTerm(e symbolic.Expr) bool {
	switch e := e.(type) {
	case *symbolic.Sym:
		return e.S == symbolic.Address
	case *symbolic.Const:
		return e.S == symbolic.Address
	case *symbolic.Cast:
		return addressTerm(e.X)
	case *symbolic.Select:
		return e.S == symbolic.Address
	case *symbolic.Binary:
		return addressTerm(e.L) || addressTerm(e.R)
	case *symbolic.Ite:
		return addressTerm(e.Then) || addressTerm(e.Else)
	}
	return false
}

func collectAddrConsts(e symbolic.Expr, out map[string]*big.Int) {
	switch e := e.(type) {
	case *symbolic.Const:
		if e.S == symbolic.Address {
			out[e.Value.String()] = e.Value
		}
	case *symbolic.Binary:
		collectAddrConsts(e.L, out)
		collectAddrConsts(e.R, out)
	case *symbolic.Not:
		collectAddrConsts(e.X, out)
	case *symbolic.Ite:
		collectAddrConsts(e.Cond, out)
		collectAddrConsts(e.Then, out)
		collectAddrConsts(e.Else, out)
	case *symbolic.Select:
		for _, k := range e.Key {
			collectAddrConsts(k, out)
		}
	case *symbolic.Cast:
		collectAddrConsts(e.X, out)
	}
}

// cellKey renders a mapping cell under concrete keys.
func cellKey(mapName string, keys []*big.Int) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return fmt.Sprintf("%s[%s]", mapName, strings.Join(parts, "]["))
}

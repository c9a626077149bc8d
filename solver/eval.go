package solver

import (
	"errors"
	"math/big"

	"github.com/tenet-verify/tenet/symbolic"
)

var errNoValue = errors.New("solver: expression has no value under model")

// Eval evaluates an expression exactly under a model. Booleans evaluate
// to 0 or 1. Mapping cells absent from the model default to zero, which
// matches the all-zero initial content of an unconstrained mapping.
func Eval(e symbolic.Expr, m *Model) (*big.Int, error) {
	switch e := e.(type) {
	case *symbolic.Const:
		return new(big.Int).Set(e.Value), nil

	case *symbolic.Sym:
		return new(big.Int).Set(m.Value(e)), nil

	case *symbolic.Cast:
		return Eval(e.X, m)

	case *symbolic.Not:
		v, err := Eval(e.X, m)
		if err != nil {
			return nil, err
		}
		if v.Sign() == 0 {
			return big.NewInt(1), nil
		}
		return big.NewInt(0), nil

	case *symbolic.Ite:
		c, err := Eval(e.Cond, m)
		if err != nil {
			return nil, err
		}
		if c.Sign() != 0 {
			return Eval(e.Then, m)
		}
		return Eval(e.Else, m)

	case *symbolic.Select:
		keys := make([]*big.Int, len(e.Key))
		for i, k := range e.Key {
			v, err := Eval(k, m)
			if err != nil {
				return nil, err
			}
			keys[i] = v
		}
		if v, ok := m.Selects[cellKey(e.Map, keys)]; ok {
			return new(big.Int).Set(v), nil
		}
		return big.NewInt(0), nil

	case *symbolic.Binary:
		l, err := Eval(e.L, m)
		if err != nil {
			return nil, err
		}
		r, err := Eval(e.R, m)
		if err != nil {
			return nil, err
		}
		out := new(big.Int)
		switch e.Op {
		case symbolic.Add:
			out.Add(l, r)
		case symbolic.Sub:
			out.Sub(l, r)
		case symbolic.Mul:
			out.Mul(l, r)
		case symbolic.Div:
			if r.Sign() == 0 {
				return nil, errNoValue
			}
			out.Quo(l, r)
		case symbolic.Eq:
			return boolInt(l.Cmp(r) == 0), nil
		case symbolic.Neq:
			return boolInt(l.Cmp(r) != 0), nil
		case symbolic.Lt:
			return boolInt(l.Cmp(r) < 0), nil
		case symbolic.Le:
			return boolInt(l.Cmp(r) <= 0), nil
		case symbolic.And:
			return boolInt(l.Sign() != 0 && r.Sign() != 0), nil
		case symbolic.Or:
			return boolInt(l.Sign() != 0 || r.Sign() != 0), nil
		case symbolic.Implies:
			return boolInt(l.Sign() == 0 || r.Sign() != 0), nil
		case symbolic.Iff:
			return boolInt((l.Sign() != 0) == (r.Sign() != 0)), nil
		default:
			return nil, errNoValue
		}
		return out, nil

	default:
		return nil, errNoValue
	}
}

func boolInt(b bool) *big.Int {
	if b {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}

// evalLit checks one literal under a model.
func evalLit(l lit, m *Model) (bool, error) {
	lv, err := Eval(l.l, m)
	if err != nil {
		return false, err
	}
	rv, err := Eval(l.r, m)
	if err != nil {
		return false, err
	}
	switch l.op {
	case symbolic.Eq:
		return lv.Cmp(rv) == 0, nil
	case symbolic.Neq:
		return lv.Cmp(rv) != 0, nil
	case symbolic.Lt:
		return lv.Cmp(rv) < 0, nil
	case symbolic.Le:
		return lv.Cmp(rv) <= 0, nil
	default:
		return false, errNoValue
	}
}

package contract

import (
	"github.com/tenet-verify/tenet/state"
	"github.com/tenet-verify/tenet/symbolic"
)

// eb builds symbolic expressions with a sticky error, keeping method
// bodies free of per-node error plumbing. The first failure wins; all
// later calls are no-ops returning nil.
type eb struct {
	err error
}

func (b *eb) fail(err error) symbolic.Expr {
	if b.err == nil {
		b.err = err
	}
	return nil
}

func (b *eb) wrap(e symbolic.Expr, err error) symbolic.Expr {
	if b.err != nil {
		return nil
	}
	if err != nil {
		return b.fail(err)
	}
	return e
}

func (b *eb) math(x symbolic.Expr) symbolic.Expr {
	if b.err != nil {
		return nil
	}
	return b.wrap(symbolic.ToMathint(x))
}

func (b *eb) add(l, r symbolic.Expr) symbolic.Expr {
	if b.err != nil {
		return nil
	}
	return b.wrap(symbolic.AddExpr(l, r))
}

func (b *eb) sub(l, r symbolic.Expr) symbolic.Expr {
	if b.err != nil {
		return nil
	}
	return b.wrap(symbolic.SubExpr(l, r))
}

func (b *eb) lt(l, r symbolic.Expr) symbolic.Expr {
	if b.err != nil {
		return nil
	}
	return b.wrap(symbolic.LtExpr(l, r))
}

func (b *eb) gt(l, r symbolic.Expr) symbolic.Expr {
	if b.err != nil {
		return nil
	}
	return b.wrap(symbolic.GtExpr(l, r))
}

func (b *eb) eq(l, r symbolic.Expr) symbolic.Expr {
	if b.err != nil {
		return nil
	}
	return b.wrap(symbolic.EqExpr(l, r))
}

func (b *eb) neq(l, r symbolic.Expr) symbolic.Expr {
	if b.err != nil {
		return nil
	}
	return b.wrap(symbolic.NeqExpr(l, r))
}

func (b *eb) or(xs ...symbolic.Expr) symbolic.Expr {
	if b.err != nil {
		return nil
	}
	acc := symbolic.Expr(symbolic.False)
	for _, x := range xs {
		acc = b.wrap(symbolic.OrExpr(acc, x))
		if b.err != nil {
			return nil
		}
	}
	return acc
}

func (b *eb) ite(cond, then, els symbolic.Expr) symbolic.Expr {
	if b.err != nil {
		return nil
	}
	return b.wrap(symbolic.IteExpr(cond, then, els))
}

// narrow converts a mathint back to uint256. The in-range obligation is
// dropped: narrowed stores are revert-guarded, and on the surviving
// path the revert condition already excludes out-of-range values.
func (b *eb) narrow(x symbolic.Expr) symbolic.Expr {
	if b.err != nil {
		return nil
	}
	e, _, err := symbolic.NarrowUint256(x)
	return b.wrap(e, err)
}

func (b *eb) get(st *state.State, slot string, keys ...symbolic.Expr) symbolic.Expr {
	if b.err != nil {
		return nil
	}
	return b.wrap(st.Get(slot, keys...))
}

// setGuarded writes Ite(revert, old, val) through the hooked path.
func (b *eb) setGuarded(st *state.State, revert symbolic.Expr, slot string, keys []symbolic.Expr, val symbolic.Expr) {
	if b.err != nil {
		return
	}
	old := b.get(st, slot, keys...)
	v := b.ite(revert, old, val)
	if b.err != nil {
		return
	}
	if err := st.Set(slot, keys, v); err != nil {
		b.fail(err)
	}
}

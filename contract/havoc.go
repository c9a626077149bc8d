package contract

import (
	"github.com/tenet-verify/tenet/state"
	"github.com/tenet-verify/tenet/symbolic"
)

// HavocMethod returns the pseudo-method standing in for an arbitrary
// unconstrained call: every declared scalar is overwritten with a fresh
// symbol and every declared mapping receives a write at a fresh key,
// all through the hooked write path so ghost instrumentation observes
// the mutation. Method-polymorphic rules range over it alongside the
// declared methods.
func HavocMethod() *Method {
	return &Method{
		Name:  "havoc",
		Apply: havocApply,
	}
}

func havocApply(st *state.State, env state.Env, _ []symbolic.Expr) (Outcome, error) {
	vars := st.Vars()
	for _, name := range st.Scalars() {
		old, err := st.Scalar(name)
		if err != nil {
			return Outcome{}, err
		}
		if err := st.SetScalar(name, vars.Fresh(name, old.Sort())); err != nil {
			return Outcome{}, err
		}
	}
	for _, name := range st.Mappings() {
		keySorts, _ := st.MappingKeySorts(name)
		valSort, _ := st.MappingValSort(name)
		keys := make([]symbolic.Expr, len(keySorts))
		for i, s := range keySorts {
			keys[i] = vars.Fresh(name+".key", s)
		}
		if err := st.Set(name, keys, vars.Fresh(name+".val", valSort)); err != nil {
			return Outcome{}, err
		}
	}
	return Outcome{Revert: symbolic.False}, nil
}

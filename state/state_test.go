package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/tenet-verify/tenet/symbolic"
)

func newERC20Like(vars *symbolic.Vars) *State {
	st := New(vars)
	st.DeclareScalar("totalSupply", symbolic.Uint256)
	st.DeclareMapping("balances", []symbolic.Sort{symbolic.Address}, symbolic.Uint256)
	st.DeclareMapping("allowances", []symbolic.Sort{symbolic.Address, symbolic.Address}, symbolic.Uint256)
	return st
}

func TestMappingReadBase(t *testing.T) {
	assert := require.New(t)

	vars := symbolic.NewVars()
	st := newERC20Like(vars)

	a := vars.Fresh("a", symbolic.Address)
	v, err := st.Get("balances", a)
	assert.NoError(err)

	sel, ok := v.(*symbolic.Select)
	assert.True(ok, "unwritten cell reads from the base layer")
	assert.Equal("balances", sel.Map)
	assert.Equal(symbolic.Uint256, sel.Sort())
}

func TestMappingReadAfterWrite(t *testing.T) {
	assert := require.New(t)

	vars := symbolic.NewVars()
	st := newERC20Like(vars)

	a := vars.Fresh("a", symbolic.Address)
	ten := symbolic.NewInt(10, symbolic.Uint256)
	assert.NoError(st.Set("balances", []symbolic.Expr{a}, ten))

	got, err := st.Get("balances", a)
	assert.NoError(err)
	assert.Equal(ten, got, "same key symbol resolves to the last write")

	// A different key sees a guarded value.
	b := vars.Fresh("b", symbolic.Address)
	got, err = st.Get("balances", b)
	assert.NoError(err)
	ite, ok := got.(*symbolic.Ite)
	assert.True(ok)
	assert.Equal(ten, ite.Then)
}

func TestMappingWriteOrder(t *testing.T) {
	assert := require.New(t)

	vars := symbolic.NewVars()
	st := newERC20Like(vars)

	a := vars.Fresh("a", symbolic.Address)
	one := symbolic.NewInt(1, symbolic.Uint256)
	two := symbolic.NewInt(2, symbolic.Uint256)
	assert.NoError(st.Set("balances", []symbolic.Expr{a}, one))
	assert.NoError(st.Set("balances", []symbolic.Expr{a}, two))

	got, err := st.Get("balances", a)
	assert.NoError(err)
	assert.Equal(two, got, "later write shadows the earlier one")
}

func TestTwoKeyMapping(t *testing.T) {
	assert := require.New(t)

	vars := symbolic.NewVars()
	st := newERC20Like(vars)

	owner := vars.Fresh("owner", symbolic.Address)
	spender := vars.Fresh("spender", symbolic.Address)
	amt := symbolic.NewInt(7, symbolic.Uint256)
	assert.NoError(st.Set("allowances", []symbolic.Expr{owner, spender}, amt))

	got, err := st.Get("allowances", owner, spender)
	assert.NoError(err)
	assert.Equal(amt, got)

	_, err = st.Get("allowances", owner)
	assert.Error(err, "key arity is checked")
}

func TestScalarWriteFiresHook(t *testing.T) {
	assert := require.New(t)

	vars := symbolic.NewVars()
	st := newERC20Like(vars)

	var fired int
	st.RegisterHook(Hook{Slot: "totalSupply", Fn: func(st *State, keys []symbolic.Expr, old, new symbolic.Expr) error {
		fired++
		assert.Nil(keys)
		assert.NotNil(old)
		return nil
	}})

	assert.NoError(st.SetScalar("totalSupply", symbolic.NewInt(100, symbolic.Uint256)))
	assert.Equal(1, fired)
}

func TestHooksFireInWriteOrder(t *testing.T) {
	assert := require.New(t)

	vars := symbolic.NewVars()
	st := newERC20Like(vars)

	var seen []symbolic.Expr
	st.RegisterHook(Hook{Slot: "balances", Fn: func(st *State, keys []symbolic.Expr, old, new symbolic.Expr) error {
		seen = append(seen, new)
		return nil
	}})

	a := vars.Fresh("a", symbolic.Address)
	b := vars.Fresh("b", symbolic.Address)
	one := symbolic.NewInt(1, symbolic.Uint256)
	two := symbolic.NewInt(2, symbolic.Uint256)
	assert.NoError(st.Set("balances", []symbolic.Expr{a}, one))
	assert.NoError(st.Set("balances", []symbolic.Expr{b}, two))

	assert.Len(seen, 2)
	assert.Equal(one, seen[0])
	assert.Equal(two, seen[1])
}

func TestGhostMutationOnlyInHooks(t *testing.T) {
	assert := require.New(t)

	vars := symbolic.NewVars()
	st := newERC20Like(vars)
	st.InitGhost("sumBalances", symbolic.NewInt(0, symbolic.Mathint))

	err := st.SetGhost("sumBalances", symbolic.NewInt(5, symbolic.Mathint))
	assert.ErrorIs(err, ErrGhostWrite)

	st.RegisterHook(Hook{Slot: "balances", Fn: func(st *State, keys []symbolic.Expr, old, new symbolic.Expr) error {
		sum, ok := st.Ghost("sumBalances")
		assert.True(ok)
		oldM, err := symbolic.ToMathint(old)
		if err != nil {
			return err
		}
		newM, err := symbolic.ToMathint(new)
		if err != nil {
			return err
		}
		d, err := symbolic.SubExpr(newM, oldM)
		if err != nil {
			return err
		}
		next, err := symbolic.AddExpr(sum, d)
		if err != nil {
			return err
		}
		return st.SetGhost("sumBalances", next)
	}})

	a := vars.Fresh("a", symbolic.Address)
	assert.NoError(st.Set("balances", []symbolic.Expr{a}, symbolic.NewInt(42, symbolic.Uint256)))

	sum, ok := st.Ghost("sumBalances")
	assert.True(ok)
	assert.Equal(symbolic.Mathint, sum.Sort())
}

func TestPatchSkipsHooks(t *testing.T) {
	assert := require.New(t)

	vars := symbolic.NewVars()
	st := newERC20Like(vars)

	var fired int
	st.RegisterHook(Hook{Slot: "balances", Fn: func(st *State, keys []symbolic.Expr, old, new symbolic.Expr) error {
		fired++
		return nil
	}})

	a := vars.Fresh("a", symbolic.Address)
	ten := symbolic.NewInt(10, symbolic.Uint256)
	assert.NoError(st.Patch("balances", []symbolic.Expr{a}, ten))
	assert.Equal(0, fired, "raw writes bypass hook instrumentation")

	got, err := st.Get("balances", a)
	assert.NoError(err)
	assert.Equal(ten, got, "the write itself still lands")
}

func TestCloneIsolation(t *testing.T) {
	assert := require.New(t)

	vars := symbolic.NewVars()
	st := newERC20Like(vars)
	st.InitGhost("sumBalances", symbolic.NewInt(0, symbolic.Mathint))

	a := vars.Fresh("a", symbolic.Address)
	one := symbolic.NewInt(1, symbolic.Uint256)
	assert.NoError(st.Set("balances", []symbolic.Expr{a}, one))

	cp := st.Clone()
	assert.NoError(cp.Set("balances", []symbolic.Expr{a}, symbolic.NewInt(2, symbolic.Uint256)))
	assert.NoError(cp.SetScalar("totalSupply", symbolic.NewInt(9, symbolic.Uint256)))

	// Original still sees its own write only.
	got, err := st.Get("balances", a)
	assert.NoError(err)
	assert.Equal(one, got)

	orig, _ := st.Scalar("totalSupply")
	clone, _ := cp.Scalar("totalSupply")
	diff := cmp.Diff(orig.String(), clone.String())
	assert.NotEmpty(diff, "clone scalar write must not leak back")
}

func TestEnvFields(t *testing.T) {
	assert := require.New(t)

	vars := symbolic.NewVars()
	e := NewEnv(vars, "e")

	sender, ok := e.Field("msg.sender")
	assert.True(ok)
	assert.Equal(symbolic.Address, sender.Sort())

	value, ok := e.Field("msg.value")
	assert.True(ok)
	assert.Equal(symbolic.Uint256, value.Sort())

	_, ok = e.Field("msg.gas")
	assert.False(ok)

	e2 := NewEnv(vars, "e2")
	assert.NotEqual(e.MsgSender.ID, e2.MsgSender.ID, "environments never share symbols")
}

func TestTraceRecordsWrites(t *testing.T) {
	assert := require.New(t)

	vars := symbolic.NewVars()
	st := newERC20Like(vars)

	a := vars.Fresh("a", symbolic.Address)
	assert.NoError(st.Set("balances", []symbolic.Expr{a}, symbolic.NewInt(3, symbolic.Uint256)))
	_, err := st.Get("balances", a)
	assert.NoError(err)
	st.Trace().Note(OpCall, "transfer", "plain call")

	writes := st.Trace().Writes()
	assert.Len(writes, 1)
	assert.Equal("balances", writes[0].Slot)
	assert.Contains(writes[0].String(), "write balances[a] = 3")

	recs := st.Trace().Records()
	assert.Equal(OpCall, recs[len(recs)-1].Kind)
}

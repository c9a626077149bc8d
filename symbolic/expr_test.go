package symbolic

import (
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestSortDomains(t *testing.T) {
	assert := require.New(t)

	assert.True(Uint256.InRange(Uint256.Max()))
	assert.False(Uint256.InRange(new(big.Int).Add(Uint256.Max(), big.NewInt(1))))
	assert.False(Address.InRange(big.NewInt(-1)))
	assert.True(Mathint.InRange(new(big.Int).Neg(Uint256.Max())))
	assert.Equal(160, Address.Max().BitLen())
	assert.Equal(256, Uint256.Max().BitLen())
}

func TestDomainMixingRejected(t *testing.T) {
	assert := require.New(t)
	vars := NewVars()
	ghost := vars.Fresh("sum", Mathint)
	bal := vars.Fresh("bal", Uint256)

	// comparing a mathint accumulator to a bounded value must not
	// typecheck without an explicit widening
	_, err := EqExpr(ghost, bal)
	assert.Error(err)
	var te *TypeError
	assert.ErrorAs(err, &te)

	widened, err := ToMathint(bal)
	assert.NoError(err)
	_, err = EqExpr(ghost, widened)
	assert.NoError(err)

	// address arithmetic is rejected outright
	a := vars.Fresh("a", Address)
	b := vars.Fresh("b", Address)
	_, err = AddExpr(a, b)
	assert.Error(err)
	_, err = EqExpr(a, b)
	assert.NoError(err)
}

func TestNarrowUint256(t *testing.T) {
	assert := require.New(t)
	vars := NewVars()
	m := vars.Fresh("m", Mathint)

	narrowed, obligation, err := NarrowUint256(m)
	assert.NoError(err)
	assert.Equal(Uint256, narrowed.Sort())
	assert.Equal(Bool, obligation.Sort())
	assert.False(IsTrue(obligation))

	// a constant already in range narrows with a trivial obligation
	c := &Const{Value: big.NewInt(42), S: Mathint}
	narrowed, obligation, err = NarrowUint256(c)
	assert.NoError(err)
	assert.True(IsTrue(obligation))
	v, ok := IsConst(narrowed)
	assert.True(ok)
	assert.Equal(int64(42), v.Int64())

	_, _, err = NarrowUint256(NewBool(true))
	assert.Error(err)
}

func TestConstantFolding(t *testing.T) {
	assert := require.New(t)

	sum, err := AddExpr(NewInt(2, Uint256), NewInt(3, Uint256))
	assert.NoError(err)
	v, ok := IsConst(sum)
	assert.True(ok)
	assert.Equal(int64(5), v.Int64())

	lt, err := LtExpr(NewInt(2, Uint256), NewInt(3, Uint256))
	assert.NoError(err)
	assert.True(IsTrue(lt))

	// folding that would wrap stays symbolic
	max := &Const{Value: Uint256.Max(), S: Uint256}
	wrapped, err := AddExpr(max, NewInt(1, Uint256))
	assert.NoError(err)
	_, ok = IsConst(wrapped)
	assert.False(ok)

	// mathint never wraps
	maxM := &Const{Value: Uint256.Max(), S: Mathint}
	exact, err := AddExpr(maxM, NewInt(1, Mathint))
	assert.NoError(err)
	v, ok = IsConst(exact)
	assert.True(ok)
	assert.Equal(0, v.Cmp(new(big.Int).Add(Uint256.Max(), big.NewInt(1))))
}

func TestLogicSimplification(t *testing.T) {
	assert := require.New(t)
	vars := NewVars()
	p := vars.Fresh("p", Bool)

	and, err := AndExpr(True, p)
	assert.NoError(err)
	assert.Same(Expr(p), and)

	or, err := OrExpr(p, True)
	assert.NoError(err)
	assert.True(IsTrue(or))

	imp, err := ImpliesExpr(False, p)
	assert.NoError(err)
	assert.True(IsTrue(imp))

	np, err := NotExpr(p)
	assert.NoError(err)
	nnp, err := NotExpr(np)
	assert.NoError(err)
	assert.Same(Expr(p), nnp)
}

func TestSymsCollection(t *testing.T) {
	assert := require.New(t)
	vars := NewVars()
	a := vars.Fresh("a", Uint256)
	b := vars.Fresh("b", Uint256)

	sum, err := AddExpr(a, b)
	require.NoError(t, err)
	again, err := AddExpr(sum, a)
	require.NoError(t, err)

	syms := Syms(again)
	assert.Len(syms, 2)
	assert.Equal("a", syms[0].Name)
	assert.Equal("b", syms[1].Name)
}

func TestFoldingMatchesBigIntArithmetic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("mathint add/sub fold exactly", prop.ForAll(
		func(x, y int64) bool {
			l := &Const{Value: big.NewInt(x), S: Mathint}
			r := &Const{Value: big.NewInt(y), S: Mathint}
			sum, err := AddExpr(l, r)
			if err != nil {
				return false
			}
			diff, err := SubExpr(l, r)
			if err != nil {
				return false
			}
			sv, ok1 := IsConst(sum)
			dv, ok2 := IsConst(diff)
			return ok1 && ok2 &&
				sv.Cmp(new(big.Int).Add(big.NewInt(x), big.NewInt(y))) == 0 &&
				dv.Cmp(new(big.Int).Sub(big.NewInt(x), big.NewInt(y))) == 0
		},
		gen.Int64(), gen.Int64(),
	))

	properties.Property("comparison folds consistently with Cmp", prop.ForAll(
		func(x, y uint64) bool {
			l := &Const{Value: new(big.Int).SetUint64(x), S: Uint256}
			r := &Const{Value: new(big.Int).SetUint64(y), S: Uint256}
			le, err := LeExpr(l, r)
			if err != nil {
				return false
			}
			return IsTrue(le) == (x <= y)
		},
		gen.UInt64(), gen.UInt64(),
	))

	properties.TestingRun(t)
}

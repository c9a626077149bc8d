package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tenet-verify/tenet/contract"
	"github.com/tenet-verify/tenet/spec"
	"github.com/tenet-verify/tenet/state"
	"github.com/tenet-verify/tenet/symbolic"
)

const tokenMethods = `
methods {
	transfer(address, uint256) returns bool
	transferFrom(address, address, uint256) returns bool
	approve(address, uint256) returns bool
	balanceOf(address) returns uint256 envfree
	allowance(address, address) returns uint256 envfree
	totalSupply() returns uint256 envfree
}
`

func verify(t *testing.T, model contract.Model, src string, opts ...Option) *Report {
	t.Helper()
	assert := require.New(t)

	prog, err := spec.Parse(src)
	assert.NoError(err)

	opts = append([]Option{WithSolverTimeout(time.Minute)}, opts...)
	rep, err := New(model, opts...).Verify(context.Background(), prog)
	assert.NoError(err)
	return rep
}

func resultOf(t *testing.T, rep *Report, rule, method string) Result {
	t.Helper()
	for _, r := range rep.Results {
		if r.Rule == rule && r.Method == method {
			return r
		}
	}
	t.Fatalf("no result for %s[%s]", rule, method)
	return Result{}
}

func TestApproveAllowanceRoundTrip(t *testing.T) {
	rep := verify(t, contract.NewERC20(), tokenMethods+`
rule approveSetsAllowance(address spender, uint256 value) {
	env e;
	approve(e, spender, value);
	assert allowance(e.msg.sender, spender) == value;
}
`)
	r := resultOf(t, rep, "approveSetsAllowance", "")
	require.Equal(t, Verified, r.Verdict, r.Message)
}

func TestZeroTransferKeepsBalances(t *testing.T) {
	rep := verify(t, contract.NewERC20(), tokenMethods+`
rule zeroTransferKeepsBalance(address to) {
	env e;
	uint256 before = balanceOf(to);
	transfer(e, to, 0);
	assert balanceOf(to) == before;
}
`)
	r := resultOf(t, rep, "zeroTransferKeepsBalance", "")
	require.Equal(t, Verified, r.Verdict, r.Message)
}

func TestInsufficientBalanceReverts(t *testing.T) {
	rep := verify(t, contract.NewERC20(), tokenMethods+`
rule insufficientBalanceReverts(address to, uint256 value) {
	env e;
	require to_mathint(balanceOf(e.msg.sender)) < to_mathint(value);
	uint256 before = balanceOf(to);
	transfer@withrevert(e, to, value);
	assert lastReverted, "transfer must revert";
	assert balanceOf(to) == before, "a reverted call must not change state";
}
`)
	r := resultOf(t, rep, "insufficientBalanceReverts", "")
	require.Equal(t, Verified, r.Verdict, r.Message)
}

// The classic broken rule: a strict balance increase is falsified by a
// self-transfer, where sender and recipient alias.
func TestSelfTransferFalsifiesStrictIncrease(t *testing.T) {
	assert := require.New(t)

	rep := verify(t, contract.NewERC20(), tokenMethods+`
rule transferIncreasesRecipient(address to, uint256 value) {
	env e;
	require value > 0;
	uint256 before = balanceOf(to);
	transfer(e, to, value);
	assert to_mathint(balanceOf(to)) > to_mathint(before), "recipient must gain";
}
`)
	r := resultOf(t, rep, "transferIncreasesRecipient", "")
	assert.Equal(Violated, r.Verdict)
	assert.Equal("recipient must gain", r.Message)
	assert.NotNil(r.Cex)

	// The witness aliases recipient and sender.
	vals := map[string]string{}
	for _, b := range r.Cex.Bindings {
		vals[b.Name] = b.Value
	}
	assert.Contains(vals, "to")
	assert.Contains(vals, "e.msg.sender")
	assert.Equal(vals["e.msg.sender"], vals["to"])
	assert.NotEmpty(r.Cex.Trace)
}

func TestDistinctTransferIncreasesRecipient(t *testing.T) {
	rep := verify(t, contract.NewERC20(), tokenMethods+`
rule transferIncreasesRecipient(address to, uint256 value) {
	env e;
	require to != e.msg.sender;
	require value > 0;
	uint256 before = balanceOf(to);
	transfer(e, to, value);
	assert to_mathint(balanceOf(to)) > to_mathint(before);
}
`)
	r := resultOf(t, rep, "transferIncreasesRecipient", "")
	require.Equal(t, Verified, r.Verdict, r.Message)
}

func TestTransferFromRespectsAllowance(t *testing.T) {
	rep := verify(t, contract.NewERC20(), tokenMethods+`
rule transferFromSpendsAllowance(address from, address to, uint256 value) {
	env e;
	mathint before = to_mathint(allowance(from, e.msg.sender));
	transferFrom(e, from, to, value);
	assert to_mathint(allowance(from, e.msg.sender)) == before - to_mathint(value);
}
`)
	r := resultOf(t, rep, "transferFromSpendsAllowance", "")
	require.Equal(t, Verified, r.Verdict, r.Message)
}

// A method-polymorphic rule fans out into one task per declared method
// plus the arbitrary-call pseudo-method. The declared methods preserve
// the supply; the unconstrained call does not and falsifies the rule.
func TestSupplyFixedAcrossAllMethods(t *testing.T) {
	assert := require.New(t)

	rep := verify(t, contract.NewERC20(), tokenMethods+`
rule supplyFixed(method f) {
	env e;
	calldataarg args;
	mathint before = to_mathint(totalSupply());
	f(e, args);
	assert to_mathint(totalSupply()) == before;
}
`)
	var methods []string
	for _, r := range rep.Results {
		if r.Rule != "supplyFixed" {
			continue
		}
		methods = append(methods, r.Method)
		if r.Method == "havoc()" {
			assert.Equal(Violated, r.Verdict, r.Message)
			continue
		}
		assert.Equal(Verified, r.Verdict, "%s: %s", r.Name(), r.Message)
	}
	assert.Len(methods, 7)
	assert.Contains(methods, "transfer(address,uint256)")
	assert.Contains(methods, "totalSupply()")
	assert.Contains(methods, "havoc()")
}

// f.isView distinguishes the view methods inside a polymorphic rule;
// the guarded assertion holds across the whole fan-out, arbitrary call
// included.
func TestIsViewGuardsPolymorphicRule(t *testing.T) {
	assert := require.New(t)

	rep := verify(t, contract.NewERC20(), tokenMethods+`
rule viewsKeepSupply(method f) {
	env e;
	calldataarg args;
	mathint before = to_mathint(totalSupply());
	f(e, args);
	assert f.isView => to_mathint(totalSupply()) == before;
}
`)
	count := 0
	for _, r := range rep.Results {
		if r.Rule != "viewsKeepSupply" {
			continue
		}
		count++
		assert.Equal(Verified, r.Verdict, "%s: %s", r.Name(), r.Message)
	}
	assert.Equal(7, count)
}

// A require placed after an assert narrows only the remainder of the
// rule; the assertion is judged at its own program point.
func TestLateRequireDoesNotWeakenAssert(t *testing.T) {
	assert := require.New(t)

	rep := verify(t, contract.NewERC20(), tokenMethods+`
rule assertBeforeRequire(uint256 x) {
	assert to_mathint(x) > 0;
	require to_mathint(x) > 5;
}
`)
	r := resultOf(t, rep, "assertBeforeRequire", "")
	assert.Equal(Violated, r.Verdict, r.Message)
	assert.NotNil(r.Cex)
}

// An ordered constraint over addresses is reachable even when no
// satisfying constant appears in the rule text.
func TestHighAddressRangeIsReachable(t *testing.T) {
	rep := verify(t, contract.NewERC20(), tokenMethods+`
rule highAddress(address a) {
	require a > 0x200000;
	assert false;
}
`)
	r := resultOf(t, rep, "highAddress", "")
	require.Equal(t, Violated, r.Verdict, r.Message)
}

func TestVacuousRule(t *testing.T) {
	rep := verify(t, contract.NewERC20(), tokenMethods+`
rule unreachable(uint256 x) {
	require to_mathint(x) < 0;
	assert false;
}
`)
	r := resultOf(t, rep, "unreachable", "")
	require.Equal(t, Vacuous, r.Verdict)
}

// A broken declaration loads as an Error result without disturbing its
// siblings.
func TestLoadErrorIsolation(t *testing.T) {
	assert := require.New(t)

	rep := verify(t, contract.NewERC20(), tokenMethods+`
rule broken(address a,) {
	assert balanceOf(a) >= ;
}

rule fine(address a) {
	assert balanceOf(a) >= 0;
}
`)
	var kinds []Verdict
	for _, r := range rep.Results {
		kinds = append(kinds, r.Verdict)
	}
	assert.Contains(kinds, Error)
	assert.Equal(Verified, resultOf(t, rep, "fine", "").Verdict)
	assert.False(rep.Ok())
}

func TestTimeoutYieldsUnknown(t *testing.T) {
	rep := verify(t, contract.NewERC20(), tokenMethods+`
rule anything(address to, uint256 value) {
	env e;
	transfer(e, to, value);
	assert balanceOf(to) >= 0;
}
`, WithSolverTimeout(time.Nanosecond))
	r := resultOf(t, rep, "anything", "")
	require.Equal(t, Unknown, r.Verdict)
}

// leakyToken extends the token with a method that writes balances
// through the raw path, invisible to storage hooks.
type leakyToken struct {
	*contract.ERC20
	skim *contract.Method
}

func newLeakyToken() *leakyToken {
	m := &leakyToken{ERC20: contract.NewERC20()}
	m.skim = &contract.Method{
		Name: "skim",
		Params: []contract.Param{
			{Name: "to", Sort: symbolic.Address},
			{Name: "value", Sort: symbolic.Uint256},
		},
		Apply: skimApply,
	}
	return m
}

func (m *leakyToken) Name() string { return "LeakyERC20" }

func (m *leakyToken) Methods() []*contract.Method {
	return append(m.ERC20.Methods(), m.skim)
}

func (m *leakyToken) MethodByName(name string) (*contract.Method, bool) {
	if name == "skim" {
		return m.skim, true
	}
	return m.ERC20.MethodByName(name)
}

func skimApply(st *state.State, env state.Env, args []symbolic.Expr) (contract.Outcome, error) {
	to, value := args[0], args[1]
	old, err := st.Get(contract.SlotBalances, to)
	if err != nil {
		return contract.Outcome{}, err
	}
	oldM, err := symbolic.ToMathint(old)
	if err != nil {
		return contract.Outcome{}, err
	}
	valueM, err := symbolic.ToMathint(value)
	if err != nil {
		return contract.Outcome{}, err
	}
	sum, err := symbolic.AddExpr(oldM, valueM)
	if err != nil {
		return contract.Outcome{}, err
	}
	max := &symbolic.Const{Value: symbolic.Uint256.Max(), S: symbolic.Mathint}
	revert, err := symbolic.GtExpr(sum, max)
	if err != nil {
		return contract.Outcome{}, err
	}
	narrowed, _, err := symbolic.NarrowUint256(sum)
	if err != nil {
		return contract.Outcome{}, err
	}
	v, err := symbolic.IteExpr(revert, old, narrowed)
	if err != nil {
		return contract.Outcome{}, err
	}
	if err := st.Patch(contract.SlotBalances, []symbolic.Expr{to}, v); err != nil {
		return contract.Outcome{}, err
	}
	return contract.Outcome{Revert: revert}, nil
}

// A storage write that bypasses the hook leaves the ghost stale, and a
// ghost-consistency assertion catches it.
func TestSuppressedHookIsDetected(t *testing.T) {
	assert := require.New(t)

	src := `
methods {
	skim(address, uint256)
	balanceOf(address) returns uint256 envfree
}

ghost mathint sumBalances {
	init_state axiom sumBalances == 0;
}

hook Sstore balances[KEY address a] uint256 newVal (uint256 oldVal) {
	sumBalances = sumBalances + to_mathint(newVal) - to_mathint(oldVal);
}

rule hookSeesEveryWrite(address a, uint256 value) {
	env e;
	mathint gBefore = sumBalances;
	mathint bBefore = to_mathint(balanceOf(a));
	skim(e, a, value);
	assert sumBalances - gBefore == to_mathint(balanceOf(a)) - bBefore, "ghost missed a write";
}
`
	rep := verify(t, newLeakyToken(), src)
	r := resultOf(t, rep, "hookSeesEveryWrite", "")
	assert.Equal(Violated, r.Verdict)
	assert.Equal("ghost missed a write", r.Message)
	assert.NotNil(r.Cex)
}

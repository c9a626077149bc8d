package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tenet-verify/tenet/contract"
)

const sumInvariantSpec = `
methods {
	transfer(address, uint256) returns bool
	approve(address, uint256) returns bool
	balanceOf(address) returns uint256 envfree
	totalSupply() returns uint256 envfree
}

ghost mathint sumBalances {
	init_state axiom sumBalances == 0;
}

hook Sstore balances[KEY address a] uint256 newVal (uint256 oldVal) {
	sumBalances = sumBalances + to_mathint(newVal) - to_mathint(oldVal);
}

invariant totalIsSumOfBalances()
	to_mathint(totalSupply()) == sumBalances
`

// The ghost-sum invariant holds after deployment and is preserved by
// every state-changing method: transfers move value between cells and
// the hook keeps the ghost in lockstep.
func TestSumInvariantHolds(t *testing.T) {
	assert := require.New(t)

	rep := verify(t, contract.NewERC20(), sumInvariantSpec)

	base := resultOf(t, rep, "totalIsSumOfBalances", "")
	assert.Equal("invariant base", base.Kind)
	assert.Equal(Verified, base.Verdict, base.Message)

	steps := 0
	for _, r := range rep.Results {
		if r.Kind != "invariant step" {
			continue
		}
		steps++
		assert.Equal(Verified, r.Verdict, "%s: %s", r.Name(), r.Message)
	}
	// transfer and approve; views cannot change state.
	assert.Equal(2, steps)
	assert.True(rep.Ok())
}

// A hook that adds the new value without subtracting the old one drifts
// on every overwrite: the base case still holds, the step does not.
func TestBrokenHookFailsInduction(t *testing.T) {
	assert := require.New(t)

	rep := verify(t, contract.NewERC20(), `
methods {
	transfer(address, uint256) returns bool
	totalSupply() returns uint256 envfree
}

ghost mathint sumBalances {
	init_state axiom sumBalances == 0;
}

hook Sstore balances[KEY address a] uint256 newVal (uint256 oldVal) {
	sumBalances = sumBalances + to_mathint(newVal);
}

invariant totalIsSumOfBalances()
	to_mathint(totalSupply()) == sumBalances
`)

	step := resultOf(t, rep, "totalIsSumOfBalances", "transfer(address,uint256)")
	assert.Equal(Violated, step.Verdict)
	assert.NotNil(step.Cex)
	assert.False(rep.Ok())
}

// An invariant's env parameter is one environment across the induction
// step: the hypothesis and the conclusion bind the same msg fields, so
// a predicate over them carries through untouched state.
func TestEnvParamStableAcrossInduction(t *testing.T) {
	assert := require.New(t)

	rep := verify(t, contract.NewERC20(), `
methods {
	transfer(address, uint256) returns bool
}

ghost mathint floor {
	init_state axiom floor == 0;
}

invariant valueAboveFloor(env e)
	to_mathint(e.msg.value) >= floor
`)
	for _, r := range rep.Results {
		assert.Equal(Verified, r.Verdict, "%s: %s", r.Name(), r.Message)
	}
	assert.True(rep.Ok())
}

// requireInvariant narrows a rule's pre-state to invariant-satisfying
// states; without it the havoc state can place more tokens in one cell
// than exist in total.
func TestRequireInvariantNarrowsState(t *testing.T) {
	assert := require.New(t)

	rep := verify(t, contract.NewERC20(), sumInvariantSpec+`
rule balanceNeverExceedsGhostSum(address a) {
	require to_mathint(balanceOf(a)) <= sumBalances;
	requireInvariant totalIsSumOfBalances();
	assert to_mathint(balanceOf(a)) <= to_mathint(totalSupply());
}
`)
	r := resultOf(t, rep, "balanceNeverExceedsGhostSum", "")
	assert.Equal(Verified, r.Verdict, r.Message)
}

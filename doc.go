// Package tenet is a symbolic verification engine for assertion-style
// contract specifications.
//
// tenet loads declarative rule files (rules, invariants, ghost variables,
// storage hooks), symbolically executes each rule against a contract model
// and discharges the resulting verification conditions to a constraint
// solver:
//   - spec: rule language lexer, parser and AST
//   - symbolic: sorted symbolic expressions and domain checking
//   - state: symbolic contract storage, environments, ghosts and hooks
//   - contract: the contract-model boundary and a built-in ERC20 model
//   - solver: constraint satisfiability with counterexample models
//   - engine: rule execution, invariant induction and verdict reporting
package tenet

import (
	"github.com/blang/semver/v4"
)

var Version = semver.MustParse("0.2.0")

// Package contract defines the symbolic contract model a verification
// run targets, together with the built-in ERC20 token model.
//
// A Model exposes its methods as symbolic transformers: Apply consumes
// a state and symbolic arguments and produces a return value plus the
// path condition under which the call reverts. Writes performed by
// Apply are revert-guarded, so callers decide whether to assume the
// non-reverting path or to keep both.
package contract

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tenet-verify/tenet/state"
	"github.com/tenet-verify/tenet/symbolic"
)

// Param is one method parameter.
type Param struct {
	Name string
	Sort symbolic.Sort
}

// Outcome is the symbolic result of applying a method.
type Outcome struct {
	Ret    symbolic.Expr // nil for void methods
	Revert symbolic.Expr // Bool condition under which the call reverts
}

// Method is one externally callable contract method.
type Method struct {
	Name    string
	Params  []Param
	Ret     symbolic.Sort // Invalid for void
	EnvFree bool
	View    bool
	Apply   func(st *state.State, env state.Env, args []symbolic.Expr) (Outcome, error)
}

// Sig returns the canonical ABI signature, e.g. "transfer(address,uint256)".
func (m *Method) Sig() string {
	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(abiType(p.Sort))
	}
	b.WriteByte(')')
	return b.String()
}

// Selector returns the 4-byte ABI selector of the method.
func (m *Method) Selector() [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(m.Sig()))[:4])
	return sel
}

// SelectorHex renders the selector as 0x-prefixed hex.
func (m *Method) SelectorHex() string {
	sel := m.Selector()
	return hexutil.Encode(sel[:])
}

// SelectorWord returns the selector as an integer, the form selector
// comparisons in rules evaluate against.
func (m *Method) SelectorWord() *big.Int {
	sel := m.Selector()
	return new(big.Int).SetBytes(sel[:])
}

func abiType(s symbolic.Sort) string {
	switch s {
	case symbolic.Address:
		return "address"
	case symbolic.Uint256:
		return "uint256"
	case symbolic.Bool:
		return "bool"
	}
	return s.String()
}

// Model is a symbolic contract under verification.
type Model interface {
	Name() string

	// Methods returns the external methods in declaration order.
	Methods() []*Method
	MethodByName(name string) (*Method, bool)

	// NewState returns a state with declared storage and fully
	// symbolic content, the havoc pre-state of rule execution.
	NewState(vars *symbolic.Vars) *state.State

	// NewZeroState returns a state with declared storage holding all
	// zeroes, the pre-deployment state constructor runs against.
	NewZeroState(vars *symbolic.Vars) *state.State

	// Init runs the constructor against st. Storage writes go through
	// the hooked write path so ghost instrumentation observes them.
	Init(st *state.State, env state.Env) error
}

package engine

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tenet-verify/tenet/solver"
	"github.com/tenet-verify/tenet/state"
	"github.com/tenet-verify/tenet/symbolic"
)

// renderValue formats a witness value for its sort. Addresses render as
// checksummed hex, wide words as hex, everything else as decimal.
func renderValue(v *big.Int, s symbolic.Sort) string {
	switch s {
	case symbolic.Bool:
		if v.Sign() != 0 {
			return "true"
		}
		return "false"
	case symbolic.Address:
		return common.BigToAddress(v).Hex()
	case symbolic.Uint256:
		if v.BitLen() > 64 {
			if u, overflow := uint256.FromBig(v); !overflow {
				return u.Hex()
			}
		}
	}
	return v.String()
}

// buildCex assembles the counterexample report from a satisfying model:
// the falsifying assignment for every symbol of the formula, the storage
// cells the model pinned down, and the session trace.
func buildCex(constraints []symbolic.Expr, m *solver.Model, tr *state.Trace) *Counterexample {
	cex := &Counterexample{}
	seen := map[int]bool{}
	for _, c := range constraints {
		for _, s := range symbolic.Syms(c) {
			if seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			cex.Bindings = append(cex.Bindings, Binding{
				Name:  s.Name,
				Value: renderValue(m.Value(s), s.S),
			})
		}
	}
	cells := make([]string, 0, len(m.Selects))
	for k := range m.Selects {
		cells = append(cells, k)
	}
	sort.Strings(cells)
	for _, k := range cells {
		cex.Bindings = append(cex.Bindings, Binding{Name: k, Value: m.Selects[k].String()})
	}
	if tr != nil {
		for _, r := range tr.Records() {
			cex.Trace = append(cex.Trace, r.String())
		}
	}
	return cex
}

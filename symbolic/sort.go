package symbolic

import (
	"fmt"
	"math/big"
)

// Sort identifies the value domain of a symbolic expression. The bounded
// sorts carry a fixed bit width; Mathint is the unbounded integer domain
// used for ghost bookkeeping and must be explicitly narrowed before it can
// be compared to a bounded value.
type Sort uint8

const (
	Invalid Sort = iota
	Bool
	Uint256
	Address
	Mathint
)

var sortNames = [...]string{
	Invalid: "invalid",
	Bool:    "bool",
	Uint256: "uint256",
	Address: "address",
	Mathint: "mathint",
}

func (s Sort) String() string {
	if int(s) < len(sortNames) {
		return sortNames[s]
	}
	return fmt.Sprintf("Sort(%d)", uint8(s))
}

// Bounded reports whether the sort has a fixed bit width.
func (s Sort) Bounded() bool {
	return s == Uint256 || s == Address
}

// Numeric reports whether values of the sort are integers.
func (s Sort) Numeric() bool {
	return s == Uint256 || s == Address || s == Mathint
}

var (
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	maxUint160 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))
)

// Max returns the largest value representable in a bounded sort.
// It panics for unbounded sorts.
func (s Sort) Max() *big.Int {
	switch s {
	case Uint256:
		return maxUint256
	case Address:
		return maxUint160
	default:
		panic("symbolic: Max on unbounded sort " + s.String())
	}
}

// InRange reports whether v fits the sort's domain.
func (s Sort) InRange(v *big.Int) bool {
	switch s {
	case Bool:
		return v.Sign() >= 0 && v.Cmp(big.NewInt(1)) <= 0
	case Mathint:
		return true
	case Uint256, Address:
		return v.Sign() >= 0 && v.Cmp(s.Max()) <= 0
	default:
		return false
	}
}

// SortByName maps a rule-language type name to its sort.
func SortByName(name string) (Sort, bool) {
	switch name {
	case "bool":
		return Bool, true
	case "uint256", "uint":
		return Uint256, true
	case "address":
		return Address, true
	case "mathint":
		return Mathint, true
	default:
		return Invalid, false
	}
}

// TypeError is returned when an operation mixes incompatible domains,
// e.g. comparing a mathint ghost accumulator to a bounded on-chain value
// without an explicit narrowing step.
type TypeError struct {
	Op          string
	Left, Right Sort
}

func (e *TypeError) Error() string {
	if e.Right == Invalid {
		return fmt.Sprintf("type error: %s not defined on %s", e.Op, e.Left)
	}
	return fmt.Sprintf("type error: %s not defined on (%s, %s); narrow or widen explicitly", e.Op, e.Left, e.Right)
}

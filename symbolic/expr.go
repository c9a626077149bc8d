// Package symbolic implements the sorted expression tree the engine
// reasons about: constants, fresh symbols, arithmetic and boolean
// connectives, if-then-else terms and reads of symbolic mappings.
//
// Expressions are immutable once built. Construction goes through the
// smart constructors in build.go, which fold constants and enforce the
// domain rules (mathint never silently mixes with bounded sorts).
package symbolic

import (
	"fmt"
	"math/big"
	"strings"
)

// Expr represents a symbolic expression.
type Expr interface {
	Sort() Sort
	fmt.Stringer
	expr()
}

func (*Const) expr()  {}
func (*Sym) expr()    {}
func (*Binary) expr() {}
func (*Not) expr()    {}
func (*Ite) expr()    {}
func (*Select) expr() {}
func (*Cast) expr()   {}

// Const is a concrete value of a given sort.
type Const struct {
	Value *big.Int
	S     Sort
}

func (c *Const) Sort() Sort { return c.S }
func (c *Const) String() string {
	if c.S == Bool {
		if c.Value.Sign() == 0 {
			return "false"
		}
		return "true"
	}
	return c.Value.String()
}

// Sym is a fresh symbolic variable. IDs are unique within one Vars pool
// (one verification session).
type Sym struct {
	Name string
	ID   int
	S    Sort
}

func (s *Sym) Sort() Sort     { return s.S }
func (s *Sym) String() string { return s.Name }

// Op enumerates binary operators. Comparisons yield Bool; the rest yield
// the operand sort.
type Op uint8

const (
	Add Op = iota
	Sub
	Mul
	Div
	Eq
	Neq
	Lt
	Le
	And
	Or
	Implies
	Iff
)

var opNames = [...]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/",
	Eq: "==", Neq: "!=", Lt: "<", Le: "<=",
	And: "&&", Or: "||", Implies: "=>", Iff: "<=>",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

// IsCompare reports whether op is a comparison operator.
func (op Op) IsCompare() bool { return op >= Eq && op <= Le }

// IsLogic reports whether op is a boolean connective.
func (op Op) IsLogic() bool { return op >= And }

// IsArith reports whether op is an arithmetic operator.
func (op Op) IsArith() bool { return op <= Div }

// Binary is a binary operation over two expressions of compatible sorts.
type Binary struct {
	Op   Op
	L, R Expr
}

func (b *Binary) Sort() Sort {
	if b.Op.IsCompare() || b.Op.IsLogic() {
		return Bool
	}
	return b.L.Sort()
}

func (b *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.L, b.Op, b.R)
}

// Not is boolean negation.
type Not struct {
	X Expr
}

func (n *Not) Sort() Sort     { return Bool }
func (n *Not) String() string { return fmt.Sprintf("!%s", n.X) }

// Ite is an if-then-else term; Then and Else share a sort.
type Ite struct {
	Cond, Then, Else Expr
}

func (i *Ite) Sort() Sort { return i.Then.Sort() }
func (i *Ite) String() string {
	return fmt.Sprintf("(%s ? %s : %s)", i.Cond, i.Then, i.Else)
}

// Select reads the initial (pre-trace) content of a symbolic mapping at a
// key tuple. Writes performed during execution are layered on top of
// Select terms as Ite chains by the state model, so two Selects with equal
// keys denote the same unknown.
type Select struct {
	Map string
	Key []Expr
	S   Sort
}

func (s *Select) Sort() Sort { return s.S }
func (s *Select) String() string {
	keys := make([]string, len(s.Key))
	for i, k := range s.Key {
		keys[i] = k.String()
	}
	return fmt.Sprintf("%s[%s]", s.Map, strings.Join(keys, "]["))
}

// Cast converts between numeric domains. Widening (bounded → mathint) is
// always exact; narrowing carries a proof obligation added by the caller.
type Cast struct {
	X Expr
	S Sort
}

func (c *Cast) Sort() Sort     { return c.S }
func (c *Cast) String() string { return fmt.Sprintf("%s(%s)", c.S, c.X) }

// Vars hands out fresh symbols with session-unique IDs.
type Vars struct {
	n int
}

func NewVars() *Vars { return &Vars{} }

// Fresh returns a new unconstrained symbol.
func (v *Vars) Fresh(name string, s Sort) *Sym {
	v.n++
	return &Sym{Name: name, ID: v.n, S: s}
}

// Count returns the number of symbols handed out.
func (v *Vars) Count() int { return v.n }

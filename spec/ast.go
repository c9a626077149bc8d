package spec

import "math/big"

// Program is the parsed content of one specification source. Declarations
// that failed to parse or resolve are absent from the typed slices and
// reported in Errs; loading is isolated per declaration.
type Program struct {
	Methods    []MethodSig
	Ghosts     []*GhostDecl
	Hooks      []*HookDecl
	Rules      []*RuleDecl
	Invariants []*InvariantDecl
	Functions  []*FunctionDecl
	Errs       []*Error
}

// Method returns the declared method signature with the given name.
func (p *Program) Method(name string) (MethodSig, bool) {
	for _, m := range p.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return MethodSig{}, false
}

// Ghost returns the declared ghost variable with the given name.
func (p *Program) Ghost(name string) (*GhostDecl, bool) {
	for _, g := range p.Ghosts {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

// Invariant returns the declared invariant with the given name.
func (p *Program) Invariant(name string) (*InvariantDecl, bool) {
	for _, inv := range p.Invariants {
		if inv.Name == name {
			return inv, true
		}
	}
	return nil, false
}

// Function returns the declared helper function with the given name.
func (p *Program) Function(name string) (*FunctionDecl, bool) {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}

// MethodSig is one entry of the methods{} block.
type MethodSig struct {
	Name    string
	Params  []string // type names
	Returns string   // "" when the method returns nothing
	EnvFree bool
	P       Pos
}

// Sig renders the canonical signature, e.g. "transfer(address,uint256)".
func (m MethodSig) Sig() string {
	s := m.Name + "("
	for i, p := range m.Params {
		if i > 0 {
			s += ","
		}
		s += p
	}
	return s + ")"
}

// Param is a declared rule/invariant/function parameter.
type Param struct {
	Type string // sort name, or "env", "method", "calldataarg"
	Name string
	P    Pos
}

// GhostDecl declares an auxiliary verification variable with its
// init-state axiom.
type GhostDecl struct {
	Type      string
	Name      string
	InitAxiom Expr // nil when no init_state axiom was declared
	P         Pos
}

// KeyBinding is one [KEY sort name] component of a hook slot pattern.
type KeyBinding struct {
	Type string
	Name string
}

// HookDecl binds a body to storage writes matching a slot pattern.
type HookDecl struct {
	Slot    string // storage base name, e.g. "balances"
	Keys    []KeyBinding
	NewType string
	NewName string
	OldType string
	OldName string // "" when the old value is not bound
	Body    []Stmt
	P       Pos
}

// RuleDecl is a named verification obligation.
type RuleDecl struct {
	Name   string
	Params []Param
	Body   []Stmt
	P      Pos
}

// InvariantDecl is a state predicate checked inductively.
type InvariantDecl struct {
	Name   string
	Params []Param
	Pred   Expr
	P      Pos
}

// FunctionDecl is a helper dispatching to concrete methods.
type FunctionDecl struct {
	Name   string
	Params []Param
	Body   []Stmt
	P      Pos
}

// Stmt is a statement in a rule, function or hook body.
type Stmt interface {
	Position() Pos
	stmt()
}

func (*VarDecl) stmt()          {}
func (*Require) stmt()          {}
func (*RequireInvariant) stmt() {}
func (*Assert) stmt()           {}
func (*Assign) stmt()           {}
func (*ExprStmt) stmt()         {}
func (*If) stmt()               {}

// VarDecl introduces a typed local, optionally initialized. Uninitialized
// locals of value sorts are fresh symbolic values.
type VarDecl struct {
	Type string
	Name string
	Init Expr // may be nil
	P    Pos
}

func (s *VarDecl) Position() Pos { return s.P }

// Require narrows the path constraints.
type Require struct {
	Cond Expr
	P    Pos
}

func (s *Require) Position() Pos { return s.P }

// RequireInvariant assumes a declared invariant on the current state.
type RequireInvariant struct {
	Name string
	Args []Expr
	P    Pos
}

func (s *RequireInvariant) Position() Pos { return s.P }

// Assert is a proof obligation with an optional message.
type Assert struct {
	Cond Expr
	Msg  string
	P    Pos
}

func (s *Assert) Position() Pos { return s.P }

// Assign rebinds a previously declared local or, inside hook bodies, a
// ghost variable.
type Assign struct {
	Name  string
	Value Expr
	P     Pos
}

func (s *Assign) Position() Pos { return s.P }

// ExprStmt is an expression evaluated for effect, typically a call.
type ExprStmt struct {
	X Expr
	P Pos
}

func (s *ExprStmt) Position() Pos { return s.P }

// If is conditional execution, needed for selector dispatch in helpers.
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt // may be nil
	P    Pos
}

func (s *If) Position() Pos { return s.P }

// Expr is an expression node.
type Expr interface {
	Position() Pos
	exprNode()
}

func (*Ident) exprNode()   {}
func (*IntLit) exprNode()  {}
func (*BoolLit) exprNode() {}
func (*Call) exprNode()    {}
func (*Member) exprNode()  {}
func (*Binary) exprNode()  {}
func (*Unary) exprNode()   {}
func (*Cond) exprNode()    {}

// Ident references a parameter, local, ghost or builtin.
type Ident struct {
	Name string
	P    Pos
}

func (e *Ident) Position() Pos { return e.P }

// IntLit is an integer literal (decimal or 0x hex).
type IntLit struct {
	Value *big.Int
	P     Pos
}

func (e *IntLit) Position() Pos { return e.P }

// BoolLit is true or false.
type BoolLit struct {
	Value bool
	P     Pos
}

func (e *BoolLit) Position() Pos { return e.P }

// Call invokes a contract method, a method-typed parameter, a helper
// function or a builtin. WithRevert marks the f@withrevert(...) form.
type Call struct {
	Name       string
	WithRevert bool
	Args       []Expr
	P          Pos
}

func (e *Call) Position() Pos { return e.P }

// Member is field access, e.g. e.msg.sender or f.selector.
type Member struct {
	X   Expr
	Sel string
	P   Pos
}

func (e *Member) Position() Pos { return e.P }

// Binary is a binary operation; Op is the source operator text.
type Binary struct {
	Op   string
	L, R Expr
	P    Pos
}

func (e *Binary) Position() Pos { return e.P }

// Unary is prefix ! or -.
type Unary struct {
	Op string
	X  Expr
	P  Pos
}

func (e *Unary) Position() Pos { return e.P }

// Cond is the ternary conditional.
type Cond struct {
	C, T, F Expr
	P       Pos
}

func (e *Cond) Position() Pos { return e.P }

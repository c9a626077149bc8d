package engine

import (
	"fmt"
	"math/big"

	"github.com/tenet-verify/tenet/contract"
	"github.com/tenet-verify/tenet/spec"
	"github.com/tenet-verify/tenet/state"
	"github.com/tenet-verify/tenet/symbolic"
)

// evalError is a positioned execution failure; it surfaces as an Error
// verdict on the task that hit it.
type evalError struct {
	pos spec.Pos
	msg string
}

func (e *evalError) Error() string { return fmt.Sprintf("%s: %s", e.pos, e.msg) }

func errAt(pos spec.Pos, format string, args ...any) error {
	return &evalError{pos: pos, msg: fmt.Sprintf(format, args...)}
}

// binding is one name in scope: a value, a call environment, a bound
// method or a calldata placeholder.
type binding struct {
	expr     symbolic.Expr
	env      *state.Env
	method   *contract.Method
	calldata bool
}

type scope struct {
	parent *scope
	vals   map[string]binding
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, vals: map[string]binding{}}
}

func (sc *scope) lookup(name string) (binding, bool) {
	for s := sc; s != nil; s = s.parent {
		if b, ok := s.vals[name]; ok {
			return b, true
		}
	}
	return binding{}, false
}

func (sc *scope) define(name string, b binding) { sc.vals[name] = b }

// rebind updates the defining scope of an existing name.
func (sc *scope) rebind(name string, b binding) bool {
	for s := sc; s != nil; s = s.parent {
		if _, ok := s.vals[name]; ok {
			s.vals[name] = b
			return true
		}
	}
	return false
}

// obligation is one assertion to discharge. pathLen is the number of
// assumptions accumulated when the assertion was made; it is checked
// against that prefix only, so a later require cannot weaken it.
type obligation struct {
	cond    symbolic.Expr
	msg     string
	pos     spec.Pos
	pathLen int
}

// session executes one verification task symbolically: it accumulates
// path assumptions and proof obligations over a private state.
type session struct {
	prog  *spec.Program
	model contract.Model
	vars  *symbolic.Vars
	st    *state.State

	path        []symbolic.Expr
	obligations []obligation

	lastReverted symbolic.Expr

	// guard is the accumulated condition of enclosing symbolic if
	// branches; nil at top level. Assumptions and assertions made
	// under a guard become implications.
	guard   symbolic.Expr
	ifDepth int
}

func newSession(prog *spec.Program, model contract.Model, st *state.State, vars *symbolic.Vars) *session {
	return &session{
		prog:         prog,
		model:        model,
		vars:         vars,
		st:           st,
		lastReverted: symbolic.False,
	}
}

// installHooks compiles the declared storage hooks onto the session
// state.
func (s *session) installHooks() {
	for _, h := range s.prog.Hooks {
		h := h
		s.st.RegisterHook(state.Hook{Slot: h.Slot, Fn: func(_ *state.State, keys []symbolic.Expr, old, new symbolic.Expr) error {
			return s.fireHook(h, keys, old, new)
		}})
	}
}

func (s *session) fireHook(h *spec.HookDecl, keys []symbolic.Expr, old, new symbolic.Expr) error {
	if len(keys) != len(h.Keys) {
		return errAt(h.P, "hook on %s binds %d keys, write has %d", h.Slot, len(h.Keys), len(keys))
	}
	sc := newScope(nil)
	for i, kb := range h.Keys {
		sc.define(kb.Name, binding{expr: keys[i]})
	}
	sc.define(h.NewName, binding{expr: new})
	if h.OldName != "" {
		sc.define(h.OldName, binding{expr: old})
	}
	return s.execBlock(h.Body, sc)
}

// initGhosts declares every ghost as a fresh symbol. With axioms
// enabled the init_state axioms join the path, modelling pre-deployment
// ghost state; havoc'd sessions leave ghosts unconstrained.
func (s *session) initGhosts(axioms bool) error {
	for _, g := range s.prog.Ghosts {
		srt, ok := symbolic.SortByName(g.Type)
		if !ok {
			return errAt(g.P, "ghost %s: unknown type %s", g.Name, g.Type)
		}
		s.st.InitGhost(g.Name, s.vars.Fresh(g.Name, srt))
		if axioms && g.InitAxiom != nil {
			cond, err := s.evalBool(g.InitAxiom, newScope(nil))
			if err != nil {
				return err
			}
			s.assume(cond)
		}
	}
	return nil
}

// assume narrows the path; under a symbolic-if guard the assumption
// weakens into an implication.
func (s *session) assume(cond symbolic.Expr) {
	if s.guard != nil {
		if g, err := symbolic.ImpliesExpr(s.guard, cond); err == nil {
			cond = g
		}
	}
	s.path = append(s.path, cond)
}

func (s *session) oblige(cond symbolic.Expr, msg string, pos spec.Pos) {
	if s.guard != nil {
		if g, err := symbolic.ImpliesExpr(s.guard, cond); err == nil {
			cond = g
		}
	}
	s.obligations = append(s.obligations, obligation{cond: cond, msg: msg, pos: pos, pathLen: len(s.path)})
}

func (s *session) execBlock(stmts []spec.Stmt, sc *scope) error {
	for _, st := range stmts {
		if err := s.execStmt(st, sc); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) execStmt(stmt spec.Stmt, sc *scope) error {
	switch stmt := stmt.(type) {
	case *spec.VarDecl:
		return s.execVarDecl(stmt, sc)

	case *spec.Require:
		cond, err := s.evalBool(stmt.Cond, sc)
		if err != nil {
			return err
		}
		s.assume(cond)
		s.st.Trace().Note(state.OpAssume, "require", cond.String())
		return nil

	case *spec.RequireInvariant:
		inv, ok := s.prog.Invariant(stmt.Name)
		if !ok {
			return errAt(stmt.P, "requireInvariant %s: no such invariant", stmt.Name)
		}
		if len(stmt.Args) != len(inv.Params) {
			return errAt(stmt.P, "requireInvariant %s: want %d arguments, got %d", stmt.Name, len(inv.Params), len(stmt.Args))
		}
		binds := make([]binding, len(stmt.Args))
		for i, a := range stmt.Args {
			if id, ok := a.(*spec.Ident); ok {
				if b, found := sc.lookup(id.Name); found && b.env != nil {
					binds[i] = b
					continue
				}
			}
			v, err := s.evalExpr(a, sc)
			if err != nil {
				return err
			}
			binds[i] = binding{expr: v}
		}
		cond, err := s.evalInvariant(inv, binds)
		if err != nil {
			return err
		}
		s.assume(cond)
		return nil

	case *spec.Assert:
		cond, err := s.evalBool(stmt.Cond, sc)
		if err != nil {
			return err
		}
		s.oblige(cond, stmt.Msg, stmt.P)
		return nil

	case *spec.Assign:
		if _, isGhost := s.st.Ghost(stmt.Name); isGhost {
			v, err := s.evalExpr(stmt.Value, sc)
			if err != nil {
				return err
			}
			g, _ := s.prog.Ghost(stmt.Name)
			srt, _ := symbolic.SortByName(g.Type)
			v, err = coerceTo(v, srt, stmt.P)
			if err != nil {
				return err
			}
			if err := s.st.SetGhost(stmt.Name, v); err != nil {
				return errAt(stmt.P, "%v", err)
			}
			return nil
		}
		v, err := s.evalExpr(stmt.Value, sc)
		if err != nil {
			return err
		}
		if old, ok := sc.lookup(stmt.Name); ok && old.expr != nil {
			v, err = coerceTo(v, old.expr.Sort(), stmt.P)
			if err != nil {
				return err
			}
			sc.rebind(stmt.Name, binding{expr: v})
			return nil
		}
		return errAt(stmt.P, "assignment to undeclared %s", stmt.Name)

	case *spec.ExprStmt:
		_, err := s.evalExpr(stmt.X, sc)
		return err

	case *spec.If:
		return s.execIf(stmt, sc)
	}
	return errAt(stmt.Position(), "unsupported statement")
}

func (s *session) execVarDecl(d *spec.VarDecl, sc *scope) error {
	switch d.Type {
	case "env":
		e := state.NewEnv(s.vars, d.Name)
		sc.define(d.Name, binding{env: &e})
		return nil
	case "method":
		return errAt(d.P, "method variables are only valid as rule parameters")
	case "calldataarg":
		sc.define(d.Name, binding{calldata: true})
		return nil
	}
	srt, ok := symbolic.SortByName(d.Type)
	if !ok {
		return errAt(d.P, "unknown type %s", d.Type)
	}
	if d.Init == nil {
		sc.define(d.Name, binding{expr: s.vars.Fresh(d.Name, srt)})
		return nil
	}
	v, err := s.evalExpr(d.Init, sc)
	if err != nil {
		return err
	}
	v, err = coerceTo(v, srt, d.P)
	if err != nil {
		return err
	}
	sc.define(d.Name, binding{expr: v})
	return nil
}

// execIf takes a concrete branch when the condition folds to a
// constant. Symbolic conditions execute both branches under a guard;
// storage writes are rejected there since the state cannot fork.
func (s *session) execIf(stmt *spec.If, sc *scope) error {
	cond, err := s.evalBool(stmt.Cond, sc)
	if err != nil {
		return err
	}
	if symbolic.IsTrue(cond) {
		return s.execBlock(stmt.Then, newScope(sc))
	}
	if symbolic.IsFalse(cond) {
		if stmt.Else != nil {
			return s.execBlock(stmt.Else, newScope(sc))
		}
		return nil
	}

	run := func(guard symbolic.Expr, body []spec.Stmt) error {
		saved := s.guard
		if saved != nil {
			guard, err = symbolic.AndExpr(saved, guard)
			if err != nil {
				return errAt(stmt.P, "%v", err)
			}
		}
		s.guard = guard
		s.ifDepth++
		defer func() { s.guard = saved; s.ifDepth-- }()
		return s.execBlock(body, newScope(sc))
	}
	if err := run(cond, stmt.Then); err != nil {
		return err
	}
	if stmt.Else != nil {
		neg, err := symbolic.NotExpr(cond)
		if err != nil {
			return errAt(stmt.P, "%v", err)
		}
		return run(neg, stmt.Else)
	}
	return nil
}

func (s *session) evalBool(e spec.Expr, sc *scope) (symbolic.Expr, error) {
	v, err := s.evalExpr(e, sc)
	if err != nil {
		return nil, err
	}
	if v == nil || v.Sort() != symbolic.Bool {
		return nil, errAt(e.Position(), "expected a boolean condition")
	}
	return v, nil
}

func (s *session) evalExpr(e spec.Expr, sc *scope) (symbolic.Expr, error) {
	switch e := e.(type) {
	case *spec.IntLit:
		// Numerals carry the unbounded sort and adapt to the other
		// operand at use sites.
		return &symbolic.Const{Value: new(big.Int).Set(e.Value), S: symbolic.Mathint}, nil

	case *spec.BoolLit:
		return symbolic.NewBool(e.Value), nil

	case *spec.Ident:
		return s.evalIdent(e, sc)

	case *spec.Member:
		return s.evalMember(e, sc)

	case *spec.Unary:
		x, err := s.evalExpr(e.X, sc)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case "!":
			v, err := symbolic.NotExpr(x)
			if err != nil {
				return nil, errAt(e.P, "%v", err)
			}
			return v, nil
		case "-":
			if x.Sort() != symbolic.Mathint {
				return nil, errAt(e.P, "unary minus needs a mathint operand, got %s", x.Sort())
			}
			v, err := symbolic.SubExpr(symbolic.NewInt(0, symbolic.Mathint), x)
			if err != nil {
				return nil, errAt(e.P, "%v", err)
			}
			return v, nil
		}
		return nil, errAt(e.P, "unsupported operator %s", e.Op)

	case *spec.Binary:
		return s.evalBinary(e, sc)

	case *spec.Cond:
		c, err := s.evalBool(e.C, sc)
		if err != nil {
			return nil, err
		}
		t, err := s.evalExpr(e.T, sc)
		if err != nil {
			return nil, err
		}
		f, err := s.evalExpr(e.F, sc)
		if err != nil {
			return nil, err
		}
		t, f = adaptPair(t, f)
		v, err := symbolic.IteExpr(c, t, f)
		if err != nil {
			return nil, errAt(e.P, "%v", err)
		}
		return v, nil

	case *spec.Call:
		return s.evalCall(e, sc)
	}
	return nil, errAt(e.Position(), "unsupported expression")
}

func (s *session) evalIdent(e *spec.Ident, sc *scope) (symbolic.Expr, error) {
	if b, ok := sc.lookup(e.Name); ok {
		if b.expr != nil {
			return b.expr, nil
		}
		return nil, errAt(e.P, "%s has no value in this position", e.Name)
	}
	if g, ok := s.st.Ghost(e.Name); ok {
		return g, nil
	}
	switch e.Name {
	case "lastReverted":
		return s.lastReverted, nil
	case "max_uint256":
		return &symbolic.Const{Value: symbolic.Uint256.Max(), S: symbolic.Mathint}, nil
	case "max_address":
		return &symbolic.Const{Value: symbolic.Address.Max(), S: symbolic.Mathint}, nil
	}
	return nil, errAt(e.P, "undefined identifier %s", e.Name)
}

func (s *session) evalMember(e *spec.Member, sc *scope) (symbolic.Expr, error) {
	// e.msg.sender parses as (e.msg).sender; resolve the env at the
	// root and join the selector path.
	if inner, ok := e.X.(*spec.Member); ok {
		if root, ok := inner.X.(*spec.Ident); ok {
			if b, found := sc.lookup(root.Name); found && b.env != nil {
				if v, ok := b.env.Field(inner.Sel + "." + e.Sel); ok {
					return v, nil
				}
				return nil, errAt(e.P, "environment has no field %s.%s", inner.Sel, e.Sel)
			}
		}
	}
	if root, ok := e.X.(*spec.Ident); ok {
		var m *contract.Method
		if b, found := sc.lookup(root.Name); found && b.method != nil {
			m = b.method
		} else if mm, found := s.model.MethodByName(root.Name); found {
			m = mm
		}
		if m != nil {
			switch e.Sel {
			case "selector":
				return &symbolic.Const{Value: m.SelectorWord(), S: symbolic.Mathint}, nil
			case "isView":
				return symbolic.NewBool(m.View), nil
			}
		}
	}
	return nil, errAt(e.P, "unsupported member access .%s", e.Sel)
}

var binOps = map[string]func(l, r symbolic.Expr) (symbolic.Expr, error){
	"+":   symbolic.AddExpr,
	"-":   symbolic.SubExpr,
	"*":   symbolic.MulExpr,
	"/":   symbolic.DivExpr,
	"==":  symbolic.EqExpr,
	"!=":  symbolic.NeqExpr,
	"<":   symbolic.LtExpr,
	"<=":  symbolic.LeExpr,
	">":   symbolic.GtExpr,
	">=":  symbolic.GeExpr,
	"&&":  symbolic.AndExpr,
	"||":  symbolic.OrExpr,
	"=>":  symbolic.ImpliesExpr,
	"<=>": symbolic.IffExpr,
}

func (s *session) evalBinary(e *spec.Binary, sc *scope) (symbolic.Expr, error) {
	l, err := s.evalExpr(e.L, sc)
	if err != nil {
		return nil, err
	}
	r, err := s.evalExpr(e.R, sc)
	if err != nil {
		return nil, err
	}
	op, ok := binOps[e.Op]
	if !ok {
		return nil, errAt(e.P, "unsupported operator %s", e.Op)
	}
	l, r = adaptPair(l, r)
	v, err := op(l, r)
	if err != nil {
		return nil, errAt(e.P, "%v", err)
	}
	return v, nil
}

// adaptPair retypes a numeral to the other operand's sort when the
// value fits; symbolic mixing remains a type error downstream.
func adaptPair(l, r symbolic.Expr) (symbolic.Expr, symbolic.Expr) {
	if v, ok := adaptNumeral(l, r.Sort()); ok {
		return v, r
	}
	if v, ok := adaptNumeral(r, l.Sort()); ok {
		return l, v
	}
	return l, r
}

func adaptNumeral(e symbolic.Expr, target symbolic.Sort) (symbolic.Expr, bool) {
	c, ok := e.(*symbolic.Const)
	if !ok || c.S != symbolic.Mathint || target == symbolic.Mathint || !target.Numeric() {
		return nil, false
	}
	if !target.InRange(c.Value) {
		return nil, false
	}
	return &symbolic.Const{Value: c.Value, S: target}, true
}

func coerceTo(v symbolic.Expr, target symbolic.Sort, pos spec.Pos) (symbolic.Expr, error) {
	if v.Sort() == target {
		return v, nil
	}
	if adapted, ok := adaptNumeral(v, target); ok {
		return adapted, nil
	}
	return nil, errAt(pos, "cannot use %s value as %s", v.Sort(), target)
}

func (s *session) evalCall(e *spec.Call, sc *scope) (symbolic.Expr, error) {
	switch e.Name {
	case "to_mathint":
		if len(e.Args) != 1 {
			return nil, errAt(e.P, "to_mathint takes one argument")
		}
		x, err := s.evalExpr(e.Args[0], sc)
		if err != nil {
			return nil, err
		}
		v, err := symbolic.ToMathint(x)
		if err != nil {
			return nil, errAt(e.P, "%v", err)
		}
		return v, nil

	case "assert_uint256":
		if len(e.Args) != 1 {
			return nil, errAt(e.P, "assert_uint256 takes one argument")
		}
		x, err := s.evalExpr(e.Args[0], sc)
		if err != nil {
			return nil, err
		}
		narrowed, inRange, err := symbolic.NarrowUint256(x)
		if err != nil {
			return nil, errAt(e.P, "%v", err)
		}
		if !symbolic.IsTrue(inRange) {
			s.oblige(inRange, "assert_uint256 out of range", e.P)
		}
		return narrowed, nil
	}

	// Method-typed rule parameter.
	if b, ok := sc.lookup(e.Name); ok {
		if b.method == nil {
			return nil, errAt(e.P, "%s is not callable", e.Name)
		}
		return s.callMethod(b.method, e, sc)
	}
	// Helper function: inlined, no return value.
	if fn, ok := s.prog.Function(e.Name); ok {
		if e.WithRevert {
			return nil, errAt(e.P, "@withrevert applies to contract methods, not helper functions")
		}
		return nil, s.inlineFunction(fn, e, sc)
	}
	if m, ok := s.model.MethodByName(e.Name); ok {
		return s.callMethod(m, e, sc)
	}
	return nil, errAt(e.P, "unknown function %s", e.Name)
}

func (s *session) inlineFunction(fn *spec.FunctionDecl, call *spec.Call, sc *scope) error {
	if len(call.Args) != len(fn.Params) {
		return errAt(call.P, "%s: want %d arguments, got %d", fn.Name, len(fn.Params), len(call.Args))
	}
	inner := newScope(nil)
	for i, p := range fn.Params {
		b, err := s.bindArg(p, call.Args[i], sc)
		if err != nil {
			return err
		}
		inner.define(p.Name, b)
	}
	return s.execBlock(fn.Body, inner)
}

func (s *session) bindArg(p spec.Param, arg spec.Expr, sc *scope) (binding, error) {
	switch p.Type {
	case "env", "method", "calldataarg":
		id, ok := arg.(*spec.Ident)
		if !ok {
			return binding{}, errAt(arg.Position(), "%s argument must be a variable", p.Type)
		}
		b, found := sc.lookup(id.Name)
		if !found {
			return binding{}, errAt(arg.Position(), "undefined identifier %s", id.Name)
		}
		switch p.Type {
		case "env":
			if b.env == nil {
				return binding{}, errAt(arg.Position(), "%s is not an env", id.Name)
			}
		case "method":
			if b.method == nil {
				return binding{}, errAt(arg.Position(), "%s is not a method", id.Name)
			}
		case "calldataarg":
			if !b.calldata {
				return binding{}, errAt(arg.Position(), "%s is not a calldataarg", id.Name)
			}
		}
		return b, nil
	}
	srt, ok := symbolic.SortByName(p.Type)
	if !ok {
		return binding{}, errAt(p.P, "unknown type %s", p.Type)
	}
	v, err := s.evalExpr(arg, sc)
	if err != nil {
		return binding{}, err
	}
	v, err = coerceTo(v, srt, arg.Position())
	if err != nil {
		return binding{}, err
	}
	return binding{expr: v}, nil
}

// callMethod applies a contract method. Plain calls assume the
// non-reverting path; @withrevert keeps both and rebinds lastReverted.
func (s *session) callMethod(m *contract.Method, call *spec.Call, sc *scope) (symbolic.Expr, error) {
	if s.ifDepth > 0 && !m.View {
		return nil, errAt(call.P, "cannot call %s under a symbolic condition", m.Name)
	}

	args := call.Args
	env := state.Env{}
	haveEnv := false
	if len(args) > 0 {
		if id, ok := args[0].(*spec.Ident); ok {
			if b, found := sc.lookup(id.Name); found && b.env != nil {
				env = *b.env
				args = args[1:]
				haveEnv = true
			}
		}
	}
	if !m.EnvFree && !haveEnv {
		return nil, errAt(call.P, "%s needs an env argument", m.Name)
	}

	vals, err := s.methodArgs(m, call, args, sc)
	if err != nil {
		return nil, err
	}

	s.st.Trace().Note(state.OpCall, m.Name, renderCall(m, call.WithRevert))
	out, err := m.Apply(s.st, env, vals)
	if err != nil {
		return nil, errAt(call.P, "%s: %v", m.Name, err)
	}
	if call.WithRevert {
		s.lastReverted = out.Revert
	} else {
		ok, err := symbolic.NotExpr(out.Revert)
		if err != nil {
			return nil, errAt(call.P, "%v", err)
		}
		s.assume(ok)
		s.lastReverted = symbolic.False
	}
	return out.Ret, nil
}

func (s *session) methodArgs(m *contract.Method, call *spec.Call, args []spec.Expr, sc *scope) ([]symbolic.Expr, error) {
	// A single calldataarg stands for the whole argument list.
	if len(args) == 1 {
		if id, ok := args[0].(*spec.Ident); ok {
			if b, found := sc.lookup(id.Name); found && b.calldata {
				vals := make([]symbolic.Expr, len(m.Params))
				for i, p := range m.Params {
					vals[i] = s.vars.Fresh(id.Name+"."+p.Name, p.Sort)
				}
				return vals, nil
			}
		}
	}
	if len(args) != len(m.Params) {
		return nil, errAt(call.P, "%s: want %d arguments, got %d", m.Name, len(m.Params), len(args))
	}
	vals := make([]symbolic.Expr, len(args))
	for i, a := range args {
		v, err := s.evalExpr(a, sc)
		if err != nil {
			return nil, err
		}
		v, err = coerceTo(v, m.Params[i].Sort, a.Position())
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func renderCall(m *contract.Method, withRevert bool) string {
	if withRevert {
		return m.Sig() + " @withrevert"
	}
	return m.Sig()
}

// evalInvariant evaluates an invariant predicate with its parameters
// bound to the given bindings; missing ones get fresh instantiations.
// Callers relating two evaluations (the induction hypothesis and its
// conclusion) pass the same bindings to both.
func (s *session) evalInvariant(inv *spec.InvariantDecl, binds []binding) (symbolic.Expr, error) {
	sc := newScope(nil)
	for i, p := range inv.Params {
		if p.Type == "env" {
			if i < len(binds) && binds[i].env != nil {
				sc.define(p.Name, binds[i])
				continue
			}
			e := state.NewEnv(s.vars, p.Name)
			sc.define(p.Name, binding{env: &e})
			continue
		}
		srt, ok := symbolic.SortByName(p.Type)
		if !ok {
			return nil, errAt(p.P, "unknown type %s", p.Type)
		}
		var v symbolic.Expr
		if i < len(binds) && binds[i].expr != nil {
			var err error
			v, err = coerceTo(binds[i].expr, srt, p.P)
			if err != nil {
				return nil, err
			}
		} else {
			v = s.vars.Fresh(p.Name, srt)
		}
		sc.define(p.Name, binding{expr: v})
	}
	return s.evalBool(inv.Pred, sc)
}

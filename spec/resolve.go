package spec

import "fmt"

// resolve scope-checks every declaration. A rule referencing an
// undeclared identifier (a frequent defect in hand-written spec files:
// `to` never declared, `value` vs `amount` mismatches) is dropped from
// the program and reported, never repaired. Other declarations are
// unaffected.
func resolve(prog *Program) {
	builtins := map[string]bool{
		"lastReverted":   true,
		"max_uint256":    true,
		"max_address":    true,
		"to_mathint":     true,
		"assert_uint256": true,
	}
	global := func(name string) bool {
		if builtins[name] {
			return true
		}
		if _, ok := prog.Method(name); ok {
			return true
		}
		if _, ok := prog.Function(name); ok {
			return true
		}
		for _, g := range prog.Ghosts {
			if g.Name == name {
				return true
			}
		}
		return false
	}

	var kept []*RuleDecl
	for _, r := range prog.Rules {
		if err := checkBody("rule "+r.Name, r.Params, r.Body, prog, global); err != nil {
			prog.Errs = append(prog.Errs, err)
			continue
		}
		kept = append(kept, r)
	}
	prog.Rules = kept

	var keptFns []*FunctionDecl
	for _, fn := range prog.Functions {
		if err := checkBody("function "+fn.Name, fn.Params, fn.Body, prog, global); err != nil {
			prog.Errs = append(prog.Errs, err)
			continue
		}
		keptFns = append(keptFns, fn)
	}
	prog.Functions = keptFns

	var keptInvs []*InvariantDecl
	for _, inv := range prog.Invariants {
		scope := newScope(inv.Params)
		if err := checkExpr("invariant "+inv.Name, inv.Pred, scope, global); err != nil {
			prog.Errs = append(prog.Errs, err)
			continue
		}
		keptInvs = append(keptInvs, inv)
	}
	prog.Invariants = keptInvs

	var keptHooks []*HookDecl
	for _, h := range prog.Hooks {
		params := make([]Param, 0, len(h.Keys)+2)
		for _, k := range h.Keys {
			params = append(params, Param{Type: k.Type, Name: k.Name})
		}
		params = append(params, Param{Type: h.NewType, Name: h.NewName})
		if h.OldName != "" {
			params = append(params, Param{Type: h.OldType, Name: h.OldName})
		}
		if err := checkBody(fmt.Sprintf("hook Sstore %s", h.Slot), params, h.Body, prog, global); err != nil {
			prog.Errs = append(prog.Errs, err)
			continue
		}
		keptHooks = append(keptHooks, h)
	}
	prog.Hooks = keptHooks
}

type scope map[string]bool

func newScope(params []Param) scope {
	s := scope{}
	for _, p := range params {
		s[p.Name] = true
	}
	return s
}

func checkBody(construct string, params []Param, body []Stmt, prog *Program, global func(string) bool) *Error {
	return checkStmts(construct, body, newScope(params), prog, global)
}

func checkStmts(construct string, stmts []Stmt, sc scope, prog *Program, global func(string) bool) *Error {
	for _, st := range stmts {
		switch st := st.(type) {
		case *VarDecl:
			if st.Init != nil {
				if err := checkExpr(construct, st.Init, sc, global); err != nil {
					return err
				}
			}
			if sc[st.Name] {
				return &Error{Pos: st.P, Construct: construct, Msg: fmt.Sprintf("%q redeclared", st.Name)}
			}
			sc[st.Name] = true
		case *Require:
			if err := checkExpr(construct, st.Cond, sc, global); err != nil {
				return err
			}
		case *RequireInvariant:
			if _, ok := prog.Invariant(st.Name); !ok {
				return &Error{Pos: st.P, Construct: construct, Msg: fmt.Sprintf("unknown invariant %q", st.Name)}
			}
			for _, a := range st.Args {
				if err := checkExpr(construct, a, sc, global); err != nil {
					return err
				}
			}
		case *Assert:
			if err := checkExpr(construct, st.Cond, sc, global); err != nil {
				return err
			}
		case *Assign:
			if !sc[st.Name] && !global(st.Name) {
				return &Error{Pos: st.P, Construct: construct, Msg: fmt.Sprintf("assignment to undeclared %q", st.Name)}
			}
			if err := checkExpr(construct, st.Value, sc, global); err != nil {
				return err
			}
		case *ExprStmt:
			if err := checkExpr(construct, st.X, sc, global); err != nil {
				return err
			}
		case *If:
			if err := checkExpr(construct, st.Cond, sc, global); err != nil {
				return err
			}
			// branch scopes are copies; locals do not leak out
			if err := checkStmts(construct, st.Then, cloneScope(sc), prog, global); err != nil {
				return err
			}
			if err := checkStmts(construct, st.Else, cloneScope(sc), prog, global); err != nil {
				return err
			}
		}
	}
	return nil
}

func cloneScope(sc scope) scope {
	out := make(scope, len(sc))
	for k := range sc {
		out[k] = true
	}
	return out
}

func checkExpr(construct string, e Expr, sc scope, global func(string) bool) *Error {
	switch e := e.(type) {
	case nil:
		return nil
	case *Ident:
		if !sc[e.Name] && !global(e.Name) {
			return &Error{Pos: e.P, Construct: construct, Msg: fmt.Sprintf("undeclared identifier %q", e.Name)}
		}
	case *Call:
		if !sc[e.Name] && !global(e.Name) {
			return &Error{Pos: e.P, Construct: construct, Msg: fmt.Sprintf("call of unknown %q", e.Name)}
		}
		for _, a := range e.Args {
			if err := checkExpr(construct, a, sc, global); err != nil {
				return err
			}
		}
	case *Member:
		return checkExpr(construct, e.X, sc, global)
	case *Binary:
		if err := checkExpr(construct, e.L, sc, global); err != nil {
			return err
		}
		return checkExpr(construct, e.R, sc, global)
	case *Unary:
		return checkExpr(construct, e.X, sc, global)
	case *Cond:
		if err := checkExpr(construct, e.C, sc, global); err != nil {
			return err
		}
		if err := checkExpr(construct, e.T, sc, global); err != nil {
			return err
		}
		return checkExpr(construct, e.F, sc, global)
	}
	return nil
}

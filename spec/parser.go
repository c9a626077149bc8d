package spec

import (
	"fmt"
	"math/big"
)

// Parser builds a Program from tokens. A parse error inside one
// declaration aborts only that declaration: the parser records the error,
// resynchronizes on the next top-level keyword and keeps going, so broken
// rules never block verification of their siblings.
type Parser struct {
	toks      []Token
	pos       int
	construct string
	errs      []*Error
}

// Parse lexes and parses one specification source.
func Parse(src string) (*Program, error) {
	toks, err := NewLexer(src).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	prog := p.parseProgram()
	prog.Errs = append(prog.Errs, p.errs...)
	resolve(prog)
	return prog, nil
}

type bailout struct{ err *Error }

func (p *Parser) errorf(pos Pos, format string, args ...any) {
	panic(bailout{&Error{Pos: pos, Construct: p.construct, Msg: fmt.Sprintf(format, args...)}})
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) next() Token { t := p.toks[p.pos]; p.advance(); return t }

func (p *Parser) advance() {
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
}

func (p *Parser) at(t TokenType) bool { return p.cur().Type == t }

func (p *Parser) atKeyword(kw string) bool {
	return p.cur().Type == TokenKeyword && p.cur().Value == kw
}

func (p *Parser) accept(t TokenType) bool {
	if p.at(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(t TokenType, what string) Token {
	if !p.at(t) {
		p.errorf(p.cur().Pos, "expected %s, found %q", what, p.cur().Value)
	}
	return p.next()
}

func (p *Parser) expectIdent(what string) Token {
	return p.expect(TokenIdent, what)
}

var topLevel = map[string]bool{
	"methods": true, "rule": true, "invariant": true,
	"ghost": true, "hook": true, "function": true,
}

// sync skips tokens until the next plausible top-level declaration.
func (p *Parser) sync() {
	depth := 0
	for !p.at(TokenEOF) {
		switch {
		case p.at(TokenLBrace):
			depth++
		case p.at(TokenRBrace):
			if depth > 0 {
				depth--
			}
		case p.cur().Type == TokenKeyword && topLevel[p.cur().Value] && depth == 0:
			return
		}
		p.advance()
	}
}

func (p *Parser) parseProgram() *Program {
	prog := &Program{}
	for !p.at(TokenEOF) {
		tok := p.cur()
		if tok.Type != TokenKeyword || !topLevel[tok.Value] {
			p.errs = append(p.errs, &Error{Pos: tok.Pos, Msg: fmt.Sprintf("expected declaration, found %q", tok.Value)})
			p.advance()
			p.sync()
			continue
		}
		p.parseDecl(prog, tok.Value)
	}
	return prog
}

// parseDecl parses one declaration, recovering from parse errors.
func (p *Parser) parseDecl(prog *Program, kind string) {
	defer func() {
		p.construct = ""
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			p.errs = append(p.errs, b.err)
			p.sync()
		}
	}()

	switch kind {
	case "methods":
		p.parseMethods(prog)
	case "ghost":
		prog.Ghosts = append(prog.Ghosts, p.parseGhost())
	case "hook":
		prog.Hooks = append(prog.Hooks, p.parseHook())
	case "rule":
		prog.Rules = append(prog.Rules, p.parseRule())
	case "invariant":
		prog.Invariants = append(prog.Invariants, p.parseInvariant())
	case "function":
		prog.Functions = append(prog.Functions, p.parseFunction())
	}
}

func (p *Parser) parseMethods(prog *Program) {
	p.next() // methods
	p.construct = "methods block"
	p.expect(TokenLBrace, "'{'")
	for !p.at(TokenRBrace) && !p.at(TokenEOF) {
		name := p.expectIdent("method name")
		sig := MethodSig{Name: name.Value, P: name.Pos}
		p.expect(TokenLParen, "'('")
		for !p.at(TokenRParen) {
			sig.Params = append(sig.Params, p.expectIdent("parameter type").Value)
			if !p.accept(TokenComma) {
				break
			}
		}
		p.expect(TokenRParen, "')'")
		if p.atKeyword("returns") {
			p.next()
			paren := p.accept(TokenLParen)
			sig.Returns = p.expectIdent("return type").Value
			if paren {
				p.expect(TokenRParen, "')'")
			}
		}
		if p.atKeyword("envfree") {
			p.next()
			sig.EnvFree = true
		}
		p.accept(TokenSemi)
		prog.Methods = append(prog.Methods, sig)
	}
	p.expect(TokenRBrace, "'}'")
}

func (p *Parser) parseGhost() *GhostDecl {
	kw := p.next() // ghost
	typ := p.expectIdent("ghost type")
	name := p.expectIdent("ghost name")
	p.construct = "ghost " + name.Value
	g := &GhostDecl{Type: typ.Value, Name: name.Value, P: kw.Pos}
	if p.accept(TokenSemi) {
		return g
	}
	p.expect(TokenLBrace, "'{'")
	if !p.atKeyword("init_state") {
		p.errorf(p.cur().Pos, "expected init_state axiom, found %q", p.cur().Value)
	}
	p.next()
	if !p.atKeyword("axiom") {
		p.errorf(p.cur().Pos, "expected 'axiom', found %q", p.cur().Value)
	}
	p.next()
	g.InitAxiom = p.parseExpr()
	p.accept(TokenSemi)
	p.expect(TokenRBrace, "'}'")
	return g
}

func (p *Parser) parseHook() *HookDecl {
	kw := p.next() // hook
	if !p.atKeyword("Sstore") {
		p.errorf(p.cur().Pos, "expected 'Sstore', found %q", p.cur().Value)
	}
	p.next()
	slot := p.expectIdent("storage slot name")
	p.construct = "hook Sstore " + slot.Value
	h := &HookDecl{Slot: slot.Value, P: kw.Pos}
	for p.accept(TokenLBracket) {
		if !p.atKeyword("KEY") {
			p.errorf(p.cur().Pos, "expected 'KEY', found %q", p.cur().Value)
		}
		p.next()
		kt := p.expectIdent("key type")
		kn := p.expectIdent("key name")
		h.Keys = append(h.Keys, KeyBinding{Type: kt.Value, Name: kn.Value})
		p.expect(TokenRBracket, "']'")
	}
	nt := p.expectIdent("new value type")
	nn := p.expectIdent("new value name")
	h.NewType, h.NewName = nt.Value, nn.Value
	if p.accept(TokenLParen) {
		ot := p.expectIdent("old value type")
		on := p.expectIdent("old value name")
		h.OldType, h.OldName = ot.Value, on.Value
		p.expect(TokenRParen, "')'")
	}
	h.Body = p.parseBlock()
	return h
}

func (p *Parser) parseParams() []Param {
	var params []Param
	p.expect(TokenLParen, "'('")
	for !p.at(TokenRParen) {
		typ := p.expectIdent("parameter type")
		name := p.expectIdent("parameter name")
		params = append(params, Param{Type: typ.Value, Name: name.Value, P: typ.Pos})
		if !p.accept(TokenComma) {
			break
		}
		if p.at(TokenRParen) {
			p.errorf(p.cur().Pos, "stray ',' before ')'")
		}
	}
	p.expect(TokenRParen, "')'")
	return params
}

func (p *Parser) parseRule() *RuleDecl {
	kw := p.next() // rule
	name := p.expectIdent("rule name")
	p.construct = "rule " + name.Value
	r := &RuleDecl{Name: name.Value, P: kw.Pos}
	r.Params = p.parseParams()
	r.Body = p.parseBlock()
	return r
}

func (p *Parser) parseInvariant() *InvariantDecl {
	kw := p.next() // invariant
	name := p.expectIdent("invariant name")
	p.construct = "invariant " + name.Value
	inv := &InvariantDecl{Name: name.Value, P: kw.Pos}
	inv.Params = p.parseParams()
	inv.Pred = p.parseExpr()
	p.accept(TokenSemi)
	return inv
}

func (p *Parser) parseFunction() *FunctionDecl {
	kw := p.next() // function
	name := p.expectIdent("function name")
	p.construct = "function " + name.Value
	fn := &FunctionDecl{Name: name.Value, P: kw.Pos}
	fn.Params = p.parseParams()
	fn.Body = p.parseBlock()
	return fn
}

func (p *Parser) parseBlock() []Stmt {
	p.expect(TokenLBrace, "'{'")
	var stmts []Stmt
	for !p.at(TokenRBrace) && !p.at(TokenEOF) {
		stmts = append(stmts, p.parseStmt())
	}
	p.expect(TokenRBrace, "'}'")
	return stmts
}

func (p *Parser) parseStmt() Stmt {
	tok := p.cur()
	switch {
	case p.atKeyword("require"):
		p.next()
		cond := p.parseExpr()
		p.expect(TokenSemi, "';'")
		return &Require{Cond: cond, P: tok.Pos}

	case p.atKeyword("requireInvariant"):
		p.next()
		name := p.expectIdent("invariant name")
		p.expect(TokenLParen, "'('")
		var args []Expr
		for !p.at(TokenRParen) {
			args = append(args, p.parseExpr())
			if !p.accept(TokenComma) {
				break
			}
		}
		p.expect(TokenRParen, "')'")
		p.expect(TokenSemi, "';'")
		return &RequireInvariant{Name: name.Value, Args: args, P: tok.Pos}

	case p.atKeyword("assert"):
		p.next()
		cond := p.parseExpr()
		var msg string
		if p.accept(TokenComma) {
			msg = p.expect(TokenString, "assertion message").Value
		}
		p.expect(TokenSemi, "';'")
		return &Assert{Cond: cond, Msg: msg, P: tok.Pos}

	case p.atKeyword("if"):
		p.next()
		p.expect(TokenLParen, "'('")
		cond := p.parseExpr()
		p.expect(TokenRParen, "')'")
		then := p.parseBlock()
		var els []Stmt
		if p.atKeyword("else") {
			p.next()
			if p.atKeyword("if") {
				els = []Stmt{p.parseStmt()}
			} else {
				els = p.parseBlock()
			}
		}
		return &If{Cond: cond, Then: then, Else: els, P: tok.Pos}

	case tok.Type == TokenIdent && p.toks[p.pos+1].Type == TokenIdent:
		// TYPE NAME [= expr] ;
		typ := p.next()
		name := p.next()
		var init Expr
		if p.accept(TokenAssign) {
			init = p.parseExpr()
		}
		p.expect(TokenSemi, "';'")
		return &VarDecl{Type: typ.Value, Name: name.Value, Init: init, P: typ.Pos}

	case tok.Type == TokenIdent && p.toks[p.pos+1].Type == TokenAssign:
		name := p.next()
		p.next() // =
		val := p.parseExpr()
		p.expect(TokenSemi, "';'")
		return &Assign{Name: name.Value, Value: val, P: tok.Pos}

	default:
		x := p.parseExpr()
		p.expect(TokenSemi, "';'")
		return &ExprStmt{X: x, P: tok.Pos}
	}
}

// Expression parsing, lowest precedence first.

func (p *Parser) parseExpr() Expr {
	cond := p.parseIff()
	if p.accept(TokenQuestion) {
		then := p.parseExpr()
		p.expect(TokenColon, "':'")
		els := p.parseExpr()
		return &Cond{C: cond, T: then, F: els, P: cond.Position()}
	}
	return cond
}

func (p *Parser) parseIff() Expr {
	l := p.parseImplies()
	for p.at(TokenIff) {
		p.next()
		r := p.parseImplies()
		l = &Binary{Op: "<=>", L: l, R: r, P: l.Position()}
	}
	return l
}

func (p *Parser) parseImplies() Expr {
	l := p.parseOr()
	if p.at(TokenImplies) {
		p.next()
		r := p.parseImplies() // right associative
		return &Binary{Op: "=>", L: l, R: r, P: l.Position()}
	}
	return l
}

func (p *Parser) parseOr() Expr {
	l := p.parseAnd()
	for p.at(TokenOr) {
		p.next()
		r := p.parseAnd()
		l = &Binary{Op: "||", L: l, R: r, P: l.Position()}
	}
	return l
}

func (p *Parser) parseAnd() Expr {
	l := p.parseEquality()
	for p.at(TokenAnd) {
		p.next()
		r := p.parseEquality()
		l = &Binary{Op: "&&", L: l, R: r, P: l.Position()}
	}
	return l
}

func (p *Parser) parseEquality() Expr {
	l := p.parseRelational()
	for p.at(TokenEq) || p.at(TokenNeq) {
		op := p.next().Value
		r := p.parseRelational()
		l = &Binary{Op: op, L: l, R: r, P: l.Position()}
	}
	return l
}

func (p *Parser) parseRelational() Expr {
	l := p.parseAdditive()
	for p.at(TokenLt) || p.at(TokenLe) || p.at(TokenGt) || p.at(TokenGe) {
		op := p.next().Value
		r := p.parseAdditive()
		l = &Binary{Op: op, L: l, R: r, P: l.Position()}
	}
	return l
}

func (p *Parser) parseAdditive() Expr {
	l := p.parseMultiplicative()
	for p.at(TokenPlus) || p.at(TokenMinus) {
		op := p.next().Value
		r := p.parseMultiplicative()
		l = &Binary{Op: op, L: l, R: r, P: l.Position()}
	}
	return l
}

func (p *Parser) parseMultiplicative() Expr {
	l := p.parseUnary()
	for p.at(TokenStar) || p.at(TokenSlash) {
		op := p.next().Value
		r := p.parseUnary()
		l = &Binary{Op: op, L: l, R: r, P: l.Position()}
	}
	return l
}

func (p *Parser) parseUnary() Expr {
	tok := p.cur()
	if p.at(TokenNot) || p.at(TokenMinus) {
		p.next()
		x := p.parseUnary()
		return &Unary{Op: tok.Value, X: x, P: tok.Pos}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() Expr {
	x := p.parsePrimary()
	for {
		switch {
		case p.at(TokenDot):
			p.next()
			sel := p.expectIdent("member name")
			x = &Member{X: x, Sel: sel.Value, P: x.Position()}

		case p.at(TokenAt):
			id, ok := x.(*Ident)
			if !ok {
				p.errorf(p.cur().Pos, "'@' qualifier on non-method expression")
			}
			p.next()
			qual := p.expectIdent("call qualifier")
			if qual.Value != "withrevert" {
				p.errorf(qual.Pos, "unknown call qualifier %q", qual.Value)
			}
			p.expect(TokenLParen, "'('")
			call := &Call{Name: id.Name, WithRevert: true, P: id.P}
			call.Args = p.parseArgs()
			x = call

		case p.at(TokenLParen):
			id, ok := x.(*Ident)
			if !ok {
				p.errorf(p.cur().Pos, "call of non-identifier expression")
			}
			p.next()
			call := &Call{Name: id.Name, P: id.P}
			call.Args = p.parseArgs()
			x = call

		default:
			return x
		}
	}
}

// parseArgs parses a call argument list; the opening paren is consumed.
func (p *Parser) parseArgs() []Expr {
	var args []Expr
	for !p.at(TokenRParen) {
		args = append(args, p.parseExpr())
		if !p.accept(TokenComma) {
			break
		}
		if p.at(TokenRParen) {
			p.errorf(p.cur().Pos, "stray ',' before ')'")
		}
	}
	p.expect(TokenRParen, "')'")
	return args
}

func (p *Parser) parsePrimary() Expr {
	tok := p.cur()
	switch {
	case tok.Type == TokenNumber:
		p.next()
		v := new(big.Int)
		if _, ok := v.SetString(tok.Value, 0); !ok {
			p.errorf(tok.Pos, "malformed number %q", tok.Value)
		}
		return &IntLit{Value: v, P: tok.Pos}

	case p.atKeyword("true"):
		p.next()
		return &BoolLit{Value: true, P: tok.Pos}

	case p.atKeyword("false"):
		p.next()
		return &BoolLit{Value: false, P: tok.Pos}

	case tok.Type == TokenIdent:
		p.next()
		return &Ident{Name: tok.Value, P: tok.Pos}

	case tok.Type == TokenLParen:
		p.next()
		x := p.parseExpr()
		p.expect(TokenRParen, "')'")
		return x

	default:
		p.errorf(tok.Pos, "expected expression, found %q", tok.Value)
		return nil
	}
}

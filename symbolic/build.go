package symbolic

import "math/big"

// Smart constructors. They fold constants, normalize trivial forms and
// reject domain mixing with a *TypeError. The solver relies on the
// invariant that a Binary node always has operands of identical sort.

var (
	bigZero = big.NewInt(0)
	bigOne  = big.NewInt(1)
)

// True and False are the boolean constants.
var (
	True  Expr = &Const{Value: bigOne, S: Bool}
	False Expr = &Const{Value: bigZero, S: Bool}
)

// NewConst returns a constant of the given sort. The value must be in
// range for the sort.
func NewConst(v *big.Int, s Sort) (Expr, error) {
	if !s.InRange(v) {
		return nil, &TypeError{Op: "constant " + v.String(), Left: s}
	}
	return &Const{Value: new(big.Int).Set(v), S: s}, nil
}

// NewInt is NewConst for small values; it panics on range errors and is
// meant for literals known to fit.
func NewInt(v int64, s Sort) Expr {
	c, err := NewConst(big.NewInt(v), s)
	if err != nil {
		panic(err)
	}
	return c
}

// NewBool returns the boolean constant b.
func NewBool(b bool) Expr {
	if b {
		return True
	}
	return False
}

// IsConst reports whether e is a constant and returns its value.
func IsConst(e Expr) (*big.Int, bool) {
	if c, ok := e.(*Const); ok {
		return c.Value, true
	}
	return nil, false
}

// IsTrue reports whether e is the constant true.
func IsTrue(e Expr) bool {
	v, ok := IsConst(e)
	return ok && e.Sort() == Bool && v.Sign() != 0
}

// IsFalse reports whether e is the constant false.
func IsFalse(e Expr) bool {
	v, ok := IsConst(e)
	return ok && e.Sort() == Bool && v.Sign() == 0
}

func arith(op Op, l, r Expr) (Expr, error) {
	ls, rs := l.Sort(), r.Sort()
	if ls != rs || !ls.Numeric() || ls == Address {
		// address arithmetic is meaningless; mathint never mixes silently
		return nil, &TypeError{Op: op.String(), Left: ls, Right: rs}
	}
	lv, lok := IsConst(l)
	rv, rok := IsConst(r)
	if lok && rok {
		v := new(big.Int)
		switch op {
		case Add:
			v.Add(lv, rv)
		case Sub:
			v.Sub(lv, rv)
		case Mul:
			v.Mul(lv, rv)
		case Div:
			if rv.Sign() == 0 {
				return nil, &TypeError{Op: "division by zero", Left: ls}
			}
			v.Quo(lv, rv)
		}
		if ls.Bounded() && !ls.InRange(v) {
			// folding would wrap; keep the node symbolic so the
			// executor's range side-condition rules the path out
			return &Binary{Op: op, L: l, R: r}, nil
		}
		return &Const{Value: v, S: ls}, nil
	}
	// x+0, x-0, x*1, x/1, x*0
	if rok {
		switch {
		case rv.Sign() == 0 && (op == Add || op == Sub):
			return l, nil
		case rv.Cmp(bigOne) == 0 && (op == Mul || op == Div):
			return l, nil
		case rv.Sign() == 0 && op == Mul:
			return r, nil
		}
	}
	if lok {
		switch {
		case lv.Sign() == 0 && op == Add:
			return r, nil
		case lv.Cmp(bigOne) == 0 && op == Mul:
			return r, nil
		case lv.Sign() == 0 && op == Mul:
			return l, nil
		}
	}
	return &Binary{Op: op, L: l, R: r}, nil
}

func AddExpr(l, r Expr) (Expr, error) { return arith(Add, l, r) }
func SubExpr(l, r Expr) (Expr, error) { return arith(Sub, l, r) }
func MulExpr(l, r Expr) (Expr, error) { return arith(Mul, l, r) }
func DivExpr(l, r Expr) (Expr, error) { return arith(Div, l, r) }

func compare(op Op, l, r Expr) (Expr, error) {
	ls, rs := l.Sort(), r.Sort()
	if ls != rs {
		return nil, &TypeError{Op: op.String(), Left: ls, Right: rs}
	}
	if op == Eq || op == Neq {
		if ls == Invalid {
			return nil, &TypeError{Op: op.String(), Left: ls, Right: rs}
		}
	} else if !ls.Numeric() {
		return nil, &TypeError{Op: op.String(), Left: ls, Right: rs}
	}
	lv, lok := IsConst(l)
	rv, rok := IsConst(r)
	if lok && rok {
		c := lv.Cmp(rv)
		switch op {
		case Eq:
			return NewBool(c == 0), nil
		case Neq:
			return NewBool(c != 0), nil
		case Lt:
			return NewBool(c < 0), nil
		case Le:
			return NewBool(c <= 0), nil
		}
	}
	if lsym, ok := l.(*Sym); ok {
		if rsym, ok := r.(*Sym); ok && lsym.ID == rsym.ID {
			switch op {
			case Eq, Le:
				return True, nil
			case Neq, Lt:
				return False, nil
			}
		}
	}
	return &Binary{Op: op, L: l, R: r}, nil
}

func EqExpr(l, r Expr) (Expr, error)  { return compare(Eq, l, r) }
func NeqExpr(l, r Expr) (Expr, error) { return compare(Neq, l, r) }
func LtExpr(l, r Expr) (Expr, error)  { return compare(Lt, l, r) }
func LeExpr(l, r Expr) (Expr, error)  { return compare(Le, l, r) }

// GtExpr and GeExpr normalize to Lt/Le with swapped operands.
func GtExpr(l, r Expr) (Expr, error) { return compare(Lt, r, l) }
func GeExpr(l, r Expr) (Expr, error) { return compare(Le, r, l) }

func logic(op Op, l, r Expr) (Expr, error) {
	if l.Sort() != Bool || r.Sort() != Bool {
		return nil, &TypeError{Op: op.String(), Left: l.Sort(), Right: r.Sort()}
	}
	switch op {
	case And:
		if IsTrue(l) {
			return r, nil
		}
		if IsTrue(r) {
			return l, nil
		}
		if IsFalse(l) || IsFalse(r) {
			return False, nil
		}
	case Or:
		if IsFalse(l) {
			return r, nil
		}
		if IsFalse(r) {
			return l, nil
		}
		if IsTrue(l) || IsTrue(r) {
			return True, nil
		}
	case Implies:
		if IsFalse(l) || IsTrue(r) {
			return True, nil
		}
		if IsTrue(l) {
			return r, nil
		}
	case Iff:
		if IsTrue(l) {
			return r, nil
		}
		if IsTrue(r) {
			return l, nil
		}
	}
	return &Binary{Op: op, L: l, R: r}, nil
}

func AndExpr(l, r Expr) (Expr, error)     { return logic(And, l, r) }
func OrExpr(l, r Expr) (Expr, error)      { return logic(Or, l, r) }
func ImpliesExpr(l, r Expr) (Expr, error) { return logic(Implies, l, r) }
func IffExpr(l, r Expr) (Expr, error)     { return logic(Iff, l, r) }

// NotExpr negates a boolean expression.
func NotExpr(x Expr) (Expr, error) {
	if x.Sort() != Bool {
		return nil, &TypeError{Op: "!", Left: x.Sort()}
	}
	if IsTrue(x) {
		return False, nil
	}
	if IsFalse(x) {
		return True, nil
	}
	if n, ok := x.(*Not); ok {
		return n.X, nil
	}
	return &Not{X: x}, nil
}

// IteExpr builds a conditional term; then and else must share a sort.
func IteExpr(cond, then, els Expr) (Expr, error) {
	if cond.Sort() != Bool {
		return nil, &TypeError{Op: "?:", Left: cond.Sort()}
	}
	if then.Sort() != els.Sort() {
		return nil, &TypeError{Op: "?:", Left: then.Sort(), Right: els.Sort()}
	}
	if IsTrue(cond) {
		return then, nil
	}
	if IsFalse(cond) {
		return els, nil
	}
	return &Ite{Cond: cond, Then: then, Else: els}, nil
}

// ToMathint widens a bounded numeric expression into the unbounded
// domain. Widening a mathint is the identity.
func ToMathint(x Expr) (Expr, error) {
	switch x.Sort() {
	case Mathint:
		return x, nil
	case Uint256, Address:
		if v, ok := IsConst(x); ok {
			return &Const{Value: new(big.Int).Set(v), S: Mathint}, nil
		}
		return &Cast{X: x, S: Mathint}, nil
	default:
		return nil, &TypeError{Op: "to_mathint", Left: x.Sort()}
	}
}

// NarrowUint256 converts a mathint expression to uint256. It returns the
// narrowed expression together with the in-range obligation the caller
// must discharge (assert or assume) on the current path.
func NarrowUint256(x Expr) (Expr, Expr, error) {
	if x.Sort() == Uint256 {
		return x, True, nil
	}
	if x.Sort() != Mathint {
		return nil, nil, &TypeError{Op: "assert_uint256", Left: x.Sort()}
	}
	lo, err := GeExpr(x, &Const{Value: bigZero, S: Mathint})
	if err != nil {
		return nil, nil, err
	}
	hi, err := LeExpr(x, &Const{Value: Uint256.Max(), S: Mathint})
	if err != nil {
		return nil, nil, err
	}
	inRange, err := AndExpr(lo, hi)
	if err != nil {
		return nil, nil, err
	}
	if v, ok := IsConst(x); ok && Uint256.InRange(v) {
		return &Const{Value: new(big.Int).Set(v), S: Uint256}, True, nil
	}
	return &Cast{X: x, S: Uint256}, inRange, nil
}

// Syms collects the distinct symbols occurring in e, in first-occurrence
// order.
func Syms(e Expr) []*Sym {
	var out []*Sym
	seen := map[int]bool{}
	var walk func(Expr)
	walk = func(e Expr) {
		switch e := e.(type) {
		case *Sym:
			if !seen[e.ID] {
				seen[e.ID] = true
				out = append(out, e)
			}
		case *Binary:
			walk(e.L)
			walk(e.R)
		case *Not:
			walk(e.X)
		case *Ite:
			walk(e.Cond)
			walk(e.Then)
			walk(e.Else)
		case *Select:
			for _, k := range e.Key {
				walk(k)
			}
		case *Cast:
			walk(e.X)
		}
	}
	walk(e)
	return out
}

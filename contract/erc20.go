package contract

import (
	"github.com/tenet-verify/tenet/state"
	"github.com/tenet-verify/tenet/symbolic"
)

// Storage slot names of the built-in token model.
const (
	SlotTotalSupply = "totalSupply"
	SlotBalances    = "balances"
	SlotAllowances  = "allowances"
)

// ERC20 is the built-in symbolic token model. Its methods mirror the
// standard token semantics: nonpayable entry points, balance and
// allowance checks folded into the revert condition, and sequential
// balance updates so self-transfers net to zero.
type ERC20 struct {
	methods []*Method
	byName  map[string]*Method
}

// NewERC20 constructs the token model.
func NewERC20() *ERC20 {
	c := &ERC20{byName: map[string]*Method{}}
	c.methods = []*Method{
		{
			Name: "transfer",
			Params: []Param{
				{Name: "to", Sort: symbolic.Address},
				{Name: "value", Sort: symbolic.Uint256},
			},
			Ret:   symbolic.Bool,
			Apply: c.transfer,
		},
		{
			Name: "transferFrom",
			Params: []Param{
				{Name: "from", Sort: symbolic.Address},
				{Name: "to", Sort: symbolic.Address},
				{Name: "value", Sort: symbolic.Uint256},
			},
			Ret:   symbolic.Bool,
			Apply: c.transferFrom,
		},
		{
			Name: "approve",
			Params: []Param{
				{Name: "spender", Sort: symbolic.Address},
				{Name: "value", Sort: symbolic.Uint256},
			},
			Ret:   symbolic.Bool,
			Apply: c.approve,
		},
		{
			Name:    "balanceOf",
			Params:  []Param{{Name: "account", Sort: symbolic.Address}},
			Ret:     symbolic.Uint256,
			EnvFree: true,
			View:    true,
			Apply:   c.balanceOf,
		},
		{
			Name: "allowance",
			Params: []Param{
				{Name: "owner", Sort: symbolic.Address},
				{Name: "spender", Sort: symbolic.Address},
			},
			Ret:     symbolic.Uint256,
			EnvFree: true,
			View:    true,
			Apply:   c.allowance,
		},
		{
			Name:    "totalSupply",
			Ret:     symbolic.Uint256,
			EnvFree: true,
			View:    true,
			Apply:   c.totalSupply,
		},
	}
	for _, m := range c.methods {
		c.byName[m.Name] = m
	}
	return c
}

func (c *ERC20) Name() string { return "ERC20" }

func (c *ERC20) Methods() []*Method { return c.methods }

func (c *ERC20) MethodByName(name string) (*Method, bool) {
	m, ok := c.byName[name]
	return m, ok
}

func (c *ERC20) declare(st *state.State) {
	st.DeclareMapping(SlotBalances, []symbolic.Sort{symbolic.Address}, symbolic.Uint256)
	st.DeclareMapping(SlotAllowances, []symbolic.Sort{symbolic.Address, symbolic.Address}, symbolic.Uint256)
}

func (c *ERC20) NewState(vars *symbolic.Vars) *state.State {
	st := state.New(vars)
	st.DeclareScalar(SlotTotalSupply, symbolic.Uint256)
	c.declare(st)
	return st
}

func (c *ERC20) NewZeroState(vars *symbolic.Vars) *state.State {
	st := state.New(vars)
	st.DeclareScalarInit(SlotTotalSupply, symbolic.NewInt(0, symbolic.Uint256))
	c.declare(st)
	st.ZeroMapping(SlotBalances)
	st.ZeroMapping(SlotAllowances)
	return st
}

// Init mints a fresh symbolic supply to the deployer through the hooked
// write path.
func (c *ERC20) Init(st *state.State, env state.Env) error {
	supply := st.Vars().Fresh("initialSupply", symbolic.Uint256)
	if err := st.SetScalar(SlotTotalSupply, supply); err != nil {
		return err
	}
	return st.Set(SlotBalances, []symbolic.Expr{env.MsgSender}, supply)
}

func maxWord() symbolic.Expr {
	return &symbolic.Const{Value: symbolic.Uint256.Max(), S: symbolic.Mathint}
}

// nonpayable holds when the call carries value and must revert.
func nonpayable(b *eb, env state.Env) symbolic.Expr {
	return b.neq(env.MsgValue, symbolic.NewInt(0, symbolic.Uint256))
}

func (c *ERC20) transfer(st *state.State, env state.Env, args []symbolic.Expr) (Outcome, error) {
	to, value := args[0], args[1]
	sender := symbolic.Expr(env.MsgSender)
	b := &eb{}

	valueM := b.math(value)
	fromBal := b.get(st, SlotBalances, sender)
	fromM := b.math(fromBal)
	toPreM := b.math(b.get(st, SlotBalances, to))

	insufficient := b.lt(fromM, valueM)
	newFromM := b.sub(fromM, valueM)
	// Recipient balance at the point of the credit: the debit has
	// already landed when to == sender.
	toAfterM := b.ite(b.eq(to, sender), newFromM, toPreM)
	newToM := b.add(toAfterM, valueM)
	overflow := b.gt(newToM, maxWord())

	revert := b.or(nonpayable(b, env), insufficient, overflow)
	b.setGuarded(st, revert, SlotBalances, []symbolic.Expr{sender}, b.narrow(newFromM))
	b.setGuarded(st, revert, SlotBalances, []symbolic.Expr{to}, b.narrow(newToM))
	if b.err != nil {
		return Outcome{}, b.err
	}
	return Outcome{Ret: symbolic.NewBool(true), Revert: revert}, nil
}

func (c *ERC20) transferFrom(st *state.State, env state.Env, args []symbolic.Expr) (Outcome, error) {
	from, to, value := args[0], args[1], args[2]
	sender := symbolic.Expr(env.MsgSender)
	b := &eb{}

	valueM := b.math(value)
	allowM := b.math(b.get(st, SlotAllowances, from, sender))
	fromM := b.math(b.get(st, SlotBalances, from))
	toPreM := b.math(b.get(st, SlotBalances, to))

	insufficientBal := b.lt(fromM, valueM)
	insufficientAllow := b.lt(allowM, valueM)
	newFromM := b.sub(fromM, valueM)
	toAfterM := b.ite(b.eq(to, from), newFromM, toPreM)
	newToM := b.add(toAfterM, valueM)
	overflow := b.gt(newToM, maxWord())

	revert := b.or(nonpayable(b, env), insufficientBal, insufficientAllow, overflow)
	b.setGuarded(st, revert, SlotAllowances, []symbolic.Expr{from, sender}, b.narrow(b.sub(allowM, valueM)))
	b.setGuarded(st, revert, SlotBalances, []symbolic.Expr{from}, b.narrow(newFromM))
	b.setGuarded(st, revert, SlotBalances, []symbolic.Expr{to}, b.narrow(newToM))
	if b.err != nil {
		return Outcome{}, b.err
	}
	return Outcome{Ret: symbolic.NewBool(true), Revert: revert}, nil
}

func (c *ERC20) approve(st *state.State, env state.Env, args []symbolic.Expr) (Outcome, error) {
	spender, value := args[0], args[1]
	sender := symbolic.Expr(env.MsgSender)
	b := &eb{}

	revert := nonpayable(b, env)
	b.setGuarded(st, revert, SlotAllowances, []symbolic.Expr{sender, spender}, value)
	if b.err != nil {
		return Outcome{}, b.err
	}
	return Outcome{Ret: symbolic.NewBool(true), Revert: revert}, nil
}

func (c *ERC20) balanceOf(st *state.State, _ state.Env, args []symbolic.Expr) (Outcome, error) {
	v, err := st.Get(SlotBalances, args[0])
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Ret: v, Revert: symbolic.False}, nil
}

func (c *ERC20) allowance(st *state.State, _ state.Env, args []symbolic.Expr) (Outcome, error) {
	v, err := st.Get(SlotAllowances, args[0], args[1])
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Ret: v, Revert: symbolic.False}, nil
}

func (c *ERC20) totalSupply(st *state.State, _ state.Env, _ []symbolic.Expr) (Outcome, error) {
	v, err := st.Scalar(SlotTotalSupply)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Ret: v, Revert: symbolic.False}, nil
}

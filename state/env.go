package state

import "github.com/tenet-verify/tenet/symbolic"

// Env is one symbolic call environment. Every field is an unconstrained
// fresh symbol; rules that never read a field leave it unrestricted.
type Env struct {
	Name      string
	MsgSender *symbolic.Sym
	MsgValue  *symbolic.Sym
	BlockTime *symbolic.Sym
	BlockNum  *symbolic.Sym
}

// NewEnv mints a fresh environment named after the rule parameter.
func NewEnv(vars *symbolic.Vars, name string) Env {
	return Env{
		Name:      name,
		MsgSender: vars.Fresh(name+".msg.sender", symbolic.Address),
		MsgValue:  vars.Fresh(name+".msg.value", symbolic.Uint256),
		BlockTime: vars.Fresh(name+".block.timestamp", symbolic.Uint256),
		BlockNum:  vars.Fresh(name+".block.number", symbolic.Uint256),
	}
}

// Field resolves a member access on the environment, e.g. "msg.sender".
func (e Env) Field(sel string) (symbolic.Expr, bool) {
	switch sel {
	case "msg.sender":
		return e.MsgSender, true
	case "msg.value":
		return e.MsgValue, true
	case "block.timestamp":
		return e.BlockTime, true
	case "block.number":
		return e.BlockNum, true
	}
	return nil, false
}

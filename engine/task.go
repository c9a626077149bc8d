package engine

import (
	"fmt"

	"github.com/tenet-verify/tenet/contract"
	"github.com/tenet-verify/tenet/spec"
)

type taskKind uint8

const (
	taskRule taskKind = iota
	taskInvariantBase
	taskInvariantStep
)

func (k taskKind) String() string {
	switch k {
	case taskRule:
		return "rule"
	case taskInvariantBase:
		return "invariant base"
	case taskInvariantStep:
		return "invariant step"
	}
	return "task"
}

// task is one independently solvable verification obligation.
type task struct {
	kind   taskKind
	rule   *spec.RuleDecl
	inv    *spec.InvariantDecl
	method *contract.Method // bound instance for method params and steps
}

func (t task) ruleName() string {
	if t.rule != nil {
		return t.rule.Name
	}
	return t.inv.Name
}

func (t task) methodSig() string {
	if t.method == nil {
		return ""
	}
	return t.method.Sig()
}

// declaredMethods resolves the methods{} block against the model.
// Entries the model does not implement surface as Error results.
func declaredMethods(prog *spec.Program, model contract.Model) ([]*contract.Method, []Result) {
	var out []*contract.Method
	var bad []Result
	for _, sig := range prog.Methods {
		m, ok := model.MethodByName(sig.Name)
		if !ok {
			bad = append(bad, Result{
				Rule:    sig.Name,
				Kind:    "method",
				Verdict: Error,
				Message: fmt.Sprintf("contract %s has no method %s", model.Name(), sig.Sig()),
				Pos:     sig.P,
			})
			continue
		}
		out = append(out, m)
	}
	return out, bad
}

// expandTasks turns the program into the flat task list: one task per
// rule, fanned out over the declared methods plus the arbitrary-call
// pseudo-method for every method parameter, plus base and step tasks
// per invariant. Step tasks skip view methods, which cannot change
// state.
func expandTasks(prog *spec.Program, model contract.Model) ([]task, []Result) {
	methods, bad := declaredMethods(prog, model)

	var tasks []task
	for _, r := range prog.Rules {
		n := 0
		for _, p := range r.Params {
			if p.Type == "method" {
				n++
			}
		}
		switch n {
		case 0:
			tasks = append(tasks, task{kind: taskRule, rule: r})
		case 1:
			for _, m := range methods {
				tasks = append(tasks, task{kind: taskRule, rule: r, method: m})
			}
			tasks = append(tasks, task{kind: taskRule, rule: r, method: contract.HavocMethod()})
		default:
			bad = append(bad, Result{
				Rule:    r.Name,
				Kind:    "rule",
				Verdict: Error,
				Message: "at most one method parameter per rule is supported",
				Pos:     r.P,
			})
		}
	}
	for _, inv := range prog.Invariants {
		tasks = append(tasks, task{kind: taskInvariantBase, inv: inv})
		for _, m := range methods {
			if m.View {
				continue
			}
			tasks = append(tasks, task{kind: taskInvariantStep, inv: inv, method: m})
		}
	}
	return tasks, bad
}

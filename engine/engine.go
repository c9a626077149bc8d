// Package engine runs verification tasks: it expands rules and
// invariants into independent obligations, executes each one
// symbolically and discharges the resulting assertions through the
// constraint solver.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tenet-verify/tenet/contract"
	"github.com/tenet-verify/tenet/debug"
	"github.com/tenet-verify/tenet/logger"
	"github.com/tenet-verify/tenet/solver"
	"github.com/tenet-verify/tenet/spec"
	"github.com/tenet-verify/tenet/state"
	"github.com/tenet-verify/tenet/symbolic"
)

// Engine verifies specifications against a contract model.
type Engine struct {
	model contract.Model
	solv  solver.Solver
	log   zerolog.Logger

	workers       int
	solverTimeout time.Duration
	retryTimeout  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds the number of tasks verified concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithSolverTimeout bounds the wall time spent on one task.
func WithSolverTimeout(d time.Duration) Option {
	return func(e *Engine) { e.solverTimeout = d }
}

// WithTimeoutRetry retries a timed-out task once with four times the
// budget before settling on Unknown.
func WithTimeoutRetry() Option {
	return func(e *Engine) { e.retryTimeout = true }
}

// WithSolver substitutes the constraint solver.
func WithSolver(s solver.Solver) Option {
	return func(e *Engine) { e.solv = s }
}

// WithLogger substitutes the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New builds an engine for the given contract model.
func New(model contract.Model, opts ...Option) *Engine {
	e := &Engine{
		model:         model,
		solv:          solver.NewSmallModel(),
		log:           logger.Logger().With().Str("contract", model.Name()).Logger(),
		workers:       runtime.GOMAXPROCS(0),
		solverTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e
}

// Verify runs every task of the program and collects the report.
// Results keep task order regardless of scheduling; a failing task
// never disturbs its siblings.
func (e *Engine) Verify(ctx context.Context, prog *spec.Program) (*Report, error) {
	start := time.Now()
	report := &Report{Contract: e.model.Name()}

	for _, le := range prog.Errs {
		report.Results = append(report.Results, Result{
			Rule:    le.Construct,
			Kind:    "load",
			Verdict: Error,
			Message: le.Error(),
			Pos:     le.Pos,
		})
	}

	tasks, bad := expandTasks(prog, e.model)
	report.Results = append(report.Results, bad...)

	results := make([]Result, len(tasks))
	sem := semaphore.NewWeighted(int64(e.workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i] = Result{Rule: t.ruleName(), Kind: t.kind.String(), Method: t.methodSig(), Verdict: Unknown, Message: err.Error()}
				return nil
			}
			defer sem.Release(1)
			results[i] = e.runTask(gctx, prog, t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Results = append(report.Results, results...)
	report.Elapsed = time.Since(start)
	for _, r := range report.Results {
		e.log.Debug().Str("task", r.Name()).Stringer("verdict", r.Verdict).Dur("elapsed", r.Elapsed).Msg("task done")
	}
	return report, nil
}

// runTask verifies one task in isolation: its own symbol pool, state
// and deadline. Panics inside the task degrade to an Error result.
func (e *Engine) runTask(ctx context.Context, prog *spec.Program, t task) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("task", res.Rule).Interface("panic", r).Msg("task panicked")
			if debug.Debug {
				e.log.Error().Msg(debug.Stack())
			}
			res.Verdict = Error
			res.Message = fmt.Sprintf("internal fault: %v", r)
		}
		res.Elapsed = time.Since(start)
	}()

	res = e.runTaskOnce(ctx, prog, t, e.solverTimeout)
	if res.Verdict == Unknown && e.retryTimeout && ctx.Err() == nil {
		e.log.Debug().Str("task", res.Name()).Msg("retrying with extended budget")
		res = e.runTaskOnce(ctx, prog, t, 4*e.solverTimeout)
	}
	return res
}

func (e *Engine) runTaskOnce(ctx context.Context, prog *spec.Program, t task, budget time.Duration) Result {
	tctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	res := Result{Rule: t.ruleName(), Kind: t.kind.String(), Method: t.methodSig()}
	switch t.kind {
	case taskRule:
		return e.runRule(tctx, prog, t, res)
	case taskInvariantBase:
		return e.runInvariantBase(tctx, prog, t, res)
	case taskInvariantStep:
		return e.runInvariantStep(tctx, prog, t, res)
	}
	res.Verdict = Error
	res.Message = "unknown task kind"
	return res
}

func (e *Engine) runRule(ctx context.Context, prog *spec.Program, t task, res Result) Result {
	vars := symbolic.NewVars()
	st := e.model.NewState(vars)
	s := newSession(prog, e.model, st, vars)
	s.installHooks()
	if err := s.initGhosts(false); err != nil {
		return taskError(res, err)
	}

	sc := newScope(nil)
	for _, p := range t.rule.Params {
		switch p.Type {
		case "env":
			env := state.NewEnv(vars, p.Name)
			sc.define(p.Name, binding{env: &env})
		case "method":
			sc.define(p.Name, binding{method: t.method})
		case "calldataarg":
			sc.define(p.Name, binding{calldata: true})
		default:
			srt, ok := symbolic.SortByName(p.Type)
			if !ok {
				return taskError(res, errAt(p.P, "unknown type %s", p.Type))
			}
			sc.define(p.Name, binding{expr: vars.Fresh(p.Name, srt)})
		}
	}

	if err := s.execBlock(t.rule.Body, sc); err != nil {
		return taskError(res, err)
	}
	return e.check(ctx, s, res)
}

func (e *Engine) runInvariantBase(ctx context.Context, prog *spec.Program, t task, res Result) Result {
	vars := symbolic.NewVars()
	st := e.model.NewZeroState(vars)
	s := newSession(prog, e.model, st, vars)
	s.installHooks()
	if err := s.initGhosts(true); err != nil {
		return taskError(res, err)
	}

	env := state.NewEnv(vars, "init")
	if err := e.model.Init(st, env); err != nil {
		return taskError(res, err)
	}

	pred, err := s.evalInvariant(t.inv, nil)
	if err != nil {
		return taskError(res, err)
	}
	s.oblige(pred, "invariant fails after deployment", t.inv.P)
	return e.check(ctx, s, res)
}

func (e *Engine) runInvariantStep(ctx context.Context, prog *spec.Program, t task, res Result) Result {
	vars := symbolic.NewVars()
	st := e.model.NewState(vars)
	s := newSession(prog, e.model, st, vars)
	s.installHooks()
	if err := s.initGhosts(false); err != nil {
		return taskError(res, err)
	}

	// Induction: assume the invariant on an arbitrary state, run one
	// method with fresh arguments, assert the invariant again at the
	// very same parameter instantiation.
	params := make([]binding, len(t.inv.Params))
	for i, p := range t.inv.Params {
		if p.Type == "env" {
			ie := state.NewEnv(vars, p.Name)
			params[i] = binding{env: &ie}
			continue
		}
		if srt, ok := symbolic.SortByName(p.Type); ok {
			params[i] = binding{expr: vars.Fresh(p.Name, srt)}
		}
	}
	pre, err := s.evalInvariant(t.inv, params)
	if err != nil {
		return taskError(res, err)
	}
	s.assume(pre)

	env := state.NewEnv(vars, "e")
	args := make([]symbolic.Expr, len(t.method.Params))
	for i, p := range t.method.Params {
		args[i] = vars.Fresh(p.Name, p.Sort)
	}
	st.Trace().Note(state.OpCall, t.method.Name, t.method.Sig())
	out, err := t.method.Apply(st, env, args)
	if err != nil {
		return taskError(res, err)
	}
	ok, err := symbolic.NotExpr(out.Revert)
	if err != nil {
		return taskError(res, err)
	}
	s.assume(ok)

	post, err := s.evalInvariant(t.inv, params)
	if err != nil {
		return taskError(res, err)
	}
	s.oblige(post, "invariant broken by "+t.method.Sig(), t.inv.P)
	return e.check(ctx, s, res)
}

// check discharges the session's obligations. Each assertion is solved
// against the assumptions made before it, so a require further down the
// rule narrows only the remainder. An assertion whose negation is
// satisfiable under that prefix yields Violated with the witness; a
// rule whose every assertion stood on an unsatisfiable prefix, or that
// asserts nothing on an unsatisfiable path, is Vacuous.
func (e *Engine) check(ctx context.Context, s *session, res Result) Result {
	unreachable := 0
	for _, ob := range s.obligations {
		neg, err := symbolic.NotExpr(ob.cond)
		if err != nil {
			return taskError(res, err)
		}
		prefix := s.path[:ob.pathLen]
		constraints := make([]symbolic.Expr, 0, len(prefix)+1)
		constraints = append(constraints, prefix...)
		constraints = append(constraints, neg)

		r, err := e.solv.Solve(ctx, constraints)
		if err != nil {
			res.Verdict = Unknown
			res.Message = err.Error()
			res.Pos = ob.pos
			return res
		}
		switch r.Status {
		case solver.Sat:
			res.Verdict = Violated
			res.Message = ob.msg
			if res.Message == "" {
				res.Message = "assertion failed"
			}
			res.Pos = ob.pos
			res.Cex = buildCex(constraints, r.Model, s.st.Trace())
			return res
		case solver.Unknown:
			res.Verdict = Unknown
			res.Message = "solver could not decide the assertion"
			res.Pos = ob.pos
			return res
		}

		pr, err := e.solv.Solve(ctx, prefix)
		if err == nil && pr.Status == solver.Unsat {
			unreachable++
		}
	}

	if len(s.obligations) > 0 {
		if unreachable == len(s.obligations) {
			res.Verdict = Vacuous
			res.Message = "assumptions are unsatisfiable"
			return res
		}
		res.Verdict = Verified
		return res
	}

	r, err := e.solv.Solve(ctx, s.path)
	if err == nil && r.Status == solver.Unsat {
		res.Verdict = Vacuous
		res.Message = "assumptions are unsatisfiable"
		return res
	}
	res.Verdict = Verified
	return res
}

func taskError(res Result, err error) Result {
	res.Verdict = Error
	res.Message = err.Error()
	if pe, ok := err.(*evalError); ok {
		res.Pos = pe.pos
	}
	return res
}

package engine

import (
	"fmt"
	"time"

	"github.com/tenet-verify/tenet/spec"
)

// Verdict classifies the outcome of one verification task.
type Verdict uint8

const (
	// Verified: every assertion holds on all reachable paths.
	Verified Verdict = iota
	// Violated: some assignment satisfies the path and falsifies an
	// assertion; the counterexample carries the witness.
	Violated
	// Vacuous: the rule's assumptions are unsatisfiable, so its
	// assertions were never exercised.
	Vacuous
	// Unknown: the solver gave up or timed out.
	Unknown
	// Error: the task could not run, from a load failure to an
	// execution fault.
	Error
)

func (v Verdict) String() string {
	switch v {
	case Verified:
		return "Verified"
	case Violated:
		return "Violated"
	case Vacuous:
		return "Vacuous"
	case Unknown:
		return "Unknown"
	case Error:
		return "Error"
	}
	return fmt.Sprintf("Verdict(%d)", uint8(v))
}

// MarshalText renders the verdict name for textual encodings.
func (v Verdict) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// UnmarshalText parses a verdict name.
func (v *Verdict) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Verified":
		*v = Verified
	case "Violated":
		*v = Violated
	case "Vacuous":
		*v = Vacuous
	case "Unknown":
		*v = Unknown
	case "Error":
		*v = Error
	default:
		return fmt.Errorf("unknown verdict %q", b)
	}
	return nil
}

// Binding is one named value of a counterexample witness.
type Binding struct {
	Name  string
	Value string
}

// Counterexample is a concrete assignment falsifying an assertion,
// together with the execution trace that reached it.
type Counterexample struct {
	Bindings []Binding
	Trace    []string
}

// Result is the outcome of one verification task.
type Result struct {
	Rule    string // rule or invariant name
	Kind    string // "rule", "invariant base", "invariant step"
	Method  string // bound method signature, "" when none
	Verdict Verdict
	Message string
	Pos     spec.Pos
	Cex     *Counterexample
	Elapsed time.Duration
}

// Name renders the task identity, e.g. "noFreeTokens[transfer(address,uint256)]".
func (r Result) Name() string {
	if r.Method == "" {
		return r.Rule
	}
	return r.Rule + "[" + r.Method + "]"
}

// Report is the outcome of verifying one specification against one
// contract model. Results appear in task order regardless of worker
// scheduling.
type Report struct {
	Contract string
	Results  []Result
	Elapsed  time.Duration
}

// Counts tallies results per verdict.
func (r *Report) Counts() map[Verdict]int {
	out := map[Verdict]int{}
	for _, res := range r.Results {
		out[res.Verdict]++
	}
	return out
}

// Ok reports whether every task verified, counting Vacuous as a pass.
func (r *Report) Ok() bool {
	for _, res := range r.Results {
		switch res.Verdict {
		case Verified, Vacuous:
		default:
			return false
		}
	}
	return true
}

package state

import (
	"strings"

	"github.com/tenet-verify/tenet/symbolic"
)

// OpKind tags one trace record.
type OpKind uint8

const (
	OpRead OpKind = iota
	OpWrite
	OpCall
	OpAssume
)

func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpCall:
		return "call"
	case OpAssume:
		return "assume"
	}
	return "op"
}

// Record is one step of a session's execution trace.
type Record struct {
	Kind   OpKind
	Slot   string
	Keys   []symbolic.Expr
	Old    symbolic.Expr
	New    symbolic.Expr
	Detail string
}

func (r Record) String() string {
	var b strings.Builder
	b.WriteString(r.Kind.String())
	b.WriteByte(' ')
	b.WriteString(r.Slot)
	for _, k := range r.Keys {
		b.WriteByte('[')
		b.WriteString(k.String())
		b.WriteByte(']')
	}
	if r.Kind == OpWrite && r.New != nil {
		b.WriteString(" = ")
		b.WriteString(r.New.String())
	}
	if r.Detail != "" {
		b.WriteString(" (")
		b.WriteString(r.Detail)
		b.WriteByte(')')
	}
	return b.String()
}

// Trace is the ordered record of reads, writes and calls performed by
// one session. Counterexample reports replay it for the operator.
type Trace struct {
	records []Record
}

func (t *Trace) append(r Record) { t.records = append(t.records, r) }

// Note appends a free-form record, used by the executor for call
// boundaries and assumptions.
func (t *Trace) Note(kind OpKind, slot, detail string) {
	t.append(Record{Kind: kind, Slot: slot, Detail: detail})
}

// Records returns the trace in execution order.
func (t *Trace) Records() []Record { return t.records }

// Writes returns only the storage writes, in execution order.
func (t *Trace) Writes() []Record {
	var out []Record
	for _, r := range t.records {
		if r.Kind == OpWrite {
			out = append(out, r)
		}
	}
	return out
}

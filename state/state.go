// Package state models the symbolic contract state a verification
// session executes against: storage scalars and mappings, the call
// environment, ghost variables and the storage-write hooks that keep
// them synchronized.
//
// A State is private to one verification task. Sessions clone a fresh
// State at bind time and never share it, so parallel rule tasks cannot
// interfere through ghost or storage aliasing.
package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tenet-verify/tenet/symbolic"
)

var (
	// ErrGhostWrite is returned when ghost state is mutated outside a
	// hook body; hooks are the only legal update site after init.
	ErrGhostWrite = errors.New("state: ghost variable written outside hook")

	// ErrUnknownSlot is returned for reads or writes of undeclared
	// storage.
	ErrUnknownSlot = errors.New("state: unknown storage slot")
)

// Hook is a storage-write trigger. Fn runs once per matching write, in
// write order, with the key bindings and the old and new cell values.
type Hook struct {
	Slot string
	Fn   func(st *State, keys []symbolic.Expr, old, new symbolic.Expr) error
}

type write struct {
	keys []symbolic.Expr
	val  symbolic.Expr
}

// Mapping is one storage mapping: a fully symbolic base layer plus the
// ordered writes performed during execution.
type Mapping struct {
	name     string
	keySorts []symbolic.Sort
	valSort  symbolic.Sort
	zero     bool
	writes   []write
}

// State is the symbolic storage of one verification session.
type State struct {
	vars    *symbolic.Vars
	scalars map[string]symbolic.Expr
	maps    map[string]*Mapping
	ghosts  map[string]symbolic.Expr
	hooks   []Hook
	trace   Trace
	inHook  bool
}

// New returns an empty state drawing fresh symbols from vars.
func New(vars *symbolic.Vars) *State {
	return &State{
		vars:    vars,
		scalars: map[string]symbolic.Expr{},
		maps:    map[string]*Mapping{},
		ghosts:  map[string]symbolic.Expr{},
	}
}

// Clone deep-copies the state, sharing the symbol pool. Registered
// hooks carry over; the trace does not.
func (s *State) Clone() *State {
	out := New(s.vars)
	for k, v := range s.scalars {
		out.scalars[k] = v
	}
	for k, m := range s.maps {
		cp := &Mapping{name: m.name, keySorts: m.keySorts, valSort: m.valSort, zero: m.zero}
		cp.writes = append(cp.writes, m.writes...)
		out.maps[k] = cp
	}
	for k, v := range s.ghosts {
		out.ghosts[k] = v
	}
	out.hooks = append(out.hooks, s.hooks...)
	return out
}

// Vars exposes the session symbol pool.
func (s *State) Vars() *symbolic.Vars { return s.vars }

// Trace returns the execution trace accumulated so far.
func (s *State) Trace() *Trace { return &s.trace }

// RegisterHook attaches a storage-write hook. Hooks fire in
// registration order for writes matching their slot.
func (s *State) RegisterHook(h Hook) {
	s.hooks = append(s.hooks, h)
}

// DeclareScalar introduces a scalar slot with a fresh symbolic value.
func (s *State) DeclareScalar(name string, sort symbolic.Sort) symbolic.Expr {
	v := s.vars.Fresh(name+"0", sort)
	s.scalars[name] = v
	return v
}

// DeclareScalarInit introduces a scalar slot with an explicit initial
// value, without firing hooks.
func (s *State) DeclareScalarInit(name string, v symbolic.Expr) {
	s.scalars[name] = v
}

// DeclareMapping introduces a mapping slot with fully symbolic initial
// content.
func (s *State) DeclareMapping(name string, keySorts []symbolic.Sort, valSort symbolic.Sort) {
	s.maps[name] = &Mapping{name: name, keySorts: keySorts, valSort: valSort}
}

// ZeroMapping marks a mapping's unwritten cells as zero instead of
// symbolic, modelling freshly deployed storage.
func (s *State) ZeroMapping(name string) error {
	m, ok := s.maps[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, name)
	}
	m.zero = true
	return nil
}

// Scalar reads a scalar slot.
func (s *State) Scalar(name string) (symbolic.Expr, error) {
	v, ok := s.scalars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSlot, name)
	}
	s.trace.append(Record{Kind: OpRead, Slot: name, New: v})
	return v, nil
}

// SetScalar writes a scalar slot, firing matching hooks.
func (s *State) SetScalar(name string, v symbolic.Expr) error {
	old, ok := s.scalars[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, name)
	}
	s.scalars[name] = v
	s.trace.append(Record{Kind: OpWrite, Slot: name, Old: old, New: v})
	return s.fireHooks(name, nil, old, v)
}

// Get reads a mapping cell: the base symbolic content overlaid with
// every write performed so far, latest first.
func (s *State) Get(name string, keys ...symbolic.Expr) (symbolic.Expr, error) {
	m, ok := s.maps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSlot, name)
	}
	if len(keys) != len(m.keySorts) {
		return nil, fmt.Errorf("state: %s expects %d keys, got %d", name, len(m.keySorts), len(keys))
	}
	v, err := m.lookup(keys)
	if err != nil {
		return nil, err
	}
	s.trace.append(Record{Kind: OpRead, Slot: name, Keys: keys, New: v})
	return v, nil
}

func (m *Mapping) lookup(keys []symbolic.Expr) (symbolic.Expr, error) {
	acc := symbolic.Expr(&symbolic.Select{Map: m.name, Key: keys, S: m.valSort})
	if m.zero {
		acc = symbolic.NewInt(0, m.valSort)
	}
	for _, w := range m.writes {
		same := symbolic.Expr(symbolic.True)
		for i, k := range keys {
			eq, err := symbolic.EqExpr(k, w.keys[i])
			if err != nil {
				return nil, err
			}
			same, err = symbolic.AndExpr(same, eq)
			if err != nil {
				return nil, err
			}
		}
		var err error
		acc, err = symbolic.IteExpr(same, w.val, acc)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// Set writes a mapping cell, firing matching hooks with the old and new
// values.
func (s *State) Set(name string, keys []symbolic.Expr, val symbolic.Expr) error {
	old, err := s.put(name, keys, val)
	if err != nil {
		return err
	}
	return s.fireHooks(name, keys, old, val)
}

// Patch writes a mapping cell without firing hooks. It models a raw
// storage mutation invisible to the hook instrumentation; ghost state
// silently diverges, which invariant checking is expected to expose.
func (s *State) Patch(name string, keys []symbolic.Expr, val symbolic.Expr) error {
	_, err := s.put(name, keys, val)
	return err
}

func (s *State) put(name string, keys []symbolic.Expr, val symbolic.Expr) (symbolic.Expr, error) {
	m, ok := s.maps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSlot, name)
	}
	if len(keys) != len(m.keySorts) {
		return nil, fmt.Errorf("state: %s expects %d keys, got %d", name, len(m.keySorts), len(keys))
	}
	if val.Sort() != m.valSort {
		return nil, &symbolic.TypeError{Op: "store " + name, Left: val.Sort(), Right: m.valSort}
	}
	old, err := m.lookup(keys)
	if err != nil {
		return nil, err
	}
	m.writes = append(m.writes, write{keys: keys, val: val})
	s.trace.append(Record{Kind: OpWrite, Slot: name, Keys: keys, Old: old, New: val})
	return old, nil
}

func (s *State) fireHooks(slot string, keys []symbolic.Expr, old, new symbolic.Expr) error {
	for _, h := range s.hooks {
		if h.Slot != slot {
			continue
		}
		s.inHook = true
		err := h.Fn(s, keys, old, new)
		s.inHook = false
		if err != nil {
			return err
		}
	}
	return nil
}

// InitGhost sets a ghost's initial value; legal only before execution
// mutates it through hooks.
func (s *State) InitGhost(name string, v symbolic.Expr) {
	s.ghosts[name] = v
}

// Ghost reads a ghost variable.
func (s *State) Ghost(name string) (symbolic.Expr, bool) {
	v, ok := s.ghosts[name]
	return v, ok
}

// SetGhost mutates a ghost variable; only hook bodies may call it.
func (s *State) SetGhost(name string, v symbolic.Expr) error {
	if !s.inHook {
		return fmt.Errorf("%w: %s", ErrGhostWrite, name)
	}
	s.ghosts[name] = v
	return nil
}

// Ghosts returns the ghost names in no particular order.
func (s *State) Ghosts() []string {
	out := make([]string, 0, len(s.ghosts))
	for name := range s.ghosts {
		out = append(out, name)
	}
	return out
}

// HasMapping reports whether a mapping slot is declared.
func (s *State) HasMapping(name string) bool {
	_, ok := s.maps[name]
	return ok
}

// MappingKeySorts returns the key sorts of a declared mapping.
func (s *State) MappingKeySorts(name string) ([]symbolic.Sort, bool) {
	m, ok := s.maps[name]
	if !ok {
		return nil, false
	}
	return m.keySorts, true
}

// MappingValSort returns the value sort of a declared mapping.
func (s *State) MappingValSort(name string) (symbolic.Sort, bool) {
	m, ok := s.maps[name]
	if !ok {
		return symbolic.Invalid, false
	}
	return m.valSort, true
}

// Scalars returns the declared scalar slot names, sorted.
func (s *State) Scalars() []string {
	out := make([]string, 0, len(s.scalars))
	for name := range s.scalars {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Mappings returns the declared mapping slot names, sorted.
func (s *State) Mappings() []string {
	out := make([]string, 0, len(s.maps))
	for name := range s.maps {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

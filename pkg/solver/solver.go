// Package solver implements the Registered Solver registry: a solver
// stakes a bond once to become eligible, and that bond is the pool the
// settlement state machine later slashes against.
//
// Grounded on original_source's contracts/settlement/src/handlers.rs
// (execute_register_solver/execute_deregister_solver), translated from a
// CosmWasm Map<solver_id, RegisteredSolver> plus bank-send messages to a
// Go in-memory registry guarded by a single mutex.
package solver

import (
	"sync"

	"github.com/atomintents/intentcore/pkg/xdecimal"
	"github.com/atomintents/intentcore/pkg/xerrors"
)

// Solver is a registered market participant eligible to receive quote
// routing and settlement assignment (spec.md §3 "Registered Solver").
type Solver struct {
	ID                string
	Operator          string
	BondAmount        xdecimal.Amount
	Active            bool
	TotalSettlements  uint64
	FailedSettlements uint64
	RegisteredAt      int64
	openSettlements   uint64
}

// Registry tracks registered solvers and their bonds.
type Registry struct {
	mu      sync.RWMutex
	minBond xdecimal.Amount
	solvers map[string]*Solver
}

// NewRegistry constructs an empty Registry requiring at least minBond to
// register.
func NewRegistry(minBond xdecimal.Amount) *Registry {
	return &Registry{
		minBond: minBond,
		solvers: make(map[string]*Solver),
	}
}

// Register enrolls a new solver, requiring bondAmount >= the configured
// minimum (original_source: InsufficientBond).
func (r *Registry) Register(id, operator string, bondAmount xdecimal.Amount, now int64) (*Solver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.solvers[id]; exists {
		return nil, xerrors.New(xerrors.Validation, xerrors.CodeDuplicateID, "solver already registered")
	}
	if bondAmount.Cmp(r.minBond) < 0 {
		return nil, xerrors.New(xerrors.Validation, xerrors.CodeInsufficientBond, "bond below minimum required")
	}

	s := &Solver{
		ID:           id,
		Operator:     operator,
		BondAmount:   bondAmount,
		Active:       true,
		RegisteredAt: now,
	}
	r.solvers[id] = s
	return cloneSolver(s), nil
}

// Deregister returns the bond to the operator. Permitted only when no
// open settlement currently references the solver (spec.md §4.E).
func (r *Registry) Deregister(id, caller string) (xdecimal.Amount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.solvers[id]
	if !ok {
		return xdecimal.Zero, xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "solver not registered")
	}
	if caller != s.Operator {
		return xdecimal.Zero, xerrors.New(xerrors.Authorization, xerrors.CodeUnauthorized, "only the operator may deregister")
	}
	if s.openSettlements > 0 {
		return xdecimal.Zero, xerrors.New(xerrors.StateTransition, xerrors.CodeInvalidStateTransition, "solver has open settlements referencing it")
	}

	bond := s.BondAmount
	delete(r.solvers, id)
	return bond, nil
}

// Get returns a defensive copy of the registered solver.
func (r *Registry) Get(id string) (*Solver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.solvers[id]
	if !ok {
		return nil, xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "solver not registered")
	}
	return cloneSolver(s), nil
}

// RecordSettlementOpened increments the solver's open-settlement count,
// blocking deregistration for as long as it stays above zero.
func (r *Registry) RecordSettlementOpened(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.solvers[id]
	if !ok {
		return xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "solver not registered")
	}
	s.openSettlements++
	return nil
}

// RecordSettlementClosed decrements the open-settlement count and
// updates the total/failed counters attributed to this solver.
func (r *Registry) RecordSettlementClosed(id string, failed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.solvers[id]
	if !ok {
		return xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "solver not registered")
	}
	if s.openSettlements > 0 {
		s.openSettlements--
	}
	s.TotalSettlements++
	if failed {
		s.FailedSettlements++
	}
	return nil
}

// Slash reduces the solver's bond by amount, capped at the remaining
// bond, and returns the amount actually removed — spec.md §4.F: "capped
// at solver's remaining bond".
func (r *Registry) Slash(id string, amount xdecimal.Amount) (xdecimal.Amount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.solvers[id]
	if !ok {
		return xdecimal.Zero, xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "solver not registered")
	}
	actual := xdecimal.Min(amount, s.BondAmount)
	s.BondAmount = s.BondAmount.Sub(actual)
	return actual, nil
}

func cloneSolver(s *Solver) *Solver {
	cp := *s
	return &cp
}

// Package vault implements the logical Solver Vault (spec.md §4.E):
// per-settlement collateral locks that gate a solver's commitment to a
// settlement without drawing down the solver's registered bond — the
// bond itself is only ever touched by slashing (pkg/solver.Registry.Slash).
//
// Grounded on the same lock/release/refund shape as pkg/escrow (itself
// grounded on original_source/contracts/escrow/src/contract.rs), since
// spec.md §4.E describes the vault as the solver-side mirror of the
// escrow contract: "lock", "unlock" (on abort), "mark_complete" (on
// success) in place of escrow's "lock"/"refund"/"release".
package vault

import (
	"sync"

	"github.com/atomintents/intentcore/pkg/xdecimal"
	"github.com/atomintents/intentcore/pkg/xerrors"
)

// Status is the tagged state of one vault lock.
type Status int

const (
	VaultLocked Status = iota
	VaultUnlocked
	VaultCompleted
)

func (s Status) String() string {
	switch s {
	case VaultLocked:
		return "locked"
	case VaultUnlocked:
		return "unlocked"
	case VaultCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Lock is one solver collateral commitment for a single settlement.
type Lock struct {
	ID        string
	SolverID  string
	Amount    xdecimal.Amount
	Denom     string
	ExpiresAt int64
	Status    Status
}

// Vault is the capability interface the settlement state machine depends
// on for phase 2 of the two-phase protocol (spec.md §4.F).
type Vault interface {
	Lock(lockID, solverID string, amount xdecimal.Amount, denom string, expiresAt int64) (*Lock, error)
	Unlock(lockID string) error
	MarkComplete(lockID string) error
	Get(lockID string) (*Lock, error)
}

// MemVault is an in-memory reference implementation.
type MemVault struct {
	mu    sync.Mutex
	locks map[string]*Lock
}

// NewMemVault constructs an empty MemVault.
func NewMemVault() *MemVault {
	return &MemVault{locks: make(map[string]*Lock)}
}

// Lock records a per-settlement collateral commitment. This is a
// commitment gate, not a bond debit — spec.md §4.E: "per-settlement
// vault locks draw against the bond conceptually but do not reduce it".
func (v *MemVault) Lock(lockID, solverID string, amount xdecimal.Amount, denom string, expiresAt int64) (*Lock, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.locks[lockID]; exists {
		return nil, xerrors.New(xerrors.Validation, xerrors.CodeDuplicateID, "vault lock already exists")
	}

	l := &Lock{
		ID:        lockID,
		SolverID:  solverID,
		Amount:    amount,
		Denom:     denom,
		ExpiresAt: expiresAt,
		Status:    VaultLocked,
	}
	v.locks[lockID] = l
	return cloneLock(l), nil
}

// Unlock releases the commitment on settlement abort, without touching
// the solver's bond (the settlement state machine slashes the bond
// directly via pkg/solver when a failure is the solver's fault).
func (v *MemVault) Unlock(lockID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	l, ok := v.locks[lockID]
	if !ok {
		return xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "vault lock not found")
	}
	if l.Status != VaultLocked {
		return xerrors.New(xerrors.StateTransition, xerrors.CodeInvalidStateTransition, "vault lock is not locked")
	}
	l.Status = VaultUnlocked
	return nil
}

// MarkComplete finalizes the commitment on settlement success.
func (v *MemVault) MarkComplete(lockID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	l, ok := v.locks[lockID]
	if !ok {
		return xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "vault lock not found")
	}
	if l.Status != VaultLocked {
		return xerrors.New(xerrors.StateTransition, xerrors.CodeInvalidStateTransition, "vault lock is not locked")
	}
	l.Status = VaultCompleted
	return nil
}

// Get returns a defensive copy of a vault lock.
func (v *MemVault) Get(lockID string) (*Lock, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	l, ok := v.locks[lockID]
	if !ok {
		return nil, xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "vault lock not found")
	}
	return cloneLock(l), nil
}

func cloneLock(l *Lock) *Lock {
	cp := *l
	return &cp
}

var _ Vault = (*MemVault)(nil)

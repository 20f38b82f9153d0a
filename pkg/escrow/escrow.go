// Package escrow implements the logical Escrow Contract capability
// (spec.md §4.D): lock user funds, release-or-refund on command, with a
// Refunding sub-state for cross-chain-originated locks awaiting an
// inter-chain acknowledgement.
//
// Grounded on original_source's contracts/escrow/src/contract.rs
// (execute_lock/execute_release/execute_refund/execute_update_config) and
// its adversarial test suite (contracts/escrow/tests/adversarial_escrow_tests.rs,
// particularly test_lock_from_ibc_*/test_cross_chain_refund_uses_ibc for the
// LockFromIbc shape and the Refunding status), translated from a CosmWasm
// entry-point contract to a Go capability interface + in-memory
// implementation, per this module's capability-interface pattern
// (Jason-chen-taiwan-arcSignv2's storage.TransactionStateStore/MockTxStore).
package escrow

import (
	"sync"

	"github.com/atomintents/intentcore/pkg/xdecimal"
	"github.com/atomintents/intentcore/pkg/xerrors"
)

// Status is the tagged state of one escrow lock.
type Status int

const (
	Locked Status = iota
	Released
	Refunded
	Refunding
)

func (s Status) String() string {
	switch s {
	case Locked:
		return "locked"
	case Released:
		return "released"
	case Refunded:
		return "refunded"
	case Refunding:
		return "refunding"
	default:
		return "unknown"
	}
}

// Lock is one escrow record.
type Lock struct {
	ID        string
	Owner     string
	Amount    xdecimal.Amount
	Denom     string
	IntentID  string
	ExpiresAt int64
	Status    Status
	Recipient string // set once Released

	// Cross-chain-originated fields, set only by LockFromIBC.
	OwnerChainID    string
	OwnerSourceAddr string
	SourceChannel   string
}

// Validate checks the Released variant's payload: a Released lock must
// name the recipient it was paid to.
func (l Lock) Validate() error {
	if l.Status == Released && l.Recipient == "" {
		return xerrors.New(xerrors.Integrity, xerrors.CodeMalformedFields, "released lock missing recipient")
	}
	return nil
}

// Config holds the controller identity and the inter-chain-denom
// predicate used by LockFromIBC.
type Config struct {
	Admin                string
	SettlementController string
	IsInterChainDenom    func(denom string) bool
}

// Escrow is the capability interface the settlement state machine depends
// on — spec.md §4.D's logical contract.
type Escrow interface {
	Lock(owner string, amount xdecimal.Amount, denom, escrowID, intentID string, expiresAt int64) (*Lock, error)
	LockFromIBC(intentID, denom string, amount xdecimal.Amount, expiresAt int64, ownerSourceAddr, ownerChainID, sourceChannel string) (*Lock, error)
	Release(lockID, caller, recipient string, now int64) error
	Refund(lockID, caller string, now int64) error
	Get(lockID string) (*Lock, error)
	GetByIntent(intentID string) (*Lock, error)
	UpdateConfig(caller string, cfg Config) error
}

// MemEscrow is an in-memory reference implementation, guarded by a single
// mutex per spec.md §5 "Shared resources ... all operations are strict
// single-lock".
type MemEscrow struct {
	mu sync.Mutex

	cfg Config

	locks    map[string]*Lock
	byIntent map[string]string // intent_id -> lock_id
}

// NewMemEscrow constructs an in-memory Escrow with the given config.
func NewMemEscrow(cfg Config) *MemEscrow {
	return &MemEscrow{
		cfg:      cfg,
		locks:    make(map[string]*Lock),
		byIntent: make(map[string]string),
	}
}

// Lock creates a new Locked escrow record. Requires escrow_id not present
// and intent_id not already bound to another lock (spec.md §4.D).
func (e *MemEscrow) Lock(owner string, amount xdecimal.Amount, denom, escrowID, intentID string, expiresAt int64) (*Lock, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.locks[escrowID]; exists {
		return nil, xerrors.New(xerrors.Validation, xerrors.CodeDuplicateID, "escrow already exists")
	}
	if _, bound := e.byIntent[intentID]; bound {
		return nil, xerrors.New(xerrors.Validation, xerrors.CodeDuplicateID, "intent already bound to another escrow")
	}

	l := &Lock{
		ID:        escrowID,
		Owner:     owner,
		Amount:    amount,
		Denom:     denom,
		IntentID:  intentID,
		ExpiresAt: expiresAt,
		Status:    Locked,
	}
	e.locks[escrowID] = l
	e.byIntent[intentID] = escrowID
	return cloneLock(l), nil
}

// LockFromIBC creates a Locked escrow for funds that arrived via an
// inter-chain transfer. Requires the arriving denom pass the configured
// inter-chain-denom prefix check (original_source: NotIbcFunds) and the
// intent_id not already be escrowed (original_source: IntentAlreadyEscrowed
// replay protection).
func (e *MemEscrow) LockFromIBC(intentID, denom string, amount xdecimal.Amount, expiresAt int64, ownerSourceAddr, ownerChainID, sourceChannel string) (*Lock, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.IsInterChainDenom == nil || !e.cfg.IsInterChainDenom(denom) {
		return nil, xerrors.New(xerrors.Validation, xerrors.CodeMalformedFields, "denom is not an inter-chain-derived denom")
	}
	if _, bound := e.byIntent[intentID]; bound {
		return nil, xerrors.New(xerrors.Validation, xerrors.CodeDuplicateID, "intent already escrowed")
	}

	escrowID := "esc_" + intentID
	l := &Lock{
		ID:              escrowID,
		Owner:           ownerSourceAddr,
		Amount:          amount,
		Denom:           denom,
		IntentID:        intentID,
		ExpiresAt:       expiresAt,
		Status:          Locked,
		OwnerChainID:    ownerChainID,
		OwnerSourceAddr: ownerSourceAddr,
		SourceChannel:   sourceChannel,
	}
	e.locks[escrowID] = l
	e.byIntent[intentID] = escrowID
	return cloneLock(l), nil
}

// Release instructs the escrow to pay recipient. Requires the caller be
// the configured settlement controller, the lock be Locked, and
// now < expires_at — spec.md §4.D: "prevents the race where a user
// initiates refund at expiration while controller concurrently releases".
func (e *MemEscrow) Release(lockID, caller, recipient string, now int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.SettlementController {
		return xerrors.New(xerrors.Authorization, xerrors.CodeUnauthorized, "only the settlement controller may release an escrow")
	}

	l, ok := e.locks[lockID]
	if !ok {
		return xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "escrow not found")
	}
	if l.Status != Locked {
		return xerrors.New(xerrors.StateTransition, xerrors.CodeInvalidStateTransition, "escrow is not locked")
	}
	if now >= l.ExpiresAt {
		return xerrors.New(xerrors.StateTransition, xerrors.CodeInvalidStateTransition, "escrow has expired, release window closed")
	}

	l.Status = Released
	l.Recipient = recipient
	return nil
}

// Refund returns the locked funds to their owner. Requires the caller be
// either the lock owner or the settlement controller (cross-chain
// escrows route refunds back over inter-chain rails via the controller),
// the lock be Locked, and now >= expires_at. Cross-chain-originated locks
// transition to Refunding, not directly to Refunded, until a positive
// inter-chain acknowledgement arrives (see CompleteIBCRefund).
func (e *MemEscrow) Refund(lockID, caller string, now int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[lockID]
	if !ok {
		return xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "escrow not found")
	}
	if caller != l.Owner && caller != e.cfg.SettlementController {
		return xerrors.New(xerrors.Authorization, xerrors.CodeUnauthorized, "caller may not refund this escrow")
	}
	if l.Status != Locked {
		return xerrors.New(xerrors.StateTransition, xerrors.CodeInvalidStateTransition, "escrow is not locked")
	}
	if now < l.ExpiresAt {
		return xerrors.New(xerrors.StateTransition, xerrors.CodeInvalidStateTransition, "escrow has not yet expired")
	}

	if l.OwnerChainID != "" {
		l.Status = Refunding
		return nil
	}
	l.Status = Refunded
	return nil
}

// CompleteIBCRefund finalizes a Refunding lock once the inter-chain
// transfer back to the owner is positively acknowledged.
func (e *MemEscrow) CompleteIBCRefund(lockID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[lockID]
	if !ok {
		return xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "escrow not found")
	}
	if l.Status != Refunding {
		return xerrors.New(xerrors.StateTransition, xerrors.CodeInvalidStateTransition, "escrow is not awaiting an inter-chain refund ack")
	}
	l.Status = Refunded
	return nil
}

// Get returns a defensive copy of a lock by id.
func (e *MemEscrow) Get(lockID string) (*Lock, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[lockID]
	if !ok {
		return nil, xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "escrow not found")
	}
	return cloneLock(l), nil
}

// GetByIntent returns a defensive copy of the lock bound to intentID.
func (e *MemEscrow) GetByIntent(intentID string) (*Lock, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byIntent[intentID]
	if !ok {
		return nil, xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "no escrow bound to intent")
	}
	return cloneLock(e.locks[id]), nil
}

// UpdateConfig is admin-only (spec.md §4.D).
func (e *MemEscrow) UpdateConfig(caller string, cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.cfg.Admin {
		return xerrors.New(xerrors.Authorization, xerrors.CodeUnauthorized, "only admin may update escrow config")
	}
	e.cfg = cfg
	return nil
}

func cloneLock(l *Lock) *Lock {
	cp := *l
	return &cp
}

var _ Escrow = (*MemEscrow)(nil)

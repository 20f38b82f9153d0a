// Package settlement implements the two-phase commit settlement state
// machine (spec.md §4.F): the safety-critical core coordinating an
// escrow lock, a solver vault lock, an inter-chain transfer, and the
// asynchronous ack/timeout callback that finalizes it.
//
// Grounded on original_source's contracts/settlement/src/handlers.rs —
// execute_mark_user_locked/execute_mark_solver_locked/execute_mark_executing
// for phase transitions, execute_handle_ibc_ack/execute_handle_timeout for
// the terminal callbacks (release-vs-refund dispatch to the escrow
// contract), and execute_slash_solver for the slashing formula — all of
// which gate every mutation behind `status.can_transition_to(&target)`,
// translated here into a single data-driven edge table (transitionTable)
// so the guard is defined once instead of re-checked ad hoc per handler.
package settlement

import (
	"sync"

	"github.com/atomintents/intentcore/pkg/escrow"
	"github.com/atomintents/intentcore/pkg/solver"
	"github.com/atomintents/intentcore/pkg/vault"
	"github.com/atomintents/intentcore/pkg/xdecimal"
	"github.com/atomintents/intentcore/pkg/xerrors"
)

// StatusKind is the tagged state of a settlement (spec.md §4.F).
type StatusKind int

const (
	Pending StatusKind = iota
	UserLocked
	SolverLocked
	Executing
	Completed
	Failed
	TimedOut
	Slashed
)

func (k StatusKind) String() string {
	switch k {
	case Pending:
		return "pending"
	case UserLocked:
		return "user_locked"
	case SolverLocked:
		return "solver_locked"
	case Executing:
		return "executing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	case Slashed:
		return "slashed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition may occur from k.
func (k StatusKind) IsTerminal() bool {
	switch k {
	case Completed, Failed, TimedOut, Slashed:
		return true
	default:
		return false
	}
}

// transitionTable enumerates every legal edge of spec.md §4.F's table.
// Any edge absent here is a fatal invariant violation reported as
// CodeInvalidStateTransition, never silently allowed.
var transitionTable = map[StatusKind]map[StatusKind]bool{
	Pending:      {UserLocked: true},
	UserLocked:   {SolverLocked: true},
	SolverLocked: {Executing: true},
	Executing:    {Completed: true, Failed: true, TimedOut: true},
}

func canTransition(from, to StatusKind) bool {
	if to == Slashed {
		return !from.IsTerminal()
	}
	edges, ok := transitionTable[from]
	return ok && edges[to]
}

// Asset is a denom-amount pair, independent of chain — the settlement
// record only needs the legs it must lock/release, not routing metadata.
type Asset struct {
	Denom  string
	Amount xdecimal.Amount
}

// Settlement is one in-flight or terminal two-phase commit instance.
type Settlement struct {
	ID             string
	IntentID       string
	SolverID       string
	User           string
	UserInput      Asset
	SolverOutput   Asset
	EscrowID       string
	VaultLockID    string
	Status         StatusKind
	FailReason     string
	SlashAmount    xdecimal.Amount
	CreatedAt      int64
	ExpiresAt      int64
	PacketSequence *uint64
}

// TransitionRecord is one audit-log entry of a status change.
type TransitionRecord struct {
	SettlementID string
	From         StatusKind
	To           StatusKind
	Timestamp    int64
	Detail       string
	TxHash       string
}

// Store is the durable settlement persistence capability the controller
// depends on (spec.md §4.I) — implemented by pkg/settlementstore.
type Store interface {
	Create(s *Settlement) error
	Get(id string) (*Settlement, error)
	GetByIntent(intentID string) (*Settlement, error)
	Update(s *Settlement) error
	RecordTransition(tr TransitionRecord) error
	ListByStatus(status StatusKind) ([]*Settlement, error)
	ListStuck(now int64) ([]*Settlement, error)
	ListBySolver(solverID string) ([]*Settlement, error)
	History(settlementID string) ([]TransitionRecord, error)
}

// Config holds the identities authorized to drive each transition and
// the slashing constants (spec.md §4.F).
type Config struct {
	Admin          string
	EscrowContract string // caller identity authorized to call MarkUserLocked
	AckAuthority   string // caller identity authorized to call HandleAck/HandleTimeout

	// SelfIdentity is this controller's own caller identity when it
	// invokes escrow.Release/Refund — must match the identity configured
	// as the escrow contract's SettlementController (escrow.Config).
	SelfIdentity   string
	BaseSlashBps   uint64
	MinSlashAmount xdecimal.Amount
}

// Controller drives the settlement state machine, coordinating the
// escrow and vault capability interfaces and the solver registry through
// the two-phase protocol (spec.md §4.F "Two-phase protocol").
type Controller struct {
	mu      sync.Mutex
	cfg     Config
	store   Store
	escrow  escrow.Escrow
	vault   vault.Vault
	solvers *solver.Registry
}

// NewController wires a settlement Controller to its collaborators.
func NewController(cfg Config, store Store, esc escrow.Escrow, v vault.Vault, solvers *solver.Registry) *Controller {
	return &Controller{cfg: cfg, store: store, escrow: esc, vault: v, solvers: solvers}
}

func (c *Controller) transition(s *Settlement, to StatusKind, now int64, detail string) error {
	if !canTransition(s.Status, to) {
		return xerrors.New(xerrors.StateTransition, xerrors.CodeInvalidStateTransition,
			"illegal settlement transition "+s.Status.String()+" -> "+to.String())
	}
	from := s.Status
	s.Status = to
	if err := c.store.Update(s); err != nil {
		return err
	}
	return c.store.RecordTransition(TransitionRecord{
		SettlementID: s.ID,
		From:         from,
		To:           to,
		Timestamp:    now,
		Detail:       detail,
	})
}

// Create registers a new Pending settlement. Requires caller be the
// solver's registered operator (original_source: execute_create_settlement).
func (c *Controller) Create(caller string, id, intentID, solverID, user string, userInput, solverOutput Asset, now, expiresAt int64) (*Settlement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sv, err := c.solvers.Get(solverID)
	if err != nil {
		return nil, err
	}
	if caller != sv.Operator {
		return nil, xerrors.New(xerrors.Authorization, xerrors.CodeUnauthorized, "only the solver's operator may create a settlement")
	}
	if _, err := c.store.GetByIntent(intentID); err == nil {
		return nil, xerrors.New(xerrors.Validation, xerrors.CodeDuplicateID, "intent already has a non-failed settlement")
	}

	s := &Settlement{
		ID:           id,
		IntentID:     intentID,
		SolverID:     solverID,
		User:         user,
		UserInput:    userInput,
		SolverOutput: solverOutput,
		Status:       Pending,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
	}
	if err := c.store.Create(s); err != nil {
		return nil, err
	}
	if err := c.solvers.RecordSettlementOpened(solverID); err != nil {
		return nil, err
	}
	return s, nil
}

// MarkUserLocked advances Pending -> UserLocked once the escrow lock
// succeeds. Caller must be the configured escrow-contract identity.
func (c *Controller) MarkUserLocked(caller, settlementID, escrowID string, now int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.cfg.EscrowContract {
		return xerrors.New(xerrors.Authorization, xerrors.CodeUnauthorized, "only the escrow contract may report a user lock")
	}
	s, err := c.store.Get(settlementID)
	if err != nil {
		return err
	}
	s.EscrowID = escrowID
	return c.transition(s, UserLocked, now, "escrow_id="+escrowID)
}

// MarkSolverLocked advances UserLocked -> SolverLocked once the solver
// vault lock succeeds. Caller must be the solver's operator.
func (c *Controller) MarkSolverLocked(caller, settlementID, vaultLockID string, now int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.store.Get(settlementID)
	if err != nil {
		return err
	}
	sv, err := c.solvers.Get(s.SolverID)
	if err != nil {
		return err
	}
	if caller != sv.Operator {
		return xerrors.New(xerrors.Authorization, xerrors.CodeUnauthorized, "only the solver's operator may report a vault lock")
	}
	s.VaultLockID = vaultLockID
	return c.transition(s, SolverLocked, now, "vault_lock_id="+vaultLockID)
}

// MarkExecuting advances SolverLocked -> Executing once the inter-chain
// transfer is submitted. Caller must be admin or the solver's operator;
// a transfer submitted at or past expires_at would be doomed, so it's
// rejected (spec.md §4.F "Timeout discipline").
func (c *Controller) MarkExecuting(caller, settlementID string, now int64, packetSequence *uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.store.Get(settlementID)
	if err != nil {
		return err
	}
	sv, err := c.solvers.Get(s.SolverID)
	if err != nil {
		return err
	}
	if caller != c.cfg.Admin && caller != sv.Operator {
		return xerrors.New(xerrors.Authorization, xerrors.CodeUnauthorized, "only admin or the solver's operator may mark executing")
	}
	if now >= s.ExpiresAt {
		return xerrors.New(xerrors.StateTransition, xerrors.CodeExpired, "settlement has already expired, refusing to submit a doomed transfer")
	}
	s.PacketSequence = packetSequence
	return c.transition(s, Executing, now, "transfer submitted")
}

// HandleAck finalizes Executing -> {Completed | Failed} on the
// inter-chain acknowledgement. On success it releases escrow to the
// solver operator and marks the vault lock complete; on failure it
// refunds the user and unlocks the vault — original_source:
// execute_handle_ibc_ack's success/failure branches.
func (c *Controller) HandleAck(caller, settlementID string, success bool, now int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.cfg.AckAuthority {
		return xerrors.New(xerrors.Authorization, xerrors.CodeUnauthorized, "only the ack authority may report an inter-chain ack")
	}
	s, err := c.store.Get(settlementID)
	if err != nil {
		return err
	}

	if success {
		sv, err := c.solvers.Get(s.SolverID)
		if err != nil {
			return err
		}
		if err := c.transition(s, Completed, now, "inter-chain ack: success"); err != nil {
			return err
		}
		if err := c.escrow.Release(s.EscrowID, c.cfg.SelfIdentity, sv.Operator, now); err != nil {
			return err
		}
		if err := c.vault.MarkComplete(s.VaultLockID); err != nil {
			return err
		}
		return c.solvers.RecordSettlementClosed(s.SolverID, false)
	}

	s.FailReason = "inter-chain transfer failed"
	if err := c.transition(s, Failed, now, s.FailReason); err != nil {
		return err
	}
	if err := c.escrow.Refund(s.EscrowID, c.cfg.SelfIdentity, now); err != nil {
		return err
	}
	if err := c.vault.Unlock(s.VaultLockID); err != nil {
		return err
	}
	return c.solvers.RecordSettlementClosed(s.SolverID, true)
}

// HandleTimeout finalizes Executing -> TimedOut when the inter-chain
// transfer's own deadline elapses without an ack, refunding the user and
// unlocking the vault — original_source: execute_handle_timeout.
func (c *Controller) HandleTimeout(caller, settlementID string, now int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.cfg.AckAuthority {
		return xerrors.New(xerrors.Authorization, xerrors.CodeUnauthorized, "only the ack authority may report a timeout")
	}
	s, err := c.store.Get(settlementID)
	if err != nil {
		return err
	}
	s.FailReason = "inter-chain transfer timeout"
	if err := c.transition(s, TimedOut, now, s.FailReason); err != nil {
		return err
	}
	if err := c.escrow.Refund(s.EscrowID, c.cfg.SelfIdentity, now); err != nil {
		return err
	}
	if err := c.vault.Unlock(s.VaultLockID); err != nil {
		return err
	}
	return c.solvers.RecordSettlementClosed(s.SolverID, true)
}

// Slash transitions any non-terminal settlement to Slashed, reducing the
// solver's bond by max(base_slash_bps * input / 10000, MIN_SLASH_AMOUNT)
// capped at the remaining bond — original_source: execute_slash_solver.
// Caller must be admin.
func (c *Controller) Slash(caller, settlementID string, now int64) (xdecimal.Amount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.cfg.Admin {
		return xdecimal.Zero, xerrors.New(xerrors.Authorization, xerrors.CodeUnauthorized, "only admin may slash a solver")
	}
	s, err := c.store.Get(settlementID)
	if err != nil {
		return xdecimal.Zero, err
	}
	if s.Status.IsTerminal() {
		return xdecimal.Zero, xerrors.New(xerrors.StateTransition, xerrors.CodeInvalidStateTransition,
			"cannot slash a settlement already in terminal status "+s.Status.String())
	}

	calculated, err := s.UserInput.Amount.MulBpsTrunc(c.cfg.BaseSlashBps)
	if err != nil {
		return xdecimal.Zero, err
	}
	target := xdecimal.Max(calculated, c.cfg.MinSlashAmount)

	actual, err := c.solvers.Slash(s.SolverID, target)
	if err != nil {
		return xdecimal.Zero, err
	}

	s.SlashAmount = actual
	if err := c.transition(s, Slashed, now, "slash_amount="+actual.String()); err != nil {
		return xdecimal.Zero, err
	}
	return actual, nil
}

// UpdateConfig is admin-only.
func (c *Controller) UpdateConfig(caller string, cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.cfg.Admin {
		return xerrors.New(xerrors.Authorization, xerrors.CodeUnauthorized, "only admin may update settlement config")
	}
	c.cfg = cfg
	return nil
}

package recovery

import (
	"sync"
	"time"

	"github.com/atomintents/intentcore/pkg/xdecimal"
	"github.com/atomintents/intentcore/pkg/xerrors"
	"github.com/atomintents/intentcore/pkg/xutil"
)

// DrainModeKind is the lifecycle state of the drain state machine:
// Active -> Draining -> Drained -> (optionally) Upgrading -> Active.
// Grounded on original_source's crates/orchestrator/src/upgrade.rs
// DrainMode enum.
type DrainModeKind int

const (
	Active DrainModeKind = iota
	Draining
	Drained
	Upgrading
)

func (k DrainModeKind) String() string {
	switch k {
	case Draining:
		return "draining"
	case Drained:
		return "drained"
	case Upgrading:
		return "upgrading"
	default:
		return "active"
	}
}

// DrainState is the current drain-mode snapshot.
type DrainState struct {
	Mode        DrainModeKind
	StartedAt   int64
	Deadline    int64
	Reason      string
	CompletedAt int64
	Version     string // set only while Upgrading
}

// InflightPhase is the phase of one in-progress settlement intake,
// tracked so drain can tell safe-to-drop work from funds-at-risk work.
type InflightPhase int

const (
	Validating InflightPhase = iota
	Matching
	LockingUserFunds
	LockingSolverBond
	ExecutingIBC
	WaitingForAck
	Completing
)

func (p InflightPhase) String() string {
	switch p {
	case Matching:
		return "matching"
	case LockingUserFunds:
		return "locking_user_funds"
	case LockingSolverBond:
		return "locking_solver_bond"
	case ExecutingIBC:
		return "executing_ibc"
	case WaitingForAck:
		return "waiting_for_ack"
	case Completing:
		return "completing"
	default:
		return "validating"
	}
}

// HasLockedFunds reports whether funds may already be committed at
// this phase — spec.md §4.H's "critical_count" definition.
func (p InflightPhase) HasLockedFunds() bool {
	switch p {
	case LockingUserFunds, LockingSolverBond, ExecutingIBC, WaitingForAck, Completing:
		return true
	default:
		return false
	}
}

// InflightEntry is one tracked in-progress settlement.
type InflightEntry struct {
	SettlementID      string
	IntentID          string
	CreatedAt         int64
	Phase             InflightPhase
	UserFundsLocked   bool
	SolverFundsLocked bool
	IBCInFlight       bool
	UserAmount        xdecimal.Amount
	SolverID          string
}

func copyInflight(e *InflightEntry) *InflightEntry {
	cp := *e
	return &cp
}

// DrainResultStatus is the outcome of a WaitForDrain call.
type DrainResultStatus int

const (
	DrainCompleted DrainResultStatus = iota
	DrainTimedOut
)

// DrainResult is the outcome of waiting for inflight work to empty.
type DrainResult struct {
	Status         DrainResultStatus
	Elapsed        time.Duration
	CompletedCount uint64
	Remaining      []*InflightEntry
	CriticalCount  int
}

// Manager drives the drain lifecycle and tracks inflight settlements,
// grounded on original_source's DrainModeManager + InflightTracker,
// collapsed into one mutex-guarded type per this module's
// single-lock-per-aggregate convention (rather than the original's
// separate Arc<RwLock<..>> fields plus a broadcast channel — this
// module has no subscriber-notification requirement in spec.md).
type Manager struct {
	mu sync.Mutex

	mode   DrainState
	active map[string]*InflightEntry

	completedCount uint64
	clock          xutil.Clock
}

// NewManager constructs a Manager in Active mode.
func NewManager(clock xutil.Clock) *Manager {
	if clock == nil {
		clock = xutil.RealClock{}
	}
	return &Manager{
		mode:   DrainState{Mode: Active},
		active: make(map[string]*InflightEntry),
		clock:  clock,
	}
}

// IsAccepting reports whether new intent intake should be accepted.
func (m *Manager) IsAccepting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode.Mode == Active
}

// CurrentMode returns a copy of the current drain state.
func (m *Manager) CurrentMode() DrainState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// StartDrain transitions Active -> Draining. Rejects if already
// draining or mid-upgrade; is a no-op if already Drained.
func (m *Manager) StartDrain(reason string, deadlineSecs, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.mode.Mode {
	case Active:
		m.mode = DrainState{
			Mode:      Draining,
			StartedAt: now,
			Deadline:  now + deadlineSecs,
			Reason:    reason,
		}
		return nil
	case Draining:
		return xerrors.New(xerrors.StateTransition, xerrors.CodeInvalidStateTransition, "already draining")
	case Drained:
		return nil
	default:
		return xerrors.New(xerrors.StateTransition, xerrors.CodeInvalidStateTransition, "an upgrade is in progress")
	}
}

// Register tracks a new inflight settlement. Rejects intake while
// Draining or Upgrading, and rejects a duplicate settlement id.
func (m *Manager) Register(settlementID, intentID string, userAmount xdecimal.Amount, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mode.Mode != Active {
		return xerrors.New(xerrors.Validation, xerrors.CodeInDrainMode, "not accepting new intents while draining")
	}
	if _, exists := m.active[settlementID]; exists {
		return xerrors.New(xerrors.Validation, xerrors.CodeDuplicateID, "settlement already tracked as inflight")
	}

	m.active[settlementID] = &InflightEntry{
		SettlementID: settlementID,
		IntentID:     intentID,
		CreatedAt:    now,
		Phase:        Validating,
		UserAmount:   userAmount,
	}
	return nil
}

func (m *Manager) mutate(settlementID string, fn func(*InflightEntry)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.active[settlementID]
	if !ok {
		return xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "settlement not tracked as inflight")
	}
	fn(e)
	return nil
}

// UpdatePhase moves settlementID to a new inflight phase.
func (m *Manager) UpdatePhase(settlementID string, phase InflightPhase) error {
	return m.mutate(settlementID, func(e *InflightEntry) { e.Phase = phase })
}

// MarkUserLocked records that the user's escrow lock succeeded.
func (m *Manager) MarkUserLocked(settlementID string) error {
	return m.mutate(settlementID, func(e *InflightEntry) {
		e.UserFundsLocked = true
		e.Phase = LockingUserFunds
	})
}

// MarkSolverLocked records that the solver's vault lock succeeded.
func (m *Manager) MarkSolverLocked(settlementID, solverID string) error {
	return m.mutate(settlementID, func(e *InflightEntry) {
		e.SolverFundsLocked = true
		e.SolverID = solverID
		e.Phase = LockingSolverBond
	})
}

// MarkIBCInFlight records that the inter-chain transfer has been
// submitted and an ack is pending.
func (m *Manager) MarkIBCInFlight(settlementID string) error {
	return m.mutate(settlementID, func(e *InflightEntry) {
		e.IBCInFlight = true
		e.Phase = ExecutingIBC
	})
}

// Complete removes settlementID from inflight tracking and returns its
// final snapshot.
func (m *Manager) Complete(settlementID string) (*InflightEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.active[settlementID]
	if !ok {
		return nil, xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "settlement not tracked as inflight")
	}
	delete(m.active, settlementID)
	m.completedCount++
	return copyInflight(e), nil
}

// Count returns the number of currently-tracked inflight settlements.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) snapshot() ([]*InflightEntry, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*InflightEntry, 0, len(m.active))
	critical := 0
	for _, e := range m.active {
		out = append(out, copyInflight(e))
		if e.Phase.HasLockedFunds() {
			critical++
		}
	}
	return out, critical
}

// WaitForDrain polls until the inflight set empties or timeout
// elapses, then records Drained or leaves Draining and reports the
// residual list — spec.md §4.H: "wait_for_drain(timeout) returns
// Completed when the map empties or TimedOut with the residual list".
func (m *Manager) WaitForDrain(timeout, pollInterval time.Duration, now int64) DrainResult {
	start := m.clock.Now()
	for {
		if m.Count() == 0 {
			m.mu.Lock()
			m.mode = DrainState{Mode: Drained, CompletedAt: now}
			completed := m.completedCount
			m.mu.Unlock()
			return DrainResult{
				Status:         DrainCompleted,
				Elapsed:        m.clock.Now().Sub(start),
				CompletedCount: completed,
			}
		}

		if m.clock.Now().Sub(start) >= timeout {
			remaining, critical := m.snapshot()
			return DrainResult{
				Status:        DrainTimedOut,
				Elapsed:       m.clock.Now().Sub(start),
				Remaining:     remaining,
				CriticalCount: critical,
			}
		}

		<-m.clock.After(pollInterval)
	}
}

// ForceDrain marks Drained immediately regardless of inflight work.
// The caller must treat a non-zero CriticalCount as an alert-worthy
// condition — spec.md §4.H: "A Forced drain completing with
// critical_count > 0 ... must emit an error-level alert".
func (m *Manager) ForceDrain(now int64) DrainResult {
	remaining, critical := m.snapshot()

	m.mu.Lock()
	m.mode = DrainState{Mode: Drained, CompletedAt: now}
	completed := m.completedCount
	m.mu.Unlock()

	return DrainResult{
		Status:         DrainCompleted,
		CompletedCount: completed,
		Remaining:      remaining,
		CriticalCount:  critical,
	}
}

// Resume transitions Drained or Upgrading back to Active.
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.mode.Mode {
	case Drained, Upgrading:
		m.mode = DrainState{Mode: Active}
		return nil
	default:
		return xerrors.New(xerrors.StateTransition, xerrors.CodeInvalidStateTransition, "not currently drained or upgrading")
	}
}

// BeginUpgrade transitions Drained -> Upgrading, recording the target
// version.
func (m *Manager) BeginUpgrade(version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode.Mode != Drained {
		return xerrors.New(xerrors.StateTransition, xerrors.CodeInvalidStateTransition, "must be drained before an upgrade may begin")
	}
	m.mode = DrainState{Mode: Upgrading, Version: version}
	return nil
}

// Package recovery implements the Recovery & Drain Manager (spec.md
// §4.H): a pure, side-effect-free classifier that recommends an action
// for stuck settlements, plus a graceful-shutdown drain lifecycle.
//
// The classifier never calls escrow, vault, or the settlement state
// machine directly — spec.md is explicit that "[r]ecovery actions are
// *recommendations*; only admin-authorized handlers actually call the
// state machine", precisely so a bug in classification logic cannot
// autonomously move funds. This splits what original_source's
// crates/orchestrator/src/recovery.rs does in one RecoveryManager (both
// classify and execute) into a pure classifier here; the execution side
// belongs to whatever admin-authorized caller drives pkg/settlement.
package recovery

import (
	"strings"

	"github.com/atomintents/intentcore/pkg/settlement"
)

// ActionKind is the recommended recovery action for one stuck settlement.
type ActionKind int

const (
	NoOp ActionKind = iota
	RefundAndRetry
	ManualIntervention
	SlashSolver
	RetryWithDifferentSolver
)

func (a ActionKind) String() string {
	switch a {
	case RefundAndRetry:
		return "refund_and_retry"
	case ManualIntervention:
		return "manual_intervention"
	case SlashSolver:
		return "slash_solver"
	case RetryWithDifferentSolver:
		return "retry_with_different_solver"
	default:
		return "no_op"
	}
}

// Recommendation is the classifier's output for one settlement. It
// names a solver only for SlashSolver/RetryWithDifferentSolver.
type Recommendation struct {
	SettlementID string
	Action       ActionKind
	SolverID     string
	Reason       string
}

// Classify maps a settlement's observed phase to a recommended action,
// per spec.md §4.H's table — grounded on
// original_source's determine_recovery_action match arms, re-expressed
// over settlement.StatusKind (the phase vocabulary spec.md's table
// actually uses) rather than the original's separate SettlementPhase
// enum.
func Classify(s *settlement.Settlement) Recommendation {
	rec := Recommendation{SettlementID: s.ID, SolverID: s.SolverID}

	switch s.Status {
	case settlement.Pending, settlement.UserLocked:
		rec.Action = RefundAndRetry
		rec.Reason = "early phase, no funds committed to a solver yet"

	case settlement.SolverLocked, settlement.Executing:
		rec.Action = ManualIntervention
		rec.Reason = "funds in flight; do not touch"

	case settlement.TimedOut:
		rec.Action = SlashSolver
		rec.Reason = "inter-chain transfer timed out without an ack"

	case settlement.Failed:
		if containsSolverFault(s.FailReason) {
			rec.Action = RetryWithDifferentSolver
			rec.Reason = s.FailReason
		} else {
			rec.Action = ManualIntervention
			rec.Reason = s.FailReason
		}

	default:
		// Completed, Slashed, or any other terminal status: nothing to do.
		rec.Action = NoOp
		rec.Reason = "settlement already in a terminal state"
	}

	return rec
}

func containsSolverFault(reason string) bool {
	return strings.Contains(reason, "solver")
}

// StuckSource narrows settlement.Store to the single query the
// recovery sweep needs.
type StuckSource interface {
	ListStuck(now int64) ([]*settlement.Settlement, error)
}

// ScanStuck recommends an action for every non-terminal settlement
// whose expiry has passed — spec.md §4.H: "Recovery observes the
// settlement store and for each non-terminal settlement with
// now >= expires_at computes a recovery action".
func ScanStuck(store StuckSource, now int64) ([]Recommendation, error) {
	stuck, err := store.ListStuck(now)
	if err != nil {
		return nil, err
	}
	out := make([]Recommendation, 0, len(stuck))
	for _, s := range stuck {
		out = append(out, Classify(s))
	}
	return out, nil
}

package recovery

import (
	"testing"

	"github.com/atomintents/intentcore/pkg/settlement"
)

func TestClassifyEarlyPhaseRefundsAndRetries(t *testing.T) {
	for _, status := range []settlement.StatusKind{settlement.Pending, settlement.UserLocked} {
		rec := Classify(&settlement.Settlement{ID: "s1", Status: status})
		if rec.Action != RefundAndRetry {
			t.Errorf("status %s: got action %s, want refund_and_retry", status, rec.Action)
		}
	}
}

func TestClassifyFundsInFlightRequiresManualIntervention(t *testing.T) {
	for _, status := range []settlement.StatusKind{settlement.SolverLocked, settlement.Executing} {
		rec := Classify(&settlement.Settlement{ID: "s1", Status: status})
		if rec.Action != ManualIntervention {
			t.Errorf("status %s: got action %s, want manual_intervention", status, rec.Action)
		}
	}
}

func TestClassifyTimedOutSlashesSolver(t *testing.T) {
	rec := Classify(&settlement.Settlement{ID: "s1", Status: settlement.TimedOut, SolverID: "solver-a"})
	if rec.Action != SlashSolver {
		t.Errorf("got action %s, want slash_solver", rec.Action)
	}
	if rec.SolverID != "solver-a" {
		t.Errorf("got solver_id %s, want solver-a", rec.SolverID)
	}
}

func TestClassifyFailedWithSolverReasonRetriesWithDifferentSolver(t *testing.T) {
	rec := Classify(&settlement.Settlement{ID: "s1", Status: settlement.Failed, FailReason: "solver quote expired"})
	if rec.Action != RetryWithDifferentSolver {
		t.Errorf("got action %s, want retry_with_different_solver", rec.Action)
	}
}

func TestClassifyFailedWithSystemReasonRequiresManualIntervention(t *testing.T) {
	rec := Classify(&settlement.Settlement{ID: "s1", Status: settlement.Failed, FailReason: "oracle unavailable"})
	if rec.Action != ManualIntervention {
		t.Errorf("got action %s, want manual_intervention", rec.Action)
	}
}

func TestClassifyCompletedIsNoOp(t *testing.T) {
	for _, status := range []settlement.StatusKind{settlement.Completed, settlement.Slashed} {
		rec := Classify(&settlement.Settlement{ID: "s1", Status: status})
		if rec.Action != NoOp {
			t.Errorf("status %s: got action %s, want no_op", status, rec.Action)
		}
	}
}

type fakeStuckSource struct {
	settlements []*settlement.Settlement
}

func (f *fakeStuckSource) ListStuck(now int64) ([]*settlement.Settlement, error) {
	return f.settlements, nil
}

func TestScanStuckClassifiesEveryResult(t *testing.T) {
	src := &fakeStuckSource{settlements: []*settlement.Settlement{
		{ID: "s1", Status: settlement.Pending},
		{ID: "s2", Status: settlement.TimedOut, SolverID: "solver-a"},
	}}

	recs, err := ScanStuck(src, 1000)
	if err != nil {
		t.Fatalf("ScanStuck: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(recs))
	}
	if recs[0].Action != RefundAndRetry || recs[1].Action != SlashSolver {
		t.Errorf("got actions %s/%s", recs[0].Action, recs[1].Action)
	}
}

package settlementstore

import (
	"path/filepath"
	"testing"

	"github.com/atomintents/intentcore/pkg/settlement"
	"github.com/atomintents/intentcore/pkg/xdecimal"
)

func mkTestSettlement(id string) *settlement.Settlement {
	return &settlement.Settlement{
		ID:           id,
		IntentID:     "intent-" + id,
		SolverID:     "solver-1",
		User:         "cosmos1user",
		UserInput:    settlement.Asset{Denom: "uatom", Amount: xdecimal.NewAmount(123456789012345)},
		SolverOutput: settlement.Asset{Denom: "uosmo", Amount: xdecimal.NewAmount(987654321)},
		EscrowID:     "escrow-1",
		VaultLockID:  "vault-1",
		Status:       settlement.Pending,
		SlashAmount:  xdecimal.NewAmount(42),
		CreatedAt:    100,
		ExpiresAt:    200,
	}
}

func openTestPebbleStore(t *testing.T) *PebbleStore {
	t.Helper()
	store, err := NewPebbleStore(filepath.Join(t.TempDir(), "settlements"))
	if err != nil {
		t.Fatalf("NewPebbleStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPebbleStoreRoundTripsAmountsExactly(t *testing.T) {
	store := openTestPebbleStore(t)
	want := mkTestSettlement("settlement-1")

	if err := store.Create(want); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get("settlement-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got.UserInput.Amount.Cmp(want.UserInput.Amount) != 0 {
		t.Errorf("got UserInput.Amount %s after round trip, want %s — amounts must not be silently zeroed", got.UserInput.Amount, want.UserInput.Amount)
	}
	if got.SolverOutput.Amount.Cmp(want.SolverOutput.Amount) != 0 {
		t.Errorf("got SolverOutput.Amount %s after round trip, want %s", got.SolverOutput.Amount, want.SolverOutput.Amount)
	}
	if got.SlashAmount.Cmp(want.SlashAmount) != 0 {
		t.Errorf("got SlashAmount %s after round trip, want %s", got.SlashAmount, want.SlashAmount)
	}
}

func TestPebbleStoreGetByIntent(t *testing.T) {
	store := openTestPebbleStore(t)
	want := mkTestSettlement("settlement-1")
	if err := store.Create(want); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.GetByIntent(want.IntentID)
	if err != nil {
		t.Fatalf("GetByIntent: %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("got settlement id %s, want %s", got.ID, want.ID)
	}
	if got.UserInput.Amount.Cmp(want.UserInput.Amount) != 0 {
		t.Errorf("got UserInput.Amount %s via GetByIntent, want %s", got.UserInput.Amount, want.UserInput.Amount)
	}
}

func TestPebbleStoreUpdatePreservesAmountsAcrossWrites(t *testing.T) {
	store := openTestPebbleStore(t)
	s := mkTestSettlement("settlement-1")
	if err := store.Create(s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	s.Status = settlement.UserLocked
	s.SlashAmount = xdecimal.NewAmount(9999)
	if err := store.Update(s); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get("settlement-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != settlement.UserLocked {
		t.Errorf("got status %s, want UserLocked", got.Status)
	}
	if got.SlashAmount.Cmp(xdecimal.NewAmount(9999)) != 0 {
		t.Errorf("got SlashAmount %s, want 9999", got.SlashAmount)
	}
	if got.UserInput.Amount.Cmp(s.UserInput.Amount) != 0 {
		t.Errorf("got UserInput.Amount %s after Update, want %s", got.UserInput.Amount, s.UserInput.Amount)
	}
}

func TestPebbleStoreRecordTransitionAndHistory(t *testing.T) {
	store := openTestPebbleStore(t)
	s := mkTestSettlement("settlement-1")
	if err := store.Create(s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	transitions := []settlement.TransitionRecord{
		{SettlementID: s.ID, From: settlement.Pending, To: settlement.UserLocked, Timestamp: 1},
		{SettlementID: s.ID, From: settlement.UserLocked, To: settlement.SolverLocked, Timestamp: 2},
	}
	for _, tr := range transitions {
		if err := store.RecordTransition(tr); err != nil {
			t.Fatalf("RecordTransition: %v", err)
		}
	}

	history, err := store.History(s.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d transitions, want 2", len(history))
	}
	if history[0].To != settlement.UserLocked || history[1].To != settlement.SolverLocked {
		t.Errorf("got history out of order: %+v", history)
	}
}

func TestPebbleStoreListByStatusAndListBySolver(t *testing.T) {
	store := openTestPebbleStore(t)
	a := mkTestSettlement("settlement-a")
	b := mkTestSettlement("settlement-b")
	b.Status = settlement.UserLocked
	b.SolverID = "solver-2"
	if err := store.Create(a); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	if err := store.Create(b); err != nil {
		t.Fatalf("Create b: %v", err)
	}

	pending, err := store.ListByStatus(settlement.Pending)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "settlement-a" {
		t.Errorf("got %v, want only settlement-a in Pending", pending)
	}

	bySolver, err := store.ListBySolver("solver-2")
	if err != nil {
		t.Fatalf("ListBySolver: %v", err)
	}
	if len(bySolver) != 1 || bySolver[0].ID != "settlement-b" {
		t.Errorf("got %v, want only settlement-b for solver-2", bySolver)
	}
}

func TestPebbleStoreListStuck(t *testing.T) {
	store := openTestPebbleStore(t)
	s := mkTestSettlement("settlement-1")
	s.ExpiresAt = 50
	if err := store.Create(s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	stuck, err := store.ListStuck(100)
	if err != nil {
		t.Fatalf("ListStuck: %v", err)
	}
	if len(stuck) != 1 || stuck[0].ID != "settlement-1" {
		t.Errorf("got %v, want settlement-1 flagged stuck past its expiry", stuck)
	}

	notYetStuck, err := store.ListStuck(10)
	if err != nil {
		t.Fatalf("ListStuck: %v", err)
	}
	if len(notYetStuck) != 0 {
		t.Errorf("got %v, want nothing stuck before expiry", notYetStuck)
	}
}

func TestPebbleStoreCreateRejectsDuplicateID(t *testing.T) {
	store := openTestPebbleStore(t)
	s := mkTestSettlement("settlement-1")
	if err := store.Create(s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(s); err == nil {
		t.Error("expected duplicate-id error on second Create with the same settlement id")
	}
}

package settlement

import (
	"testing"

	"github.com/atomintents/intentcore/pkg/escrow"
	"github.com/atomintents/intentcore/pkg/settlementstore"
	"github.com/atomintents/intentcore/pkg/solver"
	"github.com/atomintents/intentcore/pkg/vault"
	"github.com/atomintents/intentcore/pkg/xdecimal"
)

const (
	admin        = "cosmos1admin"
	escrowCaller = "cosmos1escrow"
	ackAuthority = "cosmos1ack"
	operator     = "cosmos1solverop"
	user         = "cosmos1user"
)

type harness struct {
	ctrl    *Controller
	store   *settlementstore.MemStore
	escrow  *escrow.MemEscrow
	vault   *vault.MemVault
	solvers *solver.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	solvers := solver.NewRegistry(xdecimal.NewAmount(1000))
	if _, err := solvers.Register("solver-a", operator, xdecimal.NewAmount(1000), 0); err != nil {
		t.Fatalf("Register solver: %v", err)
	}

	esc := escrow.NewMemEscrow(escrow.Config{
		Admin:                admin,
		SettlementController: "cosmos1controller",
	})
	v := vault.NewMemVault()
	store := settlementstore.NewMemStore()

	cfg := Config{
		Admin:          admin,
		EscrowContract: escrowCaller,
		AckAuthority:   ackAuthority,
		SelfIdentity:   "cosmos1controller",
		BaseSlashBps:   100, // 1%
		MinSlashAmount: xdecimal.NewAmount(5),
	}
	ctrl := NewController(cfg, store, esc, v, solvers)
	return &harness{ctrl: ctrl, store: store, escrow: esc, vault: v, solvers: solvers}
}

func (h *harness) createAndLock(t *testing.T, id string) {
	t.Helper()
	if _, err := h.ctrl.Create(operator, id, "intent-"+id, "solver-a", user,
		Asset{Denom: "uatom", Amount: xdecimal.NewAmount(1000)},
		Asset{Denom: "uosmo", Amount: xdecimal.NewAmount(900)},
		0, 1000); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.escrow.Lock(user, xdecimal.NewAmount(1000), "uatom", "esc-"+id, "intent-"+id, 1000); err != nil {
		t.Fatalf("escrow.Lock: %v", err)
	}
	if err := h.ctrl.MarkUserLocked(escrowCaller, id, "esc-"+id, 1); err != nil {
		t.Fatalf("MarkUserLocked: %v", err)
	}
	if _, err := h.vault.Lock("vault-"+id, "solver-a", xdecimal.NewAmount(900), "uosmo", 1000); err != nil {
		t.Fatalf("vault.Lock: %v", err)
	}
	if err := h.ctrl.MarkSolverLocked(operator, id, "vault-"+id, 2); err != nil {
		t.Fatalf("MarkSolverLocked: %v", err)
	}
}

func TestHappyPathReachesCompleted(t *testing.T) {
	h := newHarness(t)
	h.createAndLock(t, "s1")

	if err := h.ctrl.MarkExecuting(operator, "s1", 3, nil); err != nil {
		t.Fatalf("MarkExecuting: %v", err)
	}
	if err := h.ctrl.HandleAck(ackAuthority, "s1", true, 4); err != nil {
		t.Fatalf("HandleAck: %v", err)
	}

	s, err := h.store.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Status != Completed {
		t.Errorf("got status %s, want completed", s.Status)
	}

	escLock, err := h.escrow.Get("esc-s1")
	if err != nil {
		t.Fatalf("escrow.Get: %v", err)
	}
	if escLock.Status != escrow.Released || escLock.Recipient != operator {
		t.Errorf("escrow lock = %+v, want released to operator", escLock)
	}

	vLock, err := h.vault.Get("vault-s1")
	if err != nil {
		t.Fatalf("vault.Get: %v", err)
	}
	if vLock.Status != vault.VaultCompleted {
		t.Errorf("vault lock status = %s, want completed", vLock.Status)
	}
}

func TestInterChainTimeoutRefundsUser(t *testing.T) {
	h := newHarness(t)
	h.createAndLock(t, "s1")

	if err := h.ctrl.MarkExecuting(operator, "s1", 3, nil); err != nil {
		t.Fatalf("MarkExecuting: %v", err)
	}
	if err := h.ctrl.HandleTimeout(ackAuthority, "s1", 1000); err != nil {
		t.Fatalf("HandleTimeout: %v", err)
	}

	s, err := h.store.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Status != TimedOut {
		t.Errorf("got status %s, want timed_out", s.Status)
	}

	escLock, err := h.escrow.Get("esc-s1")
	if err != nil {
		t.Fatalf("escrow.Get: %v", err)
	}
	if escLock.Status != escrow.Refunded {
		t.Errorf("escrow lock status = %s, want refunded", escLock.Status)
	}
}

func TestDoubleAckRejected(t *testing.T) {
	h := newHarness(t)
	h.createAndLock(t, "s1")
	if err := h.ctrl.MarkExecuting(operator, "s1", 3, nil); err != nil {
		t.Fatalf("MarkExecuting: %v", err)
	}
	if err := h.ctrl.HandleAck(ackAuthority, "s1", true, 4); err != nil {
		t.Fatalf("first HandleAck: %v", err)
	}
	if err := h.ctrl.HandleAck(ackAuthority, "s1", true, 5); err == nil {
		t.Error("expected second ack on a completed settlement to be rejected")
	}
}

func TestMarkExecutingRejectedPastExpiry(t *testing.T) {
	h := newHarness(t)
	h.createAndLock(t, "s1")
	if err := h.ctrl.MarkExecuting(operator, "s1", 1000, nil); err == nil {
		t.Error("expected mark-executing at or past expiry to be rejected")
	}
}

func TestSlashFromNonTerminalStatus(t *testing.T) {
	h := newHarness(t)
	h.createAndLock(t, "s1")

	actual, err := h.ctrl.Slash(admin, "s1", 5)
	if err != nil {
		t.Fatalf("Slash: %v", err)
	}
	// 1000 * 100bps / 10000 = 10, above the 5-unit minimum.
	if actual.Cmp(xdecimal.NewAmount(10)) != 0 {
		t.Errorf("slashed %s, want 10", actual)
	}

	sv, err := h.solvers.Get("solver-a")
	if err != nil {
		t.Fatalf("solvers.Get: %v", err)
	}
	if sv.BondAmount.Cmp(xdecimal.NewAmount(990)) != 0 {
		t.Errorf("remaining bond = %s, want 990", sv.BondAmount)
	}

	s, err := h.store.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Status != Slashed {
		t.Errorf("got status %s, want slashed", s.Status)
	}
}

func TestSlashRejectedAfterTerminal(t *testing.T) {
	h := newHarness(t)
	h.createAndLock(t, "s1")
	if err := h.ctrl.MarkExecuting(operator, "s1", 3, nil); err != nil {
		t.Fatalf("MarkExecuting: %v", err)
	}
	if err := h.ctrl.HandleAck(ackAuthority, "s1", true, 4); err != nil {
		t.Fatalf("HandleAck: %v", err)
	}
	if _, err := h.ctrl.Slash(admin, "s1", 5); err == nil {
		t.Error("expected slash on a completed settlement to be rejected")
	}
}

func TestCreateRejectsWrongOperator(t *testing.T) {
	h := newHarness(t)
	if _, err := h.ctrl.Create("cosmos1stranger", "s1", "intent-1", "solver-a", user,
		Asset{Denom: "uatom", Amount: xdecimal.NewAmount(1000)},
		Asset{Denom: "uosmo", Amount: xdecimal.NewAmount(900)},
		0, 1000); err == nil {
		t.Error("expected create by a non-operator caller to be rejected")
	}
}

func TestMarkUserLockedRequiresEscrowCallerIdentity(t *testing.T) {
	h := newHarness(t)
	if _, err := h.ctrl.Create(operator, "s1", "intent-1", "solver-a", user,
		Asset{Denom: "uatom", Amount: xdecimal.NewAmount(1000)},
		Asset{Denom: "uosmo", Amount: xdecimal.NewAmount(900)},
		0, 1000); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := h.ctrl.MarkUserLocked("cosmos1stranger", "s1", "esc-1", 1); err == nil {
		t.Error("expected mark-user-locked from a non-escrow caller to be rejected")
	}
}

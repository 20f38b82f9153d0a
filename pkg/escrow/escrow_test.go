package escrow

import (
	"testing"

	"github.com/atomintents/intentcore/pkg/xdecimal"
)

const (
	admin      = "cosmos1admin"
	controller = "cosmos1settlement"
	owner      = "cosmos1user"
)

func newTestEscrow() *MemEscrow {
	return NewMemEscrow(Config{
		Admin:                admin,
		SettlementController: controller,
		IsInterChainDenom: func(denom string) bool {
			return len(denom) > 4 && denom[:4] == "ibc/"
		},
	})
}

func TestLockThenReleaseBeforeExpiry(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.Lock(owner, xdecimal.NewAmount(100), "uatom", "esc-1", "intent-1", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := e.Release("esc-1", controller, "osmo1recipient", 500); err != nil {
		t.Fatalf("Release: %v", err)
	}
	l, err := e.Get("esc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if l.Status != Released || l.Recipient != "osmo1recipient" {
		t.Errorf("got status=%s recipient=%s, want Released/osmo1recipient", l.Status, l.Recipient)
	}
}

func TestDuplicateEscrowIDRejected(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.Lock(owner, xdecimal.NewAmount(100), "uatom", "esc-1", "intent-1", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := e.Lock(owner, xdecimal.NewAmount(50), "uatom", "esc-1", "intent-2", 1000); err == nil {
		t.Error("expected duplicate escrow_id to be rejected")
	}
}

func TestDuplicateIntentIDRejected(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.Lock(owner, xdecimal.NewAmount(100), "uatom", "esc-1", "intent-1", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := e.Lock(owner, xdecimal.NewAmount(50), "uatom", "esc-2", "intent-1", 1000); err == nil {
		t.Error("expected duplicate intent_id binding to be rejected")
	}
}

func TestReleaseAfterExpiryRejected(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.Lock(owner, xdecimal.NewAmount(100), "uatom", "esc-1", "intent-1", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := e.Release("esc-1", controller, "osmo1recipient", 1000); err == nil {
		t.Error("expected release at exactly expires_at to be rejected")
	}
}

func TestRefundBeforeExpiryRejected(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.Lock(owner, xdecimal.NewAmount(100), "uatom", "esc-1", "intent-1", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := e.Refund("esc-1", owner, 999); err == nil {
		t.Error("expected refund before expiry to be rejected")
	}
}

func TestRefundAtExactExpiryAllowed(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.Lock(owner, xdecimal.NewAmount(100), "uatom", "esc-1", "intent-1", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	// Release requires now < expires_at, refund requires now >= expires_at:
	// the boundary at exactly expires_at must allow refund, not release.
	if err := e.Refund("esc-1", owner, 1000); err != nil {
		t.Fatalf("Refund at exact expiry: %v", err)
	}
}

func TestDoubleReleaseRejected(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.Lock(owner, xdecimal.NewAmount(100), "uatom", "esc-1", "intent-1", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := e.Release("esc-1", controller, "osmo1recipient", 500); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := e.Release("esc-1", controller, "osmo1other", 600); err == nil {
		t.Error("expected second release to be rejected")
	}
}

func TestDoubleRefundRejected(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.Lock(owner, xdecimal.NewAmount(100), "uatom", "esc-1", "intent-1", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := e.Refund("esc-1", owner, 1000); err != nil {
		t.Fatalf("first Refund: %v", err)
	}
	if err := e.Refund("esc-1", owner, 1001); err == nil {
		t.Error("expected second refund to be rejected")
	}
}

func TestRefundThenReleaseRaceLoses(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.Lock(owner, xdecimal.NewAmount(100), "uatom", "esc-1", "intent-1", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := e.Refund("esc-1", owner, 1000); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if err := e.Release("esc-1", controller, "osmo1recipient", 1000); err == nil {
		t.Error("expected release to lose the race against a completed refund")
	}
}

func TestReleaseRequiresLockedState(t *testing.T) {
	e := newTestEscrow()
	if err := e.Release("missing", controller, "osmo1recipient", 0); err == nil {
		t.Error("expected release of unknown lock to fail")
	}
}

func TestReleaseRequiresSettlementControllerCaller(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.Lock(owner, xdecimal.NewAmount(100), "uatom", "esc-1", "intent-1", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := e.Release("esc-1", "cosmos1stranger", "osmo1recipient", 500); err == nil {
		t.Error("expected release by a non-controller caller to be rejected")
	}
}

func TestRefundUnauthorizedCallerRejected(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.Lock(owner, xdecimal.NewAmount(100), "uatom", "esc-1", "intent-1", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := e.Refund("esc-1", "cosmos1stranger", 1000); err == nil {
		t.Error("expected refund by neither owner nor controller to be rejected")
	}
}

func TestLockFromIBCRequiresIBCDenom(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.LockFromIBC("intent-1", "uatom", xdecimal.NewAmount(100), 1000, "cosmos1source", "cosmoshub-4", "channel-0"); err == nil {
		t.Error("expected non-ibc-prefixed denom to be rejected")
	}
}

func TestLockFromIBCSuccessRecordsCrossChainFields(t *testing.T) {
	e := newTestEscrow()
	l, err := e.LockFromIBC("intent-1", "ibc/ABCD1234", xdecimal.NewAmount(100), 1000, "cosmos1source", "cosmoshub-4", "channel-0")
	if err != nil {
		t.Fatalf("LockFromIBC: %v", err)
	}
	if l.OwnerChainID != "cosmoshub-4" || l.SourceChannel != "channel-0" || l.OwnerSourceAddr != "cosmos1source" {
		t.Errorf("cross-chain fields not recorded: %+v", l)
	}
}

func TestLockFromIBCReplayProtection(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.LockFromIBC("intent-1", "ibc/ABCD1234", xdecimal.NewAmount(100), 1000, "cosmos1source", "cosmoshub-4", "channel-0"); err != nil {
		t.Fatalf("LockFromIBC: %v", err)
	}
	if _, err := e.LockFromIBC("intent-1", "ibc/ABCD1234", xdecimal.NewAmount(50), 1000, "cosmos1source", "cosmoshub-4", "channel-0"); err == nil {
		t.Error("expected replayed intent_id to be rejected")
	}
}

func TestCrossChainRefundGoesThroughRefundingSubState(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.LockFromIBC("intent-1", "ibc/ABCD1234", xdecimal.NewAmount(100), 1000, "cosmos1source", "cosmoshub-4", "channel-0"); err != nil {
		t.Fatalf("LockFromIBC: %v", err)
	}
	if err := e.Refund("esc_intent-1", controller, 1000); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	l, err := e.Get("esc_intent-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if l.Status != Refunding {
		t.Fatalf("got status %s, want Refunding pending inter-chain ack", l.Status)
	}

	if err := e.CompleteIBCRefund("esc_intent-1"); err != nil {
		t.Fatalf("CompleteIBCRefund: %v", err)
	}
	l, _ = e.Get("esc_intent-1")
	if l.Status != Refunded {
		t.Errorf("got status %s, want Refunded after ack", l.Status)
	}
}

func TestCompleteIBCRefundRequiresRefundingState(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.Lock(owner, xdecimal.NewAmount(100), "uatom", "esc-1", "intent-1", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := e.CompleteIBCRefund("esc-1"); err == nil {
		t.Error("expected CompleteIBCRefund on a non-Refunding lock to fail")
	}
}

func TestUpdateConfigRequiresAdmin(t *testing.T) {
	e := newTestEscrow()
	if err := e.UpdateConfig("cosmos1stranger", Config{Admin: admin, SettlementController: controller}); err == nil {
		t.Error("expected non-admin config update to be rejected")
	}
	if err := e.UpdateConfig(admin, Config{Admin: admin, SettlementController: "cosmos1newcontroller"}); err != nil {
		t.Errorf("admin config update should succeed: %v", err)
	}
}

func TestGetByIntentReturnsBoundLock(t *testing.T) {
	e := newTestEscrow()
	if _, err := e.Lock(owner, xdecimal.NewAmount(100), "uatom", "esc-1", "intent-1", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	l, err := e.GetByIntent("intent-1")
	if err != nil {
		t.Fatalf("GetByIntent: %v", err)
	}
	if l.ID != "esc-1" {
		t.Errorf("got lock id %s, want esc-1", l.ID)
	}
}

package vault

import (
	"testing"

	"github.com/atomintents/intentcore/pkg/xdecimal"
)

func TestLockThenMarkComplete(t *testing.T) {
	v := NewMemVault()
	if _, err := v.Lock("vlock-1", "solver-a", xdecimal.NewAmount(100), "uatom", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := v.MarkComplete("vlock-1"); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	l, err := v.Get("vlock-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if l.Status != VaultCompleted {
		t.Errorf("got status %s, want completed", l.Status)
	}
}

func TestLockThenUnlockOnAbort(t *testing.T) {
	v := NewMemVault()
	if _, err := v.Lock("vlock-1", "solver-a", xdecimal.NewAmount(100), "uatom", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := v.Unlock("vlock-1"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	l, err := v.Get("vlock-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if l.Status != VaultUnlocked {
		t.Errorf("got status %s, want unlocked", l.Status)
	}
}

func TestDuplicateLockIDRejected(t *testing.T) {
	v := NewMemVault()
	if _, err := v.Lock("vlock-1", "solver-a", xdecimal.NewAmount(100), "uatom", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := v.Lock("vlock-1", "solver-b", xdecimal.NewAmount(50), "uatom", 1000); err == nil {
		t.Error("expected duplicate vault lock id to be rejected")
	}
}

func TestMarkCompleteAfterUnlockRejected(t *testing.T) {
	v := NewMemVault()
	if _, err := v.Lock("vlock-1", "solver-a", xdecimal.NewAmount(100), "uatom", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := v.Unlock("vlock-1"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := v.MarkComplete("vlock-1"); err == nil {
		t.Error("expected mark-complete after unlock to be rejected")
	}
}

func TestDoubleMarkCompleteRejected(t *testing.T) {
	v := NewMemVault()
	if _, err := v.Lock("vlock-1", "solver-a", xdecimal.NewAmount(100), "uatom", 1000); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := v.MarkComplete("vlock-1"); err != nil {
		t.Fatalf("first MarkComplete: %v", err)
	}
	if err := v.MarkComplete("vlock-1"); err == nil {
		t.Error("expected second mark-complete to be rejected")
	}
}

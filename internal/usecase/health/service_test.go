package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	r := New(&mockPinger{}, &mockPinger{}).Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["backend"] != CheckOK || r.Checks["ledger"] != CheckOK {
		t.Errorf("unexpected checks %v", r.Checks)
	}
}

func TestCheck_LedgerDown(t *testing.T) {
	r := New(&mockPinger{}, &mockPinger{err: errors.New("connection refused")}).Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["ledger"] != CheckError {
		t.Errorf("expected ledger %q, got %q", CheckError, r.Checks["ledger"])
	}
}

func TestCheck_BackendDown(t *testing.T) {
	r := New(&mockPinger{err: errors.New("dial tcp: timeout")}, nil).Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if _, ok := r.Checks["ledger"]; ok {
		t.Error("ledger check should be absent without a ledger")
	}
}

func TestCheck_NoLedger(t *testing.T) {
	r := New(&mockPinger{}, nil).Check(context.Background())
	if r.Status != Healthy || len(r.Checks) != 1 {
		t.Errorf("unexpected report %+v", r)
	}
}

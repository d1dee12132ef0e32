package breaker

import (
	"testing"
	"time"

	"github.com/dskow/breaker-core/internal/backoff"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(nil)
	t.Cleanup(r.ShutdownAll)
	return r
}

func testCfg(threshold int) Config {
	return Config{
		FailureThreshold: threshold,
		ResetTimeout:     time.Second,
		BackoffStrategy:  backoff.Fixed,
		DisableWatchdog:  true,
	}
}

func TestRegistry_ApplyCreates(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Apply(map[string]Config{
		"payments":  testCfg(3),
		"inventory": testCfg(5),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if got := r.Names(); len(got) != 2 || got[0] != "inventory" || got[1] != "payments" {
		t.Fatalf("expected sorted names [inventory payments], got %v", got)
	}
	if _, ok := r.Get("payments"); !ok {
		t.Fatal("expected payments breaker present")
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("did not expect a breaker for an unknown name")
	}
}

func TestRegistry_ApplyRemovesAbsent(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Apply(map[string]Config{"payments": testCfg(3), "inventory": testCfg(5)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := r.Apply(map[string]Config{"payments": testCfg(3)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, ok := r.Get("inventory"); ok {
		t.Fatal("expected inventory removed after reapply")
	}
	if got := r.Names(); len(got) != 1 || got[0] != "payments" {
		t.Fatalf("expected [payments], got %v", got)
	}
}

func TestRegistry_ApplyKeepsUnchanged(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Apply(map[string]Config{"payments": testCfg(3)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	before, _ := r.Get("payments")
	before.RecordFailure(errConnReset, time.Millisecond)

	if err := r.Apply(map[string]Config{"payments": testCfg(3)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	after, _ := r.Get("payments")

	if before != after {
		t.Fatal("expected the same breaker instance for an unchanged config")
	}
	if after.Snapshot().Failures != 1 {
		t.Fatal("expected breaker state preserved across a no-op apply")
	}
}

func TestRegistry_ApplyReplacesChanged(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Apply(map[string]Config{"payments": testCfg(3)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	before, _ := r.Get("payments")
	failTimes(before, 3, errConnReset)
	if before.State() != StateOpen {
		t.Fatalf("expected StateOpen, got %v", before.State())
	}

	if err := r.Apply(map[string]Config{"payments": testCfg(8)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	after, _ := r.Get("payments")

	if before == after {
		t.Fatal("expected a fresh breaker for a changed config")
	}
	if after.State() != StateClosed {
		t.Fatalf("expected replacement to start closed, got %v", after.State())
	}
}

func TestRegistry_ApplyInvalidConfig(t *testing.T) {
	r := newTestRegistry(t)

	bad := testCfg(3)
	bad.BackoffStrategy = "quadratic"
	if err := r.Apply(map[string]Config{"payments": bad}); err == nil {
		t.Fatal("expected error for invalid breaker config")
	}
	if _, ok := r.Get("payments"); ok {
		t.Fatal("did not expect a breaker after a failed apply")
	}
}

func TestRegistry_All(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Apply(map[string]Config{"b": testCfg(3), "a": testCfg(3), "c": testCfg(3)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 breakers, got %d", len(all))
	}
	for i, want := range []string{"a", "b", "c"} {
		if all[i].Name() != want {
			t.Fatalf("expected breaker %q at index %d, got %q", want, i, all[i].Name())
		}
	}
}

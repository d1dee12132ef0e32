package history

import "testing"

func TestRing_AppendBelowCapacity(t *testing.T) {
	r := NewRing[int](5)

	r.Append(1)
	r.Append(2)
	r.Append(3)

	if r.Len() != 3 {
		t.Fatalf("expected len 3, got %d", r.Len())
	}
	got := r.Items()
	for i, want := range []int{1, 2, 3} {
		if got[i] != want {
			t.Fatalf("expected %v at %d, got %v", want, i, got[i])
		}
	}
}

func TestRing_EvictsOldest(t *testing.T) {
	r := NewRing[int](3)

	for i := 1; i <= 5; i++ {
		r.Append(i)
	}

	if r.Len() != 3 {
		t.Fatalf("expected len capped at 3, got %d", r.Len())
	}
	got := r.Items()
	for i, want := range []int{3, 4, 5} {
		if got[i] != want {
			t.Fatalf("expected %v at %d, got %v", want, i, got[i])
		}
	}
}

func TestRing_NeverExceedsCapacity(t *testing.T) {
	r := NewRing[int](100)

	for i := 0; i < 500; i++ {
		r.Append(i)
	}

	if r.Len() != 100 {
		t.Fatalf("expected len 100 after 500 appends, got %d", r.Len())
	}
	// The 100 most recent entries (400..499) must be retained.
	got := r.Items()
	if got[0] != 400 || got[99] != 499 {
		t.Fatalf("expected entries 400..499, got first=%d last=%d", got[0], got[99])
	}
}

func TestRing_Reset(t *testing.T) {
	r := NewRing[string](4)
	r.Append("a")
	r.Append("b")

	r.Reset()

	if r.Len() != 0 {
		t.Fatalf("expected empty ring after reset, got len %d", r.Len())
	}
	if items := r.Items(); len(items) != 0 {
		t.Fatalf("expected no items after reset, got %v", items)
	}
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := NewRing[int](0)
	r.Append(1)
	r.Append(2)

	if r.Len() != 1 {
		t.Fatalf("expected capacity clamped to 1, got len %d", r.Len())
	}
	if got := r.Items(); got[0] != 2 {
		t.Fatalf("expected most recent entry retained, got %v", got)
	}
}

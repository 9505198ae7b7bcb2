package fingerprint

import "testing"

func TestRollingHashIsDeterministic(t *testing.T) {
	t.Parallel()
	a := NewCollector()
	a.Absorb([]byte("event-1"))
	a.Absorb([]byte("event-2"))

	b := NewCollector()
	b.Absorb([]byte("event-1"))
	b.Absorb([]byte("event-2"))

	if a.RollingHash() != b.RollingHash() {
		t.Fatalf("identical event streams must produce identical rolling hashes")
	}
}

func TestRollingHashDivergesOnDifferentOrder(t *testing.T) {
	t.Parallel()
	a := NewCollector()
	a.Absorb([]byte("event-1"))
	a.Absorb([]byte("event-2"))

	b := NewCollector()
	b.Absorb([]byte("event-2"))
	b.Absorb([]byte("event-1"))

	if a.RollingHash() == b.RollingHash() {
		t.Fatalf("reordered event streams must not collide")
	}
}

func TestCompositeBindsAllInputs(t *testing.T) {
	t.Parallel()
	base := CompositeInputs{CodeVersion: "abc", ConfigHash: "cfg1", DatasetHash: "ds1", Seed: 42, RollingHash: "roll1"}
	h1 := Composite(base)

	changedSeed := base
	changedSeed.Seed = 43
	h2 := Composite(changedSeed)

	if h1 == h2 {
		t.Fatalf("composite hash must change when seed changes")
	}

	same := Composite(base)
	if h1 != same {
		t.Fatalf("composite hash must be pure given identical inputs")
	}
}

func TestHashBytesStable(t *testing.T) {
	t.Parallel()
	if HashBytes([]byte("x")) != HashBytes([]byte("x")) {
		t.Fatalf("HashBytes must be deterministic")
	}
}

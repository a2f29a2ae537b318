package engine

import "testing"

func TestTieredStoreDeviceTierSpillsToMiddle(t *testing.T) {
	tuning := NewTuning()
	s := NewTieredStore[int](tuning, 1)

	if tier := s.Put(1, 10); tier != TierDevice {
		t.Fatalf("first Put landed in %v, want device", tier)
	}
	if tier := s.Put(2, 20); tier != TierMiddle {
		t.Fatalf("second Put landed in %v, want middle (device tier full)", tier)
	}

	v, tier, ok := s.Get(2)
	if !ok || tier != TierMiddle || v != 20 {
		t.Fatalf("Get(2) = %v, %v, %v; want 20, middle, true", v, tier, ok)
	}
}

func TestTieredStoreHostSwapWhenMiddleDisabled(t *testing.T) {
	tuning := NewTuning()
	tuning.SetSimulationMode(false, 0, 0, 0)
	s := NewTieredStore[int](tuning, 1)

	s.Put(1, 10)
	tier := s.Put(2, 20)
	if tier != TierHost {
		t.Fatalf("Put landed in %v, want host (middle cache disabled)", tier)
	}
	v, gotTier, ok := s.Get(2)
	if !ok || gotTier != TierHost || v != 20 {
		t.Fatalf("Get(2) = %v, %v, %v; want 20, host, true", v, gotTier, ok)
	}
}

func TestTieredStoreMiddleEvictsLRU(t *testing.T) {
	tuning := NewTuning()
	s := NewTieredStore[int](tuning, 1)

	// device cap 1, middle cap 2.
	s.Put(1, 10) // device
	s.Put(2, 20) // middle
	s.Put(3, 30) // middle, now full at cap 2

	// Touch handle 2 so handle 3 becomes the LRU victim ahead of it.
	s.Get(2)

	s.Put(4, 40) // middle full -> evicts LRU, which is handle 3

	if _, _, ok := s.Get(3); ok {
		t.Fatal("handle 3 should have been evicted as LRU victim")
	}
	if _, _, ok := s.Get(2); !ok {
		t.Fatal("handle 2 should still be resident (recently touched)")
	}
	if _, _, ok := s.Get(4); !ok {
		t.Fatal("handle 4 should be resident")
	}
}

func TestTieredStoreArbitraryEvictionDoesNotPanic(t *testing.T) {
	tuning := NewTuning()
	tuning.SetArbitraryEviction(true)
	s := NewTieredStore[int](tuning, 1)

	s.Put(1, 10)
	s.Put(2, 20)
	s.Put(3, 30)
	s.Put(4, 40)

	total := 0
	for _, h := range []uint32{2, 3, 4} {
		if _, _, ok := s.Get(h); ok {
			total++
		}
	}
	if total != 2 {
		t.Fatalf("expected exactly one middle-tier eviction, have %d of 3 resident", total)
	}
}

func TestTieredStoreEraseAndMutate(t *testing.T) {
	tuning := NewTuning()
	s := NewTieredStore[int](tuning, 4)

	s.Put(1, 10)
	if !s.Mutate(1, func(v int) int { return v + 1 }) {
		t.Fatal("Mutate on resident handle should succeed")
	}
	v, _, _ := s.Get(1)
	if v != 11 {
		t.Fatalf("Mutate result = %d, want 11", v)
	}

	if !s.Erase(1) {
		t.Fatal("Erase on resident handle should succeed")
	}
	if _, _, ok := s.Get(1); ok {
		t.Fatal("handle should be gone after Erase")
	}
	if s.Mutate(1, func(v int) int { return v }) {
		t.Fatal("Mutate on erased handle should fail")
	}
}

package engine

import "testing"

func TestCQStoreAppendAndTakeFIFO(t *testing.T) {
	tuning := NewTuning()
	s := NewCQStore(tuning, 4)
	s.Put(1, &CQValue{CQNum: 1, CQE: 16})

	for i := uint64(0); i < 3; i++ {
		if _, ok := s.AppendIfPresent(1, CompletionEntry{WRID: i}); !ok {
			t.Fatalf("AppendIfPresent(%d) should succeed", i)
		}
	}

	entries, ok := s.Take(1, 2)
	if !ok || len(entries) != 2 || entries[0].WRID != 0 || entries[1].WRID != 1 {
		t.Fatalf("Take(2) = %+v, %v; want first two in FIFO order", entries, ok)
	}

	rest, ok := s.Take(1, 10)
	if !ok || len(rest) != 1 || rest[0].WRID != 2 {
		t.Fatalf("Take(10) = %+v, %v; want remaining entry", rest, ok)
	}

	if _, ok := s.Take(1, 10); ok {
		t.Fatal("Take on drained CQ should report false")
	}
}

func TestCQStoreAppendIfPresentDropsForMissingCQ(t *testing.T) {
	s := NewCQStore(NewTuning(), 4)
	if _, ok := s.AppendIfPresent(99, CompletionEntry{}); ok {
		t.Fatal("AppendIfPresent on a never-created CQ should be dropped, not create one")
	}
}

func TestCQStoreEnforcesDepthByDefault(t *testing.T) {
	s := NewCQStore(NewTuning(), 4)
	s.Put(1, &CQValue{CQNum: 1, CQE: 1})

	s.AppendIfPresent(1, CompletionEntry{WRID: 1})
	s.AppendIfPresent(1, CompletionEntry{WRID: 2})

	entries, ok := s.Take(1, 10)
	if !ok || len(entries) != 2 {
		t.Fatalf("Take = %+v, %v; want 2 entries (one real, one overflow)", entries, ok)
	}
	if entries[0].Status != StatusSuccess {
		t.Fatalf("first entry status = %v, want success", entries[0].Status)
	}
	if entries[1].Status != StatusCQOverflow {
		t.Fatalf("second entry status = %v, want overflow", entries[1].Status)
	}
}

func TestCQStoreDepthUnboundedWhenDisabled(t *testing.T) {
	tuning := NewTuning()
	tuning.SetEnforceCQDepth(false)
	s := NewCQStore(tuning, 4)
	s.Put(1, &CQValue{CQNum: 1, CQE: 1})

	s.AppendIfPresent(1, CompletionEntry{WRID: 1})
	s.AppendIfPresent(1, CompletionEntry{WRID: 2})

	entries, _ := s.Take(1, 10)
	for _, e := range entries {
		if e.Status != StatusSuccess {
			t.Fatalf("entry %+v should report success when depth enforcement is disabled", e)
		}
	}
}

func TestCQStoreEraseInvalidatesMiddleInPlace(t *testing.T) {
	tuning := NewTuning()
	s := NewCQStore(tuning, 1)
	s.Put(1, &CQValue{CQNum: 1, CQE: 4})
	s.Put(2, &CQValue{CQNum: 2, CQE: 4}) // spills to middle

	if !s.Erase(2) {
		t.Fatal("Erase of middle-tier CQ should succeed")
	}
	// Middle-tier erasure invalidates the record in place rather than
	// removing the map entry outright, matching TieredStore.Erase.
	v, tier, ok := s.Get(2)
	if !ok || tier != TierMiddle || v.CQNum != 0 {
		t.Fatalf("Get(2) after Erase = %+v, %v, %v; want zeroed record still in middle tier", v, tier, ok)
	}
}

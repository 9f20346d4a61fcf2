package rpcproxy

import "testing"

func TestRoundRobinSelectorCycles(t *testing.T) {
	s := &RoundRobinSelector{}
	ids := []string{"w1", "w2", "w3"}

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		id, err := s.Select(append([]string(nil), ids...))
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		seen[id] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected round robin to visit all 3 ids over 3 picks, saw %v", seen)
	}
}

func TestRoundRobinSelectorEmpty(t *testing.T) {
	s := &RoundRobinSelector{}
	if _, err := s.Select(nil); err == nil {
		t.Fatal("expected error selecting from empty id set")
	}
}

func TestWeightedRandomSelectorRespectsWeights(t *testing.T) {
	s := &WeightedRandomSelector{Weight: func(id string) int {
		if id == "heavy" {
			return 1000
		}
		return 1
	}}
	ids := []string{"heavy", "light"}

	counts := map[string]int{}
	for i := 0; i < 50; i++ {
		id, err := s.Select(ids)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		counts[id]++
	}
	if counts["heavy"] == 0 {
		t.Error("expected heavy-weighted worker to be picked at least once")
	}
	if counts["heavy"] < counts["light"] {
		t.Errorf("expected heavy worker to dominate picks, got %v", counts)
	}
}

func TestWeightedRandomSelectorDefaultsToUniform(t *testing.T) {
	s := &WeightedRandomSelector{}
	id, err := s.Select([]string{"only"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if id != "only" {
		t.Errorf("Select = %q, want %q", id, "only")
	}
}

func TestConsistentHashSelectorStableForSameKey(t *testing.T) {
	s := NewConsistentHashSelector()
	ids := []string{"w1", "w2", "w3", "w4"}

	first, err := s.SelectFor(ids, "session-42")
	if err != nil {
		t.Fatalf("SelectFor: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := s.SelectFor(append([]string(nil), ids...), "session-42")
		if err != nil {
			t.Fatalf("SelectFor: %v", err)
		}
		if again != first {
			t.Errorf("SelectFor not stable across calls: got %q then %q", first, again)
		}
	}
}

func TestConsistentHashSelectorEmpty(t *testing.T) {
	s := NewConsistentHashSelector()
	if _, err := s.SelectFor(nil, "key"); err == nil {
		t.Fatal("expected error selecting from empty id set")
	}
}

package scraper

import (
	"fmt"
	"testing"

	"zozo-catalog-scraper/models"
)

func makeRecords(ids ...string) []*models.ProductRecord {
	out := make([]*models.ProductRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, &models.ProductRecord{ID: id, Name: "Item " + id, DetailURL: "https://example.test/" + id})
	}
	return out
}

func TestAccumulatorDropsDuplicates(t *testing.T) {
	acc := NewAccumulator(100)

	if added := acc.Add(makeRecords("a", "b", "a", "c", "b")); added != 3 {
		t.Fatalf("added=%d, want 3", added)
	}
	if acc.Duplicates() != 2 {
		t.Fatalf("duplicates=%d, want 2", acc.Duplicates())
	}

	snapshot := acc.Snapshot()
	seen := make(map[string]struct{})
	for _, record := range snapshot {
		if _, ok := seen[record.ID]; ok {
			t.Fatalf("duplicate id %q in snapshot", record.ID)
		}
		seen[record.ID] = struct{}{}
	}
}

func TestAccumulatorKeepsFirstOccurrence(t *testing.T) {
	acc := NewAccumulator(100)

	first := &models.ProductRecord{ID: "x", Name: "first"}
	second := &models.ProductRecord{ID: "x", Name: "second"}
	acc.Add([]*models.ProductRecord{first, second})

	snapshot := acc.Snapshot()
	if len(snapshot) != 1 || snapshot[0].Name != "first" {
		t.Fatalf("later occurrences must be discarded, not merged: %+v", snapshot)
	}
}

func TestAccumulatorPreservesInsertionOrder(t *testing.T) {
	acc := NewAccumulator(100)
	acc.Add(makeRecords("c", "a", "b"))
	acc.Add(makeRecords("e", "d"))

	want := []string{"c", "a", "b", "e", "d"}
	snapshot := acc.Snapshot()
	if len(snapshot) != len(want) {
		t.Fatalf("snapshot length=%d, want %d", len(snapshot), len(want))
	}
	for i, id := range want {
		if snapshot[i].ID != id {
			t.Fatalf("snapshot[%d]=%q, want %q", i, snapshot[i].ID, id)
		}
	}
}

func TestAccumulatorHonorsMaxItems(t *testing.T) {
	acc := NewAccumulator(5)

	var records []*models.ProductRecord
	for i := 0; i < 20; i++ {
		records = append(records, &models.ProductRecord{ID: fmt.Sprintf("id-%d", i)})
	}

	added := acc.Add(records)
	if added != 5 {
		t.Fatalf("added=%d, want 5", added)
	}
	if !acc.Full() {
		t.Fatalf("accumulator should be full")
	}
	if got := len(acc.Snapshot()); got != 5 {
		t.Fatalf("snapshot length=%d, want 5", got)
	}
}

func TestAccumulatorIgnoresEmptyIDs(t *testing.T) {
	acc := NewAccumulator(10)
	if added := acc.Add([]*models.ProductRecord{{ID: ""}, nil, {ID: "ok"}}); added != 1 {
		t.Fatalf("added=%d, want 1", added)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	acc := NewAccumulator(10)
	acc.Add(makeRecords("a", "b"))

	snapshot := acc.Snapshot()
	snapshot[0] = nil
	if acc.Snapshot()[0] == nil {
		t.Fatalf("mutating a snapshot must not affect the accumulator")
	}
}

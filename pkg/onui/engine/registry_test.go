package engine

import (
	"testing"
	"time"
)

func TestRegistry_InsertRejectsDuplicateID(t *testing.T) {
	r := NewRegistry()
	if err := r.Insert("t1", "return 1", time.Second); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := r.Insert("t1", "return 2", time.Second); err == nil {
		t.Fatal("second insert with the same id should fail")
	}
}

func TestRegistry_PendingIDsPreserveInsertionOrder(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"t1", "t2", "t3"} {
		if err := r.Insert(id, "", 0); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	got := r.PendingIDs()
	want := []string{"t1", "t2", "t3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRegistry_RejectIsImmediatelyTerminal(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert("t1", "return 1", time.Second)

	rejectedID, err := r.Decide("t1", Rejected)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if rejectedID != "t1" {
		t.Fatalf("got rejectedID = %q, want t1", rejectedID)
	}
	if r.HasPending() {
		t.Fatal("a rejected-only entry should not count as pending")
	}

	batch, ok := r.TakeBatchIfComplete()
	if !ok {
		t.Fatal("batch should be complete after its only entry is rejected")
	}
	if len(batch) != 1 || batch[0].Output != RejectedMessage {
		t.Fatalf("got batch = %+v, want a single rejected entry", batch)
	}
}

func TestRegistry_ApprovedEntryIsNotTerminalUntilRecordOutput(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert("t1", "return 1", time.Second)

	if _, err := r.Decide("t1", Approved); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if _, ok := r.TakeBatchIfComplete(); ok {
		t.Fatal("an approved-but-unexecuted entry must not complete the batch")
	}

	id, code, _, ok := r.NextApprovedPending()
	if !ok || id != "t1" || code != "return 1" {
		t.Fatalf("NextApprovedPending() = %q, %q, _, %v", id, code, ok)
	}

	r.RecordOutput("t1", "** Ret[1]: 1")
	if _, ok := r.NextApprovedPending(); ok {
		t.Fatal("an already-recorded entry must not be returned again")
	}

	batch, ok := r.TakeBatchIfComplete()
	if !ok || len(batch) != 1 || batch[0].Output != "** Ret[1]: 1" {
		t.Fatalf("got batch = %+v, ok = %v", batch, ok)
	}
}

func TestRegistry_RedecidingAnIDIsANoOp(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert("t1", "", 0)

	if _, err := r.Decide("t1", Rejected); err != nil {
		t.Fatalf("first decide: %v", err)
	}
	rejectedID, err := r.Decide("t1", Approved)
	if err != nil {
		t.Fatalf("second decide should not error: %v", err)
	}
	if rejectedID != "" {
		t.Fatalf("re-deciding an already-terminal id should report no new rejection, got %q", rejectedID)
	}

	batch, _ := r.TakeBatchIfComplete()
	if len(batch) != 1 || batch[0].Decision != Rejected {
		t.Fatalf("decision should remain final (Rejected), got %+v", batch)
	}
}

func TestRegistry_DecideAllOnlyReturnsNewlyRejected(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert("t1", "", 0)
	_ = r.Insert("t2", "", 0)

	rejected := r.DecideAll(Approved)
	if len(rejected) != 0 {
		t.Fatalf("decision-all Approved should report no immediately-terminal ids, got %v", rejected)
	}
	if r.HasPending() {
		t.Fatal("both entries are approved (not yet executed); HasPending should be false")
	}

	_ = r.Insert("t3", "", 0)
	rejected = r.DecideAll(Rejected)
	if len(rejected) != 1 || rejected[0] != "t3" {
		t.Fatalf("decision-all Rejected should report only the newly-rejected t3, got %v", rejected)
	}
}

func TestRegistry_TakeBatchIfCompleteRequiresAllTerminal(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert("t1", "", 0)
	_ = r.Insert("t2", "", 0)
	_, _ = r.Decide("t1", Rejected)

	if _, ok := r.TakeBatchIfComplete(); ok {
		t.Fatal("batch must not be available while t2 is still unresolved")
	}

	_, _ = r.Decide("t2", Rejected)
	batch, ok := r.TakeBatchIfComplete()
	if !ok || len(batch) != 2 {
		t.Fatalf("got batch = %+v, ok = %v, want both entries", batch, ok)
	}
	if batch[0].ID != "t1" || batch[1].ID != "t2" {
		t.Fatalf("batch should preserve insertion order, got %+v", batch)
	}

	if _, ok := r.TakeBatchIfComplete(); ok {
		t.Fatal("taking the batch should clear the registry")
	}
}

func TestRegistry_ClearIsUnconditionalAndIdempotent(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert("t1", "", 0)
	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("got Len() = %d, want 0 after Clear", r.Len())
	}
	r.Clear() // idempotent
	if r.Len() != 0 {
		t.Fatal("Clear should remain idempotent")
	}

	// Clear frees up the id for reuse in the next turn.
	if err := r.Insert("t1", "", 0); err != nil {
		t.Fatalf("insert after clear: %v", err)
	}
}

func TestRegistry_MatchesPendingID(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert("t1", "", 0)
	if !r.MatchesPendingID("t1") {
		t.Fatal("t1 should match while pending")
	}
	_, _ = r.Decide("t1", Rejected)
	if r.MatchesPendingID("t1") {
		t.Fatal("t1 should no longer match once decided")
	}
	if r.MatchesPendingID("nonexistent") {
		t.Fatal("an unknown id should never match")
	}
}

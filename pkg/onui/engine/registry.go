package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the mutex-guarded pending-tool table. It is shared between
// the event handler bridge (which inserts new tool calls as they stream
// in) and the agent loop (which applies operator decisions, runs
// approved scripts, and drains completed batches). It pairs an ordered
// slice (for insertion order) with a map (for O(1) lookup by id), guarded
// by one mutex.
//
// Each entry's lifecycle is unresolved -> (approved -> done) | (rejected,
// which is done immediately). Done, not Decision alone, is what
// TakeBatchIfComplete checks: an approved entry is not terminal until its
// script has actually run and RecordOutput has been called.
type Registry struct {
	mu sync.Mutex

	order   []string
	entries map[string]*PendingTool
	done    map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*PendingTool),
		done:    make(map[string]bool),
	}
}

// NewToolID generates a synthetic id for adapters that omit one on a tool
// call fragment (a defensive fallback; the streaming path normally carries
// a vendor-assigned id — see llm_openai.go).
func NewToolID() string { return uuid.NewString() }

// Insert registers a new pending tool call. It fails if id is already
// present, satisfying invariant 1 (unique id within pending ∪ resolved for
// the current turn).
func (r *Registry) Insert(id, code string, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("registry: id %q already present", id)
	}
	r.entries[id] = &PendingTool{ID: id, Code: code, Timeout: timeout}
	r.order = append(r.order, id)
	return nil
}

// PendingIDs returns the ids still awaiting an operator decision, in
// insertion order.
func (r *Registry) PendingIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, id := range r.order {
		if e := r.entries[id]; e != nil && e.Decision == Unresolved {
			ids = append(ids, id)
		}
	}
	return ids
}

// HasPending reports whether any tool call is still awaiting a decision.
func (r *Registry) HasPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		if e := r.entries[id]; e != nil && e.Decision == Unresolved {
			return true
		}
	}
	return false
}

// MatchesPendingID reports whether token is exactly an id still awaiting
// a decision.
func (r *Registry) MatchesPendingID(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[token]
	return ok && e.Decision == Unresolved
}

// Decide moves a single entry from Unresolved to decision. Re-deciding an
// id that is already decided is a no-op (decisions are final, per the
// tie-break rule) and returns an empty rejectedID with a nil error; an id
// not in the registry at all returns an error. When decision is Rejected, the
// entry becomes terminal immediately and rejectedID echoes id so the
// caller can emit its ToolResult right away.
func (r *Registry) Decide(id string, decision Decision) (rejectedID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return "", fmt.Errorf("registry: id %q not found", id)
	}
	if e.Decision != Unresolved {
		return "", nil
	}
	e.Decision = decision
	if decision == Rejected {
		e.Output = RejectedMessage
		r.done[id] = true
		return id, nil
	}
	return "", nil
}

// DecideAll applies decision to every currently-pending entry and returns
// the ids that became immediately terminal (i.e. were rejected), in
// insertion order, so the caller can emit their ToolResults right away.
func (r *Registry) DecideAll(decision Decision) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rejected []string
	for _, id := range r.order {
		e := r.entries[id]
		if e == nil || e.Decision != Unresolved {
			continue
		}
		e.Decision = decision
		if decision == Rejected {
			e.Output = RejectedMessage
			r.done[id] = true
			rejected = append(rejected, id)
		}
	}
	return rejected
}

// NextApprovedPending returns the first approved entry whose script has
// not yet run, without marking it done — the caller executes the script
// with the registry lock released and calls RecordOutput afterward.
func (r *Registry) NextApprovedPending() (id, code string, timeout time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cid := range r.order {
		e := r.entries[cid]
		if e != nil && e.Decision == Approved && !r.done[cid] {
			return e.ID, e.Code, e.Timeout, true
		}
	}
	return "", "", 0, false
}

// RecordOutput stores the rendered result for an approved entry once the
// script runtime has produced it, marking the entry terminal.
func (r *Registry) RecordOutput(id, output string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.Output = output
		r.done[id] = true
	}
}

// TakeBatchIfComplete returns the full, insertion-ordered list of decided
// entries and clears the registry iff every entry is terminal and at
// least one entry exists (invariant 4). It returns (nil, false) otherwise,
// leaving the registry untouched.
func (r *Registry) TakeBatchIfComplete() ([]PendingTool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.order) == 0 {
		return nil, false
	}
	for _, id := range r.order {
		if !r.done[id] {
			return nil, false
		}
	}

	batch := make([]PendingTool, 0, len(r.order))
	for _, id := range r.order {
		batch = append(batch, *r.entries[id])
	}
	r.order = nil
	r.entries = make(map[string]*PendingTool)
	r.done = make(map[string]bool)
	return batch, true
}

// Clear unconditionally resets the registry (invoked by /reset-vm).
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.entries = make(map[string]*PendingTool)
	r.done = make(map[string]bool)
}

// Len returns the number of entries (pending + resolved) currently
// tracked, used by /status to render a pending count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

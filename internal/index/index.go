// Package index implements the append-only, filtered, in-memory-
// fronted index substrate that the resource, vector, graph, and
// memory indexes all specialize.
package index

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/storage"
)

// Entry is a stored record keyed by canonical identifier string.
type Entry struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Filter is the shared query filter applied after a component-
// specific match.
type Filter struct {
	Prefix    string
	Limit     int
	MaxTokens int
}

// Scored pairs an Entry with a similarity score and its advisory
// token cost, used by ApplyFilter's max_tokens admission and by
// callers (e.g. vector index) that need score-ordering.
type Scored struct {
	Entry  Entry
	Score  float64
	Tokens int
}

// Index is a named, ordered collection of entries backed by a single
// append-only storage key ("<name>.jsonl" by convention).
type Index struct {
	name    string
	backend storage.Backend
	key     string

	mu      sync.RWMutex
	loaded  bool
	entries map[string]Entry
	order   []string // append order, for components that need it (memory index)
}

// New constructs an Index named name backed by key in backend.
func New(name string, backend storage.Backend, key string) *Index {
	return &Index{name: name, backend: backend, key: key, entries: make(map[string]Entry)}
}

// Name returns the index's configured name.
func (idx *Index) Name() string { return idx.name }

// LoadData reads the backing key if present and populates the
// in-memory map. Idempotent; safe to call more than once. Auto-loads
// on first query via ensureLoaded.
func (idx *Index) LoadData(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.loadLocked(ctx)
}

func (idx *Index) loadLocked(ctx context.Context) error {
	if idx.loaded {
		return nil
	}
	exists, err := idx.backend.Exists(ctx, idx.key)
	if err != nil {
		return err
	}
	if exists {
		var raw []json.RawMessage
		if err := idx.backend.Get(ctx, idx.key, &raw); err != nil {
			return faults.Internalf(err, "load index %s", idx.name)
		}
		for _, r := range raw {
			var e Entry
			if err := json.Unmarshal(r, &e); err != nil {
				return faults.Internalf(err, "malformed entry in index %s", idx.name)
			}
			if _, exists := idx.entries[e.ID]; !exists {
				idx.order = append(idx.order, e.ID)
			}
			idx.entries[e.ID] = e
		}
	}
	idx.loaded = true
	return nil
}

func (idx *Index) ensureLoaded(ctx context.Context) error {
	idx.mu.RLock()
	loaded := idx.loaded
	idx.mu.RUnlock()
	if loaded {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.loadLocked(ctx)
}

// Add persists entry as one appended JSON record and updates the
// in-memory map. A re-add replaces the in-memory entry; the backing
// file still grows (compaction is out of scope), so readers always
// reconstruct from the final value per id during LoadData.
func (idx *Index) Add(ctx context.Context, entry Entry) error {
	if err := idx.ensureLoaded(ctx); err != nil {
		return err
	}
	if err := idx.backend.Append(ctx, idx.key, entry); err != nil {
		return err
	}
	idx.mu.Lock()
	if _, exists := idx.entries[entry.ID]; !exists {
		idx.order = append(idx.order, entry.ID)
	}
	idx.entries[entry.ID] = entry
	idx.mu.Unlock()
	return nil
}

// Has reports whether id is present.
func (idx *Index) Has(ctx context.Context, id string) (bool, error) {
	if err := idx.ensureLoaded(ctx); err != nil {
		return false, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.entries[id]
	return ok, nil
}

// Get returns the entries for the given ids, in input order, omitting
// any id that is absent.
func (idx *Index) Get(ctx context.Context, ids []string) ([]Entry, error) {
	if err := idx.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := idx.entries[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every entry in append order. Used by components (memory
// index) whose query semantics require observing the full log.
func (idx *Index) All(ctx context.Context) ([]Entry, error) {
	if err := idx.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]Entry, 0, len(idx.order))
	for _, id := range idx.order {
		if e, ok := idx.entries[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Snapshot returns a defensive copy of the current in-memory entries,
// unordered, for specialized indexes (vector/graph) that maintain
// their own secondary structures alongside the substrate.
func (idx *Index) Snapshot(ctx context.Context) (map[string]Entry, error) {
	if err := idx.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]Entry, len(idx.entries))
	for k, v := range idx.entries {
		out[k] = v
	}
	return out, nil
}

// Flush is a no-op for the unbuffered Index; present so callers can
// treat Index and BufferedIndex interchangeably.
func (idx *Index) Flush(context.Context) error { return nil }

// ApplyFilter applies the shared prefix/limit/max_tokens filter rules
// to a candidate list already in score order (or, for
// components with no notion of score, in whatever order the caller
// considers "best first" — e.g. append order for memory-like
// indexes). Boundary rule: an entry whose cumulative token sum equals
// max_tokens is included; the first entry to exceed it, and everything
// after, is excluded.
func ApplyFilter(candidates []Scored, f Filter) []Scored {
	var prefixed []Scored
	for _, c := range candidates {
		if f.Prefix != "" && !hasPrefix(c.Entry.ID, f.Prefix) {
			continue
		}
		prefixed = append(prefixed, c)
	}

	budgeted := prefixed
	if f.MaxTokens > 0 {
		budgeted = nil
		sum := 0
		for _, c := range prefixed {
			if sum+c.Tokens > f.MaxTokens {
				break
			}
			sum += c.Tokens
			budgeted = append(budgeted, c)
		}
	}

	if f.Limit > 0 && len(budgeted) > f.Limit {
		budgeted = budgeted[:f.Limit]
	}
	return budgeted
}

func hasPrefix(id, prefix string) bool {
	if len(id) < len(prefix) {
		return false
	}
	return id[:len(prefix)] == prefix
}

// SortByScoreDesc sorts candidates by Score descending, stable so
// ties preserve the caller's original ordering.
func SortByScoreDesc(candidates []Scored) {
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
}

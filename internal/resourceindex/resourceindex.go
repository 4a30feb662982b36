// Package resourceindex implements the Resource Index: typed JSON
// resources, each persisted as its own "<id>.json" object so any one
// resource can be read individually by key, fronted by an in-memory
// map of known identifiers for fast Has/findByPrefix.
package resourceindex

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/identifier"
	"github.com/forwardimpact/monorepo-sub001/internal/resource"
	"github.com/forwardimpact/monorepo-sub001/internal/storage"
)

// Policy evaluates whether actor may read the given resource ids. A
// Policy that always allows is valid in the absence of rules.
type Policy interface {
	Evaluate(ctx context.Context, actor string, ids []string) (bool, error)
}

// AllowAllPolicy is the default Policy: no rules, everything is
// allowed.
type AllowAllPolicy struct{}

func (AllowAllPolicy) Evaluate(context.Context, string, []string) (bool, error) { return true, nil }

// Index is the Resource Index.
type Index struct {
	backend storage.Backend
	policy  Policy

	mu     sync.RWMutex
	loaded bool
	known  map[string]struct{} // canonical id string -> present

	cache *ReadThroughCache
}

// New constructs a Resource Index over backend. policy may be nil, in
// which case AllowAllPolicy is used.
func New(backend storage.Backend, policy Policy) *Index {
	if policy == nil {
		policy = AllowAllPolicy{}
	}
	return &Index{backend: backend, policy: policy, known: make(map[string]struct{})}
}

// WithCache attaches an optional distributed read-through cache in
// front of Get.
func (ix *Index) WithCache(cache *ReadThroughCache) *Index {
	ix.cache = cache
	return ix
}

func keyFor(id identifier.ID) string { return id.String() + ".json" }

func (ix *Index) ensureLoaded(ctx context.Context) error {
	ix.mu.RLock()
	loaded := ix.loaded
	ix.mu.RUnlock()
	if loaded {
		return nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.loaded {
		return nil
	}
	keys, err := ix.backend.FindByExtension(ctx, ".json")
	if err != nil {
		return err
	}
	for _, k := range keys {
		ix.known[strings.TrimSuffix(k, ".json")] = struct{}{}
	}
	ix.loaded = true
	return nil
}

// Has reports whether id is present.
func (ix *Index) Has(ctx context.Context, id identifier.ID) (bool, error) {
	if err := ix.ensureLoaded(ctx); err != nil {
		return false, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.known[id.String()]
	return ok, nil
}

// Put ensures r has a generated name (a fresh UUID if none was set)
// and writes "<id>.json". The stored resource's id must equal the
// identifier implied by its storage key, so Put always writes under
// the resulting r.ResourceID().
func (ix *Index) Put(ctx context.Context, r resource.Resource) (identifier.ID, error) {
	id := r.ResourceID()
	if id.Name == "" {
		id.Name = uuid.NewString()
		r.SetResourceID(id)
	}
	if id.Type == "" {
		return identifier.ID{}, faults.Validationf("resource has no type, cannot derive identifier")
	}

	key := keyFor(id)
	if err := ix.backend.Put(ctx, key, r); err != nil {
		return identifier.ID{}, err
	}

	if err := ix.ensureLoaded(ctx); err != nil {
		return identifier.ID{}, err
	}
	ix.mu.Lock()
	ix.known[id.String()] = struct{}{}
	ix.mu.Unlock()

	if ix.cache != nil {
		_ = ix.cache.Invalidate(ctx, id.String())
	}
	return id, nil
}

// Add is an alias for Put.
func (ix *Index) Add(ctx context.Context, r resource.Resource) (identifier.ID, error) {
	return ix.Put(ctx, r)
}

// Get reads ids via GetMany, preserving input order and dropping
// missing ids. If actor is non-empty, the configured Policy is
// consulted and AccessDenied is returned on rejection.
func (ix *Index) Get(ctx context.Context, ids []identifier.ID, actor string) ([]resource.Resource, error) {
	if actor != "" {
		strs := make([]string, len(ids))
		for i, id := range ids {
			strs[i] = id.String()
		}
		allowed, err := ix.policy.Evaluate(ctx, actor, strs)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, faults.AccessDeniedf("actor %s denied access to requested resources", actor)
		}
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyFor(id)
	}

	raw := make(map[string]json.RawMessage, len(ids))
	var misses []identifier.ID
	if ix.cache != nil {
		for i, id := range ids {
			data, hit, err := ix.cache.Get(ctx, id.String())
			if err != nil {
				return nil, err
			}
			if hit {
				raw[keys[i]] = data
			} else {
				misses = append(misses, id)
			}
		}
	} else {
		misses = ids
	}

	if len(misses) > 0 {
		missKeys := make([]string, len(misses))
		for i, id := range misses {
			missKeys[i] = keyFor(id)
		}
		fetched, err := ix.backend.GetMany(ctx, missKeys)
		if err != nil {
			return nil, err
		}
		for i, id := range misses {
			data, ok := fetched[missKeys[i]]
			if !ok {
				continue
			}
			raw[missKeys[i]] = data
			if ix.cache != nil {
				_ = ix.cache.Set(ctx, id.String(), data)
			}
		}
	}

	out := make([]resource.Resource, 0, len(ids))
	for i, id := range ids {
		data, ok := raw[keys[i]]
		if !ok {
			continue
		}
		r, err := resource.Decode(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// FindAll returns every identifier currently known to the index.
func (ix *Index) FindAll(ctx context.Context) ([]identifier.ID, error) {
	return ix.FindByPrefix(ctx, "")
}

// FindByPrefix returns every identifier whose canonical string starts
// with prefix, sorted for deterministic output.
func (ix *Index) FindByPrefix(ctx context.Context, prefix string) ([]identifier.ID, error) {
	if err := ix.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	ix.mu.RLock()
	matches := make([]string, 0, len(ix.known))
	for s := range ix.known {
		if strings.HasPrefix(s, prefix) {
			matches = append(matches, s)
		}
	}
	ix.mu.RUnlock()
	sort.Strings(matches)

	out := make([]identifier.ID, 0, len(matches))
	for _, s := range matches {
		id, err := identifier.Parse(s)
		if err != nil {
			return nil, faults.Internalf(err, "parse known identifier %q", s)
		}
		out = append(out, id)
	}
	return out, nil
}

// Package graphindex implements the Graph Index: RDF quad groups
// addressed by identifier, queryable by subject/predicate/object
// pattern.
package graphindex

import (
	"context"
	"encoding/json"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/identifier"
	"github.com/forwardimpact/monorepo-sub001/internal/index"
	"github.com/forwardimpact/monorepo-sub001/internal/storage"
)

// Quad is one RDF statement. Graph is optional (named graphs); empty
// means the default graph.
type Quad struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	Graph     string `json:"graph,omitempty"`
}

// Pattern matches quads; a field set to Wildcard matches any value.
type Pattern struct {
	Subject   string
	Predicate string
	Object    string
}

// Wildcard matches any value in a Pattern field.
const Wildcard = "?"

// QueryFilter parameterizes QueryItems with the shared index filters.
type QueryFilter struct {
	Prefix    string
	Limit     int
	MaxTokens int
}

// record is the persisted shape of one identifier's quad group. Tokens
// carries the identifier's advisory token cost out of band, since
// identifier.Parse never reconstructs it (Tokens is not part of the
// string form).
type record struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Quads      []Quad `json:"quads"`
	Tokens     int    `json:"tokens,omitempty"`
}

// Index is the Graph Index, built on the shared append-only
// substrate: one record per identifier, each carrying its quad group.
type Index struct {
	substrate *index.Index
}

// New constructs a Graph Index backed by key in backend.
func New(backend storage.Backend, key string) *Index {
	return &Index{substrate: index.New("graphs", backend, key)}
}

// Add stores quads under id, both as a persisted record and in the
// in-memory triple store that QueryItems resolves against.
func (ix *Index) Add(ctx context.Context, id identifier.ID, quads []Quad) error {
	payload, err := json.Marshal(record{ID: id.String(), Identifier: id.String(), Quads: quads, Tokens: id.Tokens})
	if err != nil {
		return faults.Internalf(err, "marshal graph record")
	}
	return ix.substrate.Add(ctx, index.Entry{ID: id.String(), Payload: payload})
}

// QueryItems resolves pattern against every stored quad group and
// returns the identifiers of groups containing at least one matching
// quad, with the shared prefix/limit/max_tokens filters applied. Each
// matching entry's advisory token cost is the record's stored Tokens
// field — identifier.Parse never reconstructs Tokens, so it cannot be
// recovered from rec.Identifier.
func (ix *Index) QueryItems(ctx context.Context, pattern Pattern, f QueryFilter) ([]identifier.ID, error) {
	all, err := ix.substrate.All(ctx)
	if err != nil {
		return nil, err
	}

	var scored []index.Scored
	ids := make(map[string]identifier.ID, len(all))
	for _, e := range all {
		var rec record
		if err := json.Unmarshal(e.Payload, &rec); err != nil {
			return nil, faults.Internalf(err, "decode graph record %s", e.ID)
		}
		id, err := identifier.Parse(rec.Identifier)
		if err != nil {
			return nil, faults.Internalf(err, "parse graph identifier %q", rec.Identifier)
		}

		if !anyQuadMatches(rec.Quads, pattern) {
			continue
		}
		ids[e.ID] = id
		scored = append(scored, index.Scored{Entry: e, Tokens: rec.Tokens})
	}

	filtered := index.ApplyFilter(scored, index.Filter{Prefix: f.Prefix, Limit: f.Limit, MaxTokens: f.MaxTokens})
	out := make([]identifier.ID, 0, len(filtered))
	for _, s := range filtered {
		out = append(out, ids[s.Entry.ID])
	}
	return out, nil
}

func anyQuadMatches(quads []Quad, p Pattern) bool {
	for _, q := range quads {
		if fieldMatches(p.Subject, q.Subject) &&
			fieldMatches(p.Predicate, q.Predicate) &&
			fieldMatches(p.Object, q.Object) {
			return true
		}
	}
	return false
}

func fieldMatches(pattern, value string) bool {
	return pattern == Wildcard || pattern == value
}

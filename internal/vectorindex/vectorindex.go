// Package vectorindex implements the Vector Index: normalized-vector
// similarity search over the append-only index substrate.
package vectorindex

import (
	"context"
	"encoding/json"
	"math"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/identifier"
	"github.com/forwardimpact/monorepo-sub001/internal/index"
	"github.com/forwardimpact/monorepo-sub001/internal/storage"
)

// record is the persisted shape of one stored vector. Tokens carries
// the identifier's advisory token cost out of band, since
// identifier.Parse never reconstructs it (Tokens is not part of the
// string form).
type record struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Vector     []float64 `json:"vector"`
	Tokens     int       `json:"tokens,omitempty"`
}

// Match is a query result: an identifier paired with its best score
// against the query vectors.
type Match struct {
	Identifier identifier.ID
	Score      float64
}

// QueryFilter parameterizes QueryItems beyond the shared index.Filter:
// Threshold discards entries whose best score falls below it.
type QueryFilter struct {
	Threshold float64
	Limit     int
	Prefix    string
	MaxTokens int
}

// Index is the Vector Index, built on the shared append-only
// substrate: one record per stored vector, keyed by its identifier
// string.
type Index struct {
	substrate *index.Index
}

// New constructs a Vector Index backed by key (conventionally
// "vectors.jsonl") in backend.
func New(backend storage.Backend, key string) *Index {
	return &Index{substrate: index.New("vectors", backend, key)}
}

// Add persists {id, identifier, vector}. The caller is expected to
// have already normalized vector; Add does not renormalize.
func (ix *Index) Add(ctx context.Context, id identifier.ID, vector []float64) error {
	payload, err := json.Marshal(record{ID: id.String(), Identifier: id.String(), Vector: vector, Tokens: id.Tokens})
	if err != nil {
		return faults.Internalf(err, "marshal vector record")
	}
	return ix.substrate.Add(ctx, index.Entry{ID: id.String(), Payload: payload})
}

// QueryItems computes, for every stored entry, the maximum dot
// product against any of queryVectors, drops entries scoring below
// f.Threshold, sorts survivors by score descending, and applies the
// shared prefix/limit/max_tokens filters. An entry's advisory token
// cost for max_tokens purposes is the record's stored Tokens field (0
// if the identifier carried none at Add time) — identifier.Parse never
// reconstructs Tokens, so it cannot be recovered from rec.Identifier.
func (ix *Index) QueryItems(ctx context.Context, queryVectors [][]float64, f QueryFilter) ([]Match, error) {
	all, err := ix.substrate.All(ctx)
	if err != nil {
		return nil, err
	}

	var scored []index.Scored
	matches := make(map[string]identifier.ID, len(all))
	for _, e := range all {
		var rec record
		if err := json.Unmarshal(e.Payload, &rec); err != nil {
			return nil, faults.Internalf(err, "decode vector record %s", e.ID)
		}
		id, err := identifier.Parse(rec.Identifier)
		if err != nil {
			return nil, faults.Internalf(err, "parse vector identifier %q", rec.Identifier)
		}

		best := bestScore(rec.Vector, queryVectors)
		if best < f.Threshold {
			continue
		}
		matches[e.ID] = id
		scored = append(scored, index.Scored{Entry: e, Score: best, Tokens: rec.Tokens})
	}

	index.SortByScoreDesc(scored)
	filtered := index.ApplyFilter(scored, index.Filter{Prefix: f.Prefix, Limit: f.Limit, MaxTokens: f.MaxTokens})

	out := make([]Match, 0, len(filtered))
	for _, s := range filtered {
		out = append(out, Match{Identifier: matches[s.Entry.ID], Score: s.Score})
	}
	return out, nil
}

// bestScore returns the maximum dot product between vec and any
// member of queries. Tolerates a zero vector on either side (dot
// product is 0 in that case).
func bestScore(vec []float64, queries [][]float64) float64 {
	best := 0.0
	first := true
	for _, q := range queries {
		s := dot(vec, q)
		if first || s > best {
			best = s
			first = false
		}
	}
	return best
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// Normalize returns v scaled to unit length, or v unchanged if it is
// the zero vector (callers persist normalized vectors; QueryItems
// itself does not require normalization to tolerate a zero vector,
// but threshold semantics are only meaningful for unit vectors).
func Normalize(v []float64) []float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

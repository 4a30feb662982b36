// Package memoryindex implements the Memory Index: an append-only log
// of bare identifiers (no payload) recording, per conversation, the
// order in which resources were added to it.
package memoryindex

import (
	"context"
	"encoding/json"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/identifier"
	"github.com/forwardimpact/monorepo-sub001/internal/index"
	"github.com/forwardimpact/monorepo-sub001/internal/storage"
)

type record struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
}

// Index is the Memory Index, built on the shared append-only
// substrate. Entries carry only an identifier, no payload.
type Index struct {
	substrate *index.Index
}

// New constructs a Memory Index backed by key (conventionally one
// "<conversation>.jsonl" per conversation) in backend.
func New(backend storage.Backend, key string) *Index {
	return &Index{substrate: index.New("memory", backend, key)}
}

// Add appends id to the log.
func (ix *Index) Add(ctx context.Context, id identifier.ID) error {
	payload, err := json.Marshal(record{ID: id.String(), Identifier: id.String()})
	if err != nil {
		return faults.Internalf(err, "marshal memory record")
	}
	return ix.substrate.Add(ctx, index.Entry{ID: id.String(), Payload: payload})
}

// List returns every logged identifier in append order.
func (ix *Index) List(ctx context.Context) ([]identifier.ID, error) {
	all, err := ix.substrate.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]identifier.ID, 0, len(all))
	for _, e := range all {
		var rec record
		if err := json.Unmarshal(e.Payload, &rec); err != nil {
			return nil, faults.Internalf(err, "decode memory record %s", e.ID)
		}
		id, err := identifier.Parse(rec.Identifier)
		if err != nil {
			return nil, faults.Internalf(err, "parse memory identifier %q", rec.Identifier)
		}
		out = append(out, id)
	}
	return out, nil
}

package storage_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/storage"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSONRoundTrip(t *testing.T) {
	b := storage.NewLocal(t.TempDir(), "resources")
	ctx := context.Background()

	in := doc{Name: "hello", Count: 3}
	require.NoError(t, b.Put(ctx, "a.json", in))

	var out doc
	require.NoError(t, b.Get(ctx, "a.json", &out))
	require.Equal(t, in, out)
}

func TestJSONLRoundTrip(t *testing.T) {
	b := storage.NewLocal(t.TempDir(), "memories")
	ctx := context.Background()

	in := []doc{{Name: "a", Count: 1}, {Name: "b", Count: 2}}
	require.NoError(t, b.Put(ctx, "c1.jsonl", in))

	var out []doc
	require.NoError(t, b.Get(ctx, "c1.jsonl", &out))
	require.Equal(t, in, out)
}

func TestOpaqueBytesRoundTrip(t *testing.T) {
	b := storage.NewLocal(t.TempDir(), "blobs")
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "x.bin", []byte("raw-bytes")))
	var out []byte
	require.NoError(t, b.Get(ctx, "x.bin", &out))
	require.Equal(t, []byte("raw-bytes"), out)
}

func TestGetMissingIsNotFound(t *testing.T) {
	b := storage.NewLocal(t.TempDir(), "resources")
	var out doc
	err := b.Get(context.Background(), "missing.json", &out)
	require.Error(t, err)
	require.Equal(t, faults.NotFound, faults.KindOf(err))
}

func TestExistsNeverFailsOnAbsence(t *testing.T) {
	b := storage.NewLocal(t.TempDir(), "resources")
	ok, err := b.Exists(context.Background(), "missing.json")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAppendCreatesKey(t *testing.T) {
	b := storage.NewLocal(t.TempDir(), "memories")
	ctx := context.Background()

	require.NoError(t, b.Append(ctx, "log.jsonl", doc{Name: "first", Count: 1}))
	require.NoError(t, b.Append(ctx, "log.jsonl", doc{Name: "second", Count: 2}))

	var out []doc
	require.NoError(t, b.Get(ctx, "log.jsonl", &out))
	require.Equal(t, []doc{{Name: "first", Count: 1}, {Name: "second", Count: 2}}, out)
}

func TestGetManyOmitsMissing(t *testing.T) {
	b := storage.NewLocal(t.TempDir(), "resources")
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "present.json", doc{Name: "p"}))

	got, err := b.GetMany(ctx, []string{"present.json", "absent.json"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Contains(t, got, "present.json")

	var d doc
	require.NoError(t, json.Unmarshal(got["present.json"], &d))
	require.Equal(t, "p", d.Name)
}

func TestFindByPrefixWithDelimiterReturnsNextSegments(t *testing.T) {
	b := storage.NewLocal(t.TempDir(), "resources")
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "common.Message/a.json", doc{Name: "a"}))
	require.NoError(t, b.Put(ctx, "common.Message/b.json", doc{Name: "b"}))
	require.NoError(t, b.Put(ctx, "common.Agent/a.json", doc{Name: "c"}))

	got, err := b.FindByPrefix(ctx, "", "/")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"common.Message/", "common.Agent/"}, got)
}

func TestFindByExtension(t *testing.T) {
	b := storage.NewLocal(t.TempDir(), "mixed")
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "a.json", doc{Name: "a"}))
	require.NoError(t, b.Put(ctx, "b.jsonl", []doc{{Name: "b"}}))

	got, err := b.FindByExtension(ctx, ".json")
	require.NoError(t, err)
	require.Equal(t, []string{"a.json"}, got)
}

func TestListOrdersOldestFirst(t *testing.T) {
	b := storage.NewLocal(t.TempDir(), "resources")
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "first.json", doc{Name: "1"}))
	require.NoError(t, b.Put(ctx, "second.json", doc{Name: "2"}))

	got, err := b.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"first.json", "second.json"}, got)
}

func TestEnsureBucketIsIdempotent(t *testing.T) {
	b := storage.NewLocal(t.TempDir(), "resources")
	ctx := context.Background()
	require.NoError(t, b.EnsureBucket(ctx))
	require.NoError(t, b.EnsureBucket(ctx))
	ok, err := b.BucketExists(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

package resourceindex_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/identifier"
	"github.com/forwardimpact/monorepo-sub001/internal/resource"
	"github.com/forwardimpact/monorepo-sub001/internal/resourceindex"
	"github.com/forwardimpact/monorepo-sub001/internal/storage"
)

func newDoc(name, title string) *resource.Document {
	d := &resource.Document{Title: title, Body: "body of " + name}
	d.SetResourceID(identifier.ID{Type: "resource.Document", Name: name})
	return d
}

func TestPutThenGetRoundTrips(t *testing.T) {
	be := storage.NewLocal(t.TempDir(), "resources")
	ix := resourceindex.New(be, nil)
	ctx := context.Background()

	id, err := ix.Put(ctx, newDoc("d1", "first"))
	require.NoError(t, err)
	require.Equal(t, "resource.Document.d1", id.String())

	got, err := ix.Get(ctx, []identifier.ID{id}, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "first", got[0].(*resource.Document).Title)
}

func TestPutAssignsNameWhenMissing(t *testing.T) {
	be := storage.NewLocal(t.TempDir(), "resources")
	ix := resourceindex.New(be, nil)
	ctx := context.Background()

	d := &resource.Document{Title: "anon"}
	d.SetResourceID(identifier.ID{Type: "resource.Document"})
	id, err := ix.Put(ctx, d)
	require.NoError(t, err)
	require.NotEmpty(t, id.Name)
}

func TestGetDropsMissingPreservesOrder(t *testing.T) {
	be := storage.NewLocal(t.TempDir(), "resources")
	ix := resourceindex.New(be, nil)
	ctx := context.Background()

	idA, err := ix.Put(ctx, newDoc("a", "A"))
	require.NoError(t, err)
	idC, err := ix.Put(ctx, newDoc("c", "C"))
	require.NoError(t, err)
	missing := identifier.ID{Type: "resource.Document", Name: "missing"}

	got, err := ix.Get(ctx, []identifier.ID{idC, missing, idA}, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "C", got[0].(*resource.Document).Title)
	require.Equal(t, "A", got[1].(*resource.Document).Title)
}

func TestFindByPrefixSortedSubtree(t *testing.T) {
	be := storage.NewLocal(t.TempDir(), "resources")
	ix := resourceindex.New(be, nil)
	ctx := context.Background()

	_, err := ix.Put(ctx, newDoc("b", "B"))
	require.NoError(t, err)
	agent := &resource.Agent{SystemMessage: "sys"}
	agent.SetResourceID(identifier.ID{Type: "common.Agent", Name: "x"})
	_, err = ix.Put(ctx, agent)
	require.NoError(t, err)

	ids, err := ix.FindByPrefix(ctx, "resource.Document")
	require.NoError(t, err)
	require.Len(t, ids, 1)
	require.Equal(t, "resource.Document.b", ids[0].String())
}

type denyAllPolicy struct{}

func (denyAllPolicy) Evaluate(context.Context, string, []string) (bool, error) { return false, nil }

func TestGetConsultsPolicyWhenActorSet(t *testing.T) {
	be := storage.NewLocal(t.TempDir(), "resources")
	ix := resourceindex.New(be, denyAllPolicy{})
	ctx := context.Background()

	id, err := ix.Put(ctx, newDoc("d1", "first"))
	require.NoError(t, err)

	_, err = ix.Get(ctx, []identifier.ID{id}, "some-actor")
	require.Error(t, err)
	require.Equal(t, faults.AccessDenied, faults.KindOf(err))
}

func TestGetUsesCacheOnHitAndPopulatesOnMiss(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := resourceindex.NewReadThroughCache(rdb, "res", time.Minute)

	be := storage.NewLocal(t.TempDir(), "resources")
	ix := resourceindex.New(be, nil).WithCache(cache)
	ctx := context.Background()

	id, err := ix.Put(ctx, newDoc("d1", "first"))
	require.NoError(t, err)

	// First Get is a cache miss: populates the cache from the backend.
	got, err := ix.Get(ctx, []identifier.ID{id}, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, mr.Exists("res:"+id.String()))

	// Delete the backing object; a cache hit must still serve the value.
	require.NoError(t, be.Delete(ctx, "resource.Document.d1.json"))
	got, err = ix.Get(ctx, []identifier.ID{id}, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "first", got[0].(*resource.Document).Title)
}

func TestPutInvalidatesCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := resourceindex.NewReadThroughCache(rdb, "res", time.Minute)

	be := storage.NewLocal(t.TempDir(), "resources")
	ix := resourceindex.New(be, nil).WithCache(cache)
	ctx := context.Background()

	id, err := ix.Put(ctx, newDoc("d1", "first"))
	require.NoError(t, err)
	_, err = ix.Get(ctx, []identifier.ID{id}, "")
	require.NoError(t, err)
	require.True(t, mr.Exists("res:"+id.String()))

	_, err = ix.Put(ctx, newDoc("d1", "second"))
	require.NoError(t, err)
	require.False(t, mr.Exists("res:"+id.String()))

	got, err := ix.Get(ctx, []identifier.ID{id}, "")
	require.NoError(t, err)
	require.Equal(t, "second", got[0].(*resource.Document).Title)
}

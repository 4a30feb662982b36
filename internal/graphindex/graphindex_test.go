package graphindex_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forwardimpact/monorepo-sub001/internal/graphindex"
	"github.com/forwardimpact/monorepo-sub001/internal/identifier"
	"github.com/forwardimpact/monorepo-sub001/internal/storage"
)

func TestQueryItemsMatchesConcretePattern(t *testing.T) {
	be := storage.NewLocal(t.TempDir(), "graph")
	ix := graphindex.New(be, "graphs.jsonl")
	ctx := context.Background()

	id := identifier.ID{Type: "resource.Document", Name: "doc1"}
	require.NoError(t, ix.Add(ctx, id, []graphindex.Quad{
		{Subject: "ex:alice", Predicate: "ex:knows", Object: "ex:bob"},
	}))

	out, err := ix.QueryItems(ctx, graphindex.Pattern{Subject: "ex:alice", Predicate: graphindex.Wildcard, Object: graphindex.Wildcard}, graphindex.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, id.String(), out[0].String())
}

func TestQueryItemsNoMatch(t *testing.T) {
	be := storage.NewLocal(t.TempDir(), "graph")
	ix := graphindex.New(be, "graphs.jsonl")
	ctx := context.Background()

	id := identifier.ID{Type: "resource.Document", Name: "doc1"}
	require.NoError(t, ix.Add(ctx, id, []graphindex.Quad{
		{Subject: "ex:alice", Predicate: "ex:knows", Object: "ex:bob"},
	}))

	out, err := ix.QueryItems(ctx, graphindex.Pattern{Subject: "ex:carol", Predicate: graphindex.Wildcard, Object: graphindex.Wildcard}, graphindex.QueryFilter{})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestQueryItemsAppliesMaxTokens(t *testing.T) {
	be := storage.NewLocal(t.TempDir(), "graph")
	ix := graphindex.New(be, "graphs.jsonl")
	ctx := context.Background()

	g1 := identifier.ID{Type: "resource.Document", Name: "g1"}.WithTokens(10)
	g2 := identifier.ID{Type: "resource.Document", Name: "g2"}.WithTokens(15)
	g3 := identifier.ID{Type: "resource.Document", Name: "g3"}.WithTokens(20)
	quad := []graphindex.Quad{{Subject: "ex:alice", Predicate: "ex:knows", Object: "ex:bob"}}
	require.NoError(t, ix.Add(ctx, g1, quad))
	require.NoError(t, ix.Add(ctx, g2, quad))
	require.NoError(t, ix.Add(ctx, g3, quad))

	out, err := ix.QueryItems(ctx, graphindex.Pattern{Subject: "ex:alice", Predicate: graphindex.Wildcard, Object: graphindex.Wildcard}, graphindex.QueryFilter{MaxTokens: 20})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "g1", out[0].Name)
}

func TestParseGraphQueryWildcardAndQuoted(t *testing.T) {
	p, err := graphindex.ParseGraphQuery(`ex:alice ? "a long object"`)
	require.NoError(t, err)
	require.Equal(t, "ex:alice", p.Subject)
	require.Equal(t, graphindex.Wildcard, p.Predicate)
	require.Equal(t, "a long object", p.Object)
}

func TestParseGraphQueryRejectsWrongTokenCount(t *testing.T) {
	_, err := graphindex.ParseGraphQuery("a b")
	require.Error(t, err)
}

func TestParseGraphQueryRejectsUnterminatedQuote(t *testing.T) {
	_, err := graphindex.ParseGraphQuery(`a b "unterminated`)
	require.Error(t, err)
}

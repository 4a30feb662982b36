package identifier_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/forwardimpact/monorepo-sub001/internal/identifier"
)

func TestStringParseRoundTrip(t *testing.T) {
	cases := []identifier.ID{
		{Type: "common.Message", Name: "abc123"},
		{Type: "tool.ToolFunction", Name: "search", Parent: "common.Conversation.c1"},
		{Type: "common.Agent", Name: "a1", Parent: "common.Conversation.c1/common.Agent.a0"},
	}
	for _, id := range cases {
		s := id.String()
		got, err := identifier.Parse(s)
		require.NoError(t, err)
		require.Equal(t, id.Type, got.Type)
		require.Equal(t, id.Name, got.Name)
		require.Equal(t, id.Parent, got.Parent)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "noType", "a.", ".name", "parent/onlyname"} {
		_, err := identifier.Parse(s)
		require.Error(t, err)
	}
}

func TestHasPrefixMatchesSubtree(t *testing.T) {
	id := identifier.MustParse("a.B.Sub.y")
	require.True(t, id.HasPrefix("a.B"))
	id2 := identifier.MustParse("a.B.x")
	require.True(t, id2.HasPrefix("a.B"))
}

// TestParseStringRoundTripProperty checks, for a generated population
// of identifiers, that Parse(id.String()) reconstructs the same
// Type/Name/Parent: for all identifiers i, Parse(i.String()) == i.
func TestParseStringRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	identGen := gen.RegexMatch(`^[a-z]{2,6}\.[A-Z][a-z]{2,8}$`)
	nameGen := gen.RegexMatch(`^[a-z0-9]{1,12}$`)

	properties.Property("round trip", prop.ForAll(
		func(typ, name string) bool {
			id := identifier.ID{Type: typ, Name: name}
			got, err := identifier.Parse(id.String())
			if err != nil {
				return false
			}
			return got.Type == id.Type && got.Name == id.Name && got.Parent == ""
		},
		identGen, nameGen,
	))

	properties.TestingRun(t)
}

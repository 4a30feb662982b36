// Package identifier implements the Resource Identifier: the stable,
// string-addressable name every Resource, Span, and index entry is
// keyed by.
package identifier

import (
	"strings"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
)

// ID is a stable name for any entity. Its canonical string form is
// "[<parent>/]<type>.<name>", where parent is itself a canonical
// identifier path.
type ID struct {
	// Type is "<namespace>.<Class>", e.g. "common.Message".
	Type string
	// Name is opaque, typically content-addressed.
	Name string
	// Parent is the canonical string form of an enclosing identifier,
	// or empty for a top-level resource.
	Parent string
	// Tokens is an advisory approximation of LLM token cost.
	Tokens int
}

// String renders the canonical string form of id.
func (id ID) String() string {
	tn := id.Type + "." + id.Name
	if id.Parent == "" {
		return tn
	}
	return id.Parent + "/" + tn
}

// WithParent returns a copy of id reparented under parent's canonical
// string form.
func (id ID) WithParent(parent ID) ID {
	id.Parent = parent.String()
	return id
}

// HasPrefix reports whether id's canonical string starts with prefix,
// per the shared index filter semantics (§4.B): prefix, not equality.
func (id ID) HasPrefix(prefix string) bool {
	return strings.HasPrefix(id.String(), prefix)
}

// Parse decodes a canonical identifier string into its structured
// form. Parse is the exact inverse of String: for all id, Parse(id.String())
// == id (modulo Tokens, which is not part of the string form and is
// always zero after Parse).
func Parse(s string) (ID, error) {
	if s == "" {
		return ID{}, faults.Validationf("empty identifier string")
	}
	parent := ""
	tail := s
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		parent = s[:idx]
		tail = s[idx+1:]
	}
	dot := strings.LastIndex(tail, ".")
	if dot <= 0 || dot == len(tail)-1 {
		return ID{}, faults.Validationf("malformed identifier %q: missing <type>.<name>", s)
	}
	typ := tail[:dot]
	name := tail[dot+1:]
	if typ == "" || name == "" || !strings.Contains(typ, ".") {
		return ID{}, faults.Validationf("malformed identifier %q: type must be <namespace>.<Class>", s)
	}
	return ID{Type: typ, Name: name, Parent: parent}, nil
}

// MustParse is Parse but panics on error. Intended for tests and
// constant identifiers known to be well-formed at compile time.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Namespace returns the "<namespace>.<Class>" prefix used by index
// prefix filters (the Type field verbatim — kept as a named accessor
// for readability at call sites).
func (id ID) Namespace() string { return id.Type }

// WithTokens returns a copy of id carrying the given advisory token
// count.
func (id ID) WithTokens(tokens int) ID {
	id.Tokens = tokens
	return id
}

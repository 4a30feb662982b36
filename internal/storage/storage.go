// Package storage implements the pluggable key/value object storage
// abstraction: a prefix-scoped backend with JSON/JSONL content-type
// semantics, local/S3/Supabase variants, and bucket lifecycle.
package storage

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
)

// Backend is a prefix-scoped key/value object store.
//
// Content-type semantics are inferred from key suffix: ".json" values
// round-trip as a single JSON object, ".jsonl" values round-trip as an
// ordered newline-delimited sequence, any other key is opaque bytes.
type Backend interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string, out any) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Append writes value as one more line of a ".jsonl" key,
	// creating the key if absent.
	Append(ctx context.Context, key string, value any) error
	GetMany(ctx context.Context, keys []string) (map[string]json.RawMessage, error)
	List(ctx context.Context) ([]string, error)
	// FindByPrefix returns matching keys. When delim is non-empty, it
	// instead returns the set of distinct next-path-segment prefixes
	// under prefix (directory enumeration).
	FindByPrefix(ctx context.Context, prefix, delim string) ([]string, error)
	FindByExtension(ctx context.Context, ext string) ([]string, error)
	Path(key string) string
	EnsureBucket(ctx context.Context) error
	BucketExists(ctx context.Context) (bool, error)
	IsHealthy(ctx context.Context) error
}

// Type selects a concrete Backend implementation.
type Type string

const (
	Local    Type = "local"
	S3       Type = "s3"
	Supabase Type = "supabase"
)

// reservedLocalPrefixes are always bound to the local backend
// regardless of the configured Type: "config" and "generated" are
// part of the codebase, not deployment state.
var reservedLocalPrefixes = map[string]bool{
	"config":    true,
	"generated": true,
}

// Config selects and parameterizes a backend.
type Config struct {
	Type Type
	// Local
	Root string
	// S3 / Supabase
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	RoleARN         string
	// Supabase
	ServiceRoleKey string
}

// New selects and constructs a Backend for prefix per cfg, honoring
// the reserved-prefix rule.
func New(ctx context.Context, cfg Config, prefix string) (Backend, error) {
	typ := cfg.Type
	if reservedLocalPrefixes[prefix] {
		typ = Local
	}
	switch typ {
	case "", Local:
		return NewLocal(cfg.Root, prefix), nil
	case S3:
		return NewS3(ctx, cfg, prefix)
	case Supabase:
		return NewSupabase(cfg, prefix)
	default:
		return nil, faults.Validationf("unknown storage type %q", typ)
	}
}

// isJSONL reports whether key should round-trip as a JSONL sequence.
func isJSONL(key string) bool { return strings.HasSuffix(key, ".jsonl") }

// isJSON reports whether key should round-trip as a single JSON
// object.
func isJSON(key string) bool { return strings.HasSuffix(key, ".json") }

// encodeJSONLLine renders value as a single newline-terminated JSON
// line, the unit Append writes.
func encodeJSONLLine(value any) ([]byte, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, faults.Internalf(err, "marshal jsonl line")
	}
	return append(b, '\n'), nil
}

// decodeJSONL parses newline-delimited JSON into an ordered sequence
// of raw messages.
func decodeJSONL(data []byte) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, json.RawMessage(line))
	}
	return out, nil
}

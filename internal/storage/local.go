package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
)

// LocalBackend stores objects as plain files under root/prefix.
type LocalBackend struct {
	root   string
	prefix string
	mu     sync.Mutex // serializes writes to the same backend instance
}

// NewLocal constructs a filesystem-backed Backend scoped to prefix.
func NewLocal(root, prefix string) *LocalBackend {
	if root == "" {
		root = "."
	}
	return &LocalBackend{root: root, prefix: prefix}
}

func (b *LocalBackend) Path(key string) string {
	return filepath.Join(b.root, b.prefix, filepath.FromSlash(key))
}

func (b *LocalBackend) Put(_ context.Context, key string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := b.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return faults.Internalf(err, "mkdir for %s", key)
	}

	var data []byte
	var err error
	switch {
	case isJSONL(key):
		data, err = marshalJSONLSlice(value)
	case isJSON(key):
		data, err = json.Marshal(value)
	default:
		data, err = toBytes(value)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return faults.Internalf(err, "write %s", key)
	}
	return nil
}

func (b *LocalBackend) Get(_ context.Context, key string, out any) error {
	path := b.Path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return faults.NotFoundf("key %q not found", key)
		}
		return faults.Internalf(err, "read %s", key)
	}
	switch {
	case isJSONL(key):
		lines, err := decodeJSONL(data)
		if err != nil {
			return err
		}
		return assignJSONL(lines, out)
	case isJSON(key):
		if err := json.Unmarshal(data, out); err != nil {
			return faults.Internalf(err, "unmarshal %s", key)
		}
		return nil
	default:
		return assignBytes(data, out)
	}
}

func (b *LocalBackend) Delete(_ context.Context, key string) error {
	if err := os.Remove(b.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return faults.Internalf(err, "delete %s", key)
	}
	return nil
}

func (b *LocalBackend) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(b.Path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, faults.Internalf(err, "stat %s", key)
}

func (b *LocalBackend) Append(_ context.Context, key string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := b.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return faults.Internalf(err, "mkdir for %s", key)
	}
	line, err := encodeJSONLLine(value)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return faults.Internalf(err, "open %s for append", key)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return faults.Internalf(err, "append to %s", key)
	}
	return nil
}

func (b *LocalBackend) GetMany(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		var raw json.RawMessage
		if err := b.Get(ctx, k, &raw); err != nil {
			if faults.KindOf(err) == faults.NotFound {
				continue
			}
			return nil, err
		}
		out[k] = raw
	}
	return out, nil
}

func (b *LocalBackend) List(_ context.Context) ([]string, error) {
	base := filepath.Join(b.root, b.prefix)
	type entry struct {
		key string
		mod int64
	}
	var entries []entry
	err := filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		entries = append(entries, entry{key: filepath.ToSlash(rel), mod: info.ModTime().UnixNano()})
		return nil
	})
	if err != nil {
		return nil, faults.Internalf(err, "list")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].mod < entries[j].mod })
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys, nil
}

func (b *LocalBackend) FindByPrefix(ctx context.Context, prefix, delim string) ([]string, error) {
	all, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	if delim == "" {
		var out []string
		for _, k := range all {
			if strings.HasPrefix(k, prefix) {
				out = append(out, k)
			}
		}
		return out, nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, k := range all {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if idx := strings.Index(rest, delim); idx >= 0 {
			next := prefix + rest[:idx+len(delim)]
			if !seen[next] {
				seen[next] = true
				out = append(out, next)
			}
		}
	}
	return out, nil
}

func (b *LocalBackend) FindByExtension(ctx context.Context, ext string) ([]string, error) {
	all, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range all {
		if strings.HasSuffix(k, ext) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (b *LocalBackend) EnsureBucket(_ context.Context) error {
	if err := os.MkdirAll(filepath.Join(b.root, b.prefix), 0o755); err != nil {
		return faults.Internalf(err, "ensure bucket")
	}
	return nil
}

func (b *LocalBackend) BucketExists(_ context.Context) (bool, error) {
	info, err := os.Stat(filepath.Join(b.root, b.prefix))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, faults.Internalf(err, "stat bucket")
	}
	return info.IsDir(), nil
}

func (b *LocalBackend) IsHealthy(_ context.Context) error {
	if _, err := os.Stat(b.root); err != nil && !errors.Is(err, os.ErrNotExist) {
		return faults.Internalf(err, "storage root unhealthy")
	}
	return nil
}

// marshalJSONLSlice renders value (expected to be a slice) as
// newline-delimited JSON, one element per line.
func marshalJSONLSlice(value any) ([]byte, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice {
		return nil, faults.Validationf("jsonl put requires a slice value, got %T", value)
	}
	var sb strings.Builder
	for i := 0; i < rv.Len(); i++ {
		b, err := json.Marshal(rv.Index(i).Interface())
		if err != nil {
			return nil, faults.Internalf(err, "marshal jsonl element %d", i)
		}
		sb.Write(b)
		sb.WriteByte('\n')
	}
	return []byte(sb.String()), nil
}

// assignJSONL decodes raw JSONL lines into out, which must be a
// pointer to a slice or to []json.RawMessage.
func assignJSONL(lines []json.RawMessage, out any) error {
	if rm, ok := out.(*[]json.RawMessage); ok {
		*rm = lines
		return nil
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return faults.Validationf("jsonl get requires *[]T or *[]json.RawMessage, got %T", out)
	}
	elemType := rv.Elem().Type().Elem()
	slice := reflect.MakeSlice(rv.Elem().Type(), len(lines), len(lines))
	for i, line := range lines {
		ptr := reflect.New(elemType)
		if err := json.Unmarshal(line, ptr.Interface()); err != nil {
			return faults.Internalf(err, "unmarshal jsonl element %d", i)
		}
		slice.Index(i).Set(ptr.Elem())
	}
	rv.Elem().Set(slice)
	return nil
}

func toBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, faults.Validationf("opaque put requires []byte or string, got %T", value)
	}
}

func assignBytes(data []byte, out any) error {
	switch o := out.(type) {
	case *[]byte:
		*o = data
		return nil
	case *string:
		*o = string(data)
		return nil
	case *json.RawMessage:
		*o = data
		return nil
	default:
		return faults.Validationf("opaque get requires *[]byte or *string, got %T", out)
	}
}

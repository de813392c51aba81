package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FS is the directory-capable backend. Keys map onto files under a root
// directory, with slash-separated key segments becoming nested directories.
type FS struct {
	root string
}

// NewFS creates a filesystem backend rooted at dir, creating the directory
// if needed. Returns ErrUnavailable when the root cannot be prepared.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: prepare root %s: %v", ErrUnavailable, dir, err)
	}
	return &FS{root: dir}, nil
}

// Root returns the backing directory.
func (f *FS) Root() string { return f.root }

// Method identifies the substrate.
func (f *FS) Method() Method { return MethodDirectory }

// Close is a no-op; the filesystem holds no handles between operations.
func (f *FS) Close() error { return nil }

func (f *FS) path(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

// ReadKey returns the file content at key, or ErrKeyAbsent.
func (f *FS) ReadKey(ctx context.Context, key string) ([]byte, error) {
	mustKey(key)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyAbsent
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// WriteKey stores value at key, creating parent directories as needed.
func (f *FS) WriteKey(ctx context.Context, key string, value []byte) error {
	mustKey(key)
	if err := ctx.Err(); err != nil {
		return err
	}
	p := f.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", key, err)
	}
	if err := os.WriteFile(p, value, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// DeleteKey removes the file at key. An absent file is not an error.
func (f *FS) DeleteKey(ctx context.Context, key string) error {
	mustKey(key)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ListChildren returns the entry names directly under path, sorted. A
// missing directory yields an empty slice.
func (f *FS) ListChildren(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := f.root
	if path != "" {
		dir = f.path(path)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

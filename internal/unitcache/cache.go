package unitcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrSchema is returned by Get when a snapshot was written by another
// schema version.
var ErrSchema = errors.New("unitcache: schema version mismatch")

// Cache stores unit snapshots on disk by digest. Methods may be called from
// several goroutines.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Open returns a cache rooted at dir. An empty dir selects
// $XDG_CACHE_HOME/app (or ~/.cache/app).
func Open(dir, app string) (*Cache, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, app)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Dir is the cache root.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "units", key.String()+".mp")
}

// Put stores snap and returns its digest. The file appears atomically.
func (c *Cache) Put(snap *Snapshot) (Digest, error) {
	if c == nil {
		return Digest{}, nil
	}
	snap.Schema = SchemaVersion
	key, err := snap.Digest()
	if err != nil {
		return Digest{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Digest{}, err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return Digest{}, err
	}
	defer os.Remove(f.Name()) // no-op after a successful rename

	if err := msgpack.NewEncoder(f).Encode(snap); err != nil {
		f.Close()
		return Digest{}, fmt.Errorf("unitcache: encode %s: %w", snap.Name, err)
	}
	if err := f.Close(); err != nil {
		return Digest{}, err
	}
	if err := os.Rename(f.Name(), p); err != nil {
		return Digest{}, err
	}
	return key, nil
}

// Get loads the snapshot stored under key into out.
func (c *Cache) Get(key Digest, out *Snapshot) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, fmt.Errorf("unitcache: decode %s: %w", key.Short(), err)
	}
	if out.Schema != SchemaVersion {
		return false, fmt.Errorf("%w: %s has %d, want %d", ErrSchema, key.Short(), out.Schema, SchemaVersion)
	}
	return true, nil
}

// Resolve expands a unique digest prefix.
func (c *Cache) Resolve(prefix string) (Digest, error) {
	keys, err := c.List()
	if err != nil {
		return Digest{}, err
	}
	var match []Digest
	for _, k := range keys {
		if strings.HasPrefix(k.String(), strings.ToLower(prefix)) {
			match = append(match, k)
		}
	}
	switch len(match) {
	case 0:
		return Digest{}, fmt.Errorf("unitcache: no snapshot matches %q", prefix)
	case 1:
		return match[0], nil
	default:
		return Digest{}, fmt.Errorf("unitcache: %q is ambiguous (%d snapshots)", prefix, len(match))
	}
}

// List returns every stored digest in ascending order.
func (c *Cache) List() ([]Digest, error) {
	if c == nil {
		return nil, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	ents, err := os.ReadDir(filepath.Join(c.dir, "units"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []Digest
	for _, e := range ents {
		name, ok := strings.CutSuffix(e.Name(), ".mp")
		if !ok || e.IsDir() {
			continue
		}
		d, err := ParseDigest(name)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Digest) int { return strings.Compare(a.String(), b.String()) })
	return out, nil
}

// DropAll removes every snapshot. The directory is renamed aside first so a
// concurrent Put never lands in a half-deleted tree.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.RemoveAll(old)
}

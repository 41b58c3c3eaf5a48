// Package cache is an on-disk result cache keyed by a hash of the input
// content and the layout algorithm version. A hit lets the orchestrator
// skip the whole compute pipeline and serve a previously built payload.
package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	u "github.com/araddon/gou"

	"github.com/gganty/Gtol/pkgs/layout"
)

// Cache stores finished result payloads under a single directory, one file
// per key.
type Cache struct {
	dir string
}

// New opens (creating if needed) a cache rooted at dir.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Key derives the cache key for an input content hash. The layout
// algorithm version is folded in explicitly: the original system keyed on
// the algorithm source file's mtime, which does not survive compilation,
// so a bumpable constant replaces it.
func Key(inputSum []byte) string {
	return fmt.Sprintf("%x-v%s", inputSum, layout.AlgoVersion)
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, "result_"+key+".json.gz")
}

// Get returns the path of the cached result for key, if present.
func (c *Cache) Get(key string) (string, bool) {
	p := c.path(key)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// Put links the finished result at src into the cache. A hard link avoids
// copying multi-gigabyte payloads; cross-device setups fall back to a copy.
func (c *Cache) Put(key, src string) error {
	dst := c.path(key)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	u.Debugf("cache: stored %s", dst)
	return nil
}

// Contains reports whether the given path lives directly inside the cache
// directory.
func (c *Cache) Contains(path string) bool {
	rel, err := filepath.Rel(c.dir, path)
	if err != nil {
		return false
	}
	return rel == filepath.Base(path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

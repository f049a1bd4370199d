package dictionary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/japaniel/kanjisync/pkg/config"
)

// Open parses the dictionary at path in the given format. In auto mode the
// extension decides; unknown extensions try KANJIDIC2 first, then flat JSON.
func Open(path, format string) (*Table, error) {
	switch format {
	case config.FormatKanjidic:
		return LoadKanjidic(path)
	case config.FormatFlat:
		return LoadFlat(path)
	case config.FormatAuto, "":
	default:
		return nil, fmt.Errorf("unknown dictionary format %q", format)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return LoadKanjidic(path)
	case ".json":
		return LoadFlat(path)
	}
	t, err := LoadKanjidic(path)
	if err == nil || errors.Is(err, ErrDictionaryNotFound) {
		return t, err
	}
	if t, ferr := LoadFlat(path); ferr == nil {
		return t, nil
	}
	return nil, err
}

type signature struct {
	modTime time.Time
	size    int64
}

type cacheEntry struct {
	sig signature
	src *Table
}

// Cache holds the parsed dictionary for one path and reparses it only when the
// file's modification time or size changes. Concurrent loads share one parse.
type Cache struct {
	path   string
	format string
	logger *zap.Logger

	group singleflight.Group

	mu    sync.Mutex
	entry *cacheEntry
}

// NewCache creates a cache for the dictionary at path.
func NewCache(path, format string, logger *zap.Logger) *Cache {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{path: path, format: format, logger: logger}
}

// Path returns the absolute dictionary path.
func (c *Cache) Path() string { return c.path }

// Load returns the parsed dictionary, reusing the cached copy when the file is unchanged.
func (c *Cache) Load(ctx context.Context) (Source, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDictionaryNotFound, c.path)
		}
		return nil, fmt.Errorf("stat dictionary: %w", err)
	}
	sig := signature{modTime: info.ModTime(), size: info.Size()}

	c.mu.Lock()
	if c.entry != nil && c.entry.sig == sig {
		src := c.entry.src
		c.mu.Unlock()
		return src, nil
	}
	c.mu.Unlock()

	key := fmt.Sprintf("%s|%s|%d|%d", c.path, c.format, sig.modTime.UnixNano(), sig.size)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		start := time.Now()
		t, err := Open(c.path, c.format)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entry = &cacheEntry{sig: sig, src: t}
		c.mu.Unlock()
		c.logger.Info("dictionary loaded",
			zap.String("path", c.path),
			zap.Int("entries", t.Len()),
			zap.Duration("elapsed", time.Since(start)))
		return t, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Table), nil
	}
}

// Invalidate drops the cached dictionary. Runs already holding a Source keep it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
	c.logger.Debug("dictionary cache invalidated", zap.String("path", c.path))
}

package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const indexFile = "index.json"

// Caches archives in a directory, so that repeated CLI invocations
// don't refetch the same network. Archives are stored by content
// hash, and index.json maps URLs to hashes.
type Filesystem struct {
	Dir     string
	Logger  *slog.Logger
	TimeNow func() time.Time

	mutex sync.Mutex
	index map[string]fsEntry
}

type fsEntry struct {
	Hash        string    `json:"hash"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

func NewFilesystem(dir string) (*Filesystem, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	f := &Filesystem{
		Dir:     dir,
		Logger:  slog.New(slog.DiscardHandler),
		TimeNow: time.Now,
		index:   map[string]fsEntry{},
	}
	if err := f.loadIndex(); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *Filesystem) Fetch(
	ctx context.Context,
	url string,
	headers map[string]string,
	options FetchOptions,
) (*Archive, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	now := f.TimeNow()

	if options.Cache {
		if a, ok := f.cached(url, now, options.CacheTTL); ok {
			return a, nil
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}
	a := NewArchive(url, body, now)

	if options.Cache {
		if err := os.WriteFile(f.archivePath(a.Hash), body, 0644); err != nil {
			return nil, fmt.Errorf("writing archive: %w", err)
		}
		f.index[url] = fsEntry{Hash: a.Hash, RetrievedAt: now.UTC()}
		if err := f.saveIndex(); err != nil {
			return nil, err
		}
	}

	return a, nil
}

func (f *Filesystem) cached(url string, now time.Time, ttl time.Duration) (*Archive, bool) {
	entry, found := f.index[url]
	if !found {
		return nil, false
	}
	if !now.Before(entry.RetrievedAt.Add(ttl)) {
		f.Logger.Debug("download cache expired", "url", url)
		return nil, false
	}

	body, err := os.ReadFile(f.archivePath(entry.Hash))
	if err != nil {
		f.Logger.Warn("cached archive unreadable", "url", url, "error", err)
		return nil, false
	}
	a := NewArchive(url, body, entry.RetrievedAt)
	if a.Hash != entry.Hash {
		f.Logger.Warn("cached archive corrupt", "url", url, "hash", a.Hash)
		return nil, false
	}

	f.Logger.Debug("download cache hit", "url", url, "hash", a.Hash)
	a.Cached = true
	return a, true
}

func (f *Filesystem) archivePath(hash string) string {
	return filepath.Join(f.Dir, hash+".zip")
}

func (f *Filesystem) loadIndex() error {
	buf, err := os.ReadFile(filepath.Join(f.Dir, indexFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cache index: %w", err)
	}

	if err := json.Unmarshal(buf, &f.index); err != nil {
		return fmt.Errorf("decoding cache index: %w", err)
	}
	return nil
}

func (f *Filesystem) saveIndex() error {
	buf, err := json.MarshalIndent(f.index, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(f.Dir, indexFile), buf, 0644); err != nil {
		return fmt.Errorf("writing cache index: %w", err)
	}
	return nil
}

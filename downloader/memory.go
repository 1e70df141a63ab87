package downloader

import (
	"context"
	"sync"
	"time"
)

// Keeps fetched archives in memory, keyed by URL.
type MemoryDownloader struct {
	TimeNow func() time.Time

	mutex    sync.Mutex
	archives map[string]*Archive
}

func NewMemoryDownloader() *MemoryDownloader {
	return &MemoryDownloader{
		TimeNow:  time.Now,
		archives: map[string]*Archive{},
	}
}

func (d *MemoryDownloader) Fetch(
	ctx context.Context,
	url string,
	headers map[string]string,
	options FetchOptions,
) (*Archive, error) {
	now := d.TimeNow()

	if options.Cache {
		d.mutex.Lock()
		a, found := d.archives[url]
		d.mutex.Unlock()
		if found && now.Before(a.RetrievedAt.Add(options.CacheTTL)) {
			cached := *a
			cached.Cached = true
			return &cached, nil
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}
	a := NewArchive(url, body, now)

	if options.Cache {
		d.mutex.Lock()
		d.archives[url] = a
		d.mutex.Unlock()
	}

	return a, nil
}

// Drops cached archives that have been held longer than ttl.
func (d *MemoryDownloader) Evict(ttl time.Duration) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	now := d.TimeNow()
	n := 0
	for url, a := range d.archives {
		if !now.Before(a.RetrievedAt.Add(ttl)) {
			delete(d.archives, url)
			n++
		}
	}
	return n
}

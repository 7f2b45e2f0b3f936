package filecache

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"cohosrv/internal/httpio"
	"cohosrv/internal/router"
)

type memEntry struct {
	data        []byte
	etag        string
	modTime     time.Time
	contentType string
}

// MemCache loads each file into memory once and serves subsequent requests
// from that copy, invalidating an entry when fsnotify reports its mtime
// changed (spec §4.5). Concurrent first-requests for the same path are
// coalesced through singleflight so N simultaneous cold requests build the
// entry once, mirroring the retrieved pack's use of
// golang.org/x/sync/singleflight for exactly this kind of build-once
// coalescing.
type MemCache struct {
	Root string
	log  zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*memEntry
	group   singleflight.Group

	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewMemCache(root string, log zerolog.Logger) (*MemCache, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	c := &MemCache{
		Root:    root,
		log:     log,
		entries: make(map[string]*memEntry),
		watcher: w,
		done:    make(chan struct{}),
	}
	go c.watchLoop()
	return c, nil
}

func (c *MemCache) watchLoop() {
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				c.invalidate(ev.Name)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Warn().Err(err).Msg("filecache watcher error")
		case <-c.done:
			return
		}
	}
}

func (c *MemCache) invalidate(full string) {
	c.mu.Lock()
	delete(c.entries, full)
	c.mu.Unlock()
}

func (c *MemCache) load(full string) (*memEntry, error) {
	c.mu.RLock()
	e, ok := c.entries[full]
	c.mu.RUnlock()
	if ok {
		return e, nil
	}

	v, err, _ := c.group.Do(full, func() (any, error) {
		f, err := os.Open(full)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, os.ErrNotExist
		}
		data := make([]byte, info.Size())
		if _, err := io.ReadFull(f, data); err != nil {
			return nil, err
		}
		entry := &memEntry{
			data:        data,
			etag:        etagFor(info.ModTime()),
			modTime:     info.ModTime(),
			contentType: contentTypeFor(full),
		}
		c.mu.Lock()
		c.entries[full] = entry
		c.mu.Unlock()
		_ = c.watcher.Add(full)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*memEntry), nil
}

func (c *MemCache) Serve(req *httpio.Request, relPath string) (router.Response, error) {
	full, err := SafeJoin(c.Root, relPath)
	if err != nil {
		return router.Forbidden("path_traversal", "path escapes root"), nil
	}
	e, err := c.load(full)
	if err != nil {
		if os.IsNotExist(err) {
			return router.NotFound("not_found", "file not found"), nil
		}
		return router.Response{}, err
	}
	if conditionalStatus(req, e.etag, e.modTime) == 304 {
		return notModified(e.etag, e.modTime), nil
	}
	h := baseHeaders(e.etag, e.modTime, e.contentType)
	sizeHeader(h, int64(len(e.data)))
	return router.Response{Status: 200, Header: h, Body: e.data}, nil
}

func (c *MemCache) Close() error {
	close(c.done)
	return c.watcher.Close()
}

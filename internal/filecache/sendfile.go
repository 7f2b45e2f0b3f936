package filecache

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"cohosrv/internal/httpio"
	"cohosrv/internal/router"
)

type sfEntry struct {
	file        *os.File
	fd          int
	size        int64
	modTime     time.Time
	etag        string
	contentType string
}

// SendFileCache keeps one open descriptor per file shared across all
// requests for it, using sendfile(2)'s explicit offset argument so
// concurrent responses reading different ranges of the same fd never race
// on a shared file position (spec §4.5). fsnotify invalidation closes and
// reopens the descriptor when the underlying file changes.
type SendFileCache struct {
	Root string
	log  zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*sfEntry

	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewSendFileCache(root string, log zerolog.Logger) (*SendFileCache, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	c := &SendFileCache{Root: root, log: log, entries: map[string]*sfEntry{}, watcher: w, done: make(chan struct{})}
	go c.watchLoop()
	return c, nil
}

func (c *SendFileCache) watchLoop() {
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

func (c *SendFileCache) invalidate(full string) {
	c.mu.Lock()
	if e, ok := c.entries[full]; ok {
		e.file.Close()
		delete(c.entries, full)
	}
	c.mu.Unlock()
}

func (c *SendFileCache) load(full string) (*sfEntry, error) {
	c.mu.RLock()
	e, ok := c.entries[full]
	c.mu.RUnlock()
	if ok {
		return e, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[full]; ok {
		return e, nil
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	entry := &sfEntry{
		file:        f,
		fd:          int(f.Fd()),
		size:        info.Size(),
		modTime:     info.ModTime(),
		etag:        etagFor(info.ModTime()),
		contentType: contentTypeFor(full),
	}
	c.entries[full] = entry
	_ = c.watcher.Add(full)
	return entry, nil
}

func (c *SendFileCache) Serve(req *httpio.Request, relPath string) (router.Response, error) {
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
	return router.Response{
		Status: 200,
		Header: h,
		File:   &router.FileBody{FD: e.fd, Offset: 0, Size: e.size},
	}, nil
}

func (c *SendFileCache) Close() error {
	close(c.done)
	c.mu.Lock()
	for _, e := range c.entries {
		e.file.Close()
	}
	c.mu.Unlock()
	return c.watcher.Close()
}

// SendFile opens a fresh descriptor per request and streams it via
// sendfile(2), with no caching of content, stat, or descriptor (spec
// §4.5's zero-state-carried variant — useful when the working set is too
// large or too volatile to keep descriptors open for).
type SendFile struct {
	Root string
}

func NewSendFile(root string) *SendFile { return &SendFile{Root: root} }

func (c *SendFile) Serve(req *httpio.Request, relPath string) (router.Response, error) {
	full, err := SafeJoin(c.Root, relPath)
	if err != nil {
		return router.Forbidden("path_traversal", "path escapes root"), nil
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return router.NotFound("not_found", "file not found"), nil
		}
		return router.Response{}, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return router.Response{}, err
	}
	if info.IsDir() {
		f.Close()
		return router.NotFound("not_found", "file not found"), nil
	}
	etag := etagFor(info.ModTime())
	if conditionalStatus(req, etag, info.ModTime()) == 304 {
		f.Close()
		return notModified(etag, info.ModTime()), nil
	}
	h := baseHeaders(etag, info.ModTime(), contentTypeFor(full))
	fd := int(f.Fd())
	return router.Response{
		Status: 200,
		Header: h,
		File:   &router.FileBody{FD: fd, Offset: 0, Size: info.Size(), Close: func() { f.Close() }},
	}, nil
}

func (c *SendFile) Close() error { return nil }

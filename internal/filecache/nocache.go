package filecache

import (
	"os"

	"cohosrv/internal/httpio"
	"cohosrv/internal/router"
)

// NoCache re-stats and re-opens the file on every request, streaming it
// through ordinary Read calls. Useful as the simplest, always-fresh
// variant and as the baseline the other variants are measured against
// (spec §4.5).
type NoCache struct {
	Root string
}

func NewNoCache(root string) *NoCache { return &NoCache{Root: root} }

func (c *NoCache) Serve(req *httpio.Request, relPath string) (router.Response, error) {
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
	sizeHeader(h, info.Size())
	return router.Response{Status: 200, Header: h, Stream: &closingReader{f}}, nil
}

func (c *NoCache) Close() error { return nil }

// closingReader implements io.ReadCloser; callers streaming
// router.Response.Stream must Close it (io.Closer) once fully read so the
// server doesn't need variant-specific knowledge of what to release.
type closingReader struct{ f *os.File }

func (c *closingReader) Read(p []byte) (int, error) { return c.f.Read(p) }
func (c *closingReader) Close() error                { return c.f.Close() }

// Package filecache implements the static-file cache variants from spec
// §4.5: NoCache, MemCache, CompressCache, SendFileCache and SendFile. All
// five share conditional-GET handling (ETag/If-None-Match/
// If-Modified-Since) and path-traversal rejection; what differs is where
// the bytes come from and whether the kernel's sendfile(2) is used.
package filecache

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cohosrv/internal/httpio"
	"cohosrv/internal/router"
)

// Cache serves one relative path under a fixed root, applying conditional
// GET and variant-specific body framing.
type Cache interface {
	Serve(req *httpio.Request, relPath string) (router.Response, error)
	Close() error
}

// SafeJoin resolves relPath under root, rejecting any path that would
// escape it (spec §4.5 edge case: reject ".." with 403). Returns the
// cleaned absolute path.
func SafeJoin(root, relPath string) (string, error) {
	cleaned := filepath.Clean("/" + relPath) // anchor so ".." can't climb past root
	full := filepath.Join(root, cleaned)
	rootClean := filepath.Clean(root)
	if full != rootClean && !strings.HasPrefix(full, rootClean+string(filepath.Separator)) {
		return "", errTraversal
	}
	return full, nil
}

var errTraversal = fmt.Errorf("filecache: path escapes root")

// etagFor renders mtime as the quoted fixed-precision float the wire format
// requires: ETag: "<mtime>". Nanosecond resolution collapsed to six decimal
// places (microseconds) keeps the value stable across cache implementations
// that stat the same file through different code paths.
func etagFor(modTime time.Time) string {
	secs := float64(modTime.UnixNano()) / 1e9
	return fmt.Sprintf(`"%.6f"`, secs)
}

func contentTypeFor(path string) string {
	ext := filepath.Ext(path)
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// conditionalStatus inspects If-None-Match / If-Modified-Since against the
// current ETag/modTime and returns 304 if the client's cached copy is still
// valid, 0 otherwise (spec §4.5 conditional GET).
func conditionalStatus(req *httpio.Request, etag string, modTime time.Time) int {
	if inm := req.Header.Get("If-None-Match"); inm != "" {
		for _, candidate := range strings.Split(inm, ",") {
			if strings.TrimSpace(candidate) == etag {
				return 304
			}
		}
		return 0
	}
	if ims := req.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil && !modTime.After(t.Add(time.Second)) {
			return 304
		}
	}
	return 0
}

func baseHeaders(etag string, modTime time.Time, contentType string) httpio.Header {
	h := httpio.Header{}
	h.Set("ETag", etag)
	h.Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))
	h.Set("Cache-Control", "no-cache")
	h.Set("Content-Type", contentType)
	h.Set("Accept-Ranges", "none")
	return h
}

func notModified(etag string, modTime time.Time) router.Response {
	h := httpio.Header{}
	h.Set("ETag", etag)
	h.Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))
	return router.Response{Status: 304, Header: h}
}

func sizeHeader(h httpio.Header, size int64) {
	h.Set("Content-Length", strconv.FormatInt(size, 10))
}

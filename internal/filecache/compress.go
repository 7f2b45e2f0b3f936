package filecache

import (
	"bytes"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"cohosrv/internal/httpio"
	"cohosrv/internal/router"
)

// Compressor produces one encoded copy of data, named by the Content-Encoding
// token it corresponds to (spec §4.5: CompressCache is parameterized by
// encoding + compressor, so new algorithms plug in without touching the
// cache logic).
type Compressor struct {
	Encoding string
	Compress func(data []byte) ([]byte, error)
}

// GzipCompressor uses klauspost/compress's drop-in gzip implementation,
// grounded on slicingmelon-gobypass403/go.mod pulling in
// github.com/klauspost/compress for exactly this purpose.
func GzipCompressor() Compressor {
	return Compressor{Encoding: "gzip", Compress: func(data []byte) ([]byte, error) {
		var buf bytes.Buffer
		w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}}
}

// ZstdCompressor uses klauspost/compress/zstd, the other algorithm the
// retrieved pack's compress dependency ships.
func ZstdCompressor() Compressor {
	return Compressor{Encoding: "zstd", Compress: func(data []byte) ([]byte, error) {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	}}
}

type compressedEntry struct {
	data        []byte
	etag        string
	modTime     time.Time
	contentType string
}

// CompressCache wraps a MemCache's loaded bytes, lazily producing and
// caching one compressed copy per configured Compressor and serving it only
// when the request's Accept-Encoding allows it — otherwise it falls back to
// the uncompressed MemCache entry (spec §4.5).
type CompressCache struct {
	mem         *MemCache
	compressors []Compressor

	mu      sync.RWMutex
	encoded map[string]map[string]*compressedEntry // path -> encoding -> entry
}

func NewCompressCache(mem *MemCache, compressors ...Compressor) *CompressCache {
	return &CompressCache{mem: mem, compressors: compressors, encoded: map[string]map[string]*compressedEntry{}}
}

func (c *CompressCache) Serve(req *httpio.Request, relPath string) (router.Response, error) {
	full, err := SafeJoin(c.mem.Root, relPath)
	if err != nil {
		return router.Forbidden("path_traversal", "path escapes root"), nil
	}
	base, err := c.mem.load(full)
	if err != nil {
		return c.mem.Serve(req, relPath) // reuses its 404/500 mapping
	}

	accept := req.Header.Get("Accept-Encoding")
	comp := c.pick(accept)
	if comp == nil {
		return c.mem.Serve(req, relPath)
	}

	entry, err := c.loadCompressed(full, base, *comp)
	if err != nil {
		return router.Response{}, err
	}
	if conditionalStatus(req, entry.etag, entry.modTime) == 304 {
		return notModified(entry.etag, entry.modTime), nil
	}
	h := baseHeaders(entry.etag, entry.modTime, entry.contentType)
	h.Set("Content-Encoding", comp.Encoding)
	h.Add("Vary", "Accept-Encoding")
	sizeHeader(h, int64(len(entry.data)))
	return router.Response{Status: 200, Header: h, Body: entry.data}, nil
}

func (c *CompressCache) pick(acceptEncoding string) *Compressor {
	for i := range c.compressors {
		if strings.Contains(acceptEncoding, c.compressors[i].Encoding) {
			return &c.compressors[i]
		}
	}
	return nil
}

func (c *CompressCache) loadCompressed(full string, base *memEntry, comp Compressor) (*compressedEntry, error) {
	c.mu.RLock()
	if m, ok := c.encoded[full]; ok {
		if e, ok := m[comp.Encoding]; ok && e.modTime.Equal(base.modTime) {
			c.mu.RUnlock()
			return e, nil
		}
	}
	c.mu.RUnlock()

	data, err := comp.Compress(base.data)
	if err != nil {
		return nil, err
	}
	entry := &compressedEntry{
		data:        data,
		etag:        etagFor(base.modTime),
		modTime:     base.modTime,
		contentType: base.contentType,
	}
	c.mu.Lock()
	if c.encoded[full] == nil {
		c.encoded[full] = map[string]*compressedEntry{}
	}
	c.encoded[full][comp.Encoding] = entry
	c.mu.Unlock()
	return entry, nil
}

func (c *CompressCache) Close() error { return c.mem.Close() }

// Package server drives one accepted connection through the HTTP/1.1
// request/response cycle, generalizing the teacher's HandleConn
// (internal/server/server.go: parse once, dispatch, write, close) into a
// keep-alive loop that parses, dispatches and writes repeatedly until
// either side asks for Connection: close (spec §4.3 keep-alive).
package server

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"cohosrv/internal/failure"
	"cohosrv/internal/httpio"
	"cohosrv/internal/netio"
	"cohosrv/internal/router"
)

type Options struct {
	Router        *router.Router
	Log           zerolog.Logger
	MaxBodyBytes  int64
	HeaderTimeout time.Duration
	ServerName    string
}

// HandleConn is the body of one client task (spawned by
// internal/accept.Listen): it owns conn for its entire lifetime and returns
// once the connection is done, at which point the caller closes conn.
func HandleConn(conn *netio.Conn, opts Options) {
	br := bufio.NewReader(conn)
	host, addr := "", ""
	if conn.LocalAddr() != nil {
		addr = conn.LocalAddr().String()
	}

	for {
		if opts.HeaderTimeout > 0 {
			_ = conn.SetReadDeadline(timeNow().Add(opts.HeaderTimeout))
		}
		req, err := httpio.ParseRequest(br, opts.MaxBodyBytes)
		_ = conn.SetReadDeadline(time.Time{})
		if err != nil {
			if err == io.EOF {
				return // client closed idle keep-alive connection
			}
			writeParseError(conn, opts, err)
			return
		}
		if h := req.Header.Get("Host"); h != "" {
			host = h
		}

		resp := dispatchSafely(opts.Router, req, host, addr, opts.Log)
		if err := writeResponse(conn, req.Proto, opts.ServerName, resp); err != nil {
			opts.Log.Debug().Err(err).Msg("write response failed")
			return
		}
		drainUnreadBody(req)

		if req.Close || resp.Header.Get("Connection") == "close" {
			return
		}
	}
}

// dispatchSafely recovers a handler/filter panic into a 500 Response,
// upholding spec §7's "user code never escapes the per-request boundary".
func dispatchSafely(r *router.Router, req *httpio.Request, host, addr string, log zerolog.Logger) (resp router.Response) {
	defer func() {
		if v := recover(); v != nil {
			ferr := failure.FromPanic(v)
			log.Error().Str("kind", ferr.Kind.String()).Err(ferr).Msg("handler panic recovered")
			resp = router.InternalError("handler_panic", ferr.Error())
		}
	}()
	return r.Dispatch(context.Background(), req, host, addr)
}

func writeResponse(conn *netio.Conn, proto, serverName string, resp router.Response) error {
	rw := httpio.NewResponseWriter(conn, proto, serverName)
	switch {
	case resp.File != nil:
		err := rw.WriteSendfile(resp.Status, resp.Header, conn, resp.File.FD, resp.File.Offset, resp.File.Size)
		if resp.File.Close != nil {
			resp.File.Close()
		}
		return err
	case resp.Stream != nil:
		err := rw.WriteChunked(resp.Status, resp.Header, resp.Stream, nil)
		if c, ok := resp.Stream.(io.Closer); ok {
			c.Close()
		}
		return err
	case resp.Status == 204 || resp.Status == 304:
		return rw.WriteEmpty(resp.Status, resp.Header)
	default:
		return rw.WriteFixed(resp.Status, resp.Header, resp.Body)
	}
}

func drainUnreadBody(req *httpio.Request) {
	if req.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(req.Body, 1<<20))
}

func writeParseError(conn *netio.Conn, opts Options, err error) {
	status := 400
	switch {
	case err == httpio.ErrRequestTooLarge:
		status = 413
	case err == httpio.ErrUnsupportedProto:
		status = 505
	case err == httpio.ErrMethodNotAllowed:
		status = 405
	}
	rw := httpio.NewResponseWriter(conn, "HTTP/1.1", opts.ServerName)
	h := httpio.Header{}
	h.Set("Connection", "close")
	_ = rw.WriteFixed(status, h, []byte(httpio.StatusText(status)))
}

func timeNow() time.Time { return time.Now() }

//go:build linux

package netio

import (
	"errors"
	"io"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"cohosrv/internal/task"
	"cohosrv/internal/worker"
)

// Conn wraps a raw non-blocking socket fd and presents read/write calls that
// look blocking to caller code but cooperatively suspend the owning task on
// would-block (spec §4.2). It also satisfies net.Conn so the standard
// library's crypto/tls can wrap it transparently: tls.Conn.Read/Write call
// back into Conn.Read/Write, which suspend the task exactly as plain HTTP
// traffic does, so TLS gets cooperative suspension "for free" without this
// package special-casing its "wants read"/"wants write" codes (see
// DESIGN.md).
type Conn struct {
	fd    int
	w     *worker.Worker
	t     *task.Task
	local, remote net.Addr

	idleTimeout time.Duration
	readDL      time.Time // explicit SetReadDeadline override, zero = use idle timeout
	writeDL     time.Time

	closed bool
}

// New wraps fd. Bind must be called with the owning task before the first
// Read/Write (the acceptor creates the Conn before the client task exists).
func New(fd int, w *worker.Worker, idleTimeout time.Duration, local, remote net.Addr) *Conn {
	return &Conn{fd: fd, w: w, idleTimeout: idleTimeout, local: local, remote: remote}
}

// Bind attaches the task that owns this connection for its lifetime. Called
// once, as the first statement of the client task's body.
func (c *Conn) Bind(t *task.Task) { c.t = t }

// FD exposes the raw descriptor for sendfile's source-side use and for
// diagnostics; callers must not read/write it outside this adapter.
func (c *Conn) FD() int { return c.fd }

func wouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func (c *Conn) readDeadline() time.Time {
	if !c.readDL.IsZero() {
		return c.readDL
	}
	return c.nextIdleDeadline()
}

func (c *Conn) writeDeadline() time.Time {
	if !c.writeDL.IsZero() {
		return c.writeDL
	}
	return c.nextIdleDeadline()
}

func (c *Conn) nextIdleDeadline() time.Time {
	if c.idleTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.idleTimeout)
}

// Read implements net.Conn / io.Reader. Suspends the owning task on
// would-block; returns io.EOF on orderly close, worker.ErrClosed on
// peer reset/hangup, worker.ErrTimeout if idle_timeout elapses first.
func (c *Conn) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, p)
		if err == nil {
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}
		if err == unix.EINTR {
			continue
		}
		if wouldBlock(err) {
			if werr := c.w.BlockOnFD(c.t, c.fd, task.Read, c.readDeadline()); werr != nil {
				return 0, werr
			}
			continue
		}
		return 0, err
	}
}

// Write implements net.Conn / io.Writer, looping on short writes.
func (c *Conn) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := unix.Write(c.fd, p[total:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if wouldBlock(err) {
				if werr := c.w.BlockOnFD(c.t, c.fd, task.Write, c.writeDeadline()); werr != nil {
					return total, werr
				}
				continue
			}
			return total, err
		}
		total += n
	}
	return total, nil
}

// ScheduleIO is the generalized would-block retry loop spec §4.2 asks for so
// external non-blocking primitives (e.g. a database driver) can share this
// worker's scheduler: fn is retried until it succeeds, fails for a reason
// other than would-block, or the task is cancelled. fn returning (0, nil)
// ends the loop (matches "fn returning 0 terminates progress").
func (c *Conn) ScheduleIO(dir task.Direction, fn func() (int, error)) (int, error) {
	for {
		n, err := fn()
		if err == nil {
			return n, nil
		}
		if wouldBlock(err) {
			dl := c.nextIdleDeadline()
			if dir == task.Write {
				dl = c.writeDeadline()
			} else {
				dl = c.readDeadline()
			}
			if werr := c.w.BlockOnFD(c.t, c.fd, dir, dl); werr != nil {
				return 0, werr
			}
			continue
		}
		return n, err
	}
}

// Sendfile copies count bytes from src (an open file fd) to the connection
// using the kernel sendfile(2) primitive, looping on short writes and
// suspending on would-block exactly like Write. offset is advanced by the
// kernel and must not be shared with any other reader of src concurrently.
func (c *Conn) Sendfile(src int, offset *int64, count int) (int, error) {
	total := 0
	for count > 0 {
		n, err := unix.Sendfile(c.fd, src, offset, count)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if wouldBlock(err) {
				if werr := c.w.BlockOnFD(c.t, c.fd, task.Write, c.writeDeadline()); werr != nil {
					return total, werr
				}
				continue
			}
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
		count -= n
	}
	return total, nil
}

// Cork enables TCP_CORK: header and body writes coalesce into fewer
// segments until Uncork flushes them (spec §4.2).
func (c *Conn) Cork() error {
	return unix.SetsockoptInt(c.fd, unix.IPPROTO_TCP, unix.TCP_CORK, 1)
}

func (c *Conn) Uncork() error {
	return unix.SetsockoptInt(c.fd, unix.IPPROTO_TCP, unix.TCP_CORK, 0)
}

// Close deregisters fd from the worker's poller before closing it, upholding
// the §3 invariant that no descriptor is closed while a task is blocked on
// it (by construction, Close is only reached once this task's own
// suspension has returned, so nothing is currently blocked on c.fd on this
// worker — Deregister here is the belt-and-braces cleanup for cases where a
// registration exists but no one is actively parked, e.g. a timed-out
// connection).
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.w.Deregister(c.fd)
	return unix.Close(c.fd)
}

func (c *Conn) LocalAddr() net.Addr  { return c.local }
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

func (c *Conn) SetDeadline(t time.Time) error {
	c.readDL, c.writeDL = t, t
	return nil
}
func (c *Conn) SetReadDeadline(t time.Time) error  { c.readDL = t; return nil }
func (c *Conn) SetWriteDeadline(t time.Time) error { c.writeDL = t; return nil }

var _ net.Conn = (*Conn)(nil)

//go:build !linux

package netio

import (
	"net"
	"time"

	"cohosrv/internal/poll"
	"cohosrv/internal/task"
	"cohosrv/internal/worker"
)

func Listen(host string, port int, reuseAddr bool) (int, error) {
	return -1, poll.ErrUnsupportedPlatform
}

func Accept4(listenFD int) (int, net.Addr, error) {
	return -1, nil, poll.ErrUnsupportedPlatform
}

func LocalAddr(fd int) net.Addr { return nil }

// Conn mirrors the linux-only Conn's exported surface so non-Linux builds
// still type-check; every method reports ErrUnsupportedPlatform (spec is
// explicitly POSIX-kernel scoped, see spec.md Non-goals).
type Conn struct{}

func New(fd int, w *worker.Worker, idleTimeout time.Duration, local, remote net.Addr) *Conn {
	return &Conn{}
}

func (c *Conn) Bind(t *task.Task)                          {}
func (c *Conn) FD() int                                     { return -1 }
func (c *Conn) Read(p []byte) (int, error)                  { return 0, poll.ErrUnsupportedPlatform }
func (c *Conn) Write(p []byte) (int, error)                 { return 0, poll.ErrUnsupportedPlatform }
func (c *Conn) ScheduleIO(dir task.Direction, fn func() (int, error)) (int, error) {
	return 0, poll.ErrUnsupportedPlatform
}
func (c *Conn) Sendfile(src int, offset *int64, count int) (int, error) {
	return 0, poll.ErrUnsupportedPlatform
}
func (c *Conn) Cork() error                       { return poll.ErrUnsupportedPlatform }
func (c *Conn) Uncork() error                     { return poll.ErrUnsupportedPlatform }
func (c *Conn) Close() error                      { return nil }
func (c *Conn) LocalAddr() net.Addr               { return nil }
func (c *Conn) RemoteAddr() net.Addr              { return nil }
func (c *Conn) SetDeadline(t time.Time) error     { return nil }
func (c *Conn) SetReadDeadline(t time.Time) error { return nil }
func (c *Conn) SetWriteDeadline(t time.Time) error { return nil }

var _ net.Conn = (*Conn)(nil)

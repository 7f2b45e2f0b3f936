//go:build !linux

package poll

import "time"

type unsupportedPoller struct{}

// New reports ErrUnsupportedPlatform outside Linux. Spec Non-goals exclude
// Windows portability and the design assumes a POSIX kernel with an
// epoll-equivalent API; we don't claim kqueue support since sendfile/TCP_CORK
// semantics in internal/netio are also Linux-specific.
func New(maxEvents int) (Poller, error) {
	return nil, ErrUnsupportedPlatform
}

func (unsupportedPoller) Register(fd int, dir Direction) error  { return ErrUnsupportedPlatform }
func (unsupportedPoller) Rearm(fd int, dir Direction) error      { return ErrUnsupportedPlatform }
func (unsupportedPoller) Deregister(fd int) error                { return ErrUnsupportedPlatform }
func (unsupportedPoller) Wait(time.Duration) ([]Event, error)    { return nil, ErrUnsupportedPlatform }
func (unsupportedPoller) Close() error                           { return nil }

//go:build linux

package poll

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller implements Poller with epoll(7), edge-triggered + one-shot
// registration (EPOLLET|EPOLLONESHOT). Grounded on the raw-epoll reference
// server's accept/read loop and on the epoll wrapper in the retrieved
// eventloop package (golang.org/x/sys/unix.EpollCreate1/EpollCtl/EpollWait).
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

// New creates an epoll instance sized for up to maxEvents wakeups per Wait.
func New(maxEvents int) (Poller, error) {
	if maxEvents <= 0 {
		maxEvents = 256
	}
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: fd, events: make([]unix.EpollEvent, maxEvents)}, nil
}

func toEpollEvents(dir Direction) uint32 {
	var ev uint32 = unix.EPOLLET | unix.EPOLLONESHOT | unix.EPOLLRDHUP
	if dir&Read != 0 {
		ev |= unix.EPOLLIN
	}
	if dir&Write != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) Register(fd int, dir Direction) error {
	ev := unix.EpollEvent{Events: toEpollEvents(dir), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Rearm(fd int, dir Direction) error {
	ev := unix.EpollEvent{Events: toEpollEvents(dir), Fd: int32(fd)}
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	if err == unix.ENOENT {
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	}
	return err
}

func (p *epollPoller) Deregister(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *epollPoller) Wait(timeout time.Duration) ([]Event, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
		if ms == 0 && timeout > 0 {
			ms = 1
		}
	}

	var n int
	var err error
	for {
		n, err = unix.EpollWait(p.epfd, p.events, ms)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		e := p.events[i]
		out = append(out, Event{
			Fd:       int(e.Fd),
			Readable: e.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			Writable: e.Events&unix.EPOLLOUT != 0,
			Error:    e.Events&unix.EPOLLERR != 0,
			HangUp:   e.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
		})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}

// Package accept implements the listener/acceptor side of spec §5: one
// listening socket per configured address, accepted connections handed to
// the least-loaded worker (worker.Manager.Pick), with an optional
// max_connections admission cap.
package accept

import (
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"cohosrv/internal/netio"
	"cohosrv/internal/task"
	"cohosrv/internal/worker"
)

type Options struct {
	Address        string
	Port           int
	ReuseAddr      bool
	IdleTimeout    time.Duration
	MaxConnections int // 0 = unbounded
}

// ConnHandler is called once per accepted connection, on the client task's
// own goroutine (so it may call Conn.Read/Write freely — they suspend the
// calling task, never the acceptor).
type ConnHandler func(conn *netio.Conn)

// Listen binds opts.Address:opts.Port and runs its accept loop as one task
// on m's first worker, dispatching each accepted connection to
// m.Pick() (spec §5's least-loaded assignment). Listen returns once the
// listening socket is bound, reporting the bound address (useful when
// opts.Port is 0 and the kernel assigns one); the accept loop itself runs
// asynchronously until m is closed.
func Listen(m *worker.Manager, opts Options, log zerolog.Logger, handle ConnHandler) (net.Addr, error) {
	listenFD, err := netio.Listen(opts.Address, opts.Port, opts.ReuseAddr)
	if err != nil {
		return nil, err
	}
	bound := netio.LocalAddr(listenFD)

	acceptor := m.Workers()[0]
	acceptor.Spawn(false, func(t *task.Task) {
		runAcceptLoop(t, acceptor, m, listenFD, opts, log, handle)
	})
	return bound, nil
}

func runAcceptLoop(t *task.Task, acceptor *worker.Worker, m *worker.Manager, listenFD int, opts Options, log zerolog.Logger, handle ConnHandler) {
	for {
		connFD, addr, err := netio.Accept4(listenFD)
		if err != nil {
			if err == unix.EAGAIN {
				if berr := acceptor.BlockOnFD(t, listenFD, task.Read, time.Time{}); berr != nil {
					log.Error().Err(berr).Msg("accept loop: listener blocked with error")
					return
				}
				continue
			}
			log.Error().Err(err).Msg("accept4 failed")
			continue
		}

		if opts.MaxConnections > 0 && m.TotalConns() >= int64(opts.MaxConnections) {
			unix.Close(connFD)
			continue
		}

		local := netio.LocalAddr(connFD)
		picked := m.Pick()
		picked.SpawnClient(func(ct *task.Task) {
			conn := netio.New(connFD, picked, opts.IdleTimeout, local, addr)
			conn.Bind(ct)
			defer conn.Close()
			handle(conn)
		})
	}
}

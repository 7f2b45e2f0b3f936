//go:build linux

package worker

import "golang.org/x/sys/unix"

// newWakeFD creates an eventfd used to break the poller's Wait early when a
// task is spawned from another goroutine or Close is requested. Grounded on
// the retrieved eventloop package's eventfd-based wakeup
// (joeycumines-go-utilpkg/eventloop/wakeup_linux.go).
func newWakeFD() (readFD, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return 0, 0, err
	}
	return fd, fd, nil
}

func wakeWrite(fd int) {
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(fd, buf[:])
}

func drainWakeFD(fd int) error {
	var buf [8]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			return nil
		}
	}
}

func closeWakeFD(readFD, writeFD int) {
	_ = unix.Close(readFD)
}

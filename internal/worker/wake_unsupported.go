//go:build !linux

package worker

import "errors"

func newWakeFD() (readFD, writeFD int, err error) {
	return 0, 0, errors.New("worker: eventfd wakeup unavailable on this platform")
}

func wakeWrite(fd int)           {}
func drainWakeFD(fd int) error   { return nil }
func closeWakeFD(readFD, writeFD int) {}

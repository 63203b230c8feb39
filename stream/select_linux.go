//go:build linux

package stream

import (
	"syscall"
	"time"

	"github.com/c360/iodriver/errors"
)

// fdSet sets fd in the given descriptor set.
func fdSet(set *syscall.FdSet, fd int) {
	set.Bits[fd/64] |= int64(1) << (uint(fd) % 64)
}

// fdIsSet reports whether fd is set in the given descriptor set.
func fdIsSet(set *syscall.FdSet, fd int) bool {
	return set.Bits[fd/64]&(int64(1)<<(uint(fd)%64)) != 0
}

// waitFD waits for a single descriptor to become readable or writable,
// retrying interrupted selects within the timeout budget. It returns false
// when the deadline expires without readiness.
func waitFD(fd int, write bool, timeout time.Duration) (bool, error) {
	if timeout < 0 {
		timeout = 0
	}
	deadline := time.Now().Add(timeout)
	for {
		var set syscall.FdSet
		fdSet(&set, fd)

		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		tv := syscall.NsecToTimeval(remaining.Nanoseconds())

		var n int
		var err error
		if write {
			n, err = syscall.Select(fd+1, nil, &set, nil, &tv)
		} else {
			n, err = syscall.Select(fd+1, &set, nil, nil, &tv)
		}
		if err != nil {
			if err == syscall.EINTR {
				if time.Now().After(deadline) {
					return false, nil
				}
				continue
			}
			op := "waitRead"
			if write {
				op = "waitWrite"
			}
			return false, errors.NewUnix(op, "error in select()", err)
		}
		return n > 0, nil
	}
}

// SelectRead waits for any of the given descriptors to become readable
// within the timeout. The returned slice parallels fds; ready[i] is true when
// fds[i] is readable. Interrupted selects are retried within the timeout
// budget. On timeout the slice is all false.
func SelectRead(fds []int, timeout time.Duration) ([]bool, error) {
	ready := make([]bool, len(fds))
	deadline := time.Now().Add(timeout)
	for {
		var set syscall.FdSet
		nfd := 0
		for _, fd := range fds {
			fdSet(&set, fd)
			if fd+1 > nfd {
				nfd = fd + 1
			}
		}

		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		tv := syscall.NsecToTimeval(remaining.Nanoseconds())

		n, err := syscall.Select(nfd, &set, nil, nil, &tv)
		if err != nil {
			if err == syscall.EINTR {
				if time.Now().After(deadline) {
					return ready, nil
				}
				continue
			}
			return ready, errors.NewUnix("select", "error in select()", err)
		}
		if n > 0 {
			for i, fd := range fds {
				ready[i] = fdIsSet(&set, fd)
			}
		}
		return ready, nil
	}
}

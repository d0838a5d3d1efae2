//go:build !windows
// +build !windows

package main

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// flushTTYInput drops unread bytes queued on the controlling terminal.
// Terminal integrations answer queries (OSC, cursor position reports) on
// stdin, and a child started right afterwards would read those replies as
// typed input. Best effort: no tty, no work.
func flushTTYInput() {
	tty, err := os.OpenFile("/dev/tty", os.O_RDONLY, 0)
	if err != nil {
		return
	}
	defer func() { _ = tty.Close() }()
	fd := int(tty.Fd())

	// tcflush(fd, TCIFLUSH) via ioctl(TCFLSH); 0x540B on both Linux and
	// Darwin, and x/sys/unix does not expose Tcflush everywhere.
	const TCFLSH = 0x540B
	_, _, _ = unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(TCFLSH), uintptr(unix.TCIFLUSH))

	// Replies can land just after the flush. Drain non-blocking for a short
	// window, extending it while bytes keep arriving.
	if err := unix.SetNonblock(fd, true); err != nil {
		return
	}
	defer func() { _ = unix.SetNonblock(fd, false) }()

	deadline := time.Now().Add(200 * time.Millisecond)
	buf := make([]byte, 512)
	for time.Now().Before(deadline) {
		n, rerr := unix.Read(fd, buf)
		if n > 0 {
			deadline = time.Now().Add(75 * time.Millisecond)
			continue
		}
		if rerr == unix.EINTR {
			continue
		}
		break
	}
}

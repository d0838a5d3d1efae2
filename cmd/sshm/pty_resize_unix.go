//go:build !windows
// +build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// startPTYResizeWatcher propagates terminal size changes into the PTY so
// full-screen programs on the remote side keep rendering after a resize.
// Unix only: Windows has no SIGWINCH, and naming it there breaks the build
// even behind a runtime guard, so the watcher lives behind build tags.
func startPTYResizeWatcher(ptmx *os.File) {
	if ptmx == nil {
		return
	}

	winchCh := make(chan os.Signal, 1)
	signal.Notify(winchCh, syscall.SIGWINCH)

	go func() {
		defer signal.Stop(winchCh)
		for range winchCh {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				continue
			}
			if cols, rows, err := term.GetSize(int(os.Stdout.Fd())); err == nil && rows > 0 && cols > 0 {
				_ = pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
			}
		}
	}()
}

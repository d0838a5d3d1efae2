//go:build windows
// +build windows

package main

import "os"

// startPTYResizeWatcher is a no-op on Windows: there is no SIGWINCH to
// subscribe to. The initial size seeded at spawn is all the PTY gets.
func startPTYResizeWatcher(_ *os.File) {}

//go:build windows
// +build windows

package main

// flushTTYInput is a no-op on Windows; the console queue model does not
// feed terminal-integration replies through stdin the way a Unix tty does.
func flushTTYInput() {}

package main

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"sshm/pkg/manager"
)

// readSecretFromTTY prompts on the controlling terminal with echo off. It
// deliberately bypasses stdin so piped input cannot become a password by
// accident.
func readSecretFromTTY(label string) (manager.Secret, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, errors.New("no terminal available for the password prompt (use -password-env in scripts)")
	}
	defer func() { _ = tty.Close() }()

	fmt.Fprintf(tty, "%s: ", label)
	raw, err := term.ReadPassword(int(tty.Fd()))
	fmt.Fprintln(tty)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", label, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty %s", label)
	}
	return manager.Secret(raw), nil
}

package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"sshm/pkg/logging"
)

// LaunchState tracks the progression of a Connect call. Transitions are
// strictly forward: Idle, Validating, Spawning, Attached, Exited. A
// validation failure ends the attempt before Spawning; nothing is executed.
type LaunchState int

const (
	LaunchIdle LaunchState = iota
	LaunchValidating
	LaunchSpawning
	LaunchAttached
	LaunchExited
)

func (s LaunchState) String() string {
	switch s {
	case LaunchIdle:
		return "idle"
	case LaunchValidating:
		return "validating"
	case LaunchSpawning:
		return "spawning"
	case LaunchAttached:
		return "attached"
	case LaunchExited:
		return "exited"
	}
	return "unknown"
}

// EnvSSHPass is the variable sshpass -e reads the password from. The secret
// travels to the child through its environment only: not argv, not a file,
// not the log.
const EnvSSHPass = "SSHPASS"

// Launcher spawns ssh and sftp sessions for records. It hands the terminal
// to the child and blocks until the child exits; the child's exit status is
// a result, not an error.
type Launcher struct {
	settings Settings
	log      *slog.Logger
}

// NewLauncher returns a Launcher using the given settings.
func NewLauncher(settings Settings) *Launcher {
	return &Launcher{
		settings: settings,
		log:      logging.ForComponent(logging.CompLauncher),
	}
}

// SSHPassAvailable reports whether the configured sshpass binary resolves.
// Callers use this to pick a fallback password strategy before Connect.
func (l *Launcher) SSHPassAvailable() bool {
	_, err := exec.LookPath(l.settings.SSHPassBinary)
	return err == nil
}

// Connect launches the record in the given mode and blocks until the child
// exits. It returns the child's raw exit code; err is non-nil only when the
// session could not be attempted at all (validation or spawn failure). A
// failed remote login that makes ssh exit 255 is (255, nil).
func (l *Launcher) Connect(rec ConnectionRecord, mode Mode, extraArgs ...string) (int, error) {
	state := LaunchValidating
	l.log.Debug("connect", "state", state, "record", rec.PathKey(), "mode", mode)

	if err := rec.Validate(); err != nil {
		return 0, err
	}
	if rec.Auth.Method == AuthKeyFile {
		id := expandPath(rec.Auth.KeyFile)
		if _, err := os.Stat(id); err != nil {
			return 0, fmt.Errorf("key file %s: %v: %w", id, err, ErrAuthConfigInvalid)
		}
	}

	argv := BuildCommand(l.settings, rec, mode, extraArgs...)
	var env []string
	if rec.Auth.Method == AuthPassword {
		if _, err := exec.LookPath(l.settings.SSHPassBinary); err != nil {
			return 0, fmt.Errorf("password auth needs %s: %v: %w",
				l.settings.SSHPassBinary, err, ErrProcessSpawnFailed)
		}
		argv = WrapSSHPass(l.settings, argv)
		env = mergedEnv(map[string]string{EnvSSHPass: rec.Auth.Password.Reveal()})
	}

	state = LaunchSpawning
	l.log.Debug("connect", "state", state, "argv0", argv[0], "dest", rec.Destination())

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = env
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %v: %w", argv[0], err, ErrProcessSpawnFailed)
	}

	state = LaunchAttached
	l.log.Debug("connect", "state", state, "pid", cmd.Process.Pid)

	err := cmd.Wait()
	code := 0
	if err != nil {
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			return 0, fmt.Errorf("wait for %s: %w", argv[0], err)
		}
		code = exitCodeFromErr(err)
	}

	state = LaunchExited
	l.log.Debug("connect", "state", state, "code", code, "elapsed", time.Since(start).Round(time.Millisecond))
	return code, nil
}

// mergedEnv copies the process environment with the given overrides applied,
// replacing existing entries rather than appending duplicates.
func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		prefix := k + "="
		replaced := false
		for i, kv := range env {
			if strings.HasPrefix(kv, prefix) {
				env[i] = prefix + v
				replaced = true
				break
			}
		}
		if !replaced {
			env = append(env, prefix+v)
		}
	}
	return env
}

// exitCodeFromErr extracts the child's exit status from a Wait error.
func exitCodeFromErr(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
			return ws.ExitStatus()
		}
		return 1
	}
	return 1
}

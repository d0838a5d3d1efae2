package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"

	"sshm/pkg/manager"
)

// passwordPromptRe matches the usual ssh password prompts, which arrive
// without a trailing newline.
var passwordPromptRe = regexp.MustCompile(`(?i)(password|passcode|pass phrase|passphrase)\s*:?\s*$`)

// promptWindow bounds how long after spawn the prompt watcher will answer a
// password prompt. Anything later is the remote session's own business.
const promptWindow = 30 * time.Second

func runConnectSubcommand(args []string, mode manager.Mode) error {
	name := "connect"
	if mode == manager.ModeSFTP {
		name = "sftp"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	dir := fs.String("dir", "", storeDirHelp)
	dryRun := fs.Bool("dry-run", false, "print the command instead of running it")
	var asSFTP *bool
	if mode == manager.ModeSSH {
		asSFTP = fs.Bool("sftp", false, "open an sftp session instead of ssh")
	}
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: sshm %s [flags] <target> [-- extra client args]", name)
	}
	if asSFTP != nil && *asSFTP {
		mode = manager.ModeSFTP
	}

	target := fs.Arg(0)
	extraArgs := fs.Args()[1:]
	if len(extraArgs) > 0 && extraArgs[0] == "--" {
		extraArgs = extraArgs[1:]
	}

	env, err := openEnv(*dir)
	if err != nil {
		return err
	}
	rec, err := manager.MatchTarget(env.store.Records(), target)
	if err != nil {
		return err
	}

	if *dryRun {
		argv := manager.BuildCommand(env.settings, rec, mode, extraArgs...)
		if rec.Auth.Method == manager.AuthPassword && env.launcher.SSHPassAvailable() {
			argv = manager.WrapSSHPass(env.settings, argv)
		}
		fmt.Println(shellQuoteCmd(argv))
		return nil
	}

	code, usedSSHPass, err := launchRecord(env, rec, mode, extraArgs)
	if err != nil {
		return err
	}
	if err := env.store.MarkRecent(rec); err != nil {
		fmt.Fprintf(os.Stderr, "sshm: record recent connection: %v\n", err)
	}
	if usedSSHPass {
		if hint := sshpassHint(code); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
	}
	if code != 0 {
		exitWith(code)
	}
	return nil
}

// launchRecord starts a session for the record and blocks until the child
// exits. Password records go through sshpass when it is installed and fall
// back to the PTY prompt watcher when it is not. The second result reports
// whether sshpass ran, so callers know its exit codes apply.
func launchRecord(env *cmdEnv, rec manager.ConnectionRecord, mode manager.Mode, extraArgs []string) (int, bool, error) {
	if rec.Auth.Method == manager.AuthPassword && !env.launcher.SSHPassAvailable() {
		code, err := connectWithPromptFallback(env, rec, mode, extraArgs)
		return code, false, err
	}
	code, err := env.launcher.Connect(rec, mode, extraArgs...)
	return code, rec.Auth.Method == manager.AuthPassword, err
}

// sshpassHint translates the sshpass exit codes users actually hit into
// advice. Other codes come from the wrapped client and stand on their own.
func sshpassHint(code int) string {
	switch code {
	case 5:
		return "sshm: sshpass exit 5: the stored password was not accepted; update it with 'sshm update -password-prompt <target>'"
	case 6:
		return "sshm: sshpass exit 6: the host key is not in known_hosts; connect once with plain ssh or adjust ssh_options"
	}
	return ""
}

// connectWithPromptFallback runs a password record without sshpass: the
// client runs under a PTY, its output is watched for a password prompt, and
// the stored secret is written to the PTY exactly once. The secret stays out
// of argv and the environment on this path too.
func connectWithPromptFallback(env *cmdEnv, rec manager.ConnectionRecord, mode manager.Mode, extraArgs []string) (int, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	argv := manager.BuildCommand(env.settings, rec, mode, extraArgs...)

	// Pending terminal-integration replies (OSC, cursor reports) queued on
	// the tty would otherwise be read by the child as typed input.
	flushTTYInput()

	cmd := exec.Command(argv[0], argv[1:]...)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return 0, fmt.Errorf("start %s under pty: %v: %w", argv[0], err, manager.ErrProcessSpawnFailed)
	}
	defer func() { _ = ptmx.Close() }()

	// Seed the PTY size from the terminal the user is looking at. Without
	// this the remote side can come up 0x0 and full-screen programs break.
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if cols, rows, sizeErr := term.GetSize(int(os.Stdout.Fd())); sizeErr == nil && rows > 0 && cols > 0 {
			_ = pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
		}
	}
	startPTYResizeWatcher(ptmx)

	// Raw mode stops the local tty from echoing keystrokes; the remote side
	// echoes (or suppresses) them itself.
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		oldState, rawErr := term.MakeRaw(fd)
		if rawErr == nil {
			defer func() { _ = term.Restore(fd, oldState) }()
		}
	}

	go func() { _, _ = io.Copy(ptmx, os.Stdin) }()

	// Mirror child output and keep a rolling tail for prompt detection;
	// prompts end without a newline, so the tail is matched per chunk.
	const maxTail = 2048
	buf := make([]byte, 4096)
	var tail strings.Builder
	seenPrompt := false
	deadline := time.Now().Add(promptWindow)

	for {
		n, rerr := ptmx.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			_, _ = os.Stdout.Write(chunk)

			for _, b := range chunk {
				if b == 0 {
					continue
				}
				if b == '\r' {
					tail.WriteByte('\n')
				} else {
					tail.WriteByte(b)
				}
				if tail.Len() > maxTail {
					s := tail.String()
					tail.Reset()
					tail.WriteString(s[len(s)-maxTail:])
				}
			}

			if !seenPrompt && time.Now().Before(deadline) {
				s := tail.String()
				if idx := strings.LastIndexByte(s, '\n'); idx >= 0 && idx+1 < len(s) {
					s = s[idx+1:]
				}
				if passwordPromptRe.MatchString(strings.TrimSpace(s)) {
					seenPrompt = true
					_, _ = ptmx.Write([]byte(rec.Auth.Password.Reveal()))
					_, _ = ptmx.Write([]byte("\r"))
				}
			}
		}
		if rerr != nil {
			break
		}
	}

	if werr := cmd.Wait(); werr != nil {
		var ee *exec.ExitError
		if !errors.As(werr, &ee) {
			return 0, fmt.Errorf("wait for %s: %w", argv[0], werr)
		}
		code := ee.ExitCode()
		if code < 0 {
			code = 1
		}
		return code, nil
	}
	return 0, nil
}

func runInstallKeySubcommand(args []string) error {
	fs := flag.NewFlagSet("install-key", flag.ContinueOnError)
	dir := fs.String("dir", "", storeDirHelp)
	keyPath := fs.String("key", "", "public key file to install (default: best key under ~/.ssh)")
	modeFlag := fs.String("mode", "ensure", "ensure appends the key if missing; replace overwrites authorized_keys")
	dryRun := fs.Bool("dry-run", false, "print the command instead of running it")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: sshm install-key [flags] <target>")
	}

	var pubKey manager.LocalPublicKey
	if *keyPath != "" {
		k, err := manager.ReadLocalPublicKey(*keyPath)
		if err != nil {
			return err
		}
		pubKey = k
	} else {
		keys, err := manager.DetectLocalPublicKeys()
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return errors.New("no public key found under ~/.ssh (generate one with ssh-keygen or pass -key)")
		}
		pubKey = keys[0]
	}

	script, err := manager.BuildKeyInstallScript(pubKey, manager.KeyInstallMode(*modeFlag))
	if err != nil {
		return err
	}

	env, err := openEnv(*dir)
	if err != nil {
		return err
	}
	rec, err := manager.MatchTarget(env.store.Records(), fs.Arg(0))
	if err != nil {
		return err
	}

	// The script travels as a single quoted word; ssh joins the remote argv
	// with spaces, so an unquoted script would be word-split remotely.
	remote := []string{"sh", "-lc", shellQuoteArg(script)}

	if *dryRun {
		argv := manager.BuildCommand(env.settings, rec, manager.ModeSSH, remote...)
		if rec.Auth.Method == manager.AuthPassword && env.launcher.SSHPassAvailable() {
			argv = manager.WrapSSHPass(env.settings, argv)
		}
		fmt.Println(shellQuoteCmd(argv))
		return nil
	}

	fmt.Printf("installing %s on %s\n", pubKey.Path, rec.PathKey())
	code, _, err := launchRecord(env, rec, manager.ModeSSH, remote)
	if err != nil {
		return err
	}
	if code != 0 {
		fmt.Fprintf(os.Stderr, "sshm: remote install script exited %d\n", code)
		exitWith(code)
	}
	return nil
}

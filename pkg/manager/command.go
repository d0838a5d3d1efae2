package manager

import (
	"strconv"
)

// Mode selects the client program for a connection.
type Mode string

const (
	ModeSSH  Mode = "ssh"
	ModeSFTP Mode = "sftp"
)

// passwordAuthOptions are forced for password records so the client does not
// burn the attempt on pubkey auth or re-prompt interactively after the fed
// password is consumed.
var passwordAuthOptions = []string{
	"PubkeyAuthentication=no",
	"NumberOfPasswordPrompts=1",
}

// BuildSSHCommand constructs the ssh argv for a record. The secret is never
// part of the result; password feeding happens through the environment of
// the spawned process (see BuildSSHPassCommand).
func BuildSSHCommand(s Settings, r ConnectionRecord, extraArgs ...string) []string {
	args := []string{}
	if p := r.EffectivePort(); p != 22 {
		args = append(args, "-p", strconv.Itoa(p))
	}
	args = append(args, commonClientArgs(s, r)...)

	cmd := []string{s.SSHBinary}
	cmd = append(cmd, args...)
	cmd = append(cmd, r.Destination())
	if len(extraArgs) > 0 {
		cmd = append(cmd, extraArgs...)
	}
	return cmd
}

// BuildSFTPCommand constructs the sftp argv for a record. sftp spells the
// port flag -P where ssh uses -p.
func BuildSFTPCommand(s Settings, r ConnectionRecord, extraArgs ...string) []string {
	args := []string{}
	if p := r.EffectivePort(); p != 22 {
		args = append(args, "-P", strconv.Itoa(p))
	}
	args = append(args, commonClientArgs(s, r)...)

	cmd := []string{s.SFTPBinary}
	cmd = append(cmd, args...)
	cmd = append(cmd, r.Destination())
	if len(extraArgs) > 0 {
		cmd = append(cmd, extraArgs...)
	}
	return cmd
}

// commonClientArgs yields the flags shared by ssh and sftp: global -o
// options, auth-specific -o options, and the identity file.
func commonClientArgs(s Settings, r ConnectionRecord) []string {
	args := []string{}
	for _, opt := range s.SSHOptions {
		args = append(args, "-o", opt)
	}
	switch r.Auth.Method {
	case AuthPassword:
		for _, opt := range passwordAuthOptions {
			args = append(args, "-o", opt)
		}
	case AuthKeyFile:
		if id := expandPath(r.Auth.KeyFile); id != "" {
			args = append(args, "-i", id)
		}
	}
	return args
}

// BuildCommand dispatches on mode.
func BuildCommand(s Settings, r ConnectionRecord, mode Mode, extraArgs ...string) []string {
	if mode == ModeSFTP {
		return BuildSFTPCommand(s, r, extraArgs...)
	}
	return BuildSSHCommand(s, r, extraArgs...)
}

// WrapSSHPass prepends the sshpass prefix to a client argv. -e tells sshpass
// to take the password from the SSHPASS environment variable, which keeps
// the secret out of the process argument list entirely.
func WrapSSHPass(s Settings, clientCmd []string) []string {
	cmd := []string{s.SSHPassBinary, "-e"}
	return append(cmd, clientCmd...)
}

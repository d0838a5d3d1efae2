package manager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// settings.yaml lives next to the blob, for example:
//
//	ssh_binary: ssh
//	sftp_binary: sftp
//	sshpass_binary: sshpass
//	ssh_options:
//	  - StrictHostKeyChecking=no
//	default_username: deploy
//	theme: dark
//	log:
//	  enabled: true
//	  level: debug
//
// Everything is optional; a missing file means defaults.

const settingsFilename = "settings.yaml"

// EnvDebug forces debug logging to the store directory regardless of the
// log settings (SSHM_DEBUG=1).
const EnvDebug = "SSHM_DEBUG"

// Settings configure binaries, launch options and logging. They are plain
// preferences, not secrets, and live outside the encrypted blob.
type Settings struct {
	SSHBinary     string `yaml:"ssh_binary,omitempty"`
	SFTPBinary    string `yaml:"sftp_binary,omitempty"`
	SSHPassBinary string `yaml:"sshpass_binary,omitempty"`

	// SSHOptions are OpenSSH options (Key=Value form) passed to every ssh
	// and sftp invocation as -o arguments.
	SSHOptions []string `yaml:"ssh_options,omitempty"`

	// DefaultUsername is used by record entry forms when no username is
	// given; empty means the local user.
	DefaultUsername string `yaml:"default_username,omitempty"`

	Theme string      `yaml:"theme,omitempty"`
	Log   LogSettings `yaml:"log,omitempty"`
}

// LogSettings control the optional debug log file.
type LogSettings struct {
	Enabled    bool   `yaml:"enabled,omitempty"`
	Level      string `yaml:"level,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// DefaultSettings returns the settings used when no settings.yaml exists.
// StrictHostKeyChecking=no matches the interactive-tool posture: records
// point at lab and fleet hosts whose keys churn.
func DefaultSettings() Settings {
	return Settings{
		SSHBinary:     "ssh",
		SFTPBinary:    "sftp",
		SSHPassBinary: "sshpass",
		SSHOptions:    []string{"StrictHostKeyChecking=no"},
		Theme:         "dark",
	}
}

// LoadSettings reads settings.yaml from dir. A missing file yields defaults;
// a present but malformed file is an error (silently ignoring a typo'd
// config confuses more than it helps). The returned path is where settings
// were (or would be) read from.
func LoadSettings(dir string) (Settings, string, error) {
	path := filepath.Join(dir, settingsFilename)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSettings(), path, nil
	}
	if err != nil {
		return Settings{}, path, fmt.Errorf("read settings %s: %w", path, err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, path, fmt.Errorf("parse yaml %s: %w", path, err)
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, path, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return s, path, nil
}

func (s *Settings) applyDefaults() {
	def := DefaultSettings()
	if strings.TrimSpace(s.SSHBinary) == "" {
		s.SSHBinary = def.SSHBinary
	}
	if strings.TrimSpace(s.SFTPBinary) == "" {
		s.SFTPBinary = def.SFTPBinary
	}
	if strings.TrimSpace(s.SSHPassBinary) == "" {
		s.SSHPassBinary = def.SSHPassBinary
	}
	if s.SSHOptions == nil {
		s.SSHOptions = def.SSHOptions
	}
	if strings.TrimSpace(s.Theme) == "" {
		s.Theme = def.Theme
	}
}

// Validate checks field shapes. Option entries are bare OpenSSH options;
// flags belong in the builders, not here.
func (s *Settings) Validate() error {
	for i, opt := range s.SSHOptions {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return fmt.Errorf("ssh_options[%d]: empty entry", i)
		}
		if strings.HasPrefix(opt, "-") {
			return fmt.Errorf("ssh_options[%d] (%s): give the option itself, not a flag", i, opt)
		}
	}
	switch s.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level (%s): want debug, info, warn or error", s.Log.Level)
	}
	if s.Log.MaxSizeMB < 0 || s.Log.MaxBackups < 0 || s.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation values must not be negative")
	}
	return nil
}

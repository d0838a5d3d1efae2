package manager

import (
	"os"
	"strings"
)

// Theme provides optional colorized rendering for CLI output. It is
// dependency-free and uses raw ANSI SGR sequences. All hooks are safe to
// call when theming is disabled; they fall back to plain strings.
//
// Selection sources, in priority order:
//  1. $SSHM_THEME = none | dark | light | auto
//  2. the theme name from settings.yaml
//  3. auto (enabled when the terminal likely supports color)
type Theme struct {
	Enabled bool

	Header   string
	Accent   string
	Group    string
	Dim      string
	Favorite string
	Error    string
	Success  string
	Warn     string
}

// EnvTheme overrides the settings theme at runtime.
const EnvTheme = "SSHM_THEME"

// SelectTheme resolves the active theme from the environment and the
// settings theme name.
func SelectTheme(settingsName string) Theme {
	name := strings.TrimSpace(os.Getenv(EnvTheme))
	if name == "" {
		name = settingsName
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "off", "disabled":
		return NoTheme()
	case "light":
		return LightTheme()
	case "dark":
		return DarkTheme()
	default:
		return AutoTheme()
	}
}

// NoTheme disables all ANSI styling.
func NoTheme() Theme {
	return Theme{Enabled: false}
}

// AutoTheme enables theming whenever the terminal likely supports color.
func AutoTheme() Theme {
	if !terminalSupportsColor() {
		return NoTheme()
	}
	return DarkTheme()
}

// DarkTheme is the default palette for dark terminals.
func DarkTheme() Theme {
	return Theme{
		Enabled:  true,
		Header:   "1",    // bold
		Accent:   "36",   // cyan
		Group:    "1;34", // bold blue
		Dim:      "2",    // faint
		Favorite: "33",   // yellow
		Error:    "31",   // red
		Success:  "32",   // green
		Warn:     "33",   // yellow
	}
}

// LightTheme is the default palette for light terminals.
func LightTheme() Theme {
	return Theme{
		Enabled:  true,
		Header:   "1",
		Accent:   "34", // blue
		Group:    "1;35",
		Dim:      "2",
		Favorite: "33",
		Error:    "31",
		Success:  "32",
		Warn:     "33",
	}
}

func (t Theme) HeaderLine(s string) string  { return t.apply(t.Header, s) }
func (t Theme) AccentText(s string) string  { return t.apply(t.Accent, s) }
func (t Theme) GroupText(s string) string   { return t.apply(t.Group, s) }
func (t Theme) DimText(s string) string     { return t.apply(t.Dim, s) }
func (t Theme) ErrorText(s string) string   { return t.apply(t.Error, s) }
func (t Theme) SuccessText(s string) string { return t.apply(t.Success, s) }
func (t Theme) WarnText(s string) string    { return t.apply(t.Warn, s) }

// FavoriteStar renders a colored star or a space.
func (t Theme) FavoriteStar(on bool) string {
	if on {
		return t.apply(t.Favorite, "*")
	}
	return " "
}

func (t Theme) apply(seqCode, s string) string {
	if !t.Enabled || strings.TrimSpace(seqCode) == "" || s == "" {
		return s
	}
	return "\x1b[" + seqCode + "m" + s + "\x1b[0m"
}

func terminalSupportsColor() bool {
	// Respect NO_COLOR https://no-color.org/
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(os.Getenv("TERM")))
	if term == "" || term == "dumb" {
		return false
	}
	for _, token := range []string{"color", "ansi", "xterm", "screen", "tmux", "rxvt"} {
		if strings.Contains(term, token) {
			return true
		}
	}
	return true
}

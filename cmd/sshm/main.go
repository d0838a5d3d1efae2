package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"sshm/pkg/logging"
	"sshm/pkg/manager"
)

const storeDirHelp = "store directory (default $SSHM_HOME, else ~/.ssh-manager)"

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		usage(os.Stderr)
		os.Exit(2)
	}

	sub, rest := args[0], args[1:]
	var err error
	switch sub {
	case "help", "-h", "-help", "--help":
		usage(os.Stdout)
		return
	case "list":
		err = runListSubcommand(rest)
	case "tree":
		err = runTreeSubcommand(rest)
	case "add":
		err = runAddSubcommand(rest)
	case "update":
		err = runUpdateSubcommand(rest)
	case "remove", "rm":
		err = runRemoveSubcommand(rest)
	case "show":
		err = runShowSubcommand(rest)
	case "connect", "ssh":
		err = runConnectSubcommand(rest, manager.ModeSSH)
	case "sftp":
		err = runConnectSubcommand(rest, manager.ModeSFTP)
	case "search":
		err = runSearchSubcommand(rest)
	case "recent":
		err = runRecentSubcommand(rest)
	case "fav":
		err = runFavSubcommand(rest)
	case "export":
		err = runExportSubcommand(rest)
	case "import":
		err = runImportSubcommand(rest)
	case "import-ssh-config":
		err = runImportSSHConfigSubcommand(rest)
	case "install-key":
		err = runInstallKeySubcommand(rest)
	case "doctor":
		err = runDoctorSubcommand(rest)
	default:
		fmt.Fprintf(os.Stderr, "sshm: unknown command %q\n\n", sub)
		usage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "sshm: %v\n", err)
		switch {
		case errors.Is(err, manager.ErrKeyMissing):
			fmt.Fprintln(os.Stderr, "sshm: the blob exists but the key file is gone; records cannot be decrypted without it")
		case errors.Is(err, manager.ErrCorrupt), errors.Is(err, manager.ErrDecryptFailed):
			fmt.Fprintln(os.Stderr, "sshm: restore the store from a backup or re-import a previous export")
		}
		exitWith(1)
	}
	logging.Shutdown()
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "sshm manages ssh connection records and launches sessions.\n\n")
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  sshm <command> [flags] [args]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  list [path]        list records, optionally under one group\n")
	fmt.Fprintf(w, "  tree               show records grouped as a tree\n")
	fmt.Fprintf(w, "  add                add a record\n")
	fmt.Fprintf(w, "  update             change fields of a record\n")
	fmt.Fprintf(w, "  remove             delete a record\n")
	fmt.Fprintf(w, "  show               print one record, secret redacted\n")
	fmt.Fprintf(w, "  connect <target>   open an ssh session (alias: ssh)\n")
	fmt.Fprintf(w, "  sftp <target>      open an sftp session\n")
	fmt.Fprintf(w, "  search <query>     fuzzy-search records\n")
	fmt.Fprintf(w, "  recent             recently connected records\n")
	fmt.Fprintf(w, "  fav                list, add or remove favorites\n")
	fmt.Fprintf(w, "  export             write all records to a plaintext JSON file\n")
	fmt.Fprintf(w, "  import <file>      merge or replace records from an export file\n")
	fmt.Fprintf(w, "  import-ssh-config  convert ssh config hosts into records\n")
	fmt.Fprintf(w, "  install-key        install the local public key on a host\n")
	fmt.Fprintf(w, "  doctor             check the store, settings and client binaries\n\n")
	fmt.Fprintf(w, "Run 'sshm <command> -h' for command flags.\n")
	fmt.Fprintf(w, `
Examples:
  sshm add -name web1 -host web1.example.com -user deploy -group prod/web -key ~/.ssh/id_ed25519
  sshm connect prod/web/web1
  sshm connect web1 -- uptime
  sshm sftp web1
  sshm import-ssh-config -group imported
`)
}

// exitWith flushes the log file before handing an exit code to the shell.
func exitWith(code int) {
	logging.Shutdown()
	os.Exit(code)
}

// cmdEnv bundles what most subcommands need: the resolved store directory,
// settings, the opened store, the theme and a launcher.
type cmdEnv struct {
	dir      string
	settings manager.Settings
	store    *manager.Store
	theme    manager.Theme
	launcher *manager.Launcher
}

func openEnv(flagDir string) (*cmdEnv, error) {
	dir := strings.TrimSpace(flagDir)
	if dir == "" {
		d, err := manager.DefaultStoreDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	settings, _, err := manager.LoadSettings(dir)
	if err != nil {
		return nil, err
	}
	initLogging(dir, settings)
	st, err := manager.Open(dir)
	if err != nil {
		return nil, err
	}
	logging.ForComponent(logging.CompCLI).Debug("environment ready",
		"dir", dir, "records", len(st.Records()))
	return &cmdEnv{
		dir:      dir,
		settings: settings,
		store:    st,
		theme:    manager.SelectTheme(settings.Theme),
		launcher: manager.NewLauncher(settings),
	}, nil
}

func initLogging(dir string, s manager.Settings) {
	enabled := s.Log.Enabled
	level := s.Log.Level
	if v := strings.TrimSpace(os.Getenv(manager.EnvDebug)); v != "" && v != "0" && !strings.EqualFold(v, "false") {
		enabled = true
		level = "debug"
	}
	logging.Init(logging.Config{
		Dir:        filepath.Join(dir, "logs"),
		Level:      level,
		MaxSizeMB:  s.Log.MaxSizeMB,
		MaxBackups: s.Log.MaxBackups,
		MaxAgeDays: s.Log.MaxAgeDays,
		Enabled:    enabled,
	})
}

func runListSubcommand(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	dir := fs.String("dir", "", storeDirHelp)
	favOnly := fs.Bool("favorites", false, "only favorites")
	tag := fs.String("tag", "", "only records carrying this tag")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(*dir)
	if err != nil {
		return err
	}

	records := env.store.Records()
	if *favOnly {
		records = env.store.Favorites()
	}

	var underPath string
	if fs.NArg() > 0 {
		underPath = manager.JoinGroupPath(manager.SplitGroupPath(fs.Arg(0)))
	}

	for _, rec := range records {
		if *tag != "" && !hasTag(rec, *tag) {
			continue
		}
		if underPath != "" && !underGroup(rec, underPath) {
			continue
		}
		fmt.Println(recordLine(env, rec))
	}
	return nil
}

func runTreeSubcommand(args []string) error {
	fs := flag.NewFlagSet("tree", flag.ContinueOnError)
	dir := fs.String("dir", "", storeDirHelp)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(*dir)
	if err != nil {
		return err
	}

	tree := manager.NewTree()
	tree.Rebuild(env.store.Records())
	printTree(env, tree.Root(), 0)
	return nil
}

func printTree(env *cmdEnv, node *manager.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, entry := range node.Children() {
		if entry.Kind == manager.EntryGroup {
			fmt.Println(indent + env.theme.GroupText(entry.Group.Name()+"/"))
			printTree(env, entry.Group, depth+1)
			continue
		}
		rec := entry.Record
		star := env.theme.FavoriteStar(env.store.IsFavorite(rec))
		fmt.Println(indent + star + " " + rec.Name + "  " + env.theme.DimText(destLabel(rec)))
	}
}

func runAddSubcommand(args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	dir := fs.String("dir", "", storeDirHelp)
	name := fs.String("name", "", "record name, unique within its group")
	host := fs.String("host", "", "hostname or address")
	port := fs.Int("port", 0, "port (default 22)")
	user := fs.String("user", "", "username (default: settings default_username; empty means the local user)")
	group := fs.String("group", "", "slash-separated group path, e.g. prod/web")
	tags := fs.String("tags", "", "comma-separated tags")
	keyFile := fs.String("key", "", "identity file path; stores a key record")
	pwPrompt := fs.Bool("password-prompt", false, "prompt for a password on the terminal; stores a password record")
	pwEnv := fs.String("password-env", "", "read the password from this environment variable")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	auth, err := authFromFlags(*keyFile, *pwPrompt, *pwEnv)
	if err != nil {
		return err
	}

	env, err := openEnv(*dir)
	if err != nil {
		return err
	}

	username := strings.TrimSpace(*user)
	if username == "" && !set["user"] {
		username = env.settings.DefaultUsername
	}

	rec := manager.ConnectionRecord{
		Name:      strings.TrimSpace(*name),
		Host:      strings.TrimSpace(*host),
		Port:      *port,
		Username:  username,
		Auth:      auth,
		GroupPath: manager.SplitGroupPath(*group),
		Tags:      splitTags(*tags),
	}
	if err := env.store.Add(rec); err != nil {
		return err
	}
	fmt.Printf("added %s\n", rec.PathKey())
	return nil
}

func runUpdateSubcommand(args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	dir := fs.String("dir", "", storeDirHelp)
	name := fs.String("name", "", "new name")
	host := fs.String("host", "", "new host")
	port := fs.Int("port", 0, "new port (0 means 22)")
	user := fs.String("user", "", "new username (empty clears it)")
	group := fs.String("group", "", "new group path (empty moves to the root)")
	tags := fs.String("tags", "", "new comma-separated tags (empty clears them)")
	keyFile := fs.String("key", "", "switch to key auth with this identity file")
	pwPrompt := fs.Bool("password-prompt", false, "switch to password auth, prompting on the terminal")
	pwEnv := fs.String("password-env", "", "switch to password auth, reading this environment variable")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: sshm update [flags] <target>")
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	env, err := openEnv(*dir)
	if err != nil {
		return err
	}
	rec, err := manager.MatchTarget(env.store.Records(), fs.Arg(0))
	if err != nil {
		return err
	}
	oldName, oldGroup := rec.Name, rec.GroupPath

	if set["name"] {
		rec.Name = strings.TrimSpace(*name)
	}
	if set["host"] {
		rec.Host = strings.TrimSpace(*host)
	}
	if set["port"] {
		rec.Port = *port
	}
	if set["user"] {
		rec.Username = strings.TrimSpace(*user)
	}
	if set["group"] {
		rec.GroupPath = manager.SplitGroupPath(*group)
	}
	if set["tags"] {
		rec.Tags = splitTags(*tags)
	}
	if set["key"] || set["password-prompt"] || set["password-env"] {
		auth, err := authFromFlags(*keyFile, *pwPrompt, *pwEnv)
		if err != nil {
			return err
		}
		rec.Auth = auth
	}

	if err := env.store.Update(oldName, oldGroup, rec); err != nil {
		return err
	}
	fmt.Printf("updated %s\n", rec.PathKey())
	return nil
}

func runRemoveSubcommand(args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	dir := fs.String("dir", "", storeDirHelp)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: sshm remove <target>")
	}

	env, err := openEnv(*dir)
	if err != nil {
		return err
	}
	rec, err := manager.MatchTarget(env.store.Records(), fs.Arg(0))
	if err != nil {
		return err
	}
	if err := env.store.Remove(rec.Name, rec.GroupPath); err != nil {
		return err
	}
	fmt.Printf("removed %s\n", rec.PathKey())
	return nil
}

func runShowSubcommand(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	dir := fs.String("dir", "", storeDirHelp)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: sshm show <target>")
	}

	env, err := openEnv(*dir)
	if err != nil {
		return err
	}
	rec, err := manager.MatchTarget(env.store.Records(), fs.Arg(0))
	if err != nil {
		return err
	}

	groupLabel := manager.JoinGroupPath(rec.GroupPath)
	if groupLabel == "" {
		groupLabel = "(root)"
	}
	userLabel := rec.Username
	if userLabel == "" {
		userLabel = "(local user)"
	}

	fmt.Printf("%-9s %s\n", "name:", rec.Name)
	fmt.Printf("%-9s %s\n", "group:", groupLabel)
	fmt.Printf("%-9s %s\n", "host:", rec.Host)
	fmt.Printf("%-9s %d\n", "port:", rec.EffectivePort())
	fmt.Printf("%-9s %s\n", "user:", userLabel)
	fmt.Printf("%-9s %s\n", "auth:", rec.Auth.Method)
	if rec.Auth.Method == manager.AuthKeyFile {
		fmt.Printf("%-9s %s\n", "key:", rec.Auth.KeyFile)
	} else {
		fmt.Printf("%-9s %s\n", "secret:", rec.Auth.Password)
	}
	if len(rec.Tags) > 0 {
		fmt.Printf("%-9s %s\n", "tags:", strings.Join(rec.Tags, ", "))
	}
	fmt.Printf("%-9s %v\n", "favorite:", env.store.IsFavorite(rec))
	return nil
}

func runSearchSubcommand(args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	dir := fs.String("dir", "", storeDirHelp)
	limit := fs.Int("max", 20, "max results")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("usage: sshm search <query>")
	}

	env, err := openEnv(*dir)
	if err != nil {
		return err
	}
	results := manager.Search(env.store.Records(), strings.Join(fs.Args(), " "))
	if *limit > 0 && len(results) > *limit {
		results = results[:*limit]
	}
	for _, res := range results {
		fmt.Println(recordLine(env, res.Record))
	}
	return nil
}

func runRecentSubcommand(args []string) error {
	fs := flag.NewFlagSet("recent", flag.ContinueOnError)
	dir := fs.String("dir", "", storeDirHelp)
	limit := fs.Int("max", 10, "max entries")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(*dir)
	if err != nil {
		return err
	}
	recents := env.store.Recents()
	if *limit > 0 && len(recents) > *limit {
		recents = recents[:*limit]
	}
	for _, rec := range recents {
		fmt.Println(recordLine(env, rec))
	}
	return nil
}

func runFavSubcommand(args []string) error {
	fs := flag.NewFlagSet("fav", flag.ContinueOnError)
	dir := fs.String("dir", "", storeDirHelp)
	remove := fs.Bool("remove", false, "remove the target from favorites")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(*dir)
	if err != nil {
		return err
	}

	if fs.NArg() == 0 {
		if *remove {
			return errors.New("usage: sshm fav -remove <target>")
		}
		for _, rec := range env.store.Favorites() {
			fmt.Println(recordLine(env, rec))
		}
		return nil
	}

	rec, err := manager.MatchTarget(env.store.Records(), fs.Arg(0))
	if err != nil {
		return err
	}
	changed, err := env.store.SetFavorite(rec, !*remove)
	if err != nil {
		return err
	}
	switch {
	case !changed && *remove:
		fmt.Printf("%s was not a favorite\n", rec.PathKey())
	case !changed:
		fmt.Printf("%s is already a favorite\n", rec.PathKey())
	case *remove:
		fmt.Printf("unfavorited %s\n", rec.PathKey())
	default:
		fmt.Printf("favorited %s\n", rec.PathKey())
	}
	return nil
}

func runExportSubcommand(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	dir := fs.String("dir", "", storeDirHelp)
	out := fs.String("o", "sshm-export.json", "output file path")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(*dir)
	if err != nil {
		return err
	}
	if err := manager.Export(env.store, *out); err != nil {
		return err
	}
	fmt.Printf("exported %d records to %s\n", len(env.store.Records()), *out)
	fmt.Fprintln(os.Stderr, "sshm: the export holds secrets in plaintext; delete it after use")
	return nil
}

func runImportSubcommand(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	dir := fs.String("dir", "", storeDirHelp)
	replace := fs.Bool("replace", false, "replace the store content instead of merging")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: sshm import [-replace] <file>")
	}

	env, err := openEnv(*dir)
	if err != nil {
		return err
	}
	mode := manager.ImportMerge
	if *replace {
		mode = manager.ImportReplace
	}
	added, updated, err := manager.Import(env.store, fs.Arg(0), mode)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d added, %d updated\n", added, updated)
	return nil
}

func runImportSSHConfigSubcommand(args []string) error {
	fs := flag.NewFlagSet("import-ssh-config", flag.ContinueOnError)
	dir := fs.String("dir", "", storeDirHelp)
	group := fs.String("group", "imported", "group path for converted hosts")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(*dir)
	if err != nil {
		return err
	}
	report, err := manager.ImportSSHConfig(env.store, manager.SplitGroupPath(*group), fs.Args()...)
	if err != nil {
		return err
	}
	fmt.Printf("ssh config import: %d added, %d updated\n", report.Added, report.Updated)
	for _, alias := range report.SkippedNoAuth {
		fmt.Fprintf(os.Stderr, "sshm: skipped %s: no IdentityFile; add it by hand to store a password\n", alias)
	}
	return nil
}

func runDoctorSubcommand(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	dirFlag := fs.String("dir", "", storeDirHelp)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir := strings.TrimSpace(*dirFlag)
	if dir == "" {
		d, err := manager.DefaultStoreDir()
		if err != nil {
			return err
		}
		dir = d
	}

	settings, settingsPath, settingsErr := manager.LoadSettings(dir)
	if settingsErr != nil {
		settings = manager.DefaultSettings()
	}
	th := manager.SelectTheme(settings.Theme)

	failed := false
	pass := func(label, detail string) { fmt.Printf("%s   %s: %s\n", th.SuccessText("ok"), label, detail) }
	warn := func(label, detail string) { fmt.Printf("%s %s: %s\n", th.WarnText("warn"), label, detail) }
	flunk := func(label, detail string) {
		failed = true
		fmt.Printf("%s %s: %s\n", th.ErrorText("fail"), label, detail)
	}

	if fi, err := os.Stat(dir); err != nil {
		warn("store dir", dir+" does not exist yet (created on first use)")
	} else if fi.Mode().Perm()&0o077 != 0 {
		flunk("store dir", fmt.Sprintf("%s is group/world accessible (%v); chmod 700", dir, fi.Mode().Perm()))
	} else {
		pass("store dir", dir)
	}

	if settingsErr != nil {
		flunk("settings", settingsErr.Error())
	} else {
		pass("settings", settingsPath)
	}

	st, err := manager.Open(dir)
	switch {
	case err == nil:
		pass("store", fmt.Sprintf("%d records", len(st.Records())))
		if fi, kerr := os.Stat(st.KeyPath()); kerr == nil && fi.Mode().Perm() != 0o600 {
			flunk("key file", fmt.Sprintf("%s has mode %v; chmod 600", st.KeyPath(), fi.Mode().Perm()))
		} else if kerr != nil {
			flunk("key file", kerr.Error())
		} else {
			pass("key file", st.KeyPath())
		}
	case errors.Is(err, manager.ErrKeyMissing):
		flunk("store", "blob exists but the key file is missing; without .key the records are unreadable")
	case errors.Is(err, manager.ErrCorrupt), errors.Is(err, manager.ErrDecryptFailed):
		flunk("store", "blob cannot be decrypted; restore config.json from a backup or re-import an export")
	default:
		flunk("store", err.Error())
	}

	bins := []struct {
		label, name string
		warnOnly    bool
	}{
		{"ssh", settings.SSHBinary, false},
		{"sftp", settings.SFTPBinary, true},
		{"sshpass", settings.SSHPassBinary, true},
	}
	for _, bin := range bins {
		path, lookErr := exec.LookPath(bin.name)
		switch {
		case lookErr == nil:
			pass(bin.label, path)
		case bin.label == "sshpass":
			warn(bin.label, "not found; password records fall back to an interactive prompt")
		case bin.warnOnly:
			warn(bin.label, bin.name+" not found")
		default:
			flunk(bin.label, bin.name+" not found in PATH")
		}
	}

	if p, cfgErr := manager.DefaultSSHConfigPath(); cfgErr == nil {
		if _, statErr := os.Stat(p); statErr == nil {
			pass("ssh config", p)
		} else {
			warn("ssh config", p+" not present (import-ssh-config would find nothing)")
		}
	}

	if failed {
		exitWith(1)
	}
	return nil
}

// authFromFlags derives the auth variant from the mutually exclusive auth
// flags. Passwords never travel through argv: they come from a terminal
// prompt or a named environment variable.
func authFromFlags(keyFile string, pwPrompt bool, pwEnv string) (manager.Auth, error) {
	keyFile = strings.TrimSpace(keyFile)
	pwEnv = strings.TrimSpace(pwEnv)

	set := 0
	if keyFile != "" {
		set++
	}
	if pwPrompt {
		set++
	}
	if pwEnv != "" {
		set++
	}
	if set == 0 {
		return manager.Auth{}, errors.New("pick an auth method: -key, -password-prompt or -password-env")
	}
	if set > 1 {
		return manager.Auth{}, errors.New("-key, -password-prompt and -password-env are mutually exclusive")
	}

	switch {
	case keyFile != "":
		return manager.KeyFileAuth(keyFile), nil
	case pwPrompt:
		secret, err := readSecretFromTTY("password")
		if err != nil {
			return manager.Auth{}, err
		}
		return manager.PasswordAuth(secret), nil
	default:
		v := os.Getenv(pwEnv)
		if v == "" {
			return manager.Auth{}, fmt.Errorf("environment variable %s is empty or unset", pwEnv)
		}
		return manager.PasswordAuth(manager.SecretFromString(v)), nil
	}
}

// recordLine renders one record the way list, search, recent and fav print
// it.
func recordLine(env *cmdEnv, rec manager.ConnectionRecord) string {
	parts := []string{env.theme.AccentText(rec.PathKey()), destLabel(rec)}
	parts = append(parts, env.theme.DimText("("+string(rec.Auth.Method)+")"))
	if len(rec.Tags) > 0 {
		parts = append(parts, env.theme.DimText("tags:"+strings.Join(rec.Tags, ",")))
	}
	return env.theme.FavoriteStar(env.store.IsFavorite(rec)) + " " + strings.Join(parts, "  ")
}

func destLabel(rec manager.ConnectionRecord) string {
	d := rec.Destination()
	if p := rec.EffectivePort(); p != 22 {
		d = fmt.Sprintf("%s:%d", d, p)
	}
	return d
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func hasTag(rec manager.ConnectionRecord, tag string) bool {
	for _, t := range rec.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// underGroup reports whether the record sits at groupPath or anywhere below
// it.
func underGroup(rec manager.ConnectionRecord, groupPath string) bool {
	p := manager.JoinGroupPath(rec.GroupPath)
	return p == groupPath || strings.HasPrefix(p, groupPath+"/")
}

var shellPlainRe = regexp.MustCompile(`^[\w@%+=:,./-]+$`)

// shellQuoteArg renders one argv element as a single sh word.
func shellQuoteArg(a string) string {
	if a == "" {
		return "''"
	}
	if shellPlainRe.MatchString(a) {
		return a
	}
	return "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
}

// shellQuoteCmd renders an argv as a copy-pasteable sh command line.
func shellQuoteCmd(argv []string) string {
	quoted := make([]string, 0, len(argv))
	for _, a := range argv {
		quoted = append(quoted, shellQuoteArg(a))
	}
	return strings.Join(quoted, " ")
}

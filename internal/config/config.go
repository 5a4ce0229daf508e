// Package config resolves retags settings from the command line, the user
// config file and built-in defaults, in that order of precedence.
//
// The config file is TOML, read from ~/.config/retag.toml:
//
//	tagfile   = "TAGS"             # tag file path, relative to the project
//	cmd       = "ctags"            # tagger executable
//	exclude   = ["**/vendor/**"]   # extra ignore globs
//	gitignore = true               # also honor the project .gitignore
//	log_file  = "~/.cache/retags.log"
//
// Empty strings are treated as unset.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// DefaultTagFile is the tag file name used when none is configured.
	DefaultTagFile = "tags"

	// DefaultTagCommand is the tagger used when none is configured.
	DefaultTagCommand = "ctags"

	// DefaultConfigName is the config file name under ~/.config.
	DefaultConfigName = "retag.toml"
)

// Config keys, shared by the TOML file, viper and the CLI flags.
const (
	KeyTagFile   = "tagfile"
	KeyCommand   = "cmd"
	KeyExclude   = "exclude"
	KeyGitignore = "gitignore"
	KeyLogFile   = "log_file"
)

// ErrProjectRoot is returned when the project directory cannot be resolved.
var ErrProjectRoot = errors.New("cannot resolve project root")

// Settings is the resolved, immutable configuration of one session.
type Settings struct {
	// ProjectRoot is the absolute, symlink-free directory being watched.
	ProjectRoot string
	// TagFile is the absolute tag file path. Its directory part is
	// symlink-free so it compares byte-equal with canonical event paths.
	TagFile string
	// TagCommand is the tagger executable.
	TagCommand string
	// Excludes are ignore globs on top of the version-control defaults.
	Excludes []string
	// UseGitignore makes the project .gitignore part of the ignore rules.
	UseGitignore bool
	// LogFile, when set, receives a copy of the log output.
	LogFile string
}

// LoadOptions are the inputs to Load.
type LoadOptions struct {
	// ProjectRoot is the directory to watch, usually the working directory.
	ProjectRoot string
	// ConfigPath overrides the config file location. Empty means DefaultPath().
	ConfigPath string
	// TagFileArg is the positional TAGFILE argument, empty when absent.
	TagFileArg string
	// Flags are the parsed command line flags. The "tag-cmd" flag, when
	// present and set, overrides the config file.
	Flags *pflag.FlagSet
	// Warn receives messages about unreadable or invalid config. Nil discards.
	Warn io.Writer
}

// DefaultPath returns ~/.config/retag.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", DefaultConfigName), nil
}

// Load resolves Settings from opts.
func Load(opts LoadOptions) (Settings, error) {
	warn := opts.Warn
	if warn == nil {
		warn = io.Discard
	}

	v := newViper()

	path := opts.ConfigPath
	if path == "" {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		values, err := ReadFile(path, warn)
		if err != nil {
			fmt.Fprintf(warn, "Could not read %s, cause: %v\n", path, err)
		} else if err := v.MergeConfigMap(values); err != nil {
			return Settings{}, fmt.Errorf("failed to merge config %s: %w", path, err)
		}
	}

	if opts.Flags != nil {
		// An explicit empty --tag-cmd= counts as absent.
		if f := opts.Flags.Lookup("tag-cmd"); f != nil && f.Changed && f.Value.String() != "" {
			if err := v.BindPFlag(KeyCommand, f); err != nil {
				return Settings{}, fmt.Errorf("failed to bind flag: %w", err)
			}
		}
	}
	if opts.TagFileArg != "" {
		v.Set(KeyTagFile, opts.TagFileArg)
	}

	return resolve(v, opts.ProjectRoot)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyTagFile, DefaultTagFile)
	v.SetDefault(KeyCommand, DefaultTagCommand)
	v.SetDefault(KeyExclude, []string{})
	v.SetDefault(KeyGitignore, false)
	v.SetDefault(KeyLogFile, "")
	return v
}

// ReadFile decodes the config file at path and returns the settings it
// holds that have the right type and are non-empty. Values of the wrong
// type are reported on warn and dropped. A missing file yields no values
// and no error.
func ReadFile(path string, warn io.Writer) (map[string]any, error) {
	if warn == nil {
		warn = io.Discard
	}

	raw := make(map[string]any)
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	values := make(map[string]any)
	invalid := func(key string) {
		fmt.Fprintf(warn, "Invalid setting for option: %s\n", key)
	}

	for _, key := range []string{KeyTagFile, KeyCommand, KeyLogFile} {
		val, ok := raw[key]
		if !ok {
			continue
		}
		s, ok := val.(string)
		if !ok {
			invalid(key)
			continue
		}
		if s != "" {
			values[key] = s
		}
	}

	if val, ok := raw[KeyExclude]; ok {
		if patterns, ok := stringSlice(val); ok {
			values[KeyExclude] = patterns
		} else {
			invalid(KeyExclude)
		}
	}

	if val, ok := raw[KeyGitignore]; ok {
		if b, ok := val.(bool); ok {
			values[KeyGitignore] = b
		} else {
			invalid(KeyGitignore)
		}
	}

	return values, nil
}

func stringSlice(val any) ([]string, bool) {
	items, ok := val.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out, true
}

func resolve(v *viper.Viper, projectRoot string) (Settings, error) {
	root, err := CanonicalRoot(projectRoot)
	if err != nil {
		return Settings{}, err
	}

	tagFile := v.GetString(KeyTagFile)
	if tagFile == "" {
		tagFile = DefaultTagFile
	}
	command := v.GetString(KeyCommand)
	if command == "" {
		command = DefaultTagCommand
	}

	return Settings{
		ProjectRoot:  root,
		TagFile:      ResolveTagFile(root, tagFile),
		TagCommand:   command,
		Excludes:     v.GetStringSlice(KeyExclude),
		UseGitignore: v.GetBool(KeyGitignore),
		LogFile:      expandHome(v.GetString(KeyLogFile)),
	}, nil
}

// CanonicalRoot returns dir as an absolute, symlink-free directory path.
func CanonicalRoot(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%w: empty path", ErrProjectRoot)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProjectRoot, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProjectRoot, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProjectRoot, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrProjectRoot, resolved)
	}
	return resolved, nil
}

// ResolveTagFile makes tagFile absolute relative to root. An absolute path
// makes ctags record absolute source paths, which stale-entry removal
// relies on. An existing tag file is resolved through symlinks, so a
// symlinked tag file resolves to its target; otherwise only the directory
// is, since the file itself may not exist yet.
func ResolveTagFile(root, tagFile string) string {
	tagFile = expandHome(tagFile)
	if !filepath.IsAbs(tagFile) {
		tagFile = filepath.Join(root, tagFile)
	}
	tagFile = filepath.Clean(tagFile)

	if resolved, err := filepath.EvalSymlinks(tagFile); err == nil {
		return resolved
	}

	dir, base := filepath.Split(tagFile)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(resolved, base)
	}
	return tagFile
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

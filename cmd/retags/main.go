// Command retags keeps a ctags-style tag file up to date while you edit.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "retags [TAGFILE]",
	Short: "Keep a tag file in sync with the current directory",
	Long: `Watch the current directory and keep a ctags-style tag file up to date.

On startup the tag file is built from scratch if it does not exist, or
brought up to date with every file modified since it was last written.
After that, each burst of edits is merged in by re-tagging only the files
that changed.

TAGFILE defaults to "tags" in the current directory. Settings can also be
read from ~/.config/retag.toml:

  tagfile   = "tags"              # tag file path
  cmd       = "ctags"             # tagger executable
  exclude   = ["**/vendor/**"]    # extra ignore globs
  gitignore = true                # also ignore what .gitignore ignores
  log_file  = "~/.cache/retags.log"

Command line arguments take precedence over the config file.`,
	Args:    cobra.MaximumNArgs(1),
	Version: Version,
	Run:     runRetags,
}

func init() {
	rootCmd.Flags().String("tag-cmd", "", "Tagger executable (default \"ctags\")")
	rootCmd.Flags().String("config", "", "Config file (default ~/.config/retag.toml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

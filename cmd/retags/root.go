package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/retags/retags/internal/config"
	"github.com/retags/retags/internal/daemon"
	"github.com/retags/retags/internal/ui"
)

func runRetags(cmd *cobra.Command, args []string) {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Could not determine current directory: %v\n", err)
		os.Exit(1)
	}

	configPath, _ := cmd.Flags().GetString("config")
	var tagFileArg string
	if len(args) == 1 {
		tagFileArg = args[0]
	}

	settings, err := config.Load(config.LoadOptions{
		ProjectRoot: cwd,
		ConfigPath:  configPath,
		TagFileArg:  tagFileArg,
		Flags:       cmd.Flags(),
		Warn:        os.Stderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := newLogger(settings.LogFile)
	defer logCloser.Close()

	session, err := daemon.NewSession(settings, nil, &daemon.Config{
		Debounce: daemon.DefaultDebounce,
		Logger:   logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating session: %v\n", err)
		os.Exit(1)
	}

	printBanner(settings)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Run(ctx); err != nil {
		switch {
		case ctx.Err() != nil:
			// Interrupted during startup; nothing is wrong with the setup.
			logger.Printf("Stopped during startup: %v", err)
		case daemon.IsFatal(err):
			session.Close()
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
			os.Exit(1)
		default:
			logger.Printf("Session ended: %v", err)
		}
	}

	if err := session.Close(); err != nil {
		logger.Printf("Cleanup failed: %v", err)
	}
	fmt.Printf("%s Stopped\n", ui.RenderPass("✓"))
}

func printBanner(settings config.Settings) {
	fmt.Printf("%s Watching %s\n", ui.RenderAccent("●"), settings.ProjectRoot)
	fmt.Printf("   Tag file: %s\n", settings.TagFile)
	fmt.Printf("   Tagger:   %s\n", settings.TagCommand)
	if len(settings.Excludes) > 0 {
		fmt.Printf("   Excludes: %v\n", settings.Excludes)
	}
	if settings.UseGitignore {
		fmt.Printf("   %s\n", ui.RenderMuted("Honoring .gitignore"))
	}
	if settings.LogFile != "" {
		fmt.Printf("   Log file: %s\n", settings.LogFile)
	}
	fmt.Printf("\n%s\n\n", ui.RenderMuted("Press Ctrl+C to stop"))
}

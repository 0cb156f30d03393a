// Command outfit is a thin, runnable harness over the install
// planner/executor core: enough of a CLI to drive resolve/execute/resume/
// cancel/list-pending by hand while exercising the library. It is not a
// finished package-manager CLI — recipe authoring, UI, and transport are
// out of scope (see SPEC_FULL.md's non-goals).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/outfit-dev/outfit/internal/config"
	"github.com/outfit-dev/outfit/internal/log"
)

var (
	quietFlag   bool
	verboseFlag bool
	debugFlag   bool
	profileFlag string
	recipesFlag string
)

var globalCtx context.Context
var globalCancel context.CancelFunc

var rootCmd = &cobra.Command{
	Use:   "outfit",
	Short: "Manual verification harness for the install planner/executor core",
	Long: `outfit drives the resolve/execute/resume/cancel/list-pending
operations of the install planner/executor library by hand. It expects a
pre-built system profile (see --profile) rather than probing the host
itself, and a directory of recipes (see --recipes) rather than shipping
any of its own.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Show errors only")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show verbose output (INFO level)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Show debug output")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "Path to a system profile JSON file (required)")
	rootCmd.PersistentFlags().StringVar(&recipesFlag, "recipes", "", "Directory of recipe TOML files (required)")

	rootCmd.PersistentPreRun = initLogger

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(listPendingCmd)
	rootCmd.AddCommand(rollbackCmd)
}

func main() {
	globalCtx, globalCancel = context.WithCancel(context.Background())
	defer globalCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nreceived %s, cancelling...\n", sig)
		globalCancel()
		<-sigChan
		fmt.Fprintln(os.Stderr, "forced exit")
		exitWithCode(ExitCancelled)
	}()

	if err := rootCmd.Execute(); err != nil {
		if globalCtx.Err() == context.Canceled {
			exitWithCode(ExitCancelled)
		}
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(ExitGeneral)
	}
}

func initLogger(cmd *cobra.Command, args []string) {
	level := determineLogLevel()
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	log.SetDefault(log.New(handler))
}

func determineLogLevel() slog.Level {
	if debugFlag {
		return slog.LevelDebug
	}
	if verboseFlag {
		return slog.LevelInfo
	}
	if quietFlag {
		return slog.LevelError
	}
	if isTruthy(os.Getenv("OUTFIT_DEBUG")) {
		return slog.LevelDebug
	}
	if isTruthy(os.Getenv("OUTFIT_VERBOSE")) {
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func loadConfig() *config.Config {
	cfg, err := config.DefaultConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		exitWithCode(ExitGeneral)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "error: prepare state directories: %v\n", err)
		exitWithCode(ExitGeneral)
	}
	return cfg
}

func requireFlags() {
	if profileFlag == "" || recipesFlag == "" {
		fmt.Fprintln(os.Stderr, "error: --profile and --recipes are required")
		exitWithCode(ExitUsage)
	}
}

// Command queryguard inspects search strings, edits search-string files
// through a guard, and serves guards to browsers over WebSocket.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/queryguard/internal/config"
	qerrors "github.com/vango-dev/queryguard/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌─┐ ┬ ┬┌─┐┬─┐┬ ┬┌─┐┬ ┬┌─┐┬─┐┌┬┐
  │─┼┐│ │├┤ ├┬┘└┬┘│ ┬│ │├─┤├┬┘ ││
  └─┘└└─┘└─┘┴└─ ┴ └─┘└─┘┴ ┴┴└──┴┘
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		qerrors.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "queryguard",
		Short: "Typed, validated URL query state",
		Long: `queryguard keeps typed state in a URL search string.

It decodes and encodes search strings, edits search strings stored in
files through a guard, and serves per-tab guards to browsers over
WebSocket with shareable permalinks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("log-level", "warn", "Log level for file commands: debug, info, warn or error")

	rootCmd.AddCommand(
		decodeCmd(),
		encodeCmd(),
		normalizeCmd(),
		setCmd(),
		watchCmd(),
		serveCmd(),
		versionCmd(),
	)
	return rootCmd
}

// cliLogger returns a stderr logger at the level given by --log-level.
func cliLogger(cmd *cobra.Command) *slog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	return newLogger(cmd.ErrOrStderr(), config.LogConfig{Level: level, Format: "text"})
}

// printBanner prints the ASCII art banner.
func printBanner(w io.Writer) {
	fmt.Fprint(w, banner)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}

// usageError is a CLI argument error.
func usageError(detail string) *qerrors.Error {
	return qerrors.New("Q160").WithDetail(detail)
}

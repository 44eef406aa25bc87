package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	oglog "github.com/nao1215/oniongen/internal/log"
)

// NewRootCmd creates the root command for oniongen.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oniongen",
		Short: "Vanity address generator for Tor v3 onion services",
		Long: `oniongen generates Tor v3 onion service keys until the address matches
a regular expression, and writes each match as a hidden service directory
(hostname, hs_ed25519_secret_key, hs_ed25519_public_key) ready for torrc.

Sessions and matches are recorded in a local SQLite ledger so they can be
listed later. The probe command checks through Tor whether an address is
already published before you deploy it.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewGenerateCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewProbeCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the diagnostic logger on the command's stderr.
// Key material in attributes is redacted before it is written.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	logger := oglog.NewSecureLogger(cmd.ErrOrStderr(), getVerboseFlag(cmd))
	slog.SetDefault(logger)
	return logger
}

// Package cli implements the mvrp command.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sufield/mvrp/internal/adapters/logging"
	"github.com/sufield/mvrp/internal/config"
)

// NewRootCommand builds the mvrp command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mvrp",
		Short: "Serve and send MVRP requests over mutual TLS",
		Long: `Serve and send MVRP requests over mutual TLS.

MVRP is a single-exchange request/response protocol. Each connection carries
one request such as "READ /widgets/7 MVRP/1.0" and one response.

Settings come from flags, MVRP_* environment variables and an optional
YAML or TOML file given with --config, in that order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML or TOML configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", logging.FormatText, "Log format (text, json)")
	_ = rootCmd.MarkPersistentFlagFilename("config", "yaml", "yml", "toml")
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	})

	rootCmd.AddCommand(newServeCmd(), newRequestCmd(), newVersionCmd(), newManCmd())
	return rootCmd
}

// Execute runs the mvrp command with args and reports failures on stderr.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		if ExitCode(err) == ExitRuntime && !isClassified(err) {
			// cobra's own argument and command errors
			err = fmt.Errorf("%w: %w", ErrUsage, err)
		}
		fmt.Fprintf(stderr, "Error: %s\n", RedactError(err))
	}
	return err
}

// loaderFor reads --config and binds the command's flags.
func loaderFor(cmd *cobra.Command) (*config.Loader, error) {
	loader := config.NewLoader()
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if err := loader.ReadFile(path); err != nil {
		return nil, classify(err)
	}
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return nil, classify(err)
	}
	return loader, nil
}

func newLogger(cmd *cobra.Command, cfg logging.Config) (*slog.Logger, error) {
	cfg.Output = cmd.ErrOrStderr()
	logger, err := logging.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return logger, nil
}

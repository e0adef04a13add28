package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sufield/mvrp/internal/buildinfo"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display version and build information for the mvrp binary.",
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
	cmd.Flags().StringP("format", "f", "text", "Output format (text, json, yaml)")
	_ = cmd.RegisterFlagCompletionFunc("format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func runVersion(cmd *cobra.Command, _ []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("%w: failed to get format flag: %v", ErrUsage, err)
	}

	info := buildinfo.Get()
	out := cmd.OutOrStdout()

	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(info); err != nil {
			return fmt.Errorf("%w: failed to encode version info as JSON: %v", ErrInternal, err)
		}
	case "yaml":
		encoder := yaml.NewEncoder(out)
		defer encoder.Close()
		if err := encoder.Encode(info); err != nil {
			return fmt.Errorf("%w: failed to encode version info as YAML: %v", ErrInternal, err)
		}
	case "text":
		fmt.Fprintf(out, "Version: %s\n", info.Version)
		fmt.Fprintf(out, "Commit: %s\n", info.CommitHash)
		fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
		fmt.Fprintf(out, "Go Version: %s\n", info.GoVersion)
		fmt.Fprintf(out, "Platform: %s\n", info.Platform)
	default:
		return fmt.Errorf("%w: unsupported format %q, use 'text', 'json' or 'yaml'", ErrUsage, format)
	}

	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/sufield/mvrp/internal/buildinfo"
)

// newManCmd generates manual pages. Shell completion is built into cobra.
func newManCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "man [directory]",
		Short: "Generate manual pages",
		Long: `Generate manual pages for the mvrp command.

If no directory is specified, manual pages are written to the current directory.

Example:
  mvrp man /usr/local/share/man/man1`,
		Args: cobra.MaximumNArgs(1),
		RunE: runMan,
	}
}

func runMan(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	header := &doc.GenManHeader{
		Title:   "MVRP",
		Section: "1",
		Source:  "mvrp " + buildinfo.Get().Version,
		Manual:  "MVRP Manual",
	}

	if err := doc.GenManTree(cmd.Root(), header, dir); err != nil {
		return fmt.Errorf("%w: failed to generate manual pages: %v", ErrRuntime, err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Manual pages generated in directory: %s\n", dir)
	return nil
}

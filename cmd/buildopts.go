package cmd

import (
	"fmt"
	"os"

	"github.com/ajxudir/asttest/pkg/buildoptions"
	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/ajxudir/asttest/pkg/errors"
	"github.com/ajxudir/asttest/pkg/output"
	"github.com/spf13/cobra"
)

var buildOptsCmd = &cobra.Command{
	Use:   "buildopts [option...]",
	Short: "Show the build options of the Asterisk under test",
	Long: `Show the compile-time options read from buildopts.h, in header order.
With arguments, only the named options are shown; absent options are
reported as not set.`,
	RunE: runBuildOpts,
}

// runBuildOpts prints the options found in buildopts.h.
//
// Returns:
//   - error: ExitError with ExitSetupError when no buildopts.h can be read
func runBuildOpts(cmd *cobra.Command, args []string) error {
	opts, err := buildoptions.NewCache(buildOptsFlag).Options()
	if err != nil {
		return errors.NewExitError(errors.ExitSetupError, err)
	}

	names := args
	if len(names) == 0 {
		names = opts.Names()
	}
	fmt.Printf("Build options from %s:\n\n", opts.Path())

	table := output.NewTable().AddColumn("OPTION").AddColumn("VALUE")
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		value, ok := opts.Get(name)
		if !ok {
			value = constants.IconCross + " not set"
		}
		table.UpdateWidths(name, value)
		rows = append(rows, []string{name, value})
	}
	table.Fprint(os.Stdout)
	for _, row := range rows {
		fmt.Println(table.FormatRow(row...))
	}
	return nil
}

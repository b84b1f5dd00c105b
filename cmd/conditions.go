package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/ajxudir/asttest/pkg/buildoptions"
	"github.com/ajxudir/asttest/pkg/condition"
	"github.com/ajxudir/asttest/pkg/config"
	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/ajxudir/asttest/pkg/output"
	"github.com/spf13/cobra"
)

var conditionsCmd = &cobra.Command{
	Use:   "conditions",
	Short: "List the registered test conditions and their definitions",
	Long: `List every registered condition typename with the build options it
needs, then the condition definitions of the suite configuration and the
global conditions of the selected test configuration.`,
	RunE: runConditions,
}

// runConditions prints the registry, the definitions and the global
// conditions.
func runConditions(cmd *cobra.Command, args []string) error {
	reg := newRegistryFunc()
	cfg, err := loadSuiteConfig(reg)
	if err != nil {
		return err
	}
	opts, optsErr := buildoptions.NewCache(buildOptsFlag).Options()

	fmt.Println("Registered conditions:")
	printTypenames(reg, opts, optsErr == nil)
	fmt.Println()

	fmt.Println("Condition definitions:")
	printDefinitions(cfg.Settings.ConditionDefinitions)
	fmt.Println()

	block := cfg.Settings.TestConfiguration
	conds := cfg.GlobalConditions()
	fmt.Printf("Global conditions [%s]: %d\n", orNA(block), len(conds))
	for _, c := range conds {
		state := constants.IconCheckmark
		if !c.Enabled {
			state = constants.IconCross
		}
		fmt.Printf("  %s %s %s (%s)\n", state, c.Role, c.Typename, c.Name)
	}
	return nil
}

// printTypenames lists the registry with the build options each check
// needs. When buildopts.h was found, unmet options are flagged.
func printTypenames(reg *condition.Registry, opts *buildoptions.Options, haveOpts bool) {
	table := output.NewTable().
		AddColumn("TYPENAME").
		AddColumn("ROLE").
		AddColumn("BUILD OPTIONS")
	var rows [][]string
	for _, name := range reg.Typenames() {
		role := constants.RolePost
		if strings.HasSuffix(name, ".pre") {
			role = constants.RolePre
		}
		cond, err := reg.Create(condition.Config{Name: name, Typename: name, Role: role, Enabled: true, PassExpected: true})
		if err != nil {
			continue
		}
		var needs []string
		for _, bo := range cond.BuildOptions() {
			entry := bo.Name + "=" + bo.Expected
			if haveOpts && !opts.Check(bo.Name, bo.Expected) {
				entry += " " + constants.IconCross
			}
			needs = append(needs, entry)
		}
		row := []string{name, role, strings.Join(needs, ", ")}
		table.UpdateWidths(row...)
		rows = append(rows, row)
	}
	table.Fprint(os.Stdout)
	for _, row := range rows {
		fmt.Println(table.FormatRow(row...))
	}
}

func printDefinitions(defs []config.ConditionDefinition) {
	if len(defs) == 0 {
		fmt.Println("  (none)")
		return
	}
	table := output.NewTable().
		AddColumn("NAME").
		AddColumn("PRE").
		AddColumn("POST").
		AddColumn("RELATED")
	rows := make([][]string, 0, len(defs))
	for _, d := range defs {
		row := []string{d.Name, "", "", ""}
		if d.Pre != nil {
			row[1] = d.Pre.Typename
		}
		if d.Post != nil {
			row[2] = d.Post.Typename
			row[3] = d.Post.RelatedType
		}
		table.UpdateWidths(row...)
		rows = append(rows, row)
	}
	table.Fprint(os.Stdout)
	for _, row := range rows {
		fmt.Println(table.FormatRow(row...))
	}
}

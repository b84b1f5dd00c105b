package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajxudir/asttest/pkg/config"
	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/ajxudir/asttest/pkg/errors"
	"github.com/ajxudir/asttest/pkg/output"
	"github.com/ajxudir/asttest/pkg/verbose"
	"github.com/spf13/cobra"
)

var (
	configShowDefaultsFlag  bool
	configShowEffectiveFlag bool
	configInitFlag          bool
	configValidateFlag      bool
)

var writeFileFunc = os.WriteFile

// configTemplate is written by "config --init".
const configTemplate = `# Suite configuration. See "asttest config --show-defaults" for every
# condition definition inherited from the built-in defaults.
extends: [default]

global-settings:
  test-configuration: config-pessimistic
`

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show, validate or create the suite configuration",
	Long:  `Show, validate or create the suite-wide test-config.yaml.`,
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowDefaultsFlag, "show-defaults", false, "Show the built-in configuration")
	configCmd.Flags().BoolVar(&configShowEffectiveFlag, "show-effective", false, "Show the effective configuration after extends")
	configCmd.Flags().BoolVar(&configInitFlag, "init", false, "Create a test-config.yaml template in the suite root")
	configCmd.Flags().BoolVar(&configValidateFlag, "validate", false, "Validate the suite configuration")
}

// runConfig executes the config command with the specified flags.
//
// Behavior depends on flags:
//   - --init: Creates a test-config.yaml template in the suite root
//   - --validate: Validates the suite configuration against the registry
//   - --show-defaults: Displays the built-in configuration
//   - --show-effective: Displays the configuration after extends
//
// Returns:
//   - error: ExitError with ExitConfigError on validation failure
func runConfig(cmd *cobra.Command, args []string) error {
	switch {
	case configInitFlag:
		return createConfigTemplate()
	case configValidateFlag:
		return validateSuiteConfig()
	case configShowDefaultsFlag:
		fmt.Println("Default configuration:")
		fmt.Println()
		fmt.Println(config.GetDefaultConfig())
		return nil
	case configShowEffectiveFlag:
		cfg, err := loadGlobalFunc(configFlag, suiteRootFlag)
		if err != nil {
			return errors.NewExitError(errors.ExitConfigError, err)
		}
		printEffectiveConfig(cfg)
		return nil
	}
	return cmd.Help()
}

// printEffectiveConfig prints the selected block, its conditions and the
// instances tests will use.
func printEffectiveConfig(cfg *config.GlobalConfig) {
	source := cfg.Path()
	if source == "" {
		source = "built-in defaults"
	}
	fmt.Println("Effective configuration:")
	fmt.Println()
	fmt.Printf("Source: %s\n", source)
	fmt.Printf("Test configuration: %s\n", orNA(cfg.Settings.TestConfiguration))
	if cfg.Settings.ForcedVersion != "" {
		fmt.Printf("Forced version: %s\n", cfg.Settings.ForcedVersion)
	}
	if len(cfg.Tests) > 0 {
		fmt.Printf("Tests: %d listed\n", len(cfg.Tests))
	}
	if excluded := cfg.ExcludedTests(); len(excluded) > 0 {
		fmt.Printf("Excluded: %s\n", strings.Join(excluded, ", "))
	}
	fmt.Println()

	conds := cfg.GlobalConditions()
	if len(conds) == 0 {
		fmt.Println("No global test conditions")
	} else {
		table := output.NewTable().
			AddColumn("NAME").
			AddColumn("ROLE").
			AddColumn("TYPENAME").
			AddColumn("RELATED").
			AddColumn("ENABLED")
		for _, c := range conds {
			table.UpdateWidths(c.Name, c.Role, c.Typename, c.Related, fmt.Sprint(c.Enabled))
		}
		table.Fprint(os.Stdout)
		for _, c := range conds {
			fmt.Println(table.FormatRow(c.Name, c.Role, c.Typename, orNA(c.Related), fmt.Sprint(c.Enabled)))
		}
	}
	fmt.Println()

	fmt.Println("Asterisk instances:")
	for _, inst := range cfg.Instances(1) {
		kind := "local"
		if inst.Remote() {
			kind = "remote"
		}
		fmt.Printf("  - %s (%s)\n", inst.Host, kind)
	}
}

// validateSuiteConfig validates the suite configuration and every
// condition typename against the built-in registry.
//
// Returns:
//   - error: ExitError with ExitConfigError when validation fails
func validateSuiteConfig() error {
	cfg, err := loadGlobalFunc(configFlag, suiteRootFlag)
	if err != nil {
		return errors.NewExitError(errors.ExitConfigError, err)
	}
	source := cfg.Path()
	if source == "" {
		source = "built-in defaults"
	}

	result := config.ValidateGlobal(cfg, newRegistryFunc())
	if result.HasErrors() {
		fmt.Printf("%s Configuration validation failed for: %s\n\n", constants.IconError, source)
		for _, e := range result.Errors {
			if verbose.IsEnabled() {
				fmt.Printf("  ERROR: %s\n", e.VerboseError())
			} else {
				fmt.Printf("  ERROR: %s\n", e.Error())
			}
		}
		printConfigWarnings(result.Warnings)
		verbose.Infof("Exit code %d (config error): configuration validation failed for %s", errors.ExitConfigError, source)
		return errors.NewExitError(errors.ExitConfigError, fmt.Errorf("configuration validation failed"))
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("%s Configuration valid with warnings: %s\n", constants.IconWarning, source)
		printConfigWarnings(result.Warnings)
		return nil
	}
	fmt.Printf("%s Configuration valid: %s\n", constants.IconCheckmark, source)
	return nil
}

func printConfigWarnings(ws []string) {
	if len(ws) == 0 {
		return
	}
	fmt.Println()
	for _, w := range ws {
		fmt.Printf("  WARNING: %s\n", w)
	}
}

// createConfigTemplate writes a test-config.yaml template into the suite
// root. It refuses to overwrite an existing file.
func createConfigTemplate() error {
	path := filepath.Join(suiteRootFlag, config.GlobalConfigFile)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := writeFileFunc(path, []byte(configTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Printf("Created configuration template: %s\n", path)
	return nil
}

func orNA(s string) string {
	if s == "" {
		return constants.PlaceholderNA
	}
	return s
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/ajxudir/asttest/pkg/asterisk"
	"github.com/ajxudir/asttest/pkg/checks"
	"github.com/ajxudir/asttest/pkg/condition"
	"github.com/ajxudir/asttest/pkg/config"
	"github.com/ajxudir/asttest/pkg/errors"
	"github.com/ajxudir/asttest/pkg/verbose"
	"github.com/ajxudir/asttest/pkg/warnings"
)

var (
	loadGlobalFunc  = config.LoadGlobal
	newRegistryFunc = checks.NewRegistry
)

// loadSuiteConfig loads the suite configuration and validates it against
// the condition registry.
//
// Warnings are printed and do not stop the command.
//
// Parameters:
//   - reg: Registry used to check condition typenames; nil skips that check
//
// Returns:
//   - *config.GlobalConfig: The merged configuration
//   - error: ExitError with ExitConfigError when loading or validation fails
func loadSuiteConfig(reg *condition.Registry) (*config.GlobalConfig, error) {
	cfg, err := loadGlobalFunc(configFlag, suiteRootFlag)
	if err != nil {
		verbose.Infof("Exit code %d (config error): %v", errors.ExitConfigError, err)
		return nil, errors.NewExitError(errors.ExitConfigError, err)
	}

	var types config.TypenameChecker
	if reg != nil {
		types = reg
	}
	result := config.ValidateGlobal(cfg, types)
	for _, w := range result.Warnings {
		warnings.Warnf("%s\n", w)
	}
	if result.HasErrors() {
		verbose.Infof("Exit code %d (config error): %d validation errors", errors.ExitConfigError, len(result.Errors))
		return nil, errors.NewExitError(errors.ExitConfigError, fmt.Errorf("%s", result.ErrorMessage()))
	}
	return cfg, nil
}

// resolveVersion returns the version of the Asterisk under test.
//
// An explicit version wins, then global-settings.forced-version, then
// "asterisk -V". A zero Version disables version gating.
func resolveVersion(ctx context.Context, explicit string, cfg *config.GlobalConfig) (asterisk.Version, error) {
	if explicit == "" && cfg != nil {
		explicit = cfg.Settings.ForcedVersion
	}
	if explicit != "" {
		v, err := asterisk.ParseVersion(explicit)
		if err != nil {
			return asterisk.Version{}, errors.NewExitErrorf(errors.ExitConfigError, "invalid Asterisk version %q: %v", explicit, err)
		}
		return v, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	v, err := detectVersionFunc(ctx, asteriskFlag)
	if err != nil {
		warnings.Warnf("Could not detect the Asterisk version, version checks are disabled: %v\n", err)
		return asterisk.Version{}, nil
	}
	verbose.Infof("Asterisk under test: %s", v)
	return v, nil
}

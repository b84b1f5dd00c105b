package config

import (
	"fmt"

	"github.com/ajxudir/asttest/pkg/asterisk"
	"github.com/ajxudir/asttest/pkg/errors"
)

// TypenameChecker reports whether a condition typename is registered.
// *condition.Registry satisfies it.
type TypenameChecker interface {
	Has(typename string) bool
}

// ValidateGlobal checks the suite configuration.
//
// It performs the following operations:
//   - Checks that every condition definition has a name and at least one phase
//   - Checks that every typename and related-type is known to the registry
//   - Checks that the selected test configuration block exists
//   - Checks that instance entries carry a host
//
// Parameters:
//   - g: the configuration to check
//   - types: the condition registry; nil skips typename checks
//
// Returns:
//   - *errors.ValidationResult: errors for broken settings, warnings for
//     entries that will be dropped at run time
func ValidateGlobal(g *GlobalConfig, types TypenameChecker) *errors.ValidationResult {
	result := errors.NewValidationResult()
	if g == nil {
		result.AddError(errors.NewConfigValidationError("global-settings", "configuration is empty"))
		return result
	}

	seen := make(map[string]int)
	for i, def := range g.Settings.ConditionDefinitions {
		field := fmt.Sprintf("global-settings.condition-definitions[%d]", i)
		if def.Name == "" {
			result.AddError(errors.NewConfigValidationError(field, "missing name"))
			continue
		}
		seen[def.Name]++
		if seen[def.Name] == 2 {
			result.AddWarning(fmt.Sprintf("condition definition %q is defined more than once; tests using it will drop it", def.Name))
		}
		if (def.Pre == nil || def.Pre.Typename == "") && (def.Post == nil || def.Post.Typename == "") {
			result.AddError(errors.NewConditionError(def.Name, "definition has neither a pre nor a post typename"))
			continue
		}
		if types == nil {
			continue
		}
		for _, phase := range []*ConditionPhase{def.Pre, def.Post} {
			if phase == nil || phase.Typename == "" {
				continue
			}
			if !types.Has(phase.Typename) {
				result.AddError(errors.NewConditionError(def.Name, fmt.Sprintf("unknown typename %q", phase.Typename)))
			}
			if phase.RelatedType != "" && !types.Has(phase.RelatedType) {
				result.AddError(errors.NewConditionError(def.Name, fmt.Sprintf("unknown related-type %q", phase.RelatedType)))
			}
		}
	}

	if name := g.Settings.TestConfiguration; name != "" {
		if _, ok := g.Blocks[name]; !ok {
			result.AddError(&errors.ValidationError{
				Category: errors.ValidationCategoryConfig,
				Field:    "global-settings.test-configuration",
				Message:  fmt.Sprintf("test configuration [%s] not found in config file", name),
				Hint:     "Add a top-level block with that name or change test-configuration",
			})
		}
	}

	instances := g.Settings.AsteriskInstances
	if block, ok := g.Selected(); ok && len(block.AsteriskInstances) > 0 {
		instances = block.AsteriskInstances
	}
	for i, inst := range instances {
		if inst.Host == "" {
			result.AddError(errors.NewConfigValidationError(
				fmt.Sprintf("asterisk-instances[%d]", i), "Cannot manage Asterisk instance without 'host'"))
		}
	}

	if block, ok := g.Selected(); ok {
		validateConditionEntries(result, "properties.testconditions", block.Properties.TestConditions, g.Settings.ConditionDefinitions)
	}
	return result
}

// ValidateTest checks a per-test configuration.
//
// Parameters:
//   - t: the test configuration to check
//
// Returns:
//   - *errors.ValidationResult: errors make the test unable to run
func ValidateTest(t *TestConfig) *errors.ValidationResult {
	result := errors.NewValidationResult()

	for _, bound := range []struct{ field, value string }{
		{"properties.minversion", t.Properties.MinVersion},
		{"properties.maxversion", t.Properties.MaxVersion},
		{"properties.forced-version", t.Properties.ForcedVersion},
	} {
		if bound.value == "" {
			continue
		}
		if _, err := asterisk.ParseVersion(bound.value); err != nil {
			result.AddError(&errors.ValidationError{
				Category: errors.ValidationCategoryConfig,
				Field:    bound.field,
				Message:  err.Error(),
				Expected: "a version such as 13.1.0, 1.8.32.1 or SVN-branch-11-r1234",
			})
		}
	}
	if t.Properties.MinVersion != "" && t.Properties.MaxVersion != "" {
		minV, errMin := asterisk.ParseVersion(t.Properties.MinVersion)
		maxV, errMax := asterisk.ParseVersion(t.Properties.MaxVersion)
		if errMin == nil && errMax == nil && minV.Compare(maxV) > 0 {
			result.AddError(errors.NewConfigValidationError("properties.maxversion",
				fmt.Sprintf("maxversion %s is lower than minversion %s", t.Properties.MaxVersion, t.Properties.MinVersion)))
		}
	}

	for i, dep := range t.Properties.Dependencies {
		if dep.Name == "" {
			result.AddError(errors.NewConfigValidationError(fmt.Sprintf("properties.dependencies[%d]", i), "missing dependency name"))
		}
	}

	var defs []ConditionDefinition
	if t.Global != nil {
		defs = t.Global.Settings.ConditionDefinitions
	}
	validateConditionEntries(result, "properties.testconditions", t.Properties.TestConditions, defs)

	if obj := t.TestObject; obj != nil {
		switch obj.Type {
		case "", ScenarioCLIScript, ScenarioRunTest:
		default:
			result.AddError(&errors.ValidationError{
				Category: errors.ValidationCategoryConfig,
				Field:    "test-object.type",
				Message:  fmt.Sprintf("unknown scenario type %q", obj.Type),
				Expected: ScenarioCLIScript + " or " + ScenarioRunTest,
			})
		}
		if obj.ReactorTimeout < 0 {
			result.AddError(errors.NewConfigValidationError("test-object.reactor-timeout", "must not be negative"))
		}
		for i, step := range obj.Steps {
			field := fmt.Sprintf("test-object.steps[%d]", i)
			if step.Command == "" {
				result.AddError(errors.NewConfigValidationError(field, "missing command"))
			}
			if step.Delay < 0 {
				result.AddError(errors.NewConfigValidationError(field, "delay must not be negative"))
			}
			if step.Instance < 0 || step.Instance > obj.InstanceCount() {
				result.AddError(errors.NewConfigValidationError(field,
					fmt.Sprintf("instance %d out of range 1..%d", step.Instance, obj.InstanceCount())))
			}
		}
	}
	return result
}

// validateConditionEntries adds a warning for every entry that will not
// resolve to exactly one definition.
func validateConditionEntries(result *errors.ValidationResult, field string, entries []TestConditionEntry, defs []ConditionDefinition) {
	for i, entry := range entries {
		if entry.Name == "" {
			result.AddError(errors.NewConfigValidationError(fmt.Sprintf("%s[%d]", field, i), "missing name"))
			continue
		}
		n := 0
		for _, def := range defs {
			if def.Name == entry.Name {
				n++
			}
		}
		if n != 1 {
			result.AddWarning(fmt.Sprintf("Unknown or too many matches for condition: %s", entry.Name))
		}
	}
}

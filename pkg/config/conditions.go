package config

import (
	"github.com/ajxudir/asttest/pkg/condition"
	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/ajxudir/asttest/pkg/warnings"
)

// ResolveConditions turns test condition entries into condition configs.
//
// Each entry name must match exactly one definition. An entry with zero or
// several matches is reported and dropped. A matching definition yields a
// pre config, a post config, or both, in that order.
//
// Parameters:
//   - entries: properties.testconditions of a test or global block
//   - defs: global-settings.condition-definitions
//
// Returns:
//   - []condition.Config: one config per defined phase of every resolved entry
func ResolveConditions(entries []TestConditionEntry, defs []ConditionDefinition) []condition.Config {
	var out []condition.Config
	for _, entry := range entries {
		var matches []ConditionDefinition
		for _, def := range defs {
			if def.Name == entry.Name {
				matches = append(matches, def)
			}
		}
		if len(matches) != 1 {
			warnings.Oncef("condition:"+entry.Name, "Unknown or too many matches for condition: %s\n", entry.Name)
			continue
		}

		def := matches[0]
		if def.Pre != nil && def.Pre.Typename != "" {
			out = append(out, conditionConfig(entry, def.Name, constants.RolePre, def.Pre))
		}
		if def.Post != nil && def.Post.Typename != "" {
			out = append(out, conditionConfig(entry, def.Name, constants.RolePost, def.Post))
		}
	}
	return out
}

func conditionConfig(entry TestConditionEntry, name, role string, phase *ConditionPhase) condition.Config {
	var opts map[string]any
	if len(entry.Options) > 0 {
		opts = make(map[string]any, len(entry.Options))
		for k, v := range entry.Options {
			opts[k] = v
		}
	}
	return condition.Config{
		Name:         name,
		Typename:     phase.Typename,
		Role:         role,
		Related:      phase.RelatedType,
		Enabled:      entry.IsEnabled(),
		PassExpected: entry.Expected.PassExpected(),
		Options:      opts,
	}
}

// GlobalConditions returns the conditions of the selected global test
// configuration block.
func (g *GlobalConfig) GlobalConditions() []condition.Config {
	if g == nil {
		return nil
	}
	block, ok := g.Selected()
	if !ok {
		return nil
	}
	return ResolveConditions(block.Properties.TestConditions, g.Settings.ConditionDefinitions)
}

// Conditions returns every condition config that applies to the test.
//
// The test's own conditions come first. A global condition is appended only
// when the test does not configure the same typename in the same role, so a
// test can override or disable any global condition.
func (t *TestConfig) Conditions() []condition.Config {
	var defs []ConditionDefinition
	if t.Global != nil {
		defs = t.Global.Settings.ConditionDefinitions
	}
	conds := ResolveConditions(t.Properties.TestConditions, defs)

	for _, g := range t.Global.GlobalConditions() {
		overridden := false
		for _, c := range conds {
			if c.Typename == g.Typename && c.Role == g.Role {
				overridden = true
				break
			}
		}
		if !overridden {
			conds = append(conds, g)
		}
	}
	return conds
}

package config

import "github.com/ajxudir/asttest/pkg/verbose"

// mergeGlobal merges two global configurations with custom taking precedence.
//
// It performs the following operations:
//   - Scalar settings from custom override base when set
//   - Condition definitions are merged by name; custom replaces a base entry
//   - Test configuration blocks are merged by name; custom replaces a base block
//   - Asterisk instances from custom replace the base list when non-empty
//   - Suite test lists are concatenated without duplicates
//
// Parameters:
//   - base: the base configuration
//   - custom: the configuration that overrides base
//
// Returns:
//   - *GlobalConfig: the merged configuration
func mergeGlobal(base, custom *GlobalConfig) *GlobalConfig {
	if custom == nil {
		return base
	}

	merged := &GlobalConfig{
		Settings: base.Settings,
		Tests:    base.Tests,
		Security: base.Security,
		Blocks:   make(map[string]TestConfiguration, len(base.Blocks)+len(custom.Blocks)),
		path:     custom.path,
	}

	if custom.Settings.TestConfiguration != "" {
		merged.Settings.TestConfiguration = custom.Settings.TestConfiguration
	}
	if custom.Settings.ForcedVersion != "" {
		merged.Settings.ForcedVersion = custom.Settings.ForcedVersion
	}
	if len(custom.Settings.AsteriskInstances) > 0 {
		merged.Settings.AsteriskInstances = custom.Settings.AsteriskInstances
	}
	merged.Settings.ConditionDefinitions = mergeDefinitions(base.Settings.ConditionDefinitions, custom.Settings.ConditionDefinitions)

	for name, block := range base.Blocks {
		merged.Blocks[name] = block
	}
	for name, block := range custom.Blocks {
		if _, exists := merged.Blocks[name]; exists {
			verbose.Printf("Test configuration %q: replaced by extending config", name)
		}
		merged.Blocks[name] = block
	}

	merged.Tests = mergeStringLists(base.Tests, custom.Tests)
	if custom.Security != nil {
		merged.Security = custom.Security
	}
	return merged
}

// mergeDefinitions merges condition definitions by name, keeping the order
// of first appearance.
func mergeDefinitions(base, custom []ConditionDefinition) []ConditionDefinition {
	if len(custom) == 0 {
		return base
	}
	out := append([]ConditionDefinition(nil), base...)
	index := make(map[string]int, len(out))
	for i, def := range out {
		index[def.Name] = i
	}
	for _, def := range custom {
		if i, ok := index[def.Name]; ok {
			out[i] = def
			verbose.Printf("Condition definition %q: overridden", def.Name)
			continue
		}
		index[def.Name] = len(out)
		out = append(out, def)
	}
	return out
}

// mergeStringLists merges two string lists, removing duplicates.
//
// Parameters:
//   - base: the base list
//   - custom: the custom list to merge
//
// Returns:
//   - []string: the merged list without duplicates, preserving order
func mergeStringLists(base, custom []string) []string {
	if len(custom) == 0 {
		return base
	}
	seen := make(map[string]bool, len(base)+len(custom))
	out := make([]string, 0, len(base)+len(custom))
	for _, list := range [][]string{base, custom} {
		for _, v := range list {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

package checks

import (
	"sort"
	"strings"

	"github.com/ajxudir/asttest/pkg/condition"
)

// snapshot is the per-host state captured by a check.
type snapshot[T any] struct {
	data   map[string]T
	noData map[string]bool
}

func newSnapshot[T any]() snapshot[T] {
	return snapshot[T]{data: make(map[string]T), noData: make(map[string]bool)}
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// optionList merges the list option under each key, so both the YAML
// spelling and its legacy underscore form are honoured.
func optionList(cfg condition.Config, keys ...string) []string {
	var out []string
	for _, k := range keys {
		out = append(out, cfg.StringsOption(k)...)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

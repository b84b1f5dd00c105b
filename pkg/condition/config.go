package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ajxudir/asttest/pkg/constants"
)

// Config is the resolved configuration of one condition for one test.
// It is built once and must not be modified afterwards.
//
// Fields:
//   - Name: The definition name, e.g. "threads"
//   - Typename: Registry key of the implementation, e.g. "thread.pre"
//   - Role: constants.RolePre or constants.RolePost
//   - Related: Typename of the pre-condition a post-condition compares against
//   - Enabled: Whether the condition is evaluated at all
//   - PassExpected: Whether a failure of this condition fails the test
//   - Options: Extra keys from the test entry (allowedchannels, ignoredThreads, ...)
type Config struct {
	Name         string
	Typename     string
	Role         string
	Related      string
	Enabled      bool
	PassExpected bool
	Options      map[string]any
}

// IsPre reports whether the condition runs before the scenario.
func (c Config) IsPre() bool {
	return strings.EqualFold(c.Role, constants.RolePre)
}

// Option returns a raw option value.
func (c Config) Option(key string) (any, bool) {
	v, ok := c.Options[key]
	return v, ok
}

// IntOption returns an integer option, or def when absent or not a number.
func (c Config) IntOption(key string, def int) int {
	v, ok := c.Options[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

// StringsOption returns a list option. A scalar is returned as a one-element
// list.
func (c Config) StringsOption(key string) []string {
	v, ok := c.Options[key]
	if !ok || v == nil {
		return nil
	}
	switch l := v.(type) {
	case []string:
		return append([]string(nil), l...)
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(l)}
	}
}

func (c Config) clone() Config {
	if c.Options == nil {
		return c
	}
	opts := make(map[string]any, len(c.Options))
	for k, v := range c.Options {
		opts[k] = v
	}
	c.Options = opts
	return c
}

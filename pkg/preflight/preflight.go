// Package preflight decides whether a test's dependencies are met before it
// runs: programs on PATH, Asterisk build options and modules, and named
// custom checks such as ipv6 or fax.
package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	"github.com/ajxudir/asttest/pkg/asterisk"
	"github.com/ajxudir/asttest/pkg/cmdexec"
	"github.com/ajxudir/asttest/pkg/config"
	"github.com/ajxudir/asttest/pkg/errors"
	"github.com/ajxudir/asttest/pkg/verbose"
	"github.com/ajxudir/asttest/pkg/warnings"
)

// LookPath finds a program on PATH. Tests replace it.
var LookPath = exec.LookPath

// BuildOptionChecker answers build-option questions.
// *buildoptions.Cache satisfies it.
type BuildOptionChecker interface {
	Check(name, expected string) bool
}

// Result is the outcome of one dependency check.
//
// Fields:
//   - Dependency: The checked dependency
//   - Met: Whether the dependency is satisfied
//   - Reason: Why it is not met, empty when met
type Result struct {
	Dependency config.Dependency
	Met        bool
	Reason     string
}

// Err returns a dependency validation error for an unmet result, nil otherwise.
func (r Result) Err() *errors.ValidationError {
	if r.Met {
		return nil
	}
	return errors.NewDependencyError(r.Dependency.Name, r.Reason)
}

// Cache checks dependencies and remembers each result for the rest of the
// run. It is safe for concurrent use.
type Cache struct {
	buildOpts BuildOptionChecker
	moduleDir string
	custom    *Registry

	mu      sync.Mutex
	results map[string]Result
}

// NewCache creates a dependency cache.
//
// Parameters:
//   - opts: Build options of the Asterisk under test; nil treats every option as absent
//   - moduleDir: Asterisk module directory; empty uses the default astmoddir
//   - custom: Named custom checks; nil uses DefaultRegistry()
//
// Returns:
//   - *Cache: An empty cache
func NewCache(opts BuildOptionChecker, moduleDir string, custom *Registry) *Cache {
	if moduleDir == "" {
		moduleDir = asterisk.DefaultDirectories["astmoddir"]
	}
	if custom == nil {
		custom = DefaultRegistry()
	}
	return &Cache{buildOpts: opts, moduleDir: moduleDir, custom: custom, results: make(map[string]Result)}
}

// ModuleDir returns the directory searched for Asterisk modules.
func (c *Cache) ModuleDir() string { return c.moduleDir }

// Check evaluates dep, or returns the cached result of an earlier check.
func (c *Cache) Check(ctx context.Context, dep config.Dependency) Result {
	key := dep.Key()
	c.mu.Lock()
	if r, ok := c.results[key]; ok {
		c.mu.Unlock()
		return r
	}
	c.mu.Unlock()

	r := c.check(ctx, dep)
	verbose.Debugf("Dependency %s met=%t %s", dep, r.Met, r.Reason)

	c.mu.Lock()
	c.results[key] = r
	c.mu.Unlock()
	return r
}

// CheckAll evaluates every dependency.
//
// Returns:
//   - []Result: One result per dependency, in order
//   - bool: true when all are met
func (c *Cache) CheckAll(ctx context.Context, deps []config.Dependency) ([]Result, bool) {
	results := make([]Result, 0, len(deps))
	all := true
	for _, dep := range deps {
		r := c.Check(ctx, dep)
		results = append(results, r)
		all = all && r.Met
	}
	return results, all
}

func (c *Cache) check(ctx context.Context, dep config.Dependency) Result {
	r := Result{Dependency: dep}
	switch dep.Kind {
	case config.DependencyApp:
		r.Met = commandAvailable(ctx, dep.Name)
		if !r.Met {
			r.Reason = "not found on PATH"
		}
	case config.DependencySipp:
		want := dep.Value
		if want == "" && dep.Name != config.DependencySipp {
			want = dep.Name
		}
		r.Met, r.Reason = checkSipp(ctx, want)
	case config.DependencyBuildOption:
		expected := dep.Value
		if expected == "" {
			expected = "1"
		}
		r.Met = c.buildOpts != nil && c.buildOpts.Check(dep.Name, expected)
		if c.buildOpts == nil && expected == "0" {
			r.Met = true
		}
		if !r.Met {
			r.Reason = fmt.Sprintf("build option not set to %s", expected)
		}
	case config.DependencyAsterisk:
		r.Met = c.HasModule(dep.Name)
		if !r.Met {
			r.Reason = fmt.Sprintf("module %s.so not found in %s", dep.Name, c.moduleDir)
		}
	case config.DependencyCustom:
		check, ok := c.custom.Get(dep.Name)
		if !ok {
			warnings.Warnf("Unknown custom dependency - '%s'\n", dep.Name)
			r.Reason = "unknown custom dependency"
			return r
		}
		r.Met = check(ctx, c)
		if !r.Met {
			r.Reason = "custom check failed"
		}
	case config.DependencyPcap:
		// Captures are read offline; nothing to probe.
		r.Met = true
	default:
		warnings.Warnf("Unknown dependency type specified: %s\n", dep.Kind)
		r.Reason = fmt.Sprintf("unknown dependency type %q", dep.Kind)
	}
	return r
}

// HasModule reports whether <moduleDir>/<name>.so exists.
func (c *Cache) HasModule(name string) bool {
	if name == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(c.moduleDir, name+".so"))
	return err == nil
}

// commandAvailable checks if a command exists in PATH or as a shell alias.
func commandAvailable(ctx context.Context, cmd string) bool {
	if cmd == "" {
		return false
	}
	if _, err := LookPath(cmd); err == nil {
		verbose.Tracef("Preflight: command %q found in PATH", cmd)
		return true
	}
	verbose.Tracef("Preflight: command %q not in PATH, checking shell aliases", cmd)
	return commandExistsInShell(ctx, cmd)
}

var sippVersionRe = regexp.MustCompile(`v(\d+(?:\.\d+){0,2})`)

// checkSipp checks that sipp is installed and, when want is set, at least
// that version.
func checkSipp(ctx context.Context, want string) (bool, string) {
	if _, err := LookPath("sipp"); err != nil {
		return false, "not found on PATH"
	}
	if want == "" {
		return true, ""
	}
	wantSemver := "v" + strings.TrimPrefix(strings.TrimSpace(want), "v")
	if !semver.IsValid(wantSemver) {
		return false, fmt.Sprintf("invalid required version %q", want)
	}

	res, err := cmdexec.Run(ctx, cmdexec.Spec{Path: "sipp", Args: []string{"-v"}, Timeout: 10 * time.Second})
	if err != nil {
		return false, err.Error()
	}
	m := sippVersionRe.FindStringSubmatch(string(res.Stdout) + string(res.Stderr))
	if m == nil {
		return false, "unable to determine installed version"
	}
	have := "v" + m[1]
	if semver.Compare(have, wantSemver) < 0 {
		return false, fmt.Sprintf("version %s is older than %s", have, wantSemver)
	}
	return true, ""
}

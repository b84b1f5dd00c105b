package preflight

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajxudir/asttest/pkg/buildoptions"
	"github.com/ajxudir/asttest/pkg/config"
	"github.com/ajxudir/asttest/pkg/errors"
	"github.com/ajxudir/asttest/pkg/warnings"
)

func quietWarnings(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	restore := warnings.SetWarningWriter(&buf)
	t.Cleanup(restore)
	return &buf
}

// fakePath makes LookPath find only the given programs.
func fakePath(t *testing.T, found ...string) {
	t.Helper()
	old := LookPath
	LookPath = func(file string) (string, error) {
		for _, f := range found {
			if f == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", exec.ErrNotFound
	}
	t.Cleanup(func() { LookPath = old })
}

func staticOptions(t *testing.T, header string) BuildOptionChecker {
	t.Helper()
	opts, err := buildoptions.Parse(strings.NewReader(header))
	require.NoError(t, err)
	return buildoptions.NewStaticCache(opts)
}

// TestCheckKinds tests the behavior of Cache.Check for each dependency kind.
//
// It verifies:
//   - app dependencies look the program up on PATH
//   - buildoption dependencies default to an expected value of "1"
//   - asterisk dependencies look for the module file
//   - pcap dependencies are always met
//   - custom dependencies dispatch to the registry
func TestCheckKinds(t *testing.T) {
	quietWarnings(t)
	fakePath(t, "sipp", "tcpdump")

	modDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modDir, "chan_pjsip.so"), nil, 0o644))

	custom := NewRegistry()
	custom.Register("always", func(context.Context, *Cache) bool { return true })
	custom.Register("never", func(context.Context, *Cache) bool { return false })

	cache := NewCache(staticOptions(t, "#define TEST_FRAMEWORK 1\n#define LOW_MEMORY 0\n"), modDir, custom)

	tests := []struct {
		name string
		dep  config.Dependency
		met  bool
	}{
		{"app found", config.Dependency{Kind: config.DependencyApp, Name: "tcpdump"}, true},
		{"buildoption default value", config.Dependency{Kind: config.DependencyBuildOption, Name: "TEST_FRAMEWORK"}, true},
		{"buildoption explicit zero", config.Dependency{Kind: config.DependencyBuildOption, Name: "LOW_MEMORY", Value: "0"}, true},
		{"buildoption missing", config.Dependency{Kind: config.DependencyBuildOption, Name: "AST_DEVMODE"}, false},
		{"module present", config.Dependency{Kind: config.DependencyAsterisk, Name: "chan_pjsip"}, true},
		{"module absent", config.Dependency{Kind: config.DependencyAsterisk, Name: "chan_sip"}, false},
		{"pcap", config.Dependency{Kind: config.DependencyPcap, Name: "pcap"}, true},
		{"sipp without version", config.Dependency{Kind: config.DependencySipp, Name: "sipp"}, true},
		{"custom met", config.Dependency{Kind: config.DependencyCustom, Name: "always"}, true},
		{"custom unmet", config.Dependency{Kind: config.DependencyCustom, Name: "never"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := cache.Check(context.Background(), tt.dep)
			assert.Equal(t, tt.met, r.Met)
			if tt.met {
				assert.Empty(t, r.Reason)
				assert.Nil(t, r.Err())
			} else {
				assert.NotEmpty(t, r.Reason)
				require.NotNil(t, r.Err())
				assert.Equal(t, errors.ValidationCategoryDependency, r.Err().Category)
			}
		})
	}
}

// TestCheckUnknown tests the behavior of Cache.Check for unknown names and kinds.
//
// It verifies:
//   - An unknown custom dependency is unmet and warned about
//   - An unknown kind is unmet and warned about
func TestCheckUnknown(t *testing.T) {
	warn := quietWarnings(t)
	cache := NewCache(nil, t.TempDir(), NewRegistry())

	r := cache.Check(context.Background(), config.Dependency{Kind: config.DependencyCustom, Name: "mystery"})
	assert.False(t, r.Met)
	assert.Contains(t, warn.String(), "Unknown custom dependency - 'mystery'")

	r = cache.Check(context.Background(), config.Dependency{Kind: "python", Name: "starpy"})
	assert.False(t, r.Met)
	assert.Contains(t, warn.String(), "Unknown dependency type specified: python")
}

// TestCheckCaches tests that results are computed once per dependency key.
func TestCheckCaches(t *testing.T) {
	calls := 0
	custom := NewRegistry()
	custom.Register("counted", func(context.Context, *Cache) bool {
		calls++
		return true
	})
	cache := NewCache(nil, t.TempDir(), custom)
	dep := config.Dependency{Kind: config.DependencyCustom, Name: "counted"}

	for i := 0; i < 3; i++ {
		assert.True(t, cache.Check(context.Background(), dep).Met)
	}
	assert.Equal(t, 1, calls)
}

// TestCheckAll tests the behavior of Cache.CheckAll.
func TestCheckAll(t *testing.T) {
	quietWarnings(t)
	fakePath(t, "sipp")
	cache := NewCache(nil, t.TempDir(), NewRegistry())

	results, ok := cache.CheckAll(context.Background(), []config.Dependency{
		{Kind: config.DependencySipp, Name: "sipp"},
		{Kind: config.DependencyPcap, Name: "pcap"},
	})
	assert.True(t, ok)
	assert.Len(t, results, 2)

	results, ok = cache.CheckAll(context.Background(), []config.Dependency{
		{Kind: config.DependencyPcap, Name: "pcap"},
		{Kind: config.DependencyAsterisk, Name: "app_fax"},
	})
	assert.False(t, ok)
	require.Len(t, results, 2)
	assert.True(t, results[0].Met)
	assert.False(t, results[1].Met)
}

// TestNilBuildOptions tests that missing build options only satisfy "0".
func TestNilBuildOptions(t *testing.T) {
	cache := NewCache(nil, t.TempDir(), NewRegistry())
	assert.False(t, cache.Check(context.Background(), config.Dependency{Kind: config.DependencyBuildOption, Name: "X"}).Met)
	assert.True(t, cache.Check(context.Background(), config.Dependency{Kind: config.DependencyBuildOption, Name: "X", Value: "0"}).Met)
}

// TestDefaultRegistry tests the built-in custom checks that do not depend on the host.
//
// It verifies:
//   - The registry lists every built-in check
//   - fax is met by any fax provider module
func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"fax", "ipv6", "pjsuav6", "soundcard"}, r.Names())

	modDir := t.TempDir()
	cache := NewCache(nil, modDir, r)
	fax := config.Dependency{Kind: config.DependencyCustom, Name: "fax"}
	assert.False(t, NewCache(nil, modDir, r).Check(context.Background(), fax).Met)

	require.NoError(t, os.WriteFile(filepath.Join(modDir, "res_fax_spandsp.so"), nil, 0o644))
	assert.True(t, cache.Check(context.Background(), fax).Met)
}

// TestPjsuaMissing tests that pjsuav6 is unmet without pjsua.
func TestPjsuaMissing(t *testing.T) {
	fakePath(t)
	assert.False(t, pjsuaHasIPv6(context.Background()))
}

// TestCheckSippVersionErrors tests the version paths of checkSipp that need no sipp binary.
func TestCheckSippVersionErrors(t *testing.T) {
	fakePath(t)
	ok, reason := checkSipp(context.Background(), "3.0")
	assert.False(t, ok)
	assert.Equal(t, "not found on PATH", reason)

	fakePath(t, "sipp")
	ok, reason = checkSipp(context.Background(), "not-a-version")
	assert.False(t, ok)
	assert.Contains(t, reason, "invalid required version")
}

// TestModuleDirDefault tests the default module directory.
func TestModuleDirDefault(t *testing.T) {
	assert.Equal(t, "/usr/lib/asterisk/modules", NewCache(nil, "", nil).ModuleDir())
}

// TestGetShellCommandCheck tests the behavior of getShellCommandCheck.
func TestGetShellCommandCheck(t *testing.T) {
	t.Setenv("SHELL", "")
	shell, args := getShellCommandCheck("sipp")
	assert.Equal(t, "sh", shell)
	assert.Equal(t, []string{"-l", "-c", "command -v sipp"}, args)

	t.Setenv("SHELL", "/bin/bash")
	shell, _ = getShellCommandCheck("sipp")
	assert.Equal(t, "/bin/bash", shell)
}

package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultMaxConfigFileSize is the default maximum config file size (10MB).
const DefaultMaxConfigFileSize = 10 * 1024 * 1024

// DefaultMinVersion is the minimum Asterisk version of a test that does not
// declare one.
const DefaultMinVersion = "1.4"

// DefaultReactorTimeout bounds a scenario when test-object does not set
// reactor-timeout.
const DefaultReactorTimeout = 30 * time.Second

// Scenario types understood by the test runner.
const (
	ScenarioCLIScript = "cli-script"
	ScenarioRunTest   = "run-test"
)

// GlobalConfig is the suite-wide test-config.yaml.
//
// Besides the declared keys, every other top-level key is a named test
// configuration block; global-settings.test-configuration selects one.
type GlobalConfig struct {
	Extends  []string       `yaml:"extends,omitempty"`
	Settings GlobalSettings `yaml:"global-settings"`
	Tests    []string       `yaml:"tests,omitempty"`
	Security *SecurityCfg   `yaml:"security,omitempty"`

	Blocks map[string]TestConfiguration `yaml:",inline"`

	// path is the file the config was loaded from, empty for defaults.
	path string `yaml:"-"`

	isRootConfig bool `yaml:"-"`
}

// GlobalSettings holds the global-settings section.
type GlobalSettings struct {
	TestConfiguration    string                `yaml:"test-configuration,omitempty"`
	ConditionDefinitions []ConditionDefinition `yaml:"condition-definitions,omitempty"`
	AsteriskInstances    []InstanceCfg         `yaml:"asterisk-instances,omitempty"`
	ForcedVersion        string                `yaml:"forced-version,omitempty"`
}

// TestConfiguration is a named block of the global config. Its test
// conditions apply to every test unless the test configures the same
// condition itself.
type TestConfiguration struct {
	Properties        Properties    `yaml:"properties,omitempty"`
	ExcludeTests      []string      `yaml:"exclude-tests,omitempty"`
	AsteriskInstances []InstanceCfg `yaml:"asterisk-instances,omitempty"`
}

// ConditionDefinition maps a condition name to its pre and post typenames.
type ConditionDefinition struct {
	Name string          `yaml:"name"`
	Pre  *ConditionPhase `yaml:"pre,omitempty"`
	Post *ConditionPhase `yaml:"post,omitempty"`
}

// ConditionPhase is the pre or post half of a condition definition.
type ConditionPhase struct {
	Typename    string `yaml:"typename"`
	RelatedType string `yaml:"related-type,omitempty"`
}

// InstanceCfg describes an Asterisk instance. An entry with Num is spawned
// locally; an entry with only Host is a remote instance that is not managed.
type InstanceCfg struct {
	Num  int    `yaml:"num,omitempty"`
	Host string `yaml:"host"`
}

// Remote reports whether the instance is not spawned by the harness.
func (i InstanceCfg) Remote() bool { return i.Num == 0 }

// SecurityCfg restricts what extends may reference. It is honoured only in
// the root config.
type SecurityCfg struct {
	AllowPathTraversal bool  `yaml:"allow_path_traversal,omitempty"`
	AllowAbsolutePaths bool  `yaml:"allow_absolute_paths,omitempty"`
	MaxConfigFileSize  int64 `yaml:"max_config_file_size,omitempty"`
}

// Path returns the file the global config was read from.
func (g *GlobalConfig) Path() string { return g.path }

// IsRootConfig returns true if this is the root configuration (not an imported config).
func (g *GlobalConfig) IsRootConfig() bool {
	return g.isRootConfig
}

// SetRootConfig marks this config as the root config.
//
// Parameters:
//   - isRoot: true to mark as root config, false otherwise
func (g *GlobalConfig) SetRootConfig(isRoot bool) {
	g.isRootConfig = isRoot
}

// security returns the security settings in effect. Settings are read only
// from the root config; an extended file cannot loosen them.
func (g *GlobalConfig) security() *SecurityCfg {
	if !g.isRootConfig || g.Security == nil {
		return &SecurityCfg{}
	}
	return g.Security
}

// GetMaxConfigFileSize returns the configured max file size or the default.
func (g *GlobalConfig) GetMaxConfigFileSize() int64 {
	if size := g.security().MaxConfigFileSize; size > 0 {
		return size
	}
	return DefaultMaxConfigFileSize
}

// AllowsPathTraversal returns true if ".." is allowed in extends.
func (g *GlobalConfig) AllowsPathTraversal() bool {
	return g.security().AllowPathTraversal
}

// AllowsAbsolutePaths returns true if absolute paths are allowed in extends.
func (g *GlobalConfig) AllowsAbsolutePaths() bool {
	return g.security().AllowAbsolutePaths
}

// Selected returns the test configuration block named by
// global-settings.test-configuration.
//
// Returns:
//   - TestConfiguration: The selected block, zero when none is selected
//   - bool: false when no block is selected or the named block is missing
func (g *GlobalConfig) Selected() (TestConfiguration, bool) {
	if g == nil || g.Settings.TestConfiguration == "" {
		return TestConfiguration{}, false
	}
	block, ok := g.Blocks[g.Settings.TestConfiguration]
	return block, ok
}

// ExcludedTests returns the tests the selected block excludes.
func (g *GlobalConfig) ExcludedTests() []string {
	block, _ := g.Selected()
	return block.ExcludeTests
}

// Instances returns the configured Asterisk instances. The selected block
// takes precedence over global-settings. When neither configures any,
// count local instances on 127.0.0.N are returned.
func (g *GlobalConfig) Instances(count int) []InstanceCfg {
	if g != nil {
		if block, ok := g.Selected(); ok && len(block.AsteriskInstances) > 0 {
			return append([]InstanceCfg(nil), block.AsteriskInstances...)
		}
		if len(g.Settings.AsteriskInstances) > 0 {
			return append([]InstanceCfg(nil), g.Settings.AsteriskInstances...)
		}
	}
	if count < 1 {
		count = 1
	}
	out := make([]InstanceCfg, 0, count)
	for n := 1; n <= count; n++ {
		out = append(out, InstanceCfg{Num: n, Host: fmt.Sprintf("127.0.0.%d", n)})
	}
	return out
}

// TestConfig is a per-test tests/<name>/test-config.yaml.
type TestConfig struct {
	TestInfo   TestInfo    `yaml:"testinfo,omitempty"`
	Properties Properties  `yaml:"properties,omitempty"`
	TestObject *TestObject `yaml:"test-object,omitempty"`

	// Name is the test path relative to the tests directory.
	Name string `yaml:"-"`
	// Dir is the directory holding the test's files.
	Dir string `yaml:"-"`
	// Global is the suite configuration the test was loaded against.
	Global *GlobalConfig `yaml:"-"`
}

// TestInfo holds the descriptive testinfo section.
type TestInfo struct {
	Summary     string `yaml:"summary,omitempty"`
	Description string `yaml:"description,omitempty"`
	Skip        string `yaml:"skip,omitempty"`
}

// Properties holds the properties section of a test or a global block.
type Properties struct {
	MinVersion     string               `yaml:"minversion,omitempty"`
	MaxVersion     string               `yaml:"maxversion,omitempty"`
	ForcedVersion  string               `yaml:"forced-version,omitempty"`
	Dependencies   []Dependency         `yaml:"dependencies,omitempty"`
	Tags           []string             `yaml:"tags,omitempty"`
	Skip           string               `yaml:"skip,omitempty"`
	TestConditions []TestConditionEntry `yaml:"testconditions,omitempty"`
	ExpectedResult ExpectedResult       `yaml:"expected-result,omitempty"`
	ExpectedAlt    ExpectedResult       `yaml:"expectedResult,omitempty"`
}

// Summary returns the test summary or "(none)".
func (t *TestConfig) Summary() string {
	if t.TestInfo.Summary == "" {
		return "(none)"
	}
	return strings.TrimSpace(t.TestInfo.Summary)
}

// SkipReason returns why the test is skipped, empty when it is not.
// Both testinfo.skip and properties.skip are honoured.
func (t *TestConfig) SkipReason() string {
	if t.TestInfo.Skip != "" {
		return t.TestInfo.Skip
	}
	return t.Properties.Skip
}

// MinVersion returns the minimum version, defaulting to DefaultMinVersion.
func (t *TestConfig) MinVersion() string {
	if t.Properties.MinVersion == "" {
		return DefaultMinVersion
	}
	return t.Properties.MinVersion
}

// ForcedVersion returns the version that replaces the detected one, from the
// test or the global settings.
func (t *TestConfig) ForcedVersion() string {
	if t.Properties.ForcedVersion != "" {
		return t.Properties.ForcedVersion
	}
	if t.Global != nil {
		return t.Global.Settings.ForcedVersion
	}
	return ""
}

// ExpectPass reports whether the test as a whole is expected to pass.
func (t *TestConfig) ExpectPass() bool {
	if t.Properties.ExpectedResult.Set() {
		return t.Properties.ExpectedResult.PassExpected()
	}
	return t.Properties.ExpectedAlt.PassExpected()
}

// HasTags reports whether the test carries any of the requested tags. No
// requested tags always matches.
func (t *TestConfig) HasTags(requested []string) bool {
	if len(requested) == 0 {
		return true
	}
	for _, r := range requested {
		for _, tag := range t.Properties.Tags {
			if strings.EqualFold(r, tag) {
				return true
			}
		}
	}
	return false
}

// ExpectedResult is an expectedResult value. Absent means pass expected;
// false or "fail" means the subject is expected to fail.
type ExpectedResult struct {
	set  bool
	pass bool
}

// ExpectPassResult and ExpectFailResult are explicit expectations.
var (
	ExpectPassResult = ExpectedResult{set: true, pass: true}
	ExpectFailResult = ExpectedResult{set: true, pass: false}
)

// ParseExpectedResult interprets a raw YAML value.
func ParseExpectedResult(v any) ExpectedResult {
	switch x := v.(type) {
	case nil:
		return ExpectedResult{}
	case bool:
		return ExpectedResult{set: true, pass: x}
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "fail", "failure", "false", "no":
			return ExpectFailResult
		case "":
			return ExpectedResult{}
		}
		return ExpectPassResult
	}
	return ExpectPassResult
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *ExpectedResult) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*e = ParseExpectedResult(raw)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (e ExpectedResult) MarshalYAML() (any, error) {
	if !e.set {
		return nil, nil
	}
	if e.pass {
		return "pass", nil
	}
	return "fail", nil
}

// IsZero lets omitempty drop an unset expectation.
func (e ExpectedResult) IsZero() bool { return !e.set }

// Set reports whether a value was given.
func (e ExpectedResult) Set() bool { return e.set }

// PassExpected reports whether a pass is expected.
func (e ExpectedResult) PassExpected() bool { return !e.set || e.pass }

// TestConditionEntry is one item of properties.testconditions. Keys other
// than name, enabled and expectedResult are kept in Options for the
// condition implementation.
type TestConditionEntry struct {
	Name     string
	Enabled  *bool
	Expected ExpectedResult
	Options  map[string]any
}

// IsEnabled returns true unless the entry sets enabled: false.
func (e TestConditionEntry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *TestConditionEntry) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("test condition must be a mapping: %w", err)
	}
	out := TestConditionEntry{Options: make(map[string]any)}
	for k, v := range raw {
		switch k {
		case "name":
			out.Name = strings.TrimSpace(fmt.Sprint(v))
		case "enabled":
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("test condition %v: enabled must be a boolean", raw["name"])
			}
			out.Enabled = &b
		case "expectedResult", "expected_result", "expected-result":
			out.Expected = ParseExpectedResult(v)
		default:
			out.Options[k] = v
		}
	}
	*e = out
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (e TestConditionEntry) MarshalYAML() (any, error) {
	out := make(map[string]any, len(e.Options)+3)
	for k, v := range e.Options {
		out[k] = v
	}
	out["name"] = e.Name
	if e.Enabled != nil {
		out["enabled"] = *e.Enabled
	}
	if e.Expected.Set() {
		out["expectedResult"] = e.Expected.PassExpected()
	}
	return out, nil
}

// Dependency kinds.
const (
	DependencyApp         = "app"
	DependencyBuildOption = "buildoption"
	DependencyCustom      = "custom"
	DependencyAsterisk    = "asterisk"
	DependencyPcap        = "pcap"
	DependencySipp        = "sipp"
)

var dependencyKinds = []string{
	DependencyApp, DependencyBuildOption, DependencyCustom,
	DependencyAsterisk, DependencyPcap, DependencySipp,
}

// Dependency is one properties.dependencies item such as {app: sipp} or
// {buildoption: TEST_FRAMEWORK, value: "1"}.
type Dependency struct {
	Kind  string
	Name  string
	Value string
}

// Key identifies the dependency for result caching.
func (d Dependency) Key() string {
	if d.Value != "" {
		return d.Kind + ":" + d.Name + "=" + d.Value
	}
	return d.Kind + ":" + d.Name
}

// String renders the dependency for listings.
func (d Dependency) String() string {
	if d.Value != "" {
		return fmt.Sprintf("%s %s=%s", d.Kind, d.Name, d.Value)
	}
	return d.Kind + " " + d.Name
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Dependency) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("dependency must be a mapping: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("empty dependency")
	}

	out := Dependency{}
	for _, kind := range dependencyKinds {
		v, ok := raw[kind]
		if !ok {
			continue
		}
		out.Kind = kind
		switch x := v.(type) {
		case nil:
			out.Name = kind
		case map[string]any:
			// {sipp: {version: v3.0}}
			out.Name = kind
			if ver, ok := x["version"]; ok {
				out.Value = fmt.Sprint(ver)
			}
		default:
			out.Name = strings.TrimSpace(fmt.Sprint(x))
		}
		break
	}
	if out.Kind == "" {
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out.Kind = keys[0]
		out.Name = strings.TrimSpace(fmt.Sprint(raw[keys[0]]))
	}
	if v, ok := raw["value"]; ok && out.Value == "" {
		out.Value = strings.TrimSpace(fmt.Sprint(v))
	}
	*d = out
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Dependency) MarshalYAML() (any, error) {
	out := map[string]any{d.Kind: d.Name}
	if d.Value != "" {
		out["value"] = d.Value
	}
	return out, nil
}

// TestObject describes the built-in scenario of a test.
type TestObject struct {
	Type           string            `yaml:"type,omitempty"`
	ReactorTimeout int               `yaml:"reactor-timeout,omitempty"`
	Instances      int               `yaml:"asterisk-instances,omitempty"`
	ConfOptions    map[string]string `yaml:"ast-conf-options,omitempty"`
	Steps          []ScriptStep      `yaml:"steps,omitempty"`
}

// Timeout returns the scenario watchdog period.
func (o *TestObject) Timeout() time.Duration {
	if o == nil || o.ReactorTimeout <= 0 {
		return DefaultReactorTimeout
	}
	return time.Duration(o.ReactorTimeout) * time.Second
}

// InstanceCount returns how many local instances the scenario wants.
func (o *TestObject) InstanceCount() int {
	if o == nil || o.Instances < 1 {
		return 1
	}
	return o.Instances
}

// ScriptStep is one cli-script step.
//
// Fields:
//   - Command: CLI command sent with asterisk -rx
//   - Expect: Text the output must contain, empty to accept anything
//   - Delay: Seconds to wait before the command
//   - Instance: 1-based index of the target instance, 0 for the first
type ScriptStep struct {
	Command  string  `yaml:"command"`
	Expect   string  `yaml:"expect,omitempty"`
	Delay    float64 `yaml:"delay,omitempty"`
	Instance int     `yaml:"instance,omitempty"`
}

// DelayDuration returns Delay as a time.Duration.
func (s ScriptStep) DelayDuration() time.Duration {
	return time.Duration(s.Delay * float64(time.Second))
}

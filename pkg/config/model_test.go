package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestParseExpectedResult tests the expectedResult spellings.
func TestParseExpectedResult(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		set  bool
		pass bool
	}{
		{name: "absent", raw: nil, set: false, pass: true},
		{name: "true", raw: true, set: true, pass: true},
		{name: "false", raw: false, set: true, pass: false},
		{name: "fail", raw: "Fail", set: true, pass: false},
		{name: "failure", raw: "failure", set: true, pass: false},
		{name: "pass", raw: "pass", set: true, pass: true},
		{name: "blank", raw: "  ", set: false, pass: true},
		{name: "number", raw: 1, set: true, pass: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseExpectedResult(tt.raw)
			assert.Equal(t, tt.set, got.Set())
			assert.Equal(t, tt.pass, got.PassExpected())
		})
	}
}

// TestTestConditionEntry_Unmarshal tests extraction of known keys and options.
func TestTestConditionEntry_Unmarshal(t *testing.T) {
	var entries []TestConditionEntry
	require.NoError(t, yaml.Unmarshal([]byte(`
- name: threads
  ignoredThreads: [sip_tcp_worker]
- name: channels
  enabled: false
  expectedResult: fail
  allowedchannels: 2
`), &entries))

	require.Len(t, entries, 2)
	assert.Equal(t, "threads", entries[0].Name)
	assert.True(t, entries[0].IsEnabled())
	assert.True(t, entries[0].Expected.PassExpected())
	assert.Equal(t, []any{"sip_tcp_worker"}, entries[0].Options["ignoredThreads"])

	assert.False(t, entries[1].IsEnabled())
	assert.False(t, entries[1].Expected.PassExpected())
	assert.Equal(t, 2, entries[1].Options["allowedchannels"])
	assert.NotContains(t, entries[1].Options, "name")

	var bad []TestConditionEntry
	assert.Error(t, yaml.Unmarshal([]byte(`- name: x
  enabled: maybe`), &bad))
	assert.Error(t, yaml.Unmarshal([]byte(`- just-a-string`), &bad))
}

// TestDependency_Unmarshal tests every dependency shape.
func TestDependency_Unmarshal(t *testing.T) {
	var deps []Dependency
	require.NoError(t, yaml.Unmarshal([]byte(`
- app: sipp
- buildoption: TEST_FRAMEWORK
  value: "1"
- custom: ipv6
- asterisk: res_pjsip
- pcap:
- sipp:
    version: v3.0
- python: twisted
`), &deps))

	assert.Equal(t, []Dependency{
		{Kind: DependencyApp, Name: "sipp"},
		{Kind: DependencyBuildOption, Name: "TEST_FRAMEWORK", Value: "1"},
		{Kind: DependencyCustom, Name: "ipv6"},
		{Kind: DependencyAsterisk, Name: "res_pjsip"},
		{Kind: DependencyPcap, Name: "pcap"},
		{Kind: DependencySipp, Name: "sipp", Value: "v3.0"},
		{Kind: "python", Name: "twisted"},
	}, deps)

	assert.Equal(t, "buildoption:TEST_FRAMEWORK=1", deps[1].Key())
	assert.Equal(t, "app:sipp", deps[0].Key())
	assert.Equal(t, "buildoption TEST_FRAMEWORK=1", deps[1].String())

	out, err := yaml.Marshal(deps[1])
	require.NoError(t, err)
	assert.Contains(t, string(out), "buildoption: TEST_FRAMEWORK")

	var empty []Dependency
	assert.Error(t, yaml.Unmarshal([]byte(`- {}`), &empty))
}

// TestTestConfig_Accessors tests defaulting helpers on TestConfig.
func TestTestConfig_Accessors(t *testing.T) {
	cfg, err := ParseTest([]byte(`
testinfo:
  summary: '  Check the echo application  '
properties:
  tags: [apps, Echo]
  expected-result: fail
`))
	require.NoError(t, err)

	assert.Equal(t, "Check the echo application", cfg.Summary())
	assert.Equal(t, DefaultMinVersion, cfg.MinVersion())
	assert.False(t, cfg.ExpectPass())
	assert.True(t, cfg.HasTags(nil))
	assert.True(t, cfg.HasTags([]string{"echo"}))
	assert.False(t, cfg.HasTags([]string{"pjsip"}))
	assert.Empty(t, cfg.SkipReason())
	assert.Empty(t, cfg.ForcedVersion())

	cfg.TestInfo.Skip = "broken"
	assert.Equal(t, "broken", cfg.SkipReason())
	cfg.TestInfo.Skip = ""
	cfg.Properties.Skip = "flaky"
	assert.Equal(t, "flaky", cfg.SkipReason())

	cfg.Global = &GlobalConfig{Settings: GlobalSettings{ForcedVersion: "13.0.0"}}
	assert.Equal(t, "13.0.0", cfg.ForcedVersion())

	alt, err := ParseTest([]byte("properties:\n  expectedResult: false\n"))
	require.NoError(t, err)
	assert.False(t, alt.ExpectPass())

	none, err := ParseTest([]byte("testinfo: {}\n"))
	require.NoError(t, err)
	assert.True(t, none.ExpectPass())
	assert.Equal(t, "(none)", none.Summary())
}

// TestTestObject tests scenario defaults.
func TestTestObject(t *testing.T) {
	var nilObj *TestObject
	assert.Equal(t, DefaultReactorTimeout, nilObj.Timeout())
	assert.Equal(t, 1, nilObj.InstanceCount())

	obj := &TestObject{ReactorTimeout: 5, Instances: 2}
	assert.Equal(t, 5*time.Second, obj.Timeout())
	assert.Equal(t, 2, obj.InstanceCount())

	assert.Equal(t, 1500*time.Millisecond, ScriptStep{Delay: 1.5}.DelayDuration())
}

// TestGlobalConfig_Instances tests instance selection and defaults.
func TestGlobalConfig_Instances(t *testing.T) {
	var nilCfg *GlobalConfig
	assert.Equal(t, []InstanceCfg{{Num: 1, Host: "127.0.0.1"}, {Num: 2, Host: "127.0.0.2"}}, nilCfg.Instances(2))

	g := &GlobalConfig{
		Settings: GlobalSettings{
			TestConfiguration: "remote",
			AsteriskInstances: []InstanceCfg{{Num: 1, Host: "127.0.0.5"}},
		},
		Blocks: map[string]TestConfiguration{
			"remote": {AsteriskInstances: []InstanceCfg{{Host: "10.0.0.1"}}},
		},
	}
	got := g.Instances(3)
	require.Len(t, got, 1)
	assert.True(t, got[0].Remote())

	g.Settings.TestConfiguration = ""
	assert.Equal(t, []InstanceCfg{{Num: 1, Host: "127.0.0.5"}}, g.Instances(3))
	assert.Nil(t, g.ExcludedTests())
}

package testcase

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/ajxudir/asttest/pkg/asterisk"
	"github.com/ajxudir/asttest/pkg/config"
	"github.com/ajxudir/asttest/pkg/verbose"
)

// InstanceSetup describes how to build the Asterisk instances of one test.
//
// Fields:
//   - RunDir: Directory under which each local instance gets ast<N>/
//   - Binary: Asterisk executable; empty uses asterisk.DefaultBinary
//   - ModuleDir: Module directory shared by every local instance
//   - SuiteConfigs: The suite's configs/ directory, installed first
//   - TestDir: The test directory; its configs/ and configs/ast<N>/ follow
//   - Hosts: Instance entries; a zero Num marks a remote instance
//   - Options: asterisk.conf [options] overrides
type InstanceSetup struct {
	RunDir       string
	Binary       string
	ModuleDir    string
	SuiteConfigs string
	TestDir      string
	Hosts        []config.InstanceCfg
	Options      map[string]string
}

// BuildInstances creates the instances of a test and installs their
// configuration.
//
// Every local instance gets its own tree with a generated asterisk.conf,
// then the suite configs, the test configs and the per-instance configs
// are copied into its etc directory, later files replacing earlier ones.
// Remote instances get nothing installed.
//
// Parameters:
//   - s: Setup description
//
// Returns:
//   - []*asterisk.Instance: The instances, in order
//   - error: When a tree cannot be created or a config file cannot be installed
func BuildInstances(s InstanceSetup) ([]*asterisk.Instance, error) {
	out := make([]*asterisk.Instance, 0, len(s.Hosts))
	for idx, h := range s.Hosts {
		if h.Host == "" {
			return nil, fmt.Errorf("Cannot manage Asterisk instance without 'host'")
		}
		id := h.Num
		if id == 0 {
			id = idx + 1
		}
		inst := asterisk.New(asterisk.Config{
			ID:      id,
			Host:    h.Host,
			Binary:  s.Binary,
			Base:    filepath.Join(s.RunDir, "ast"+strconv.Itoa(id)),
			Remote:  h.Remote(),
			Options: s.Options,
		})
		inst.SetModuleDir(s.ModuleDir)
		out = append(out, inst)
		if h.Remote() {
			continue
		}

		if err := inst.CreateTree(); err != nil {
			return nil, fmt.Errorf("instance %d: %w", id, err)
		}
		dirs := []string{s.SuiteConfigs}
		if s.TestDir != "" {
			dirs = append(dirs,
				filepath.Join(s.TestDir, "configs"),
				filepath.Join(s.TestDir, "configs", "ast"+strconv.Itoa(id)))
		}
		for _, dir := range dirs {
			if dir == "" {
				continue
			}
			n, err := inst.InstallConfigs(dir)
			if err != nil {
				return nil, fmt.Errorf("instance %d: %w", id, err)
			}
			if n > 0 {
				verbose.Debugf("Installed %d config files from %s into %s", n, dir, inst.EtcDir())
			}
		}
	}
	return out, nil
}

// AsInstances converts asterisk instances for Options.Instances.
func AsInstances(in []*asterisk.Instance) []Instance {
	out := make([]Instance, 0, len(in))
	for _, i := range in {
		out = append(out, i)
	}
	return out
}

// Package config loads the suite-wide and per-test YAML configuration of
// the Asterisk test harness. The global test-config.yaml supports
// inheritance through extends, carries the condition definitions and
// selects a named test configuration block; each test directory carries
// its own test-config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajxudir/asttest/pkg/verbose"
	"gopkg.in/yaml.v3"
)

// GlobalConfigFile and TestConfigFile are the file names looked up in the
// suite root and in each test directory.
const (
	GlobalConfigFile = "test-config.yaml"
	TestConfigFile   = "test-config.yaml"
)

// LoadGlobal loads the suite-wide configuration.
//
// If configPath is provided, it loads that specific file. Otherwise it looks
// for test-config.yaml in suiteRoot. If no file is found, the built-in
// default configuration is returned.
//
// Parameters:
//   - configPath: path to the config file, or empty to search suiteRoot
//   - suiteRoot: directory of the test suite
//
// Returns:
//   - *GlobalConfig: the loaded and merged configuration
//   - error: any error encountered while reading or processing extends
func LoadGlobal(configPath, suiteRoot string) (*GlobalConfig, error) {
	if configPath == "" {
		candidate := filepath.Join(suiteRoot, GlobalConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			verbose.Infof("Found suite config: %s", candidate)
			configPath = candidate
		}
	}

	if configPath == "" {
		verbose.Info("Using built-in default configuration")
		cfg := loadDefaultConfig()
		cfg.SetRootConfig(true)
		return cfg, nil
	}

	verbose.Infof("Loading config from: %s", configPath)
	loaded, err := loadGlobalFile(configPath, DefaultMaxConfigFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	loaded.SetRootConfig(true)
	extended := loaded.Extends

	cfg, err := processExtends(loaded, filepath.Dir(configPath), make(map[string]bool), loaded)
	if err != nil {
		return nil, fmt.Errorf("failed to process extends: %w", err)
	}
	cfg.path = configPath
	cfg.Security = loaded.Security
	cfg.SetRootConfig(true)
	verbose.ConfigLoaded(configPath, extended)

	if name := cfg.Settings.TestConfiguration; name != "" {
		if _, ok := cfg.Blocks[name]; !ok {
			verbose.Printf("test configuration [%s] not found in config file", name)
		}
	}
	return cfg, nil
}

// readLimited reads path after checking it against maxSize.
func readLimited(path string, maxSize int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d bytes)\n\n"+
			"To increase this limit, add to your root config:\n"+
			"   security:\n"+
			"     max_config_file_size: %d  # or larger value in bytes",
			info.Size(), maxSize, info.Size()*2)
	}
	return os.ReadFile(path)
}

func loadGlobalFile(path string, maxSize int64) (*GlobalConfig, error) {
	data, err := readLimited(path, maxSize)
	if err != nil {
		return nil, err
	}
	return loadGlobalData(data)
}

func loadGlobalData(data []byte) (*GlobalConfig, error) {
	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if cfg.Blocks == nil {
		cfg.Blocks = make(map[string]TestConfiguration)
	}
	return &cfg, nil
}

// validateExtendPath checks an extends entry against the root config's
// security settings.
//
// Parameters:
//   - extend: the extend path to validate
//   - rootCfg: the root configuration containing security settings
//
// Returns:
//   - error: error if path violates security policy, nil if allowed
func validateExtendPath(extend string, rootCfg *GlobalConfig) error {
	if strings.Contains(extend, "..") && !rootCfg.AllowsPathTraversal() {
		return fmt.Errorf("path traversal not allowed in extends: '%s' - "+
			"to allow, add security.allow_path_traversal: true to your root config",
			extend)
	}
	if filepath.IsAbs(extend) && !rootCfg.AllowsAbsolutePaths() {
		return fmt.Errorf("absolute paths not allowed in extends: '%s' - "+
			"to allow, add security.allow_absolute_paths: true to your root config",
			extend)
	}
	return nil
}

// processExtends processes extends with cycle detection and security
// enforcement.
//
// Extends are merged in order, each on top of the previous ones, and the
// config itself is merged last. The name "default" refers to the embedded
// default configuration.
//
// Parameters:
//   - cfg: the configuration to process
//   - baseDir: base directory for resolving relative paths
//   - stack: configs currently being processed, for cycle detection
//   - rootCfg: the root configuration containing security settings
//
// Returns:
//   - *GlobalConfig: the merged configuration
//   - error: error if a cycle is detected, security policy is violated, or a file cannot be loaded
func processExtends(cfg *GlobalConfig, baseDir string, stack map[string]bool, rootCfg *GlobalConfig) (*GlobalConfig, error) {
	if len(cfg.Extends) == 0 {
		return cfg, nil
	}

	base := &GlobalConfig{Blocks: make(map[string]TestConfiguration)}
	maxFileSize := rootCfg.GetMaxConfigFileSize()

	for _, extend := range cfg.Extends {
		var (
			extendCfg *GlobalConfig
			extendKey string
		)

		if extend == "default" {
			extendKey = "__default__"
			if stack[extendKey] {
				return nil, fmt.Errorf("cyclic extends detected at %s", extend)
			}
			stack[extendKey] = true
			extendCfg = loadDefaultConfig()
		} else {
			if err := validateExtendPath(extend, rootCfg); err != nil {
				return nil, err
			}

			extendPath := extend
			if !filepath.IsAbs(extendPath) {
				extendPath = filepath.Join(baseDir, extend)
			}
			absPath, err := filepath.Abs(extendPath)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve extend path '%s': %w", extend, err)
			}
			if _, err := os.Stat(absPath); err != nil {
				return nil, fmt.Errorf("failed to resolve extend '%s': %w", extend, err)
			}

			extendKey = absPath
			if stack[extendKey] {
				return nil, fmt.Errorf("cyclic extends detected at %s", extendPath)
			}
			stack[extendKey] = true

			loaded, err := loadGlobalFile(extendPath, maxFileSize)
			if err != nil {
				return nil, fmt.Errorf("failed to load extend '%s': %w", extend, err)
			}
			loaded, err = processExtends(loaded, filepath.Dir(extendPath), stack, rootCfg)
			if err != nil {
				return nil, err
			}
			extendCfg = loaded
		}

		base = mergeGlobal(base, extendCfg)
		verbose.Printf("Extended from %q: %d condition definitions", extend, len(extendCfg.Settings.ConditionDefinitions))
		delete(stack, extendKey)
	}

	result := mergeGlobal(base, cfg)
	result.Extends = nil
	return result, nil
}

// LoadTest loads tests/<name>/test-config.yaml.
//
// Parameters:
//   - testsDir: the suite's tests directory
//   - name: the test path relative to testsDir
//   - global: the suite configuration; may be nil
//
// Returns:
//   - *TestConfig: the parsed test configuration
//   - error: when the file is missing, too large or not valid YAML
func LoadTest(testsDir, name string, global *GlobalConfig) (*TestConfig, error) {
	dir := filepath.Join(testsDir, filepath.FromSlash(name))
	maxSize := int64(DefaultMaxConfigFileSize)
	if global != nil {
		maxSize = global.GetMaxConfigFileSize()
	}

	data, err := readLimited(filepath.Join(dir, TestConfigFile), maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration for test '%s': %w", name, err)
	}
	cfg, err := ParseTest(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration for test '%s': %w", name, err)
	}
	cfg.Name = name
	cfg.Dir = dir
	cfg.Global = global
	verbose.Debugf("Loaded test %s: %d test conditions, %d dependencies",
		name, len(cfg.Properties.TestConditions), len(cfg.Properties.Dependencies))
	return cfg, nil
}

// ParseTest parses a per-test configuration document.
func ParseTest(data []byte) (*TestConfig, error) {
	var cfg TestConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return &cfg, nil
}

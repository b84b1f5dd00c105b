package config

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/ajxudir/asttest/pkg/verbose"
	"gopkg.in/yaml.v3"
)

// TestListFile is the per-directory test listing.
const TestListFile = "tests.yaml"

// testList is a tests.yaml document. Each item names either a test or a
// sub-directory with its own tests.yaml.
type testList struct {
	Tests []struct {
		Test string `yaml:"test,omitempty"`
		Dir  string `yaml:"dir,omitempty"`
	} `yaml:"tests"`
}

// ListTests returns the test names of a suite, relative to testsDir and
// slash-separated.
//
// When testsDir has a tests.yaml it is followed recursively. Otherwise every
// directory below testsDir holding a test-config.yaml is a test, in lexical
// order.
//
// Parameters:
//   - testsDir: the suite's tests directory
//
// Returns:
//   - []string: the test names
//   - error: when tests.yaml is unreadable or testsDir cannot be walked
func ListTests(testsDir string) ([]string, error) {
	if _, err := os.Stat(filepath.Join(testsDir, TestListFile)); err == nil {
		return listFromFile(testsDir, "", make(map[string]bool))
	}
	return discoverTests(testsDir)
}

func listFromFile(testsDir, rel string, visited map[string]bool) ([]string, error) {
	if visited[rel] {
		return nil, fmt.Errorf("cyclic tests.yaml listing at %q", rel)
	}
	visited[rel] = true

	file := filepath.Join(testsDir, filepath.FromSlash(rel), TestListFile)
	data, err := readLimited(file, DefaultMaxConfigFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	var list testList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", file, err)
	}

	var names []string
	for _, item := range list.Tests {
		switch {
		case item.Test != "":
			names = append(names, path.Join(rel, item.Test))
		case item.Dir != "":
			sub, err := listFromFile(testsDir, path.Join(rel, item.Dir), visited)
			if err != nil {
				return nil, err
			}
			names = append(names, sub...)
		}
	}
	verbose.Debugf("Listed %d tests from %s", len(names), file)
	return names, nil
}

func discoverTests(testsDir string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(testsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != TestConfigFile {
			return nil
		}
		rel, err := filepath.Rel(testsDir, filepath.Dir(p))
		if err != nil || rel == "." {
			return nil
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover tests in %s: %w", testsDir, err)
	}
	sort.Strings(names)
	return names, nil
}

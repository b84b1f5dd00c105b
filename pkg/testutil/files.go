package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to dir/name, creating parent directories, and
// returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteBuildOpts writes a buildopts.h defining each option and returns its path.
func WriteBuildOpts(t *testing.T, dir string, defines map[string]string) string {
	t.Helper()
	content := "/*\n * buildopts.h generated for tests\n */\n"
	for name, value := range defines {
		content += "#define " + name + " " + value + "\n"
	}
	return WriteFile(t, dir, "buildopts.h", content)
}

// WriteTest creates tests/<name>/test-config.yaml under root and returns the
// test directory.
func WriteTest(t *testing.T, root, name, yaml string) string {
	t.Helper()
	path := WriteFile(t, filepath.Join(root, "tests", name), "test-config.yaml", yaml)
	return filepath.Dir(path)
}

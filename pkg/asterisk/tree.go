package asterisk

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ajxudir/asttest/pkg/verbose"
)

// DefaultDirectories is the stock [directories] layout of asterisk.conf.
// Every entry except astmoddir is relocated under the instance base.
var DefaultDirectories = map[string]string{
	"astetcdir":    "/etc/asterisk",
	"astmoddir":    "/usr/lib/asterisk/modules",
	"astvarlibdir": "/var/lib/asterisk",
	"astdbdir":     "/var/lib/asterisk",
	"astkeydir":    "/var/lib/asterisk",
	"astdatadir":   "/var/lib/asterisk",
	"astagidir":    "/var/lib/asterisk/agi-bin",
	"astspooldir":  "/var/spool/asterisk",
	"astrundir":    "/var/run/asterisk",
	"astlogdir":    "/var/log/asterisk",
}

// directoryOrder is the order directories are written to asterisk.conf.
var directoryOrder = []string{
	"astetcdir", "astmoddir", "astvarlibdir", "astdbdir", "astkeydir",
	"astdatadir", "astagidir", "astspooldir", "astrundir", "astlogdir",
}

// SetModuleDir points astmoddir at dir. Modules are shared with the system
// install and never copied into the instance tree.
func (i *Instance) SetModuleDir(dir string) {
	if dir != "" {
		i.directories["astmoddir"] = dir
	}
}

// ModuleDir returns the directory modules are loaded from.
func (i *Instance) ModuleDir() string {
	return i.directories["astmoddir"]
}

// CreateTree creates the instance directories and writes asterisk.conf.
// It is a no-op for remote instances and on repeated calls.
//
// Returns:
//   - error: When a directory or asterisk.conf cannot be written
func (i *Instance) CreateTree() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.treeMade {
		return nil
	}
	if i.base == "" {
		return fmt.Errorf("asterisk %s: no base directory", i.host)
	}

	for _, key := range directoryOrder {
		if key == "astmoddir" {
			continue
		}
		if err := os.MkdirAll(i.directories[key], 0o755); err != nil {
			return fmt.Errorf("create %s: %w", key, err)
		}
	}
	if err := os.WriteFile(i.ConfPath(), []byte(i.renderConf()), 0o644); err != nil {
		return fmt.Errorf("write asterisk.conf: %w", err)
	}
	verbose.Debugf("Asterisk %s tree created at %s", i.host, i.base)
	i.treeMade = true
	return nil
}

func (i *Instance) renderConf() string {
	var b strings.Builder
	b.WriteString("[directories]\n")
	for _, key := range directoryOrder {
		fmt.Fprintf(&b, "%s = %s\n", key, i.directories[key])
	}
	b.WriteString("\n[options]\n")
	keys := make([]string, 0, len(i.options))
	for k := range i.options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s = %s\n", k, i.options[k])
	}
	return b.String()
}

// ReplaceTokens substitutes <<astxxxdir>> and <<instanceid>> in value.
func (i *Instance) ReplaceTokens(value string) string {
	if !strings.Contains(value, "<<") {
		return value
	}
	for key, dir := range i.directories {
		value = strings.ReplaceAll(value, "<<"+key+">>", dir)
	}
	return strings.ReplaceAll(value, "<<instanceid>>", strconv.Itoa(i.id))
}

// InstallConfigs copies the regular files directly inside dir into the
// instance etc directory. Subdirectories are ignored; a missing dir is not an
// error.
//
// Parameters:
//   - dir: Source directory, e.g. tests/foo/configs/ast1
//
// Returns:
//   - int: Number of files installed
//   - error: When a file cannot be read or written
func (i *Instance) InstallConfigs(dir string) (int, error) {
	if i.remote {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read configs %s: %w", dir, err)
	}
	if err := i.CreateTree(); err != nil {
		return 0, err
	}

	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := i.InstallConfig(filepath.Join(dir, e.Name()), ""); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// InstallConfig copies one file into the etc directory, replacing tokens.
// An empty target keeps the source file name.
func (i *Instance) InstallConfig(src, target string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read config %s: %w", src, err)
	}
	if target == "" {
		target = filepath.Base(src)
	}
	dst := filepath.Join(i.EtcDir(), target)
	if err := os.WriteFile(dst, []byte(i.ReplaceTokens(string(data))), 0o644); err != nil {
		return fmt.Errorf("install config %s: %w", dst, err)
	}
	verbose.Tracef("installed %s -> %s", src, dst)
	return nil
}

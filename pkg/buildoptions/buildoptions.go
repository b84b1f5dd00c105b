// Package buildoptions reads the compile-time options Asterisk was built
// with from its buildopts.h header and answers "is option X set to Y".
//
// Conditions that depend on debug-only CLI commands (core show locks needs
// DEBUG_THREADS, core show fd needs DEBUG_FD_LEAKS) declare their
// requirements and the condition controller consults a Cache before
// evaluating them.
package buildoptions

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/iancoleman/orderedmap"

	"github.com/ajxudir/asttest/pkg/verbose"
	"github.com/ajxudir/asttest/pkg/warnings"
)

// DefaultSearchPaths lists the locations probed for buildopts.h, in order.
var DefaultSearchPaths = []string{
	"./astroot/usr/include/asterisk/buildopts.h",
	"../include/asterisk/buildopts.h",
	"/usr/include/asterisk/buildopts.h",
	"/usr/local/include/asterisk/buildopts.h",
}

// Options is the parsed set of build options, in header order.
type Options struct {
	path   string
	values *orderedmap.OrderedMap
}

// Empty returns an Options with no defines. Check against it only succeeds
// for an expected value of "0".
func Empty() *Options {
	return &Options{values: orderedmap.New()}
}

// Parse reads "#define NAME VALUE" lines from r.
//
// Lines that contain "#define" but cannot be split into a name and a value
// are reported as warnings and skipped.
//
// Parameters:
//   - r: Reader over the header contents
//
// Returns:
//   - *Options: The parsed options
//   - error: Read errors only; malformed lines are never fatal
func Parse(r io.Reader) (*Options, error) {
	opts := Empty()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, "#define")
		if idx < 0 {
			continue
		}
		fields := strings.Fields(line[idx+len("#define"):])
		if len(fields) < 2 {
			warnings.Warnf("Unable to parse build option line [%s] into compiler flag token and value\n", strings.TrimSpace(line))
			continue
		}
		opts.values.Set(fields[0], strings.Join(fields[1:], " "))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read build options: %w", err)
	}
	return opts, nil
}

// ParseFile parses the header at path.
func ParseFile(path string) (*Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	opts, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	opts.path = path
	return opts, nil
}

// Path returns the file the options were read from, or "" for Empty().
func (o *Options) Path() string {
	return o.path
}

// Len returns the number of defines.
func (o *Options) Len() int {
	return len(o.values.Keys())
}

// Names returns the option names in header order.
func (o *Options) Names() []string {
	return o.values.Keys()
}

// Get returns the raw value of an option.
func (o *Options) Get(name string) (string, bool) {
	v, ok := o.values.Get(name)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

// Check reports whether option name has the expected value.
//
// An absent option satisfies only expected == "0". An empty expected value
// is treated as "1".
func (o *Options) Check(name, expected string) bool {
	if expected == "" {
		expected = "1"
	}
	if v, ok := o.Get(name); ok {
		return v == expected
	}
	return expected == "0"
}

// Cache loads build options once and shares them for the lifetime of a
// suite run. The zero value is not usable; use NewCache.
type Cache struct {
	paths []string

	once sync.Once
	opts *Options
	err  error
}

// NewCache returns a cache that probes path (when non-empty) followed by
// DefaultSearchPaths.
func NewCache(path string) *Cache {
	paths := make([]string, 0, len(DefaultSearchPaths)+1)
	if path != "" {
		paths = append(paths, path)
	}
	paths = append(paths, DefaultSearchPaths...)
	return &Cache{paths: paths}
}

// NewStaticCache returns a cache pre-loaded with opts. Used by callers that
// already hold parsed options, and by tests.
func NewStaticCache(opts *Options) *Cache {
	c := &Cache{}
	c.once.Do(func() { c.opts = opts })
	return c
}

// Options returns the loaded options.
//
// The first file that yields at least one define wins. When no file does,
// Options returns Empty() together with an error describing the probe.
func (c *Cache) Options() (*Options, error) {
	c.once.Do(c.load)
	return c.opts, c.err
}

func (c *Cache) load() {
	for _, p := range c.paths {
		opts, err := ParseFile(p)
		if err != nil {
			verbose.Tracef("build options: %s: %v", p, err)
			continue
		}
		if opts.Len() == 0 {
			verbose.Debugf("build options: %s has no defines, skipping", p)
			continue
		}
		verbose.Debugf("build options: loaded %d defines from %s", opts.Len(), p)
		c.opts = opts
		return
	}
	c.opts = Empty()
	c.err = fmt.Errorf("failed to open any build options files (buildopts.h) in %s", strings.Join(c.paths, ", "))
}

// Check reports whether option name has the expected value. When no header
// could be loaded every option is treated as absent.
func (c *Cache) Check(name, expected string) bool {
	opts, _ := c.Options()
	return opts.Check(name, expected)
}

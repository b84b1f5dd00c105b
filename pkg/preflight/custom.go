package preflight

import (
	"context"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ajxudir/asttest/pkg/cmdexec"
)

// CustomCheck decides a named custom dependency.
type CustomCheck func(ctx context.Context, c *Cache) bool

// Registry maps custom dependency names to their checks.
type Registry struct {
	checks map[string]CustomCheck
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]CustomCheck)}
}

// Register adds or replaces the check for name.
func (r *Registry) Register(name string, check CustomCheck) {
	r.checks[name] = check
}

// Get returns the check registered for name.
func (r *Registry) Get(name string) (CustomCheck, bool) {
	check, ok := r.checks[name]
	return check, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.checks))
	for n := range r.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// faxProviders are the modules that can serve fax tests.
var faxProviders = []string{"app_fax", "res_fax_spandsp", "res_fax_digium"}

// DefaultRegistry returns the built-in custom checks: ipv6, fax, pjsuav6
// and soundcard.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("ipv6", func(context.Context, *Cache) bool { return ipv6Available() })
	r.Register("fax", func(_ context.Context, c *Cache) bool {
		for _, m := range faxProviders {
			if c.HasModule(m) {
				return true
			}
		}
		return false
	})
	r.Register("pjsuav6", func(ctx context.Context, _ *Cache) bool { return pjsuaHasIPv6(ctx) })
	r.Register("soundcard", func(context.Context, *Cache) bool {
		f, err := os.Open("/dev/dsp")
		if err != nil {
			return false
		}
		_ = f.Close()
		return true
	})
	return r
}

func ipv6Available() bool {
	ln, err := net.Listen("tcp6", "[::1]:0")
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// pjsuaHasIPv6 reports whether pjsua was built with --ipv6 support.
func pjsuaHasIPv6(ctx context.Context) bool {
	if _, err := LookPath("pjsua"); err != nil {
		return false
	}
	res, err := cmdexec.Run(ctx, cmdexec.Spec{Path: "pjsua", Args: []string{"--help"}, Timeout: 10 * time.Second})
	if err != nil {
		return false
	}
	return strings.Contains(string(res.Stdout), "--ipv6")
}

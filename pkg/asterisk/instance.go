// Package asterisk manages Asterisk server instances used by a test: it
// builds a private configuration tree, spawns the daemon, waits for it to
// boot, drives it through the remote console and stops it again.
package asterisk

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ajxudir/asttest/pkg/cmdexec"
	"github.com/ajxudir/asttest/pkg/verbose"
	"github.com/ajxudir/asttest/pkg/warnings"
)

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultHost         = "127.0.0.1"
	DefaultBinary       = "asterisk"
	DefaultBootTimeout  = 45 * time.Second
	DefaultStopTimeout  = 45 * time.Second
	DefaultBootDelay    = time.Second
	DefaultPollInterval = time.Second
)

const fullyBootedMarker = "Asterisk has fully booted"

// Config describes one instance.
//
// Fields:
//   - ID: 1-based instance number, used for the ast<N> directory and <<instanceid>>
//   - Host: Address the instance listens on
//   - Binary: Path to the asterisk executable
//   - Base: Root of the instance tree; every directory is created beneath it
//   - Remote: Instance runs elsewhere; nothing is spawned or installed
//   - Options: Overrides for the [options] section of asterisk.conf
//   - BootTimeout: How long to wait for "core waitfullybooted" to succeed
//   - StopTimeout: How long a graceful stop may take before the process is killed
//   - BootDelay: Pause between spawning and the first boot poll
//   - PollInterval: Spacing of boot polls
//   - CLITimeout: Bound for a single remote console command
type Config struct {
	ID           int
	Host         string
	Binary       string
	Base         string
	Remote       bool
	Options      map[string]string
	BootTimeout  time.Duration
	StopTimeout  time.Duration
	BootDelay    time.Duration
	PollInterval time.Duration
	CLITimeout   time.Duration
}

// Instance is one managed Asterisk server. It is owned by a single test case.
type Instance struct {
	id           int
	host         string
	binary       string
	base         string
	remote       bool
	options      map[string]string
	directories  map[string]string
	bootTimeout  time.Duration
	stopTimeout  time.Duration
	bootDelay    time.Duration
	pollInterval time.Duration
	cliTimeout   time.Duration

	mu       sync.Mutex
	proc     *cmdexec.Process
	treeMade bool

	stopOnce sync.Once
	stopped  chan struct{}
	stopErr  error
}

// New creates an instance from cfg, filling in defaults.
//
// Parameters:
//   - cfg: Instance configuration
//
// Returns:
//   - *Instance: The instance; nothing is created on disk until Start or CreateTree
func New(cfg Config) *Instance {
	inst := &Instance{
		id:           cfg.ID,
		host:         orDefault(cfg.Host, DefaultHost),
		binary:       orDefault(cfg.Binary, DefaultBinary),
		base:         cfg.Base,
		remote:       cfg.Remote,
		options:      cfg.Options,
		bootTimeout:  durationOr(cfg.BootTimeout, DefaultBootTimeout),
		stopTimeout:  durationOr(cfg.StopTimeout, DefaultStopTimeout),
		bootDelay:    durationOr(cfg.BootDelay, DefaultBootDelay),
		pollInterval: durationOr(cfg.PollInterval, DefaultPollInterval),
		cliTimeout:   durationOr(cfg.CLITimeout, DefaultCLITimeout),
		stopped:      make(chan struct{}),
	}
	inst.directories = make(map[string]string, len(DefaultDirectories))
	for k, v := range DefaultDirectories {
		if inst.remote || k == "astmoddir" {
			inst.directories[k] = v
			continue
		}
		inst.directories[k] = filepath.Join(inst.base, v)
	}
	if inst.remote {
		inst.treeMade = true
	}
	return inst
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func durationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// ID returns the instance number.
func (i *Instance) ID() int { return i.id }

// Host returns the address of the instance.
func (i *Instance) Host() string { return i.host }

// Base returns the root of the instance tree.
func (i *Instance) Base() string { return i.base }

// Remote reports whether the instance is managed elsewhere.
func (i *Instance) Remote() bool { return i.remote }

// Directories returns a copy of the astxxxdir map of this instance.
func (i *Instance) Directories() map[string]string {
	out := make(map[string]string, len(i.directories))
	for k, v := range i.directories {
		out[k] = v
	}
	return out
}

// EtcDir returns the configuration directory of this instance.
func (i *Instance) EtcDir() string {
	return i.directories["astetcdir"]
}

// ConfPath returns the asterisk.conf the daemon and remote console use.
func (i *Instance) ConfPath() string {
	return filepath.Join(i.EtcDir(), "asterisk.conf")
}

// Path joins parts onto the directory named by key, e.g. Path("astlogdir", "messages").
func (i *Instance) Path(key string, parts ...string) (string, error) {
	dir, ok := i.directories[key]
	if !ok {
		return "", fmt.Errorf("unknown asterisk directory %q", key)
	}
	return filepath.Join(append([]string{dir}, parts...)...), nil
}

// Start spawns the daemon and blocks until it reports fully booted.
//
// It performs the following operations:
//   - Step 1: Create the instance tree if it does not exist yet
//   - Step 2: Spawn "asterisk -f -g -q -m -n -C <conf>"
//   - Step 3: After the boot delay, poll "core waitfullybooted" once per
//     poll interval until it succeeds, the process exits or the boot timeout
//     elapses
//
// Remote instances return immediately.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - error: When the tree cannot be built, the process cannot be spawned or it never boots
func (i *Instance) Start(ctx context.Context) error {
	if i.remote {
		verbose.Infof("Asterisk %s is remote, not starting", i.host)
		return nil
	}
	if err := i.CreateTree(); err != nil {
		return err
	}

	spec := cmdexec.Spec{
		Path: i.binary,
		Args: []string{"-f", "-g", "-q", "-m", "-n", "-C", i.ConfPath()},
		Dir:  i.base,
	}
	verbose.Infof("Starting Asterisk %s: %s", i.host, spec)
	proc, err := cmdexec.Start(spec)
	if err != nil {
		return fmt.Errorf("start asterisk %s: %w", i.host, err)
	}
	i.mu.Lock()
	i.proc = proc
	i.mu.Unlock()

	return i.waitFullyBooted(ctx, proc)
}

func (i *Instance) waitFullyBooted(ctx context.Context, proc *cmdexec.Process) error {
	bootCtx, cancel := context.WithTimeout(ctx, i.bootTimeout+i.bootDelay)
	defer cancel()

	select {
	case <-time.After(i.bootDelay):
	case <-proc.Done():
		return fmt.Errorf("Asterisk %s exited during startup (exit %d)", i.host, proc.ExitCode())
	case <-bootCtx.Done():
		return fmt.Errorf("Asterisk core waitfullybooted for %s failed: %w", i.host, bootCtx.Err())
	}

	limiter := rate.NewLimiter(rate.Every(i.pollInterval), 1)
	for {
		if err := limiter.Wait(bootCtx); err != nil {
			return fmt.Errorf("Asterisk core waitfullybooted for %s failed: %w", i.host, err)
		}
		if proc.Exited() {
			return fmt.Errorf("Asterisk %s exited during startup (exit %d)", i.host, proc.ExitCode())
		}
		res, err := i.CLIExec(bootCtx, "core waitfullybooted")
		if err == nil && strings.Contains(res.Output, fullyBootedMarker) {
			verbose.Infof("Asterisk %s fully booted", i.host)
			return nil
		}
		verbose.Debugf("Asterisk %s not booted yet", i.host)
	}
}

// Running reports whether a spawned daemon is still alive.
func (i *Instance) Running() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.proc != nil && !i.proc.Exited()
}

// Stop ends the instance. Only the first call does any work; later calls
// wait for it and return its result.
//
// It performs the following operations:
//   - Sends "core stop gracefully" through the remote console
//   - Kills the process when it has not exited after the stop timeout
//   - Reports an instance that had already exited as stopped prematurely
//
// Parameters:
//   - ctx: Context for cancellation; cancelling kills the process
//
// Returns:
//   - error: Non-nil when the process had exited before Stop was called
func (i *Instance) Stop(ctx context.Context) error {
	i.stopOnce.Do(func() {
		defer close(i.stopped)
		i.stopErr = i.stop(ctx)
	})
	<-i.stopped
	return i.stopErr
}

// Stopped is closed once Stop has completed.
func (i *Instance) Stopped() <-chan struct{} {
	return i.stopped
}

func (i *Instance) stop(ctx context.Context) error {
	i.mu.Lock()
	proc := i.proc
	i.mu.Unlock()

	if proc == nil {
		return nil
	}
	if proc.Exited() {
		warnings.Warnf("Asterisk %s stopped prematurely\n", i.host)
		return fmt.Errorf("Asterisk %s stopped prematurely", i.host)
	}

	go func() {
		if _, err := i.CLIExec(ctx, "core stop gracefully"); err != nil {
			verbose.Debugf("core stop gracefully on %s: %v", i.host, err)
		}
	}()

	timer := time.NewTimer(i.stopTimeout)
	defer timer.Stop()

	select {
	case <-proc.Done():
		verbose.Infof("Asterisk %s stopped gracefully", i.host)
		return nil
	case <-timer.C:
		warnings.Warnf("Asterisk %s did not stop gracefully in %s, killing\n", i.host, i.stopTimeout)
	case <-ctx.Done():
		verbose.Infof("Asterisk %s stop cancelled, killing", i.host)
	}

	if err := proc.Kill(); err != nil && !proc.Exited() {
		return fmt.Errorf("kill asterisk %s: %w", i.host, err)
	}
	<-proc.Done()
	return nil
}

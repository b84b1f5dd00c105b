package checks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ajxudir/asttest/pkg/condition"
	"github.com/ajxudir/asttest/pkg/verbose"
)

const noSuchCallID = "No such SIP Call ID"

// DialogNames extracts dialog names from "sip show objects" output. Only
// "name:" lines after the "Dialog objects" heading are dialogs; earlier ones
// are peers and users.
func DialogNames(output string) []string {
	var names []string
	inDialogs := false
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "Dialog objects") {
			inDialogs = true
		}
		if !inDialogs || !strings.Contains(line, "name:") {
			continue
		}
		names = append(names, strings.TrimSpace(line[strings.Index(line, ":")+1:]))
	}
	return names
}

// sipDialogs collects the history of every dialog per host.
type sipDialogs struct {
	mu      sync.Mutex
	history map[string]map[string][]string
}

func (d *sipDialogs) collect(ctx context.Context, base *condition.Base, inst condition.Instance) (bool, error) {
	res, ok, err := base.Query(ctx, inst, "sip show objects")
	if err != nil || !ok {
		return false, err
	}

	host := inst.Host()
	dialogs := make(map[string][]string)
	names := DialogNames(res.Output)
	if len(names) == 0 {
		verbose.Debugf("No SIP history found for Asterisk instance %s", host)
	}
	for _, name := range names {
		verbose.Debugf("Retrieving history for SIP dialog %s", name)
		hist, err := inst.CLIExec(ctx, "sip show history "+name)
		if err != nil {
			return false, err
		}
		// A dialog destroyed between the two commands has no history.
		if hist.NoData() || strings.Contains(hist.Output, noSuchCallID) {
			continue
		}
		dialogs[name] = hist.Lines()
	}

	d.mu.Lock()
	d.history[host] = dialogs
	d.mu.Unlock()
	return true, nil
}

// Dialogs returns the history lines of every dialog seen on host.
func (d *sipDialogs) Dialogs(host string) map[string][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string][]string, len(d.history[host]))
	for k, v := range d.history[host] {
		out[k] = v
	}
	return out
}

// SipDialogPre fails when any SIP dialog exists before the test runs. It also
// turns on SIP history so the post check can inspect it.
type SipDialogPre struct {
	*condition.Base
	sipDialogs
}

// NewSipDialogPre creates the sipdialog.pre condition.
func NewSipDialogPre(cfg condition.Config) condition.Condition {
	return &SipDialogPre{Base: condition.NewBase(cfg), sipDialogs: sipDialogs{history: make(map[string]map[string][]string)}}
}

// Evaluate implements condition.Condition.
func (c *SipDialogPre) Evaluate(ctx context.Context, _ condition.Condition) error {
	return c.ForEachInstance(ctx, func(ctx context.Context, inst condition.Instance) error {
		if _, _, err := c.Query(ctx, inst, "sip set history on"); err != nil {
			return err
		}
		ok, err := c.collect(ctx, c.Base, inst)
		if err != nil {
			return err
		}
		if n := len(c.Dialogs(inst.Host())); ok && n > 0 {
			c.FailCheck(fmt.Sprintf("%d dialogs were detected in Asterisk %s before test execution", n, inst.Host()))
			return nil
		}
		c.PassCheck()
		return nil
	})
}

// SipDialogPost checks that every remaining dialog is scheduled for
// destruction and that its history contains each configured requirement.
type SipDialogPost struct {
	*condition.Base
	sipDialogs
	requirements []string
}

// NewSipDialogPost creates the sipdialog.post condition. The
// history-requirements option lists history steps every dialog must show;
// sipHistoryRequirements is accepted for older test configs.
func NewSipDialogPost(cfg condition.Config) condition.Condition {
	return &SipDialogPost{
		Base:         condition.NewBase(cfg),
		sipDialogs:   sipDialogs{history: make(map[string]map[string][]string)},
		requirements: optionList(cfg, "history-requirements", "history_requirements", "sipHistoryRequirements"),
	}
}

// Evaluate implements condition.Condition.
func (c *SipDialogPost) Evaluate(ctx context.Context, _ condition.Condition) error {
	return c.ForEachInstance(ctx, func(ctx context.Context, inst condition.Instance) error {
		if _, err := c.collect(ctx, c.Base, inst); err != nil {
			return err
		}
		c.PassCheck()

		host := inst.Host()
		dialogs := c.Dialogs(host)
		for _, name := range sortedKeys(dialogs) {
			history := dialogs[name]
			found := make(map[string]bool, len(c.requirements))
			scheduled := false
			for _, line := range history {
				if strings.Contains(line, "SchedDestroy") {
					scheduled = true
				}
				for _, req := range c.requirements {
					if strings.Contains(line, req) {
						found[req] = true
					}
				}
			}
			if !scheduled {
				c.FailCheck(fmt.Sprintf("Dialog %s in Asterisk instance %s not scheduled for destruction", name, host))
			}
			for _, req := range c.requirements {
				if !found[req] {
					c.FailCheck(fmt.Sprintf("Dialog %s in Asterisk instance %s did not have required step in history: %s", name, host, req))
				}
			}
		}
		return nil
	})
}

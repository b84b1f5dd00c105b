package checks

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ajxudir/asttest/pkg/condition"
)

// CountParser extracts the active channel count from command output.
type CountParser func(output string) (int, bool)

// ChannelCheck fails when more channels are active after the test than the
// allowedchannels option permits (default 0).
type ChannelCheck struct {
	*condition.Base
	command string
	parse   CountParser
	allowed int
}

func newChannelCheck(cfg condition.Config, command string, parse CountParser) *ChannelCheck {
	return &ChannelCheck{
		Base:    condition.NewBase(cfg),
		command: command,
		parse:   parse,
		allowed: cfg.IntOption("allowedchannels", 0),
	}
}

// NewChannelCheck creates the channel.post condition using "core show channels".
func NewChannelCheck(cfg condition.Config) condition.Condition {
	return newChannelCheck(cfg, "core show channels", ParseCoreChannels)
}

// NewSipChannelCheck creates the sipchannel.post condition using "sip show channels".
func NewSipChannelCheck(cfg condition.Config) condition.Condition {
	return newChannelCheck(cfg, "sip show channels", ParseSipChannels)
}

// NewPjsipChannelCheck creates the pjsipchannel.post condition using "pjsip show channels".
func NewPjsipChannelCheck(cfg condition.Config) condition.Condition {
	return newChannelCheck(cfg, "pjsip show channels", ParsePjsipChannels)
}

// Allowed returns the configured channel allowance.
func (c *ChannelCheck) Allowed() int { return c.allowed }

// Evaluate implements condition.Condition.
func (c *ChannelCheck) Evaluate(ctx context.Context, _ condition.Condition) error {
	c.PassCheck()
	return c.ForEachInstance(ctx, func(ctx context.Context, inst condition.Instance) error {
		res, ok, err := c.Query(ctx, inst, c.command)
		if err != nil || !ok {
			return err
		}
		active, _ := c.parse(res.Output)
		if active > c.allowed {
			c.FailCheck(fmt.Sprintf("Detected number of active channels %d is greater than the allowed %d on Asterisk %s",
				active, c.allowed, inst.Host()))
		}
		return nil
	})
}

// leadingCount returns the integer that starts the last line containing marker.
func leadingCount(output, marker string) (int, bool) {
	count, found := 0, false
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, marker) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if n, err := strconv.Atoi(fields[0]); err == nil {
			count, found = n, true
		}
	}
	return count, found
}

// ParseCoreChannels reads "N active channel(s)" from "core show channels".
func ParseCoreChannels(output string) (int, bool) {
	return leadingCount(output, "active channel")
}

// ParseSipChannels reads "N active SIP channel(s)" from "sip show channels".
func ParseSipChannels(output string) (int, bool) {
	return leadingCount(output, "active SIP channel")
}

// ParsePjsipChannels reads "Objects found: N" from "pjsip show channels".
func ParsePjsipChannels(output string) (int, bool) {
	count, found := 0, false
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, "Objects found:")
		if idx < 0 {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(line[idx+len("Objects found:"):])); err == nil {
			count, found = n, true
		}
	}
	return count, found
}

// Package checks implements the built-in test conditions.
//
// Every check embeds *condition.Base and is registered under a typename of
// the form "<kind>.pre" or "<kind>.post". Post checks that compare against
// a snapshot read the related pre check through a small accessor interface
// and never modify it.
package checks

import (
	"github.com/ajxudir/asttest/pkg/condition"
)

// Typenames of the built-in checks.
const (
	TypeLockPost          = "lock.post"
	TypeSipDialogPre      = "sipdialog.pre"
	TypeSipDialogPost     = "sipdialog.post"
	TypeTaskProcessorPre  = "taskprocessor.pre"
	TypeTaskProcessorPost = "taskprocessor.post"
	TypeChannelPost       = "channel.post"
	TypeSipChannelPost    = "sipchannel.post"
	TypePjsipChannelPost  = "pjsipchannel.post"
	TypeThreadPre         = "thread.pre"
	TypeThreadPost        = "thread.post"
	TypeFdPre             = "fd.pre"
	TypeFdPost            = "fd.post"
)

// Register adds every built-in check to reg.
//
// Returns:
//   - error: When a typename is already taken in reg
func Register(reg *condition.Registry) error {
	factories := []struct {
		typename string
		factory  condition.Factory
	}{
		{TypeLockPost, NewLockCheck},
		{TypeSipDialogPre, NewSipDialogPre},
		{TypeSipDialogPost, NewSipDialogPost},
		{TypeTaskProcessorPre, NewTaskProcessorPre},
		{TypeTaskProcessorPost, NewTaskProcessorPost},
		{TypeChannelPost, NewChannelCheck},
		{TypeSipChannelPost, NewSipChannelCheck},
		{TypePjsipChannelPost, NewPjsipChannelCheck},
		{TypeThreadPre, NewThreadPre},
		{TypeThreadPost, NewThreadPost},
		{TypeFdPre, NewFdPre},
		{TypeFdPost, NewFdPost},
	}
	for _, f := range factories {
		if err := reg.Register(f.typename, f.factory); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding every built-in check.
func NewRegistry() *condition.Registry {
	reg := condition.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}

package condition

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajxudir/asttest/pkg/testutil"
)

// TestBase_StatusIsMonotonic tests that Failed can never be undone.
func TestBase_StatusIsMonotonic(t *testing.T) {
	b := NewBase(Config{Typename: "lock.post", Enabled: true, PassExpected: true})
	assert.Equal(t, Inconclusive, b.Status())

	b.PassCheck()
	assert.Equal(t, Passed, b.Status())

	b.FailCheck("first")
	b.PassCheck()
	b.FailCheck("")
	b.FailCheck("second")
	b.PassCheck()

	assert.Equal(t, Failed, b.Status())
	assert.Equal(t, []string{"first", "second"}, b.Reasons())
}

// TestBase_String tests the log rendering of a condition.
func TestBase_String(t *testing.T) {
	b := NewBase(Config{Typename: "fd.post"})
	assert.Equal(t, "Test Condition [fd.post]: [Inconclusive]", b.String())

	b.PassCheck()
	assert.Equal(t, "Test Condition [fd.post]: [Passed]", b.String())

	b.FailCheck("r1")
	b.FailCheck("r2")
	assert.Equal(t, "Test Condition [fd.post]: [Failed]\n\tReason: r1\n\tReason: r2", b.String())
}

// TestBase_Accessors tests configuration accessors and instance registration.
func TestBase_Accessors(t *testing.T) {
	opts := map[string]any{"allowedchannels": 2}
	b := NewBase(Config{Name: "channels", Typename: "channel.post", Role: "POST", Enabled: true, Options: opts})
	opts["allowedchannels"] = 9

	assert.Equal(t, "channel.post", b.Name())
	assert.Equal(t, "channels", b.Config().Name)
	assert.True(t, b.Enabled())
	assert.False(t, b.PassExpected())
	assert.Equal(t, 2, b.Config().IntOption("allowedchannels", 0))

	b.AddBuildOption("DEBUG_THREADS", "")
	b.AddBuildOption("LOW_MEMORY", "0")
	assert.Equal(t, []BuildOption{{Name: "DEBUG_THREADS", Expected: "1"}, {Name: "LOW_MEMORY", Expected: "0"}}, b.BuildOptions())

	a1 := testutil.NewFakeInstance("127.0.0.1")
	a2 := testutil.NewFakeInstance("127.0.0.2")
	b.RegisterInstance(a1)
	b.RegisterInstance(a2)
	b.RegisterInstance(a1)
	require.Len(t, b.Instances(), 2)
	assert.Equal(t, "127.0.0.2", b.Instances()[1].Host())
}

// TestBase_ForEachInstance tests fan-out and error joining.
func TestBase_ForEachInstance(t *testing.T) {
	b := NewBase(Config{Typename: "x"})
	for _, h := range []string{"a", "b", "c"} {
		b.RegisterInstance(testutil.NewFakeInstance(h))
	}

	var seen atomic.Int32
	err := b.ForEachInstance(context.Background(), func(ctx context.Context, inst Instance) error {
		seen.Add(1)
		if inst.Host() == "b" {
			return errors.New("b broke")
		}
		return nil
	})
	assert.Equal(t, int32(3), seen.Load())
	assert.EqualError(t, err, "b broke")
}

// TestBase_Query tests the no-data classification of query results.
func TestBase_Query(t *testing.T) {
	ctx := context.Background()
	b := NewBase(Config{Typename: "x"})
	inst := testutil.NewFakeInstance("h").
		On("good", "data").
		On("gone", "Unable to connect to remote asterisk").
		OnResponse("err", testutil.Response{Err: errors.New("spawn")})

	restore := captureWarnings(t)
	defer restore()

	res, ok, err := b.Query(ctx, inst, "good")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "data", res.Output)

	_, ok, err = b.Query(ctx, inst, "gone")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = b.Query(ctx, inst, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = b.Query(ctx, inst, "err")
	assert.Error(t, err)
	assert.False(t, ok)
}

// TestConfigOptions tests typed option access.
func TestConfigOptions(t *testing.T) {
	cfg := Config{Role: "pre", Options: map[string]any{
		"int":    3,
		"float":  4.0,
		"string": " 5 ",
		"bad":    "x",
		"list":   []any{"a", 1},
		"slist":  []string{"s"},
		"scalar": "only",
	}}

	assert.True(t, cfg.IsPre())
	assert.False(t, Config{Role: "POST"}.IsPre())

	assert.Equal(t, 3, cfg.IntOption("int", 0))
	assert.Equal(t, 4, cfg.IntOption("float", 0))
	assert.Equal(t, 5, cfg.IntOption("string", 0))
	assert.Equal(t, 7, cfg.IntOption("bad", 7))
	assert.Equal(t, 8, cfg.IntOption("absent", 8))

	assert.Equal(t, []string{"a", "1"}, cfg.StringsOption("list"))
	assert.Equal(t, []string{"s"}, cfg.StringsOption("slist"))
	assert.Equal(t, []string{"only"}, cfg.StringsOption("scalar"))
	assert.Nil(t, cfg.StringsOption("absent"))

	v, ok := cfg.Option("int")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

// TestRegistry tests registration and creation.
func TestRegistry(t *testing.T) {
	r := NewRegistry()
	factory := func(cfg Config) Condition { return newStub(cfg, nil) }

	require.NoError(t, r.Register("stub.pre", factory))
	assert.Error(t, r.Register("stub.pre", factory))
	assert.Error(t, r.Register("", factory))
	assert.Error(t, r.Register("nil.pre", nil))
	require.NoError(t, r.Register("a.post", factory))

	assert.True(t, r.Has("stub.pre"))
	assert.False(t, r.Has("nope"))
	assert.Equal(t, []string{"a.post", "stub.pre"}, r.Typenames())

	c, err := r.Create(Config{Name: "stub", Typename: "stub.pre"})
	require.NoError(t, err)
	assert.Equal(t, "stub.pre", c.Name())

	_, err = r.Create(Config{Name: "x", Typename: "missing.pre"})
	assert.EqualError(t, err, `unknown condition typename "missing.pre" for x`)
}

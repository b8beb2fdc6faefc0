package eventlink

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/multierr"
)

type fakeComponent struct {
	name    string
	stopped *[]string
	err     error
	running bool
}

func (f *fakeComponent) Stop() error {
	*f.stopped = append(*f.stopped, f.name)
	f.running = false
	return f.err
}

func (f *fakeComponent) IsRunning() bool {
	return f.running
}

func TestGroupStopsInReverseOrder(t *testing.T) {
	var stopped []string
	g := NewGroup("pipeline")
	g.Add(
		&fakeComponent{name: "dispatcher", stopped: &stopped, running: true},
		&fakeComponent{name: "pump", stopped: &stopped, running: true},
	)
	assert.Equal(t, "pipeline", g.Name())
	assert.Equal(t, 2, g.Count())
	assert.True(t, g.IsRunning())

	require.NoError(t, g.Stop())
	assert.Equal(t, []string{"pump", "dispatcher"}, stopped)
	assert.False(t, g.IsRunning())
}

func TestGroupStopCollectsErrors(t *testing.T) {
	var stopped []string
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	g := NewGroup("g")
	g.Add(
		&fakeComponent{name: "a", stopped: &stopped, err: errA},
		&fakeComponent{name: "b", stopped: &stopped},
		&fakeComponent{name: "c", stopped: &stopped, err: errC},
	)

	err := g.Stop()
	assert.Equal(t, []string{"c", "b", "a"}, stopped, "a failure does not skip the rest")
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestGroupNesting(t *testing.T) {
	var stopped []string
	inner := NewGroup("inner")
	inner.Add(&fakeComponent{name: "x", stopped: &stopped, running: true})
	outer := NewGroup("outer")
	outer.Add(inner, &fakeComponent{name: "y", stopped: &stopped})

	assert.True(t, outer.IsRunning())
	require.NoError(t, outer.Stop())
	assert.Equal(t, []string{"y", "x"}, stopped)
}

func TestGroupLifecycle(t *testing.T) {
	ch := newTestChannel[int, int](t, 3)
	var consumed atomic.Int64
	require.NoError(t, ch.SetAnswerlessConsumer(counting(&consumed)))
	d, err := NewDispatcher(ch, 1, Capabilities{ConsumeAnswerless: true})
	require.NoError(t, err)

	in := make(chan int)
	p := NewPump(in, ch)

	g := NewGroup("orders")
	g.Add(d, p)

	lc := fxtest.NewLifecycle(t)
	g.BindLifecycle(lc)
	lc.RequireStart()

	for i := range 10 {
		in <- i
	}
	require.Eventually(t, func() bool { return p.Count() == 10 }, testTimeout, time.Millisecond)
	assert.True(t, g.IsRunning())

	lc.RequireStop()
	assert.False(t, p.IsRunning())
	assert.False(t, d.IsRunning())
	assert.Equal(t, int64(10), consumed.Load())
	assert.Equal(t, 0, ch.ReservedLength())
}

package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestProfiler_TickReportsAtInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var titles []string
	p := NewProfiler(
		WithClock(clock.now),
		WithQuiet(true),
		WithTitle("oxy-bench", func(s string) { titles = append(titles, s) }),
	)

	// 1/60 s rounded up so sixty frames reach the interval.
	frame := 16666667 * time.Nanosecond
	for i := 0; i < 59; i++ {
		clock.advance(frame)
		assert.False(t, p.Tick())
	}
	clock.advance(frame)
	require.True(t, p.Tick())

	assert.InDelta(t, 60, p.LastFPS(), 0.5)
	require.Len(t, titles, 1)
	assert.Equal(t, "oxy-bench | FPS: 60", titles[0])
}

func TestProfiler_AverageFPS(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := NewProfiler(WithClock(clock.now), WithQuiet(true), WithInterval(10*time.Second))
	assert.Zero(t, p.AverageFPS())

	for i := 0; i < 90; i++ {
		clock.advance(time.Second / 30)
		p.Tick()
	}
	assert.Equal(t, 90, p.TotalFrames())
	assert.InDelta(t, 30, p.AverageFPS(), 0.01)
	assert.Zero(t, p.LastFPS())
}

func TestWithInterval_IgnoresNonPositive(t *testing.T) {
	p := NewProfiler(WithInterval(0))
	assert.Equal(t, time.Second, p.updateInterval)
}

package profiler

import "time"

// ProfilerBuilderOption is a functional option for configuring a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithInterval sets how often statistics are logged. Non-positive values keep the default.
//
// Parameters:
//   - interval: the logging interval
//
// Returns:
//   - ProfilerBuilderOption: a function that sets the interval
func WithInterval(interval time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if interval > 0 {
			p.updateInterval = interval
		}
	}
}

// WithTitle mirrors each interval's frame rate into a window title as "<title> | FPS: <n>".
//
// Parameters:
//   - title: the title prefix
//   - setTitle: the function that sets the window title
//
// Returns:
//   - ProfilerBuilderOption: a function that sets the title callback
func WithTitle(title string, setTitle func(string)) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.title = title
		p.setTitle = setTitle
	}
}

// WithClock replaces time.Now. Tests use it to step time deterministically.
func WithClock(now func() time.Time) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.now = now
	}
}

// WithQuiet disables the log line. The title callback still runs.
func WithQuiet(quiet bool) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.quiet = quiet
	}
}

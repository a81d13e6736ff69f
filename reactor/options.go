// File: reactor/options.go
// Author: momentics <momentics@gmail.com>
//
// Loop configuration with sane defaults.

package reactor

import (
	"time"

	"github.com/sirupsen/logrus"
)

// maxEventsCap bounds the kernel batch buffer regardless of the fd limit.
const maxEventsCap = 1024

// Config holds parameters fixed for the lifetime of a Loop.
type Config struct {
	MaxEvents int                // Kernel batch size; 0 derives it from RLIMIT_NOFILE
	Tick      time.Duration      // Duration of one timer-wheel tick
	Logger    logrus.FieldLogger // Destination for backend diagnostics
	Recorder  Recorder           // Loop counters sink
	Clock     func() time.Time   // Monotonic time source
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		MaxEvents: defaultMaxEvents(),
		Tick:      time.Millisecond,
		Logger:    logrus.StandardLogger(),
		Recorder:  nopRecorder{},
		Clock:     time.Now,
	}
}

// Option mutates a Config.
type Option func(*Config)

// WithMaxEvents overrides the kernel batch size, still capped.
func WithMaxEvents(n int) Option {
	return func(c *Config) { c.MaxEvents = n }
}

// WithTick sets the timer-wheel tick duration.
func WithTick(d time.Duration) Option {
	return func(c *Config) { c.Tick = d }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithRecorder installs a counters sink, e.g. control.Metrics.
func WithRecorder(r Recorder) Option {
	return func(c *Config) { c.Recorder = r }
}

// WithClock replaces the time source. Tests use it to drive timers.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Clock = now }
}

func (c *Config) normalize() {
	if c.MaxEvents <= 0 {
		c.MaxEvents = defaultMaxEvents()
	}
	if c.MaxEvents > maxEventsCap {
		c.MaxEvents = maxEventsCap
	}
	if c.Tick <= 0 {
		c.Tick = time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.Recorder == nil {
		c.Recorder = nopRecorder{}
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

func defaultMaxEvents() int {
	n := fdLimit()
	if n <= 0 || n > maxEventsCap {
		return maxEventsCap
	}
	return n
}

// Recorder receives loop counters. Implementations must be cheap; they run
// on the loop thread.
type Recorder interface {
	Tick(backend string, ready, completions int)
	Registration(backend string, err error)
	TimersFired(n int)
	Deferred(n int)
}

type nopRecorder struct{}

func (nopRecorder) Tick(string, int, int)      {}
func (nopRecorder) Registration(string, error) {}
func (nopRecorder) TimersFired(int)            {}
func (nopRecorder) Deferred(int)               {}

package orchestrator

import "time"

// Config holds the timing parameters of the controller and the reaper.
type Config struct {
	// SectionDelay separates consecutive generator calls within a job.
	SectionDelay time.Duration

	// StallThreshold is how long a section may sit in generating without an
	// update before the reaper fails it. It must exceed the generator's
	// maximum wait.
	StallThreshold time.Duration

	// SweepInterval is the period of Reaper.Run.
	SweepInterval time.Duration

	// LockTTL is the expiry of a job lock. The loop refreshes it after every
	// section, so it must exceed the generator's maximum wait.
	LockTTL time.Duration

	// SettleTimeout bounds the final writes of a run that was interrupted.
	SettleTimeout time.Duration

	// SectionTimeout bounds one generator call, whatever the generator does
	// internally. Zero means StallThreshold.
	SectionTimeout time.Duration
}

// DefaultConfig returns production timings.
func DefaultConfig() Config {
	return Config{
		SectionDelay:   2 * time.Second,
		StallThreshold: 15 * time.Minute,
		SweepInterval:  time.Minute,
		LockTTL:        15 * time.Minute,
		SettleTimeout:  30 * time.Second,
	}
}

// withDefaults fills zero durations. SectionDelay may legitimately be zero.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SectionDelay < 0 {
		c.SectionDelay = 0
	}
	if c.StallThreshold <= 0 {
		c.StallThreshold = def.StallThreshold
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.LockTTL <= 0 {
		c.LockTTL = def.LockTTL
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = def.SettleTimeout
	}
	if c.SectionTimeout <= 0 {
		c.SectionTimeout = c.StallThreshold
	}
	return c
}

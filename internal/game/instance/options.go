package instance

import "time"

// Config holds manager-wide defaults for new instances.
type Config struct {
	EmptyDelay     time.Duration // closure delay after the last occupant leaves
	GracePeriod    time.Duration // minimum lifetime of a new instance; 0 arms closure at once
	TrackOwnership bool
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		EmptyDelay:     DefaultEmptyDelay,
		GracePeriod:    DefaultGracePeriod,
		TrackOwnership: true,
	}
}

// Option customises a single instance at creation.
type Option func(*createOptions)

type createOptions struct {
	permanent      bool
	emptyDelay     time.Duration
	gracePeriod    time.Duration
	trackOwnership bool
}

func (c Config) options(opts []Option) createOptions {
	o := createOptions{
		emptyDelay:     c.EmptyDelay,
		gracePeriod:    c.GracePeriod,
		trackOwnership: c.TrackOwnership,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithPermanent creates the instance pinned: it is never auto-destroyed.
func WithPermanent() Option {
	return func(o *createOptions) { o.permanent = true }
}

// WithEmptyDelay overrides the closure delay.
func WithEmptyDelay(d time.Duration) Option {
	return func(o *createOptions) { o.emptyDelay = d }
}

// WithGracePeriod overrides the initial grace period. Zero disables it.
func WithGracePeriod(d time.Duration) Option {
	return func(o *createOptions) { o.gracePeriod = d }
}

// WithoutOwnership disables owner tracking for the instance.
func WithoutOwnership() Option {
	return func(o *createOptions) { o.trackOwnership = false }
}

package supervisor

import "time"

// Policy decides how the pool reacts to an involuntary worker exit.
//
// Only consecutive short-lived exits count towards a crash loop. A single
// worker outliving FailureThreshold resets the streak, there is no
// partial decay.
type Policy struct {
	// RetryThreshold is the number of consecutive failures
	// tolerated before respawns are delayed
	RetryThreshold int

	// RetryDelay is applied once RetryThreshold is exceeded
	RetryDelay time.Duration

	// FailureThreshold is the lifetime below which an exit is
	// classified as a failure
	FailureThreshold time.Duration
}

// Decision is the outcome of classifying one involuntary exit.
type Decision struct {
	// Failure is set if the exit counted as a failure
	Failure bool

	// Failures is the new consecutive failure count
	Failures int

	// Throttled is set once the streak exceeds the retry threshold
	Throttled bool

	// Delay is the pause before the replacement is spawned
	Delay time.Duration
}

// Decide classifies an exit after the given lifetime, with failures
// being the consecutive failure count before the exit.
func (p Policy) Decide(lifetime time.Duration, failures int) Decision {
	var d Decision

	if lifetime < p.FailureThreshold {
		d.Failure = true
		d.Failures = failures + 1
	}

	if d.Failures > p.RetryThreshold {
		d.Throttled = true
		d.Delay = p.RetryDelay
	}

	return d
}

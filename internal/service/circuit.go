package service

import "time"

const (
	defaultCircuitTrip      = 5
	defaultCircuitBaseDelay = 30 * time.Second
	defaultCircuitMaxDelay  = 30 * time.Minute
)

// circuit is a consecutive-failure breaker with cooldown, owned by a single
// poller goroutine.
//   - On success: resets failures and closes the circuit.
//   - On failure: increments failures and, once failures >= trip,
//     opens the circuit for an exponentially increasing cooldown.
type circuit struct {
	trip      int
	baseDelay time.Duration
	maxDelay  time.Duration

	fails     int
	openUntil time.Time
}

// newCircuit returns nil (no breaker) for a negative trip count.
func newCircuit(trip int) *circuit {
	if trip < 0 {
		return nil
	}
	if trip == 0 {
		trip = defaultCircuitTrip
	}
	return &circuit{trip: trip, baseDelay: defaultCircuitBaseDelay, maxDelay: defaultCircuitMaxDelay}
}

func (c *circuit) isOpen(now time.Time) (bool, time.Time) {
	if c == nil || c.openUntil.IsZero() || !now.Before(c.openUntil) {
		return false, time.Time{}
	}
	return true, c.openUntil
}

func (c *circuit) record(now time.Time, err error) {
	if c == nil {
		return
	}
	if err == nil {
		c.fails = 0
		c.openUntil = time.Time{}
		return
	}

	c.fails++
	if c.fails < c.trip {
		return
	}

	// Exponential cooldown after tripping.
	d := c.baseDelay
	for i := 0; i < c.fails-c.trip; i++ {
		d *= 2
		if d >= c.maxDelay {
			d = c.maxDelay
			break
		}
	}
	c.openUntil = now.Add(d)
}

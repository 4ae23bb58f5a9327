package backoff

import (
	"math"
	"math/rand"
	"time"
)

// DefaultCap bounds the exponential base of the retry delay.
const DefaultCap = 900 * time.Second

// Policy computes retry delays: exponential in the attempt count, capped,
// with +/-20% jitter so many failing events don't retry in lockstep.
type Policy struct {
	cap  time.Duration
	rand func() float64 // uniform in [0, 1)
}

// New builds a Policy with the given cap. A non-positive cap falls back to
// DefaultCap.
func New(cap time.Duration) *Policy {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Policy{cap: cap, rand: rand.Float64}
}

// Delay returns the time to wait before retrying after the given number of
// prior attempts. The result is always at least one second and at most
// 1.2x the cap.
func (p *Policy) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	base := math.Min(p.cap.Seconds(), math.Pow(2, float64(attempts)))
	jitter := 0.8 + 0.4*p.rand()
	secs := math.Max(1, math.Round(base*jitter))

	return time.Duration(secs) * time.Second
}

// NextAttemptAt returns now plus Delay(attempts).
func (p *Policy) NextAttemptAt(now time.Time, attempts int) time.Time {
	return now.Add(p.Delay(attempts))
}

package provider

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit is a token bucket allowing maxReqs requests per window, with
// bursts up to maxReqs.
type RateLimit struct {
	limiter *rate.Limiter
	maxReqs int
	now     func() time.Time
}

// NewRateLimit creates a rate limiter with the given window and max requests.
// Example: NewRateLimit(10, time.Minute) allows 10 requests per minute.
func NewRateLimit(maxReqs int, window time.Duration) *RateLimit {
	if maxReqs <= 0 || window <= 0 {
		return &RateLimit{limiter: rate.NewLimiter(0, 0), now: time.Now}
	}
	return &RateLimit{
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(maxReqs)), maxReqs),
		maxReqs: maxReqs,
		now:     time.Now,
	}
}

// Allow consumes one request if the limit permits it.
func (r *RateLimit) Allow() bool {
	return r.limiter.AllowN(r.now(), 1)
}

// Remaining returns how many requests can be made right now.
func (r *RateLimit) Remaining() int {
	tokens := r.limiter.TokensAt(r.now())
	if tokens <= 0 {
		return 0
	}
	return int(math.Floor(tokens))
}

// CapacityPct returns remaining capacity as a fraction (0.0 to 1.0).
func (r *RateLimit) CapacityPct() float64 {
	if r.maxReqs == 0 {
		return 0
	}
	pct := r.limiter.TokensAt(r.now()) / float64(r.maxReqs)
	return math.Max(0, math.Min(1, pct))
}

// WaitDuration returns how long until the next request is allowed.
func (r *RateLimit) WaitDuration() time.Duration {
	if r.maxReqs == 0 {
		return 0
	}
	now := r.now()
	res := r.limiter.ReserveN(now, 1)
	defer res.CancelAt(now)
	if !res.OK() {
		return 0
	}
	return res.DelayFrom(now)
}

package httpclient

import "golang.org/x/time/rate"

// RateLimitPolicy wraps golang.org/x/time/rate.Limiter, adapted from
// infrastructure/ratelimit.RateLimitConfig: per-instance enforcement rather
// than a shared global limiter.
type RateLimitPolicy struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultRateLimitPolicy allows 5 requests/second with a matching burst,
// suitable for a single collector hitting one upstream.
func DefaultRateLimitPolicy() RateLimitPolicy {
	return RateLimitPolicy{RequestsPerSecond: 5, Burst: 5}
}

func (p RateLimitPolicy) newLimiter() *rate.Limiter {
	rps := p.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRateLimitPolicy().RequestsPerSecond
	}
	burst := p.Burst
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

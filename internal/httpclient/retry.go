package httpclient

import "time"

// RetryPolicy configures exponential-backoff retry for outbound requests,
// adapted from infrastructure/resilience.RetryConfig.
type RetryPolicy struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
}

// DefaultRetryPolicy mirrors the teacher's DefaultRetryConfig, with the
// teacher's jitter dropped in favor of the spec's deterministic formula.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		ExponentialBase: 2.0,
	}
}

// retryableStatus is the set of HTTP statuses that warrant a retry.
var retryableStatus = map[int]struct{}{
	429: {},
	500: {},
	502: {},
	503: {},
	504: {},
}

func isRetryableStatus(code int) bool {
	_, ok := retryableStatus[code]
	return ok
}

// delayFor returns the backoff delay before retry attempt i (0-indexed),
// computed as min(base * expBase^i, max). Monotonically non-decreasing for
// any policy with ExponentialBase > 1, satisfying the retry-monotonicity
// property (spec.md section 8.1).
func (p RetryPolicy) delayFor(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultRetryPolicy().BaseDelay
	}
	expBase := p.ExponentialBase
	if expBase <= 1 {
		expBase = DefaultRetryPolicy().ExponentialBase
	}
	d := base
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * expBase)
		if p.MaxDelay > 0 && d > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p RetryPolicy) maxRetries() int {
	if p.MaxRetries <= 0 {
		return DefaultRetryPolicy().MaxRetries
	}
	return p.MaxRetries
}

package graph

import "time"

// CachePolicy describes how long content read from a source may be cached.
// A non-positive TimeToLive means the content may be cached without limit.
type CachePolicy struct {
	TimeToLive time.Duration
}

// Unlimited reports whether the policy never expires content.
func (c CachePolicy) Unlimited() bool { return c.TimeToLive <= 0 }

// ExpirationFrom returns now+TTL, or the zero time for unlimited caching.
func (c CachePolicy) ExpirationFrom(now time.Time) time.Time {
	if c.Unlimited() {
		return time.Time{}
	}
	return now.Add(c.TimeToLive)
}

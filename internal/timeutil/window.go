// Package timeutil holds the single expiry-window helper shared by the
// temporal access, emergency access, and permission services so that all
// subsystems agree on expiry semantics.
package timeutil

import "time"

// IsExpired reports whether ts+ttl lies at or before now.
func IsExpired(ts time.Time, ttl time.Duration, now time.Time) bool {
	return !ts.Add(ttl).After(now)
}

// IsPast reports whether ts lies at or before now. A nil ts never expires.
func IsPast(ts *time.Time, now time.Time) bool {
	if ts == nil {
		return false
	}
	return !ts.After(now)
}

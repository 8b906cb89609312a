package domain

import "time"

// OTPEntry is a pending email-verification code. At most one entry is live
// per (namespace, email); issuing a new code replaces the old entry.
type OTPEntry struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e OTPEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

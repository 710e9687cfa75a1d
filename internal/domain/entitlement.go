package domain

import "time"

// Entitlement is a server-issued grant to download vectorized results. It is
// created once per paid checkout session.
type Entitlement struct {
	Token     string
	SessionID string
	Type      PurchaseType
	ObjectKey string // empty for subscriptions
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entitlement is no longer valid at now.
func (e Entitlement) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Covers reports whether the entitlement unlocks the given object key.
func (e Entitlement) Covers(key string) bool {
	return e.ObjectKey == "" || e.ObjectKey == key
}

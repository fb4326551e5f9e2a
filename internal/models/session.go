package models

import "time"

// RefreshSession is a persisted, rotating refresh token. ExpiresAt is fixed
// when the session is first created at login and copied unchanged to every
// rotated successor; RotationCount grows by one per rotation.
type RefreshSession struct {
	ID            string    `db:"id" json:"id"`
	Token         string    `db:"token" json:"-"`
	UserID        string    `db:"user_id" json:"user_id"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
	RotationCount int       `db:"rotation_count" json:"rotation_count"`
	IPAddress     string    `db:"ip_address" json:"ip_address"`
	UserAgent     string    `db:"user_agent" json:"user_agent"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Expired reports whether the absolute expiry lies before now.
func (s *RefreshSession) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// Successor builds the session that replaces s after a rotation.
func (s *RefreshSession) Successor(id, token string, now time.Time, meta ClientMeta) *RefreshSession {
	return &RefreshSession{
		ID:            id,
		Token:         token,
		UserID:        s.UserID,
		ExpiresAt:     s.ExpiresAt,
		RotationCount: s.RotationCount + 1,
		IPAddress:     meta.IP,
		UserAgent:     meta.UserAgent,
		CreatedAt:     now,
	}
}

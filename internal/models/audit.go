package models

import "time"

// AuditAction constants represent session events worth keeping.
const (
	AuditActionRegister       = "REGISTER"
	AuditActionLogin          = "LOGIN"
	AuditActionTokenRotate    = "TOKEN_ROTATE"
	AuditActionLogout         = "LOGOUT"
	AuditActionLogoutAll      = "LOGOUT_ALL"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Action    string    `db:"action" json:"action"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	Details   []byte    `db:"details" json:"details,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

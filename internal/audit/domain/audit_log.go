package domain

import "time"

// AuditLog is one security-relevant event in the auth flow.
type AuditLog struct {
	ID        string
	UserID    string // empty when the actor could not be identified (e.g. login_failure)
	Action    string
	Resource  string
	IP        string
	Metadata  string // JSON object or empty
	CreatedAt time.Time
}

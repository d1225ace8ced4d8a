package models

import "time"

// Actions recorded in the activity log
const (
	ActionCreated              = "created"
	ActionUpdated              = "updated"
	ActionDeleted              = "deleted"
	ActionProfileUpdated       = "profile_updated"
	ActionPasswordChanged      = "password_changed"
	ActionRoleChanged          = "role_changed"
	ActionNotificationToggled  = "notification_toggled"
	ActionTwoFactorToggled     = "2fa_toggled"
	ActionSessionLoggedOut     = "session_logged_out"
	ActionAllSessionsLoggedOut = "all_sessions_logged_out"
	ActionSystemUpdated        = "system_updated"
)

// Log levels derived from the action when logs are read
const (
	LevelInfo = "info"
	LevelWarn = "warn"
)

// ActivityLog is an append-only audit entry. LinkID is nil for account-level
// events and is not a foreign key, so entries outlive the link they describe.
type ActivityLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	LinkID    *uint     `gorm:"index" json:"link_id"`
	Action    string    `gorm:"size:50;not null" json:"action"`
	Details   string    `gorm:"type:text" json:"details"`
	Timestamp time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
}

// Level is "warn" for deletions and "info" for everything else.
func (l ActivityLog) Level() string {
	if l.Action == ActionDeleted {
		return LevelWarn
	}
	return LevelInfo
}

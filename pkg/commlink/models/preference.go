package models

import "fmt"

// ValueKind tells which value column of a preference is meaningful
type ValueKind string

const (
	ValueKindBool   ValueKind = "bool"
	ValueKindString ValueKind = "string"
)

// UserPreference is a per-user setting. Notification toggles are bool-kind,
// system settings (theme, language, data retention) are string-kind.
type UserPreference struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_user_preference" json:"user_id"`
	Key         string    `gorm:"column:preference_key;size:50;not null;uniqueIndex:idx_user_preference" json:"key"`
	Kind        ValueKind `gorm:"type:varchar(10);not null" json:"kind"`
	BoolValue   bool      `json:"bool_value"`
	StringValue string    `json:"string_value"`
}

func BoolPreference(userID uint, key string, value bool) UserPreference {
	return UserPreference{UserID: userID, Key: key, Kind: ValueKindBool, BoolValue: value}
}

func StringPreference(userID uint, key, value string) UserPreference {
	return UserPreference{UserID: userID, Key: key, Kind: ValueKindString, StringValue: value}
}

// Value returns the typed value for the preference's kind.
func (p UserPreference) Value() any {
	if p.Kind == ValueKindBool {
		return p.BoolValue
	}
	return p.StringValue
}

// Text renders the value for activity log details.
func (p UserPreference) Text() string {
	return fmt.Sprint(p.Value())
}

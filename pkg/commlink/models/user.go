package models

import "time"

// Role represents a user's role
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User represents the account the settings pages act on
type User struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	FirstName        string    `gorm:"not null" json:"first_name"`
	LastName         string    `gorm:"not null" json:"last_name"`
	Email            string    `gorm:"uniqueIndex;not null" json:"email"`
	Phone            string    `gorm:"size:20" json:"phone"`
	PasswordHash     string    `json:"-"`
	Role             Role      `gorm:"type:varchar(20);default:'User'" json:"role"`
	TwoFactorEnabled bool      `gorm:"column:two_fa_enabled;default:false" json:"two_fa_enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Relationships
	Preferences []UserPreference `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Sessions    []UserSession    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

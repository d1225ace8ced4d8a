package models

import "time"

// UserSession is one signed-in device. Signing out clears IsActive; rows are kept.
type UserSession struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	Device     string    `gorm:"not null" json:"device"`
	LastActive time.Time `gorm:"autoCreateTime" json:"last_active"`
	IsActive   bool      `gorm:"default:true" json:"is_active"`
}

package database

import (
	"fmt"

	"github.com/mikepea/commlink/pkg/commlink/auth"
	"github.com/mikepea/commlink/pkg/commlink/models"
	"gorm.io/gorm"
)

// DemoPassword is the password of the seeded demo user.
const DemoPassword = "password123"

// DefaultNotifications are the toggles a new demo user starts with.
var DefaultNotifications = []struct {
	Key     string
	Enabled bool
}{
	{"linkAlerts", true},
	{"maintenanceReminders", true},
	{"weeklyReports", false},
	{"realtimeUpdates", true},
	{"systemAlerts", true},
}

var demoDevices = []string{"Chrome - Desktop", "Safari - Mobile"}

// SeedDemoData creates the demo user with its preferences and sessions when
// no user exists yet. It returns the demo user's ID. Running it again is a no-op.
func SeedDemoData(db *gorm.DB) (uint, error) {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		var first models.User
		if err := db.Order("id").First(&first).Error; err != nil {
			return 0, fmt.Errorf("load first user: %w", err)
		}
		return first.ID, nil
	}

	hash, err := auth.HashPassword(DemoPassword)
	if err != nil {
		return 0, fmt.Errorf("hash demo password: %w", err)
	}

	user := models.User{
		FirstName:    "John",
		LastName:     "Doe",
		Email:        "john.doe@company.com",
		Phone:        "+1 (555) 123-4567",
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		for _, n := range DefaultNotifications {
			pref := models.BoolPreference(user.ID, n.Key, n.Enabled)
			if err := tx.Create(&pref).Error; err != nil {
				return err
			}
		}

		for _, device := range demoDevices {
			session := models.UserSession{UserID: user.ID, Device: device, IsActive: true}
			if err := tx.Create(&session).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seed demo data: %w", err)
	}

	return user.ID, nil
}

// Package users serves the caller's own account: profile, role, password
// and two-factor settings.
package users

import (
	"errors"
	"fmt"

	"github.com/mikepea/commlink/pkg/commlink/activity"
	"github.com/mikepea/commlink/pkg/commlink/apperror"
	"github.com/mikepea/commlink/pkg/commlink/auth"
	"github.com/mikepea/commlink/pkg/commlink/broadcast"
	"github.com/mikepea/commlink/pkg/commlink/dispatch"
	"github.com/mikepea/commlink/pkg/commlink/models"
	"gorm.io/gorm"
)

var errUserNotFound = apperror.NotFound("User not found")

// Handler handles user account requests
type Handler struct {
	db     *gorm.DB
	events broadcast.Publisher
}

// NewHandler creates a new users handler. events may be nil.
func NewHandler(db *gorm.DB, events broadcast.Publisher) *Handler {
	return &Handler{db: db, events: events}
}

// ProfileResponse is the profile as the settings page shows it
type ProfileResponse struct {
	ID               uint        `json:"id"`
	FirstName        string      `json:"firstName"`
	LastName         string      `json:"lastName"`
	Email            string      `json:"email"`
	Phone            string      `json:"phone"`
	Role             models.Role `json:"role"`
	TwoFactorEnabled bool        `json:"twoFactorEnabled"`
}

func toProfile(u models.User) ProfileResponse {
	return ProfileResponse{
		ID:               u.ID,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Email:            u.Email,
		Phone:            u.Phone,
		Role:             u.Role,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}

// UpdateProfileRequest replaces the editable profile fields
type UpdateProfileRequest struct {
	FirstName string `json:"firstName" binding:"required,max=255"`
	LastName  string `json:"lastName" binding:"required,max=255"`
	Email     string `json:"email" binding:"required,email"`
	Phone     string `json:"phone" binding:"max=20"`
}

// UpdateRoleRequest sets the caller's role
type UpdateRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

// ChangePasswordRequest changes the caller's password
type ChangePasswordRequest struct {
	CurrentPassword    string `json:"currentPassword" binding:"required"`
	NewPassword        string `json:"newPassword" binding:"required"`
	ConfirmNewPassword string `json:"confirmNewPassword" binding:"required"`
}

// ToggleRequest is the body of the on/off endpoints
type ToggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// RegisterRoutes registers user account routes
func (h *Handler) RegisterRoutes(t *dispatch.Table) {
	t.MustHandle("GET /api/user/profile", h.GetProfile)
	t.MustHandle("PUT /api/user/profile", h.UpdateProfile)
	t.MustHandle("PUT /api/user/profile/role", h.UpdateRole)
	t.MustHandle("PUT /api/user/password", h.ChangePassword)
	t.MustHandle("PUT /api/user/security/2fa", h.ToggleTwoFactor)
}

// GetProfile returns the caller's profile
func (h *Handler) GetProfile(req *dispatch.Request) (*dispatch.Result, error) {
	var user models.User
	if err := h.db.WithContext(req.Context).First(&user, req.Identity.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errUserNotFound
		}
		return nil, apperror.Internal("Failed to fetch profile", err)
	}
	return dispatch.OK(toProfile(user)), nil
}

// UpdateProfile replaces the caller's name, email and phone
func (h *Handler) UpdateProfile(req *dispatch.Request) (*dispatch.Result, error) {
	var body UpdateProfileRequest
	if err := req.Bind(&body); err != nil {
		return nil, err
	}

	var user models.User
	err := h.db.WithContext(req.Context).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, req.Identity.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errUserNotFound
			}
			return err
		}

		user.FirstName = body.FirstName
		user.LastName = body.LastName
		user.Email = body.Email
		user.Phone = body.Phone
		if err := tx.Save(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperror.Validation("Email is already in use")
			}
			return err
		}
		return activity.Record(tx, nil, models.ActionProfileUpdated, "User profile updated")
	})
	if err != nil {
		return nil, apperror.Classify(err, "Failed to update profile")
	}

	profile := toProfile(user)
	h.publish(broadcast.Event{
		"type":    broadcast.EventProfileUpdated,
		"userId":  user.ID,
		"field":   "profile",
		"profile": profile,
	})
	return dispatch.OK(profile), nil
}

// UpdateRole sets the caller's role to Admin or User
func (h *Handler) UpdateRole(req *dispatch.Request) (*dispatch.Result, error) {
	var body UpdateRoleRequest
	if err := req.Bind(&body); err != nil {
		return nil, err
	}
	if !body.Role.Valid() {
		return nil, apperror.Validation("role must be one of: Admin, User")
	}

	userID := req.Identity.UserID
	err := h.db.WithContext(req.Context).Transaction(func(tx *gorm.DB) error {
		if err := h.updateUser(tx, userID, "role", body.Role); err != nil {
			return err
		}
		return activity.Record(tx, nil, models.ActionRoleChanged, fmt.Sprintf("Role changed to %s", body.Role))
	})
	if err != nil {
		return nil, apperror.Classify(err, "Failed to update role")
	}

	h.publish(broadcast.Event{
		"type":   broadcast.EventProfileUpdated,
		"userId": userID,
		"field":  "role",
		"role":   body.Role,
	})
	return dispatch.Message("Role updated"), nil
}

// ChangePassword verifies the current password and stores a new hash.
// The stored hash is untouched on any failure.
func (h *Handler) ChangePassword(req *dispatch.Request) (*dispatch.Result, error) {
	var body ChangePasswordRequest
	if err := req.Bind(&body); err != nil {
		return nil, err
	}
	if body.NewPassword != body.ConfirmNewPassword {
		return nil, apperror.Validation("Passwords do not match")
	}

	userID := req.Identity.UserID
	var user models.User
	if err := h.db.WithContext(req.Context).Select("id", "password_hash").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errUserNotFound
		}
		return nil, apperror.Internal("Failed to change password", err)
	}
	if !auth.CheckPassword(body.CurrentPassword, user.PasswordHash) {
		return nil, apperror.Unauthorized("Current password is incorrect")
	}

	hash, err := auth.HashPassword(body.NewPassword)
	if err != nil {
		return nil, apperror.Internal("Failed to change password", err)
	}

	err = h.db.WithContext(req.Context).Transaction(func(tx *gorm.DB) error {
		if err := h.updateUser(tx, userID, "password_hash", hash); err != nil {
			return err
		}
		return activity.Record(tx, nil, models.ActionPasswordChanged, "User password changed")
	})
	if err != nil {
		return nil, apperror.Classify(err, "Failed to change password")
	}

	h.publish(broadcast.Event{
		"type":   broadcast.EventProfileUpdated,
		"userId": userID,
		"field":  "password",
	})
	return dispatch.Message("Password changed successfully"), nil
}

// ToggleTwoFactor turns two-factor authentication on or off
func (h *Handler) ToggleTwoFactor(req *dispatch.Request) (*dispatch.Result, error) {
	var body ToggleRequest
	if err := req.Bind(&body); err != nil {
		return nil, err
	}
	enabled := *body.Enabled

	userID := req.Identity.UserID
	err := h.db.WithContext(req.Context).Transaction(func(tx *gorm.DB) error {
		if err := h.updateUser(tx, userID, "two_fa_enabled", enabled); err != nil {
			return err
		}
		return activity.Record(tx, nil, models.ActionTwoFactorToggled, fmt.Sprintf("2FA toggled to %t", enabled))
	})
	if err != nil {
		return nil, apperror.Classify(err, "Failed to update 2FA")
	}

	h.publish(broadcast.Event{
		"type":    broadcast.EventProfileUpdated,
		"userId":  userID,
		"field":   "twoFactorEnabled",
		"enabled": enabled,
	})
	return dispatch.Message("2FA updated"), nil
}

func (h *Handler) updateUser(tx *gorm.DB, userID uint, column string, value any) error {
	res := tx.Model(&models.User{}).Where("id = ?", userID).Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errUserNotFound
	}
	return nil
}

func (h *Handler) publish(e broadcast.Event) {
	if h.events != nil {
		h.events.Publish(e)
	}
}

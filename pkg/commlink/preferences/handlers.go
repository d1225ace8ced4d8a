// Package preferences serves notification toggles and system settings.
// Both live in one table: notifications as bool-kind rows, system settings
// as string-kind rows, one row per (user, key).
package preferences

import (
	"errors"
	"fmt"

	"github.com/mikepea/commlink/pkg/commlink/activity"
	"github.com/mikepea/commlink/pkg/commlink/apperror"
	"github.com/mikepea/commlink/pkg/commlink/broadcast"
	"github.com/mikepea/commlink/pkg/commlink/dispatch"
	"github.com/mikepea/commlink/pkg/commlink/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxKeyLength = 50

// SystemDefaults are reported for system settings the user has not set.
var SystemDefaults = map[string]string{
	"theme":         "light",
	"language":      "English",
	"dataRetention": "30 days",
}

// Handler handles preference requests
type Handler struct {
	db     *gorm.DB
	events broadcast.Publisher
}

// NewHandler creates a new preferences handler. events may be nil.
func NewHandler(db *gorm.DB, events broadcast.Publisher) *Handler {
	return &Handler{db: db, events: events}
}

// ToggleNotificationRequest is the body of PUT /api/user/notifications/:key
type ToggleNotificationRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// UpdateSystemRequest is the body of PUT /api/user/system/:key
type UpdateSystemRequest struct {
	Value string `json:"value" binding:"required,max=255"`
}

// SystemSetting is a single system setting
type SystemSetting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RegisterRoutes registers preference routes
func (h *Handler) RegisterRoutes(t *dispatch.Table) {
	t.MustHandle("GET /api/user/notifications", h.GetNotifications)
	t.MustHandle("PUT /api/user/notifications/:key", h.ToggleNotification)
	t.MustHandle("GET /api/user/system", h.GetSystem)
	t.MustHandle("GET /api/user/system/:key", h.GetSystemSetting)
	t.MustHandle("PUT /api/user/system/:key", h.UpdateSystemSetting)
}

// GetNotifications returns every notification toggle as key -> enabled
func (h *Handler) GetNotifications(req *dispatch.Request) (*dispatch.Result, error) {
	var prefs []models.UserPreference
	err := h.db.WithContext(req.Context).
		Where("user_id = ? AND kind = ?", req.Identity.UserID, models.ValueKindBool).
		Find(&prefs).Error
	if err != nil {
		return nil, apperror.Internal("Failed to fetch notifications", err)
	}

	notifications := make(map[string]bool, len(prefs))
	for _, p := range prefs {
		notifications[p.Key] = p.BoolValue
	}
	return dispatch.OK(notifications), nil
}

// ToggleNotification creates or overwrites one toggle
func (h *Handler) ToggleNotification(req *dispatch.Request) (*dispatch.Result, error) {
	key, err := preferenceKey(req)
	if err != nil {
		return nil, err
	}
	var body ToggleNotificationRequest
	if err := req.Bind(&body); err != nil {
		return nil, err
	}

	if _, ok := SystemDefaults[key]; ok {
		return nil, kindMismatch(key, models.ValueKindString)
	}

	pref := models.BoolPreference(req.Identity.UserID, key, *body.Enabled)
	details := fmt.Sprintf("Notification %s toggled to %t", key, pref.BoolValue)
	if err := h.save(req, pref, models.ActionNotificationToggled, details); err != nil {
		return nil, apperror.Classify(err, "Failed to update notification")
	}

	h.publish(pref, "notification")
	return dispatch.Message(fmt.Sprintf("Notification %s updated", key)), nil
}

// GetSystem returns theme, language and data retention, filling in defaults
func (h *Handler) GetSystem(req *dispatch.Request) (*dispatch.Result, error) {
	keys := make([]string, 0, len(SystemDefaults))
	for k := range SystemDefaults {
		keys = append(keys, k)
	}

	var prefs []models.UserPreference
	err := h.db.WithContext(req.Context).
		Where("user_id = ? AND kind = ? AND preference_key IN ?", req.Identity.UserID, models.ValueKindString, keys).
		Find(&prefs).Error
	if err != nil {
		return nil, apperror.Internal("Failed to fetch system preferences", err)
	}

	settings := make(map[string]string, len(SystemDefaults))
	for k, v := range SystemDefaults {
		settings[k] = v
	}
	for _, p := range prefs {
		if p.StringValue != "" {
			settings[p.Key] = p.StringValue
		}
	}
	return dispatch.OK(settings), nil
}

// GetSystemSetting returns one system setting, or its default
func (h *Handler) GetSystemSetting(req *dispatch.Request) (*dispatch.Result, error) {
	key, err := preferenceKey(req)
	if err != nil {
		return nil, err
	}

	var pref models.UserPreference
	err = h.db.WithContext(req.Context).
		Where("user_id = ? AND preference_key = ? AND kind = ?", req.Identity.UserID, key, models.ValueKindString).
		First(&pref).Error
	switch {
	case err == nil:
		return dispatch.OK(SystemSetting{Key: key, Value: pref.StringValue}), nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if v, ok := SystemDefaults[key]; ok {
			return dispatch.OK(SystemSetting{Key: key, Value: v}), nil
		}
		return nil, apperror.NotFound("Preference not found")
	default:
		return nil, apperror.Internal("Failed to fetch system preference", err)
	}
}

// UpdateSystemSetting creates or overwrites one system setting
func (h *Handler) UpdateSystemSetting(req *dispatch.Request) (*dispatch.Result, error) {
	key, err := preferenceKey(req)
	if err != nil {
		return nil, err
	}
	var body UpdateSystemRequest
	if err := req.Bind(&body); err != nil {
		return nil, err
	}

	pref := models.StringPreference(req.Identity.UserID, key, body.Value)
	details := fmt.Sprintf("System %s updated to %s", key, body.Value)
	if err := h.save(req, pref, models.ActionSystemUpdated, details); err != nil {
		return nil, apperror.Classify(err, "Failed to update system preference")
	}

	h.publish(pref, "system")
	return dispatch.Message(fmt.Sprintf("System %s updated", key)), nil
}

// save upserts pref on (user_id, preference_key) and logs it atomically. A key
// already stored with the other kind is rejected rather than converted.
func (h *Handler) save(req *dispatch.Request, pref models.UserPreference, action, details string) error {
	return h.db.WithContext(req.Context).Transaction(func(tx *gorm.DB) error {
		var existing models.UserPreference
		res := tx.Where("user_id = ? AND preference_key = ?", pref.UserID, pref.Key).Limit(1).Find(&existing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 && existing.Kind != pref.Kind {
			return kindMismatch(pref.Key, existing.Kind)
		}

		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "preference_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "bool_value", "string_value"}),
		}).Create(&pref).Error
		if err != nil {
			return err
		}
		return activity.Record(tx, nil, action, details)
	})
}

func (h *Handler) publish(pref models.UserPreference, category string) {
	if h.events == nil {
		return
	}
	h.events.Publish(broadcast.Event{
		"type":     broadcast.EventPreferenceUpdated,
		"userId":   pref.UserID,
		"category": category,
		"key":      pref.Key,
		"value":    pref.Value(),
	})
}

func kindMismatch(key string, stored models.ValueKind) error {
	if stored == models.ValueKindBool {
		return apperror.Validation(fmt.Sprintf("%s is a notification, not a system setting", key))
	}
	return apperror.Validation(fmt.Sprintf("%s is a system setting, not a notification", key))
}

func preferenceKey(req *dispatch.Request) (string, error) {
	key := req.Params.Get("key")
	if key == "" || len(key) > maxKeyLength {
		return "", apperror.Validation(fmt.Sprintf("Preference key must be 1 to %d characters", maxKeyLength))
	}
	return key, nil
}

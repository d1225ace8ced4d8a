package sessions

import (
	"fmt"
	"time"

	"github.com/mikepea/commlink/pkg/commlink/activity"
	"github.com/mikepea/commlink/pkg/commlink/apperror"
	"github.com/mikepea/commlink/pkg/commlink/broadcast"
	"github.com/mikepea/commlink/pkg/commlink/dispatch"
	"github.com/mikepea/commlink/pkg/commlink/models"
	"gorm.io/gorm"
)

// Handler handles session management requests
type Handler struct {
	db     *gorm.DB
	events broadcast.Publisher
}

// NewHandler creates a new sessions handler. events may be nil.
func NewHandler(db *gorm.DB, events broadcast.Publisher) *Handler {
	return &Handler{db: db, events: events}
}

// SessionResponse represents an active session in API responses
type SessionResponse struct {
	Device     string    `json:"device"`
	LastActive time.Time `json:"last_active"`
}

// RegisterRoutes registers session routes
func (h *Handler) RegisterRoutes(t *dispatch.Table) {
	t.MustHandle("GET /api/user/security/sessions", h.ListSessions)
	t.MustHandle("DELETE /api/user/security/sessions/:device", h.SignOutSession)
	t.MustHandle("DELETE /api/user/security/sessions", h.SignOutAll)
}

// ListSessions returns the caller's active sessions, most recent first
func (h *Handler) ListSessions(req *dispatch.Request) (*dispatch.Result, error) {
	var rows []models.UserSession
	err := h.db.WithContext(req.Context).
		Where("user_id = ? AND is_active = ?", req.Identity.UserID, true).
		Order("last_active DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, apperror.Internal("Failed to fetch sessions", err)
	}

	sessions := make([]SessionResponse, len(rows))
	for i, s := range rows {
		sessions[i] = SessionResponse{Device: s.Device, LastActive: s.LastActive}
	}
	return dispatch.OK(sessions), nil
}

// SignOutSession deactivates the caller's sessions on one device
func (h *Handler) SignOutSession(req *dispatch.Request) (*dispatch.Result, error) {
	device := req.Params.Get("device")
	userID := req.Identity.UserID

	err := h.db.WithContext(req.Context).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.UserSession{}).
			Where("user_id = ? AND device = ? AND is_active = ?", userID, device, true).
			Update("is_active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.NotFound("Session not found")
		}
		return activity.Record(tx, nil, models.ActionSessionLoggedOut, fmt.Sprintf("Session %s logged out", device))
	})
	if err != nil {
		return nil, apperror.Classify(err, "Failed to sign out session")
	}

	h.publish(broadcast.Event{
		"type":   broadcast.EventSessionSignedOut,
		"userId": userID,
		"device": device,
	})
	return dispatch.Message("Session signed out"), nil
}

// SignOutAll deactivates every session of the caller
func (h *Handler) SignOutAll(req *dispatch.Request) (*dispatch.Result, error) {
	userID := req.Identity.UserID

	var signedOut int64
	err := h.db.WithContext(req.Context).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.UserSession{}).
			Where("user_id = ? AND is_active = ?", userID, true).
			Update("is_active", false)
		if res.Error != nil {
			return res.Error
		}
		signedOut = res.RowsAffected
		return activity.Record(tx, nil, models.ActionAllSessionsLoggedOut, "All sessions logged out")
	})
	if err != nil {
		return nil, apperror.Internal("Failed to sign out all sessions", err)
	}

	h.publish(broadcast.Event{
		"type":   broadcast.EventSessionSignedOut,
		"userId": userID,
		"all":    true,
		"count":  signedOut,
	})
	return dispatch.Message("All sessions signed out"), nil
}

func (h *Handler) publish(e broadcast.Event) {
	if h.events != nil {
		h.events.Publish(e)
	}
}

// Package activity records and serves the audit log. Every mutating
// endpoint calls Record inside the same transaction as its change.
package activity

import (
	"fmt"

	"github.com/mikepea/commlink/pkg/commlink/apperror"
	"github.com/mikepea/commlink/pkg/commlink/dispatch"
	"github.com/mikepea/commlink/pkg/commlink/models"
	"gorm.io/gorm"
)

// ListLimit caps GET /api/logs.
const ListLimit = 100

// Record appends an entry. linkID is nil for account-level actions.
func Record(tx *gorm.DB, linkID *uint, action, details string) error {
	entry := models.ActivityLog{LinkID: linkID, Action: action, Details: details}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("record %s activity: %w", action, err)
	}
	return nil
}

// Entry is a log row as served to clients, with the derived level and message.
type Entry struct {
	models.ActivityLog
	Level   string `json:"level"`
	Message string `json:"message"`
}

func toEntries(logs []models.ActivityLog) []Entry {
	entries := make([]Entry, len(logs))
	for i, l := range logs {
		entries[i] = Entry{ActivityLog: l, Level: l.Level(), Message: l.Details}
	}
	return entries
}

// Handler handles log requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new activity log handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// RegisterRoutes registers log routes
func (h *Handler) RegisterRoutes(t *dispatch.Table) {
	t.MustHandle("GET /api/logs", h.List)
	t.MustHandle("GET /api/logs/:linkId", h.ListForLink)
}

// List returns the latest entries, newest first.
func (h *Handler) List(req *dispatch.Request) (*dispatch.Result, error) {
	var logs []models.ActivityLog
	err := h.db.WithContext(req.Context).
		Order("timestamp DESC").Order("id DESC").
		Limit(ListLimit).
		Find(&logs).Error
	if err != nil {
		return nil, apperror.Internal("Failed to fetch logs", err)
	}
	return dispatch.OK(toEntries(logs)), nil
}

// ListForLink returns every entry for one link, newest first. The link
// itself may already be deleted.
func (h *Handler) ListForLink(req *dispatch.Request) (*dispatch.Result, error) {
	linkID, err := req.Params.Int("linkId")
	if err != nil {
		return nil, apperror.Validation("Invalid link ID")
	}

	var logs []models.ActivityLog
	err = h.db.WithContext(req.Context).
		Where("link_id = ?", linkID).
		Order("timestamp DESC").Order("id DESC").
		Find(&logs).Error
	if err != nil {
		return nil, apperror.Internal("Failed to fetch logs", err)
	}
	return dispatch.OK(toEntries(logs)), nil
}

package links

import (
	"errors"
	"fmt"
	"time"

	"github.com/mikepea/commlink/pkg/commlink/activity"
	"github.com/mikepea/commlink/pkg/commlink/apperror"
	"github.com/mikepea/commlink/pkg/commlink/broadcast"
	"github.com/mikepea/commlink/pkg/commlink/dispatch"
	"github.com/mikepea/commlink/pkg/commlink/models"
	"gorm.io/gorm"
)

// Handler handles link-related requests
type Handler struct {
	db     *gorm.DB
	events broadcast.Publisher
}

// NewHandler creates a new links handler. events may be nil.
func NewHandler(db *gorm.DB, events broadcast.Publisher) *Handler {
	return &Handler{db: db, events: events}
}

// LinkRequest is the body of create and update. Update replaces every field.
type LinkRequest struct {
	ClientName  string            `json:"clientName" binding:"required,max=255"`
	ClientEmail string            `json:"clientEmail" binding:"required,email"`
	LinkType    models.LinkType   `json:"linkType" binding:"required"`
	LinkURL     string            `json:"linkUrl" binding:"required"`
	Status      models.LinkStatus `json:"status"`
	Description string            `json:"description"`
}

func (r *LinkRequest) validate() error {
	if !r.LinkType.Valid() {
		return apperror.Validation("linkType must be one of: email, slack, teams, phone, other")
	}
	if r.Status != "" && !r.Status.Valid() {
		return apperror.Validation("status must be one of: active, inactive, maintenance, idle")
	}
	return nil
}

var errLinkNotFound = apperror.NotFound("Link not found")

// RegisterRoutes registers link routes
func (h *Handler) RegisterRoutes(t *dispatch.Table) {
	t.MustHandle("GET /api/links", h.ListLinks)
	t.MustHandle("GET /api/links/:id", h.GetLink)
	t.MustHandle("POST /api/links", h.CreateLink)
	t.MustHandle("PUT /api/links/:id", h.UpdateLink)
	t.MustHandle("DELETE /api/links/:id", h.DeleteLink)
}

// ListLinks returns all links, newest first
func (h *Handler) ListLinks(req *dispatch.Request) (*dispatch.Result, error) {
	links := []models.Link{}
	err := h.db.WithContext(req.Context).
		Order("created_at DESC").Order("id DESC").
		Find(&links).Error
	if err != nil {
		return nil, apperror.Internal("Failed to fetch links", err)
	}
	return dispatch.OK(links), nil
}

// GetLink returns a single link
func (h *Handler) GetLink(req *dispatch.Request) (*dispatch.Result, error) {
	id, err := req.Params.Int("id")
	if err != nil {
		return nil, errLinkNotFound
	}

	var link models.Link
	if err := h.db.WithContext(req.Context).First(&link, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errLinkNotFound
		}
		return nil, apperror.Internal("Failed to fetch link", err)
	}
	return dispatch.OK(link), nil
}

// CreateLink creates a link and logs it. Status defaults to active.
func (h *Handler) CreateLink(req *dispatch.Request) (*dispatch.Result, error) {
	var body LinkRequest
	if err := req.Bind(&body); err != nil {
		return nil, err
	}
	if err := body.validate(); err != nil {
		return nil, err
	}

	link := models.Link{
		ClientName:  body.ClientName,
		ClientEmail: body.ClientEmail,
		LinkType:    body.LinkType,
		LinkURL:     body.LinkURL,
		Status:      body.Status,
		Description: body.Description,
	}
	if link.Status == "" {
		link.Status = models.LinkStatusActive
	}

	err := h.db.WithContext(req.Context).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&link).Error; err != nil {
			return err
		}
		return activity.Record(tx, &link.ID, models.ActionCreated, fmt.Sprintf("Link created for %s", link.ClientName))
	})
	if err != nil {
		return nil, apperror.Internal("Failed to create link", err)
	}

	h.publish(broadcast.Event{
		"type":   broadcast.EventNewLink,
		"id":     link.ID,
		"name":   link.ClientName,
		"status": link.Status,
		"link":   link,
	})
	return dispatch.Created(link), nil
}

// UpdateLink replaces a link's fields. An empty status keeps the current one.
func (h *Handler) UpdateLink(req *dispatch.Request) (*dispatch.Result, error) {
	id, err := req.Params.Int("id")
	if err != nil {
		return nil, errLinkNotFound
	}

	var body LinkRequest
	if err := req.Bind(&body); err != nil {
		return nil, err
	}
	if err := body.validate(); err != nil {
		return nil, err
	}

	var link models.Link
	err = h.db.WithContext(req.Context).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&link, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errLinkNotFound
			}
			return err
		}

		link.ClientName = body.ClientName
		link.ClientEmail = body.ClientEmail
		link.LinkType = body.LinkType
		link.LinkURL = body.LinkURL
		link.Description = body.Description
		if body.Status != "" {
			link.Status = body.Status
		}
		link.LastUpdated = time.Now()

		if err := tx.Save(&link).Error; err != nil {
			return err
		}
		return activity.Record(tx, &link.ID, models.ActionUpdated, fmt.Sprintf("Link updated for %s", link.ClientName))
	})
	if err != nil {
		return nil, apperror.Classify(err, "Failed to update link")
	}

	h.publish(broadcast.Event{
		"type":   broadcast.EventLinkUpdated,
		"id":     link.ID,
		"name":   link.ClientName,
		"status": link.Status,
		"link":   link,
	})
	return dispatch.OK(link), nil
}

// DeleteLink removes a link. Its activity log entries are kept.
func (h *Handler) DeleteLink(req *dispatch.Request) (*dispatch.Result, error) {
	id, err := req.Params.Int("id")
	if err != nil {
		return nil, errLinkNotFound
	}

	var link models.Link
	err = h.db.WithContext(req.Context).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&link, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errLinkNotFound
			}
			return err
		}
		if err := tx.Delete(&link).Error; err != nil {
			return err
		}
		return activity.Record(tx, &link.ID, models.ActionDeleted, fmt.Sprintf("Link deleted for %s", link.ClientName))
	})
	if err != nil {
		return nil, apperror.Classify(err, "Failed to delete link")
	}

	h.publish(broadcast.Event{
		"type": broadcast.EventLinkDeleted,
		"id":   link.ID,
		"name": link.ClientName,
	})
	return dispatch.Message("Link deleted successfully"), nil
}

func (h *Handler) publish(e broadcast.Event) {
	if h.events != nil {
		h.events.Publish(e)
	}
}

package models

import "time"

// LinkType is the channel a link reaches the client through
type LinkType string

const (
	LinkTypeEmail LinkType = "email"
	LinkTypeSlack LinkType = "slack"
	LinkTypeTeams LinkType = "teams"
	LinkTypePhone LinkType = "phone"
	LinkTypeOther LinkType = "other"
)

// LinkStatus is the operational state of a link
type LinkStatus string

const (
	LinkStatusActive      LinkStatus = "active"
	LinkStatusInactive    LinkStatus = "inactive"
	LinkStatusMaintenance LinkStatus = "maintenance"
	LinkStatusIdle        LinkStatus = "idle"
)

func (t LinkType) Valid() bool {
	switch t {
	case LinkTypeEmail, LinkTypeSlack, LinkTypeTeams, LinkTypePhone, LinkTypeOther:
		return true
	}
	return false
}

func (s LinkStatus) Valid() bool {
	switch s {
	case LinkStatusActive, LinkStatusInactive, LinkStatusMaintenance, LinkStatusIdle:
		return true
	}
	return false
}

// Link represents a client communication channel. Deletes are physical.
type Link struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	ClientName  string     `gorm:"not null" json:"client_name"`
	ClientEmail string     `gorm:"not null" json:"client_email"`
	LinkType    LinkType   `gorm:"type:varchar(20);not null" json:"link_type"`
	LinkURL     string     `gorm:"not null" json:"link_url"`
	Status      LinkStatus `gorm:"type:varchar(20);default:'active'" json:"status"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	LastUpdated time.Time  `gorm:"autoUpdateTime" json:"last_updated"`
}

func (Link) TableName() string {
	return "communication_links"
}

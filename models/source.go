package models

import (
	"time"
)

// Source records that an object was saved to a group.
type Source struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	ObjID     string     `gorm:"type:text;not null;index:idx_sources_obj_group" json:"obj_id"`
	GroupID   uint       `gorm:"not null;index:idx_sources_obj_group" json:"group_id"`
	Active    bool       `gorm:"not null;default:true" json:"active"`
	Requested bool       `gorm:"not null;default:false" json:"requested"`
	SavedAt   time.Time  `gorm:"not null" json:"saved_at"`
	SavedByID *uint      `json:"saved_by_id"`
	UnsavedAt *time.Time `json:"unsaved_at"`
}

func (Source) TableName() string { return "sources" }

// Candidate records that an object passed an alert filter.
type Candidate struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ObjID          string    `gorm:"type:text;not null;index" json:"obj_id"`
	FilterID       uint      `gorm:"not null;index" json:"filter_id"`
	PassedAt       time.Time `gorm:"not null;index" json:"passed_at"`
	PassingAlertID *int64    `json:"passing_alert_id"`
	UploaderID     *uint     `json:"uploader_id"`
}

func (Candidate) TableName() string { return "candidates" }

// Filter is an alert filter owned by a group.
type Filter struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `json:"name"`
	GroupID  uint   `gorm:"not null;index" json:"group_id"`
	StreamID *uint  `json:"stream_id"`
}

func (Filter) TableName() string { return "filters" }

type Group struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
	Private  bool   `json:"private"`
}

func (Group) TableName() string { return "groups" }

type User struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (User) TableName() string { return "users" }

// Listing is a per-user named list of objects (e.g. "favorites").
type Listing struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	UserID   uint   `gorm:"not null;index:idx_listings_user_list" json:"user_id"`
	ObjID    string `gorm:"type:text;not null" json:"obj_id"`
	ListName string `gorm:"not null;index:idx_listings_user_list" json:"list_name"`
}

func (Listing) TableName() string { return "listings" }

// SourceLabel marks that a user has labelled an object on behalf of a group.
type SourceLabel struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ObjID      string    `gorm:"type:text;not null;index" json:"obj_id"`
	LabellerID uint      `gorm:"not null" json:"labeller_id"`
	GroupID    uint      `gorm:"not null" json:"group_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (SourceLabel) TableName() string { return "source_labels" }

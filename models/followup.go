package models

import (
	"time"
)

type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ObjID     string    `gorm:"type:text;not null;index" json:"obj_id"`
	Text      string    `gorm:"not null" json:"text"`
	AuthorID  uint      `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Comment) TableName() string { return "comments" }

type GroupComment struct {
	GroupID   uint `gorm:"primaryKey"`
	CommentID uint `gorm:"primaryKey"`
}

func (GroupComment) TableName() string { return "group_comments" }

type Spectrum struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ObjID        string    `gorm:"type:text;not null;index" json:"obj_id"`
	ObservedAt   time.Time `json:"observed_at"`
	InstrumentID uint      `json:"instrument_id"`
}

func (Spectrum) TableName() string { return "spectra" }

type GroupSpectrum struct {
	GroupID    uint `gorm:"primaryKey"`
	SpectrumID uint `gorm:"primaryKey"`
}

func (GroupSpectrum) TableName() string { return "group_spectra" }

type Photometry struct {
	ID     uint     `gorm:"primaryKey" json:"id"`
	ObjID  string   `gorm:"type:text;not null;index" json:"obj_id"`
	MJD    float64  `gorm:"column:mjd" json:"mjd"`
	Flux   *float64 `json:"flux"`
	Filter string   `json:"filter"`
}

func (Photometry) TableName() string { return "photometry" }

type GroupPhotometry struct {
	GroupID      uint `gorm:"primaryKey"`
	PhotometryID uint `gorm:"primaryKey"`
}

func (GroupPhotometry) TableName() string { return "group_photometry" }

// Allocation is observing time granted to a group; follow-up requests are made against it.
type Allocation struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	GroupID uint `gorm:"not null" json:"group_id"`
}

func (Allocation) TableName() string { return "allocations" }

type FollowupRequest struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ObjID        string    `gorm:"type:text;not null;index" json:"obj_id"`
	AllocationID uint      `gorm:"not null" json:"allocation_id"`
	Status       string    `gorm:"not null" json:"status"`
	RequesterID  uint      `json:"requester_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func (FollowupRequest) TableName() string { return "followuprequests" }

package models

import (
	"time"
)

// Taxonomy is a versioned classification hierarchy; names are shared across versions.
type Taxonomy struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"not null;index" json:"name"`
	Version  string `json:"version"`
	IsLatest bool   `json:"isLatest"`
}

func (Taxonomy) TableName() string { return "taxonomies" }

type Classification struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ObjID          string    `gorm:"type:text;not null;index" json:"obj_id"`
	TaxonomyID     uint      `gorm:"not null" json:"taxonomy_id"`
	Classification string    `gorm:"not null" json:"classification"`
	Probability    *float64  `json:"probability"`
	ML             bool      `gorm:"column:ml;not null;default:false" json:"ml"`
	AuthorID       uint      `json:"author_id"`
	AuthorName     string    `json:"author_name"`
	CreatedAt      time.Time `json:"created_at"`
	Modified       time.Time `json:"modified"`
}

func (Classification) TableName() string { return "classifications" }

// GroupClassification grants a group visibility of a classification.
type GroupClassification struct {
	GroupID          uint `gorm:"primaryKey"`
	ClassificationID uint `gorm:"primaryKey"`
}

func (GroupClassification) TableName() string { return "group_classifications" }

type ClassificationVote struct {
	ID               uint `gorm:"primaryKey" json:"id"`
	ClassificationID uint `gorm:"not null;index" json:"classification_id"`
	VoterID          uint `gorm:"not null" json:"voter_id"`
	Vote             int  `gorm:"not null" json:"vote"`
}

func (ClassificationVote) TableName() string { return "classification_votes" }

// Annotation is a key/value payload attached to an object by an origin (pipeline or user).
type Annotation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ObjID     string    `gorm:"type:text;not null;index" json:"obj_id"`
	Origin    string    `gorm:"not null" json:"origin"`
	Data      JSONMap   `gorm:"type:jsonb;not null" json:"data"`
	AuthorID  uint      `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Annotation) TableName() string { return "annotations" }

type GroupAnnotation struct {
	GroupID      uint `gorm:"primaryKey"`
	AnnotationID uint `gorm:"primaryKey"`
}

func (GroupAnnotation) TableName() string { return "group_annotations" }

package models

import (
	"time"

	"github.com/lib/pq"
)

// QueryCacheEntry stores the full ordered object ID list of a search so later pages can be
// served without re-running it. Rows are immutable and expire at ExpiresAt.
type QueryCacheEntry struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	QueryID     string         `gorm:"type:varchar(64);not null;uniqueIndex:uk_query_cache_entries_query_id" json:"query_id"`
	Fingerprint string         `gorm:"type:varchar(64);not null" json:"fingerprint"`
	ObjIDs      pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"obj_ids"`
	CreatedAt   time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	ExpiresAt   time.Time      `gorm:"not null;index" json:"expires_at"`
}

func (QueryCacheEntry) TableName() string { return "query_cache_entries" }

package models

import (
	"fmt"
	"time"
)

// Localization is a sky map for an event, identified by (dateobs, localization_name).
// Several revisions may share a dateobs; the most recently created one wins.
type Localization struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Dateobs          time.Time `gorm:"not null;index:idx_localizations_dateobs_name" json:"dateobs"`
	LocalizationName string    `gorm:"not null;index:idx_localizations_dateobs_name" json:"localization_name"`
	CreatedAt        time.Time `json:"created_at"`
	Modified         time.Time `json:"modified"`
}

func (Localization) TableName() string { return "localizations" }

// LocalizationFilter represents filter criteria for localization lookups
type LocalizationFilter struct {
	Dateobs *time.Time
	Name    *string
}

// LocalizationTile is one healpix range [HealpixLower, HealpixUpper) of a localization with
// constant probability density (per steradian).
type LocalizationTile struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	LocalizationID uint      `gorm:"not null;index" json:"localization_id"`
	Dateobs        time.Time `gorm:"not null" json:"dateobs"`
	Probdensity    float64   `gorm:"not null" json:"probdensity"`
	HealpixLower   int64     `gorm:"not null" json:"healpix_lower"`
	HealpixUpper   int64     `gorm:"not null" json:"healpix_upper"`
}

// LocalizationTilesTable is the partitioned parent table. Querying it scans every partition.
const LocalizationTilesTable = "localizationtiles"

func (LocalizationTile) TableName() string { return LocalizationTilesTable }

// SourcesConfirmedInGCN records a manual verdict on whether an object belongs to an event.
// Confirmed is tri-state: true, false, or NULL for undecided.
type SourcesConfirmedInGCN struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ObjID       string    `gorm:"type:text;not null;index" json:"obj_id"`
	Dateobs     time.Time `gorm:"not null" json:"dateobs"`
	Confirmed   *bool     `json:"confirmed"`
	Explanation *string   `json:"explanation"`
	Notes       *string   `json:"notes"`
}

func (SourcesConfirmedInGCN) TableName() string { return "sourcesconfirmedingcns" }

// TilePartitionRegistry maps the month of a localization's dateobs to the partition holding
// its tiles. Months outside the registered range resolve to the parent table.
type TilePartitionRegistry struct {
	tables   map[string]string
	fallback string
}

// NewTilePartitionRegistry registers one partition per month from start through until,
// inclusive.
func NewTilePartitionRegistry(start, until time.Time) *TilePartitionRegistry {
	r := &TilePartitionRegistry{
		tables:   make(map[string]string),
		fallback: LocalizationTilesTable,
	}
	m := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(until.Year(), until.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !m.After(end) {
		key := TilePartitionKey(m)
		r.tables[key] = LocalizationTilesTable + "_" + key
		m = m.AddDate(0, 1, 0)
	}
	return r
}

// TilePartitionKey is the YYYY_MM key of dateobs.
func TilePartitionKey(dateobs time.Time) string {
	d := dateobs.UTC()
	return fmt.Sprintf("%04d_%02d", d.Year(), int(d.Month()))
}

// Table returns the partition for dateobs, or the fallback when the month is not registered.
func (r *TilePartitionRegistry) Table(dateobs time.Time) string {
	if t, ok := r.tables[TilePartitionKey(dateobs)]; ok {
		return t
	}
	return r.fallback
}

// Fallback is the table used when a partition is unknown or holds no tiles.
func (r *TilePartitionRegistry) Fallback() string {
	return r.fallback
}

// Tables lists every registered partition.
func (r *TilePartitionRegistry) Tables() []string {
	out := make([]string, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	return out
}

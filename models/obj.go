package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/skyportal/source-query/utils"
	"gorm.io/gorm"
)

// JSONMap is a free-form JSON object column (jsonb).
type JSONMap map[string]any

// Scan implements the sql.Scanner interface for JSONMap
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Value implements the driver.Valuer interface for JSONMap
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Float returns the numeric value stored under key, if any.
func (m JSONMap) Float(key string) (float64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Obj is an astronomical object. Healpix always mirrors (RA, Dec).
type Obj struct {
	ID            string         `gorm:"primaryKey;type:text" json:"id"`
	RA            float64        `gorm:"column:ra;not null" json:"ra"`
	Dec           float64        `gorm:"column:dec;not null" json:"dec"`
	Healpix       int64          `gorm:"not null;index:idx_objs_healpix" json:"-"`
	Redshift      *float64       `json:"redshift"`
	RedshiftError *float64       `json:"redshift_error"`
	Alias         pq.StringArray `gorm:"type:text[]" json:"alias"`
	Origin        *string        `json:"origin"`
	TNSName       *string        `gorm:"column:tns_name" json:"tns_name"`
	AltData       JSONMap        `gorm:"column:altdata;type:jsonb" json:"altdata"`
	HostID        *uint          `json:"host_id"`
	CreatedAt     time.Time      `json:"created_at"`
	Modified      time.Time      `gorm:"autoUpdateTime" json:"modified"`
}

func (Obj) TableName() string { return "objs" }

// BeforeSave keeps the healpix index in step with the position.
func (o *Obj) BeforeSave(tx *gorm.DB) error {
	if o.Dec < -90 || o.Dec > 90 {
		return fmt.Errorf("declination %v out of range", o.Dec)
	}
	o.Healpix = utils.HealpixIndex(o.RA, o.Dec)
	return nil
}

// ObjFilter represents filter criteria for object queries
type ObjFilter struct {
	IDs    []string
	Origin *string
}

// PhotStat holds per-object detection statistics derived from photometry.
type PhotStat struct {
	ID               uint     `gorm:"primaryKey" json:"-"`
	ObjID            string   `gorm:"type:text;not null;uniqueIndex" json:"obj_id"`
	NumObsGlobal     int      `json:"num_obs_global"`
	NumDetGlobal     int      `json:"num_det_global"`
	FirstDetectedMJD *float64 `gorm:"column:first_detected_mjd" json:"first_detected_mjd"`
	FirstDetectedMag *float64 `json:"first_detected_mag"`
	LastDetectedMJD  *float64 `gorm:"column:last_detected_mjd" json:"last_detected_mjd"`
	LastDetectedMag  *float64 `json:"last_detected_mag"`
	PeakMagGlobal    *float64 `json:"peak_mag_global"`
	PeakMJDGlobal    *float64 `gorm:"column:peak_mjd_global" json:"peak_mjd_global"`
}

func (PhotStat) TableName() string { return "phot_stats" }

// Galaxy is a catalog galaxy usable as a host.
type Galaxy struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	CatalogName string   `json:"catalog_name"`
	Name        string   `json:"name"`
	RA          float64  `gorm:"column:ra" json:"ra"`
	Dec         float64  `gorm:"column:dec" json:"dec"`
	Redshift    *float64 `json:"redshift"`
	Distmpc     *float64 `json:"distmpc"`
}

func (Galaxy) TableName() string { return "galaxys" }

// Thumbnail is a cutout image reference.
type Thumbnail struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ObjID     string    `gorm:"type:text;not null;index" json:"obj_id"`
	Type      string    `json:"type"`
	PublicURL string    `json:"public_url"`
	CreatedAt time.Time `json:"created_at"`
}

func (Thumbnail) TableName() string { return "thumbnails" }

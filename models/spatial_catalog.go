package models

// SpatialCatalog groups named sky regions (e.g. a galaxy catalog footprint).
type SpatialCatalog struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	CatalogName string `gorm:"not null;uniqueIndex" json:"catalog_name"`
}

func (SpatialCatalog) TableName() string { return "spatial_catalogs" }

type SpatialCatalogEntry struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	CatalogID uint    `gorm:"not null;index" json:"catalog_id"`
	EntryName string  `gorm:"not null" json:"entry_name"`
	Data      JSONMap `gorm:"type:jsonb" json:"data"`
}

func (SpatialCatalogEntry) TableName() string { return "spatial_catalog_entrys" }

// SpatialCatalogEntryTile is one healpix range [HealpixLower, HealpixUpper) of an entry's region.
type SpatialCatalogEntryTile struct {
	ID           uint  `gorm:"primaryKey" json:"id"`
	EntryID      uint  `gorm:"not null;index" json:"entry_id"`
	HealpixLower int64 `gorm:"not null" json:"healpix_lower"`
	HealpixUpper int64 `gorm:"not null" json:"healpix_upper"`
}

func (SpatialCatalogEntryTile) TableName() string { return "spatial_catalog_entry_tiles" }

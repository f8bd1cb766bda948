package testing

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqliteSchema mirrors the migration closely enough for repository tests that avoid
// PostgreSQL-only operators. Array and jsonb columns are stored as text.
var sqliteSchema = []string{
	`CREATE TABLE groups (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, nickname TEXT, private BOOLEAN NOT NULL DEFAULT 0)`,
	`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, username TEXT NOT NULL, first_name TEXT, last_name TEXT)`,
	`CREATE TABLE galaxys (id INTEGER PRIMARY KEY AUTOINCREMENT, catalog_name TEXT, name TEXT, ra REAL, dec REAL, redshift REAL, distmpc REAL)`,
	`CREATE TABLE objs (id TEXT PRIMARY KEY, ra REAL NOT NULL, dec REAL NOT NULL, healpix INTEGER NOT NULL,
		redshift REAL, redshift_error REAL, alias TEXT, origin TEXT, tns_name TEXT, altdata TEXT,
		host_id INTEGER, created_at DATETIME, modified DATETIME)`,
	`CREATE TABLE sources (id INTEGER PRIMARY KEY AUTOINCREMENT, obj_id TEXT NOT NULL, group_id INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1, requested BOOLEAN NOT NULL DEFAULT 0, saved_at DATETIME NOT NULL,
		saved_by_id INTEGER, unsaved_at DATETIME)`,
	`CREATE TABLE filters (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, group_id INTEGER NOT NULL, stream_id INTEGER)`,
	`CREATE TABLE candidates (id INTEGER PRIMARY KEY AUTOINCREMENT, obj_id TEXT NOT NULL, filter_id INTEGER NOT NULL,
		passed_at DATETIME NOT NULL, passing_alert_id INTEGER, uploader_id INTEGER)`,
	`CREATE TABLE listings (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER NOT NULL, obj_id TEXT NOT NULL, list_name TEXT NOT NULL)`,
	`CREATE TABLE source_labels (id INTEGER PRIMARY KEY AUTOINCREMENT, obj_id TEXT NOT NULL, labeller_id INTEGER NOT NULL,
		group_id INTEGER NOT NULL, created_at DATETIME)`,
	`CREATE TABLE taxonomies (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, version TEXT, is_latest BOOLEAN)`,
	`CREATE TABLE classifications (id INTEGER PRIMARY KEY AUTOINCREMENT, obj_id TEXT NOT NULL, taxonomy_id INTEGER NOT NULL,
		classification TEXT NOT NULL, probability REAL, ml BOOLEAN NOT NULL DEFAULT 0, author_id INTEGER, author_name TEXT,
		created_at DATETIME, modified DATETIME)`,
	`CREATE TABLE group_classifications (group_id INTEGER NOT NULL, classification_id INTEGER NOT NULL, PRIMARY KEY (group_id, classification_id))`,
	`CREATE TABLE classification_votes (id INTEGER PRIMARY KEY AUTOINCREMENT, classification_id INTEGER NOT NULL, voter_id INTEGER NOT NULL, vote INTEGER NOT NULL)`,
	`CREATE TABLE annotations (id INTEGER PRIMARY KEY AUTOINCREMENT, obj_id TEXT NOT NULL, origin TEXT NOT NULL, data TEXT NOT NULL,
		author_id INTEGER, created_at DATETIME)`,
	`CREATE TABLE group_annotations (group_id INTEGER NOT NULL, annotation_id INTEGER NOT NULL, PRIMARY KEY (group_id, annotation_id))`,
	`CREATE TABLE comments (id INTEGER PRIMARY KEY AUTOINCREMENT, obj_id TEXT NOT NULL, text TEXT NOT NULL, author_id INTEGER, created_at DATETIME)`,
	`CREATE TABLE group_comments (group_id INTEGER NOT NULL, comment_id INTEGER NOT NULL, PRIMARY KEY (group_id, comment_id))`,
	`CREATE TABLE spectra (id INTEGER PRIMARY KEY AUTOINCREMENT, obj_id TEXT NOT NULL, observed_at DATETIME, instrument_id INTEGER)`,
	`CREATE TABLE group_spectra (group_id INTEGER NOT NULL, spectrum_id INTEGER NOT NULL, PRIMARY KEY (group_id, spectrum_id))`,
	`CREATE TABLE photometry (id INTEGER PRIMARY KEY AUTOINCREMENT, obj_id TEXT NOT NULL, mjd REAL NOT NULL, flux REAL, filter TEXT)`,
	`CREATE TABLE group_photometry (group_id INTEGER NOT NULL, photometry_id INTEGER NOT NULL, PRIMARY KEY (group_id, photometry_id))`,
	`CREATE TABLE phot_stats (id INTEGER PRIMARY KEY AUTOINCREMENT, obj_id TEXT NOT NULL UNIQUE, num_obs_global INTEGER NOT NULL DEFAULT 0,
		num_det_global INTEGER NOT NULL DEFAULT 0, first_detected_mjd REAL, first_detected_mag REAL, last_detected_mjd REAL,
		last_detected_mag REAL, peak_mag_global REAL, peak_mjd_global REAL)`,
	`CREATE TABLE thumbnails (id INTEGER PRIMARY KEY AUTOINCREMENT, obj_id TEXT NOT NULL, type TEXT NOT NULL, public_url TEXT, created_at DATETIME)`,
	`CREATE TABLE allocations (id INTEGER PRIMARY KEY AUTOINCREMENT, group_id INTEGER NOT NULL)`,
	`CREATE TABLE followuprequests (id INTEGER PRIMARY KEY AUTOINCREMENT, obj_id TEXT NOT NULL, allocation_id INTEGER NOT NULL,
		status TEXT NOT NULL, requester_id INTEGER, created_at DATETIME)`,
	`CREATE TABLE localizations (id INTEGER PRIMARY KEY AUTOINCREMENT, dateobs DATETIME NOT NULL, localization_name TEXT NOT NULL,
		created_at DATETIME, modified DATETIME)`,
	`CREATE TABLE localizationtiles (id INTEGER PRIMARY KEY AUTOINCREMENT, localization_id INTEGER NOT NULL, dateobs DATETIME NOT NULL,
		probdensity REAL NOT NULL, healpix_lower INTEGER NOT NULL, healpix_upper INTEGER NOT NULL)`,
	`CREATE TABLE sourcesconfirmedingcns (id INTEGER PRIMARY KEY AUTOINCREMENT, obj_id TEXT NOT NULL, dateobs DATETIME NOT NULL,
		confirmed BOOLEAN, explanation TEXT, notes TEXT)`,
	`CREATE TABLE spatial_catalogs (id INTEGER PRIMARY KEY AUTOINCREMENT, catalog_name TEXT NOT NULL UNIQUE)`,
	`CREATE TABLE spatial_catalog_entrys (id INTEGER PRIMARY KEY AUTOINCREMENT, catalog_id INTEGER NOT NULL, entry_name TEXT NOT NULL, data TEXT)`,
	`CREATE TABLE spatial_catalog_entry_tiles (id INTEGER PRIMARY KEY AUTOINCREMENT, entry_id INTEGER NOT NULL,
		healpix_lower INTEGER NOT NULL, healpix_upper INTEGER NOT NULL)`,
	`CREATE TABLE query_cache_entries (id INTEGER PRIMARY KEY AUTOINCREMENT, query_id TEXT NOT NULL UNIQUE, fingerprint TEXT NOT NULL,
		obj_ids TEXT NOT NULL DEFAULT '{}', created_at DATETIME, expires_at DATETIME NOT NULL)`,
}

// SetupSQLiteDB opens a private in-memory SQLite database with the search schema
func SetupSQLiteDB() (*TestDB, error) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// every pooled connection would otherwise get its own empty in-memory database
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if err := db.Exec(stmt).Error; err != nil {
			return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
		}
	}
	return &TestDB{DB: db, Name: "sqlite"}, nil
}

// CreateTilePartition adds a table shaped like localizationtiles under name
func (tdb *TestDB) CreateTilePartition(name string) error {
	return tdb.DB.Exec(fmt.Sprintf(`CREATE TABLE %s (id INTEGER PRIMARY KEY AUTOINCREMENT, localization_id INTEGER NOT NULL,
		dateobs DATETIME NOT NULL, probdensity REAL NOT NULL, healpix_lower INTEGER NOT NULL, healpix_upper INTEGER NOT NULL)`, name)).Error
}

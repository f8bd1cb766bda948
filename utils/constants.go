package utils

import (
	"time"
)

type contextKey string

// Request-scoped context keys set by handlers
const (
	RequestIDKey contextKey = "request_id"
	UserAgentKey contextKey = "user_agent"
	IPAddressKey contextKey = "ip_address"
	EndpointKey  contextKey = "endpoint"
	TimeoutKey   contextKey = "timeout"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Query engine limits and defaults
const (
	// MaxCandidatesForSpatialQuery caps the objects a localization cross-match may scan
	MaxCandidatesForSpatialQuery = 50000

	DefaultNumPerPage = 100
	MaxNumPerPage     = 500

	// MaxConeRadiusDeg is the widest cone search accepted
	MaxConeRadiusDeg = 1.0

	DefaultQueryCacheTTL = 30 * time.Minute

	// FavoritesListName is the listing name backing the favorites sort
	FavoritesListName = "favorites"
)

// Healpix resolution shared by objects and localization tiles
const (
	HealpixOrder = 29
	HealpixNside = int64(1) << HealpixOrder
)

// Planck 2018 flat LCDM
const (
	DefaultHubbleConstant = 67.66
	DefaultOmegaMatter    = 0.30966

	// SpeedOfLightKmS in km/s
	SpeedOfLightKmS = 299792.458
)

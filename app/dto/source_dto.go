package dto

import (
	"time"

	"github.com/paulmach/orb/geojson"
)

// ObjectFilterParams are the object-level filters shared by source and candidate searches.
// Values stay strings so coercion failures can name the parameter.
type ObjectFilterParams struct {
	SourceID          string `query:"sourceID" json:"sourceID,omitempty"`
	RejectedSourceIDs string `query:"rejectedSourceIDs" json:"rejectedSourceIDs,omitempty"`
	Alias             string `query:"alias" json:"alias,omitempty"`
	Origin            string `query:"origin" json:"origin,omitempty"`
	HasTNSName        string `query:"hasTNSname" json:"hasTNSname,omitempty"`
	HasNoTNSName      string `query:"hasNoTNSname" json:"hasNoTNSname,omitempty"`

	RA          string `query:"ra" json:"ra,omitempty"`
	Dec         string `query:"dec" json:"dec,omitempty"`
	Radius      string `query:"radius" json:"radius,omitempty"`
	RadiusUnits string `query:"radiusUnits" json:"radiusUnits,omitempty" validate:"omitempty,oneof=deg arcmin arcsec"`

	StartDate              string `query:"startDate" json:"startDate,omitempty"`
	EndDate                string `query:"endDate" json:"endDate,omitempty"`
	CreatedOrModifiedAfter string `query:"createdOrModifiedAfter" json:"createdOrModifiedAfter,omitempty"`
	ListName               string `query:"listName" json:"listName,omitempty"`

	MinRedshift         string `query:"minRedshift" json:"minRedshift,omitempty"`
	MaxRedshift         string `query:"maxRedshift" json:"maxRedshift,omitempty"`
	MinPeakMagnitude    string `query:"minPeakMagnitude" json:"minPeakMagnitude,omitempty"`
	MaxPeakMagnitude    string `query:"maxPeakMagnitude" json:"maxPeakMagnitude,omitempty"`
	MinLatestMagnitude  string `query:"minLatestMagnitude" json:"minLatestMagnitude,omitempty"`
	MaxLatestMagnitude  string `query:"maxLatestMagnitude" json:"maxLatestMagnitude,omitempty"`
	NumberDetections    string `query:"numberDetections" json:"numberDetections,omitempty"`
	FirstDetectionAfter string `query:"firstDetectionAfter" json:"firstDetectionAfter,omitempty"`
	LastDetectionBefore string `query:"lastDetectionBefore" json:"lastDetectionBefore,omitempty"`

	HasSpectrum           string `query:"hasSpectrum" json:"hasSpectrum,omitempty"`
	HasNoSpectrum         string `query:"hasNoSpectrum" json:"hasNoSpectrum,omitempty"`
	HasSpectrumAfter      string `query:"hasSpectrumAfter" json:"hasSpectrumAfter,omitempty"`
	HasSpectrumBefore     string `query:"hasSpectrumBefore" json:"hasSpectrumBefore,omitempty"`
	HasFollowupRequest    string `query:"hasFollowupRequest" json:"hasFollowupRequest,omitempty"`
	FollowupRequestStatus string `query:"followupRequestStatus" json:"followupRequestStatus,omitempty"`

	HasBeenLabelled     string `query:"hasBeenLabelled" json:"hasBeenLabelled,omitempty"`
	HasNotBeenLabelled  string `query:"hasNotBeenLabelled" json:"hasNotBeenLabelled,omitempty"`
	CurrentUserLabeller string `query:"currentUserLabeller" json:"currentUserLabeller,omitempty"`

	Classifications      string `query:"classifications" json:"classifications,omitempty"`
	ClassificationsSimul string `query:"classificationsSimul" json:"classificationsSimul,omitempty"`
	Nonclassifications   string `query:"nonclassifications" json:"nonclassifications,omitempty"`
	Unclassified         string `query:"unclassified" json:"unclassified,omitempty"`
	Classified           string `query:"classified" json:"classified,omitempty"`

	AnnotationsFilter       string `query:"annotationsFilter" json:"annotationsFilter,omitempty"`
	AnnotationsFilterOrigin string `query:"annotationsFilterOrigin" json:"annotationsFilterOrigin,omitempty"`
	AnnotationsFilterBefore string `query:"annotationsFilterBefore" json:"annotationsFilterBefore,omitempty"`
	AnnotationsFilterAfter  string `query:"annotationsFilterAfter" json:"annotationsFilterAfter,omitempty"`

	CommentsFilter       string `query:"commentsFilter" json:"commentsFilter,omitempty"`
	CommentsFilterAuthor string `query:"commentsFilterAuthor" json:"commentsFilterAuthor,omitempty"`
	CommentsFilterBefore string `query:"commentsFilterBefore" json:"commentsFilterBefore,omitempty"`
	CommentsFilterAfter  string `query:"commentsFilterAfter" json:"commentsFilterAfter,omitempty"`

	LocalizationDateobs          string `query:"localizationDateobs" json:"localizationDateobs,omitempty"`
	LocalizationName             string `query:"localizationName" json:"localizationName,omitempty"`
	LocalizationCumprob          string `query:"localizationCumprob" json:"localizationCumprob,omitempty"`
	LocalizationRejectSources    string `query:"localizationRejectSources" json:"localizationRejectSources,omitempty"`
	IncludeSourcesConfirmedInGcn string `query:"includeSourcesConfirmedInGcn" json:"includeSourcesConfirmedInGcn,omitempty"`

	SpatialCatalogName      string `query:"spatialCatalogName" json:"spatialCatalogName,omitempty"`
	SpatialCatalogEntryName string `query:"spatialCatalogEntryName" json:"spatialCatalogEntryName,omitempty"`
}

// PageParams control ordering, pagination and caching
type PageParams struct {
	SortBy       string `query:"sortBy" json:"sortBy,omitempty"`
	SortOrder    string `query:"sortOrder" json:"sortOrder,omitempty" validate:"omitempty,oneof=asc desc ASC DESC"`
	PageNumber   string `query:"pageNumber" json:"pageNumber,omitempty" validate:"omitempty,numeric"`
	NumPerPage   string `query:"numPerPage" json:"numPerPage,omitempty" validate:"omitempty,numeric"`
	TotalMatches string `query:"totalMatches" json:"totalMatches,omitempty" validate:"omitempty,numeric"`
	UseCache     string `query:"useCache" json:"useCache,omitempty"`
	QueryID      string `query:"queryID" json:"queryID,omitempty" validate:"omitempty,max=64"`
}

// IncludeParams toggle per-page attachments; every toggle defaults to off
type IncludeParams struct {
	IncludeGroups           string `query:"includeGroups" json:"includeGroups,omitempty"`
	IncludeClassifications  string `query:"includeClassifications" json:"includeClassifications,omitempty"`
	IncludeAnnotations      string `query:"includeAnnotations" json:"includeAnnotations,omitempty"`
	IncludeThumbnails       string `query:"includeThumbnails" json:"includeThumbnails,omitempty"`
	IncludePhotometryExists string `query:"includePhotometryExists" json:"includePhotometryExists,omitempty"`
	IncludeSpectrumExists   string `query:"includeSpectrumExists" json:"includeSpectrumExists,omitempty"`
	IncludeCommentExists    string `query:"includeCommentExists" json:"includeCommentExists,omitempty"`
	IncludeDetectionStats   string `query:"includeDetectionStats" json:"includeDetectionStats,omitempty"`
	IncludeLabellers        string `query:"includeLabellers" json:"includeLabellers,omitempty"`
	IncludeHosts            string `query:"includeHosts" json:"includeHosts,omitempty"`
	IncludeDerived          string `query:"includeDerived" json:"includeDerived,omitempty"`
	IncludeGeoJSON          string `query:"includeGeoJSON" json:"includeGeoJSON,omitempty"`
}

// ListSourcesRequest is the full parameter set of a source search
type ListSourcesRequest struct {
	ObjectFilterParams
	PageParams
	IncludeParams

	GroupIDs         string `query:"groupIDs" json:"groupIDs,omitempty"`
	IncludeRequested string `query:"includeRequested" json:"includeRequested,omitempty"`
	RequestedOnly    string `query:"requestedOnly" json:"requestedOnly,omitempty"`
	SavedBefore      string `query:"savedBefore" json:"savedBefore,omitempty"`
	SavedAfter       string `query:"savedAfter" json:"savedAfter,omitempty"`
	SavedBy          string `query:"savedBy" json:"savedBy,omitempty" validate:"omitempty,numeric"`
}

type SourceGroupItem struct {
	ID              uint       `json:"id"`
	Name            string     `json:"name"`
	Nickname        *string    `json:"nickname,omitempty"`
	Active          bool       `json:"active"`
	Requested       bool       `json:"requested"`
	SavedAt         time.Time  `json:"saved_at"`
	SavedByID       *uint      `json:"saved_by_id,omitempty"`
	SavedByUsername *string    `json:"saved_by,omitempty"`
	UnsavedAt       *time.Time `json:"unsaved_at,omitempty"`
}

type ClassificationVoteItem struct {
	VoterID uint `json:"voter_id"`
	Vote    int  `json:"vote"`
}

type ClassificationItem struct {
	ID             uint                     `json:"id"`
	Taxonomy       string                   `json:"taxonomy"`
	TaxonomyID     uint                     `json:"taxonomy_id"`
	Classification string                   `json:"classification"`
	Probability    *float64                 `json:"probability"`
	ML             bool                     `json:"ml"`
	AuthorName     string                   `json:"author_name"`
	CreatedAt      time.Time                `json:"created_at"`
	GroupIDs       []uint                   `json:"groups"`
	Votes          []ClassificationVoteItem `json:"votes"`
}

type AnnotationItem struct {
	ID        uint           `json:"id"`
	Origin    string         `json:"origin"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

type ThumbnailItem struct {
	Type      string `json:"type"`
	PublicURL string `json:"public_url"`
}

type PhotStatItem struct {
	NumObsGlobal     int      `json:"num_obs_global"`
	NumDetGlobal     int      `json:"num_det_global"`
	FirstDetectedMJD *float64 `json:"first_detected_mjd"`
	FirstDetectedMag *float64 `json:"first_detected_mag"`
	LastDetectedMJD  *float64 `json:"last_detected_mjd"`
	LastDetectedMag  *float64 `json:"last_detected_mag"`
	PeakMagGlobal    *float64 `json:"peak_mag_global"`
	PeakMJDGlobal    *float64 `json:"peak_mjd_global"`
}

type LabellerItem struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type HostItem struct {
	ID          uint     `json:"id"`
	Name        string   `json:"name"`
	CatalogName string   `json:"catalog_name"`
	RA          float64  `json:"ra"`
	Dec         float64  `json:"dec"`
	Redshift    *float64 `json:"redshift"`
	Distmpc     *float64 `json:"distmpc"`
}

type CandidateFilterItem struct {
	FilterID   uint      `json:"filter_id"`
	FilterName string    `json:"filter_name"`
	GroupID    uint      `json:"group_id"`
	PassedAt   time.Time `json:"passed_at"`
}

// SourceItem is one hydrated object. Optional sections are omitted unless requested.
type SourceItem struct {
	ID            string         `json:"id"`
	RA            float64        `json:"ra"`
	Dec           float64        `json:"dec"`
	Redshift      *float64       `json:"redshift"`
	RedshiftError *float64       `json:"redshift_error"`
	Alias         []string       `json:"alias"`
	Origin        *string        `json:"origin"`
	TNSName       *string        `json:"tns_name"`
	AltData       map[string]any `json:"altdata"`
	CreatedAt     time.Time      `json:"created_at"`
	Modified      time.Time      `json:"modified"`

	Groups           []SourceGroupItem    `json:"groups,omitempty"`
	Classifications  []ClassificationItem `json:"classifications,omitempty"`
	Annotations      []AnnotationItem     `json:"annotations,omitempty"`
	Thumbnails       []ThumbnailItem      `json:"thumbnails,omitempty"`
	PhotometryExists *bool                `json:"photometry_exists,omitempty"`
	SpectrumExists   *bool                `json:"spectrum_exists,omitempty"`
	CommentExists    *bool                `json:"comment_exists,omitempty"`
	PhotStats        *PhotStatItem        `json:"photstats,omitempty"`
	Labellers        []LabellerItem       `json:"labellers,omitempty"`
	Host             *HostItem            `json:"host,omitempty"`
	HostOffset       *float64             `json:"host_offset,omitempty"`

	GalLon                  *float64 `json:"gal_lon,omitempty"`
	GalLat                  *float64 `json:"gal_lat,omitempty"`
	LuminosityDistance      *float64 `json:"luminosity_distance,omitempty"`
	AngularDiameterDistance *float64 `json:"angular_diameter_distance,omitempty"`
	DM                      *float64 `json:"dm,omitempty"`

	Filters []CandidateFilterItem `json:"passing_filters,omitempty"`
}

// ListSourcesResponse is the paginated envelope of a source search
type ListSourcesResponse struct {
	Sources      []SourceItem               `json:"sources"`
	TotalMatches int64                      `json:"totalMatches"`
	PageNumber   int                        `json:"pageNumber"`
	NumPerPage   int                        `json:"numPerPage"`
	QueryID      string                     `json:"queryID,omitempty"`
	GeoJSON      *geojson.FeatureCollection `json:"geojson,omitempty"`
}

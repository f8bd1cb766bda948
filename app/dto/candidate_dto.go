package dto

import (
	"github.com/paulmach/orb/geojson"
)

// ListCandidatesRequest is the full parameter set of a candidate search
type ListCandidatesRequest struct {
	ObjectFilterParams
	PageParams
	IncludeParams

	GroupIDs               string `query:"groupIDs" json:"groupIDs,omitempty"`
	FilterIDs              string `query:"filterIDs" json:"filterIDs,omitempty"`
	SavedStatus            string `query:"savedStatus" json:"savedStatus,omitempty" validate:"omitempty,oneof=all savedToAllSelected savedToAnySelected savedToAnyAccessible notSavedToAnyAccessible notSavedToAnySelected notSavedToAllSelected"`
	SortByAnnotationOrigin string `query:"sortByAnnotationOrigin" json:"sortByAnnotationOrigin,omitempty"`
	SortByAnnotationKey    string `query:"sortByAnnotationKey" json:"sortByAnnotationKey,omitempty"`
	SortByAnnotationOrder  string `query:"sortByAnnotationOrder" json:"sortByAnnotationOrder,omitempty" validate:"omitempty,oneof=asc desc ASC DESC"`
}

// ListCandidatesResponse is the paginated envelope of a candidate search
type ListCandidatesResponse struct {
	Candidates   []SourceItem               `json:"candidates"`
	TotalMatches int64                      `json:"totalMatches"`
	PageNumber   int                        `json:"pageNumber"`
	NumPerPage   int                        `json:"numPerPage"`
	QueryID      string                     `json:"queryID,omitempty"`
	GeoJSON      *geojson.FeatureCollection `json:"geojson,omitempty"`
}

package businessflow

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/skyportal/source-query/app/dto"
	"github.com/skyportal/source-query/config"
	"github.com/skyportal/source-query/query"
	"github.com/skyportal/source-query/utils"
)

const defaultLocalizationCumprob = 0.95

// tnsDesignation matches names like "sn2011fe" or "AT 2019abc"
var tnsDesignation = regexp.MustCompile(`(?i)^\s*(sn|at)\s*(\d{4}[a-z]+)\s*$`)

var annotationOperators = map[string]string{
	"lt": "<",
	"le": "<=",
	"eq": "=",
	"ne": "!=",
	"ge": ">=",
	"gt": ">",
}

// ConeSearch is a circular region around (RA, Dec)
type ConeSearch struct {
	RA        float64
	Dec       float64
	RadiusDeg float64
}

// LocalizationSearch selects objects inside the cumulative probability region of a sky map
type LocalizationSearch struct {
	Dateobs          time.Time
	Name             *string
	Cumprob          float64
	RejectSources    bool
	IncludeConfirmed bool
}

// SpatialCatalogSearch selects objects inside a catalog entry's region
type SpatialCatalogSearch struct {
	CatalogName string
	EntryName   string
}

type ClassificationPair struct {
	Taxonomy string
	Value    string
}

// AnnotationFilter compares Key against Value with Op; without Op it only asserts the key is set
type AnnotationFilter struct {
	Key   string
	Value float64
	Op    string
}

// ObjectFilters are the typed object-level filters shared by source and candidate searches
type ObjectFilters struct {
	SourceID          string
	TNSName           string
	RejectedSourceIDs []string
	Alias             string
	Origin            string
	HasTNSName        bool
	HasNoTNSName      bool

	Cone *ConeSearch

	StartDate              *time.Time
	EndDate                *time.Time
	CreatedOrModifiedAfter *time.Time
	ListName               string

	MinRedshift         *float64
	MaxRedshift         *float64
	MinPeakMagnitude    *float64
	MaxPeakMagnitude    *float64
	MinLatestMagnitude  *float64
	MaxLatestMagnitude  *float64
	NumberDetections    *int
	FirstDetectionAfter *time.Time
	LastDetectionBefore *time.Time

	HasSpectrum           bool
	HasNoSpectrum         bool
	HasSpectrumAfter      *time.Time
	HasSpectrumBefore     *time.Time
	HasFollowupRequest    bool
	FollowupRequestStatus string

	HasBeenLabelled     bool
	HasNotBeenLabelled  bool
	CurrentUserLabeller bool

	Classifications      []ClassificationPair
	ClassificationsSimul bool
	Nonclassifications   []ClassificationPair
	Unclassified         bool
	Classified           bool

	Annotations             []AnnotationFilter
	AnnotationsFilterOrigin []string
	AnnotationsFilterBefore *time.Time
	AnnotationsFilterAfter  *time.Time

	CommentsFilter       []string
	CommentsFilterAuthor string
	CommentsFilterBefore *time.Time
	CommentsFilterAfter  *time.Time

	Localization   *LocalizationSearch
	SpatialCatalog *SpatialCatalogSearch
}

// usesPhotStats reports whether any detection statistics filter is set
func (f *ObjectFilters) usesPhotStats() bool {
	return f.StartDate != nil || f.EndDate != nil ||
		f.MinPeakMagnitude != nil || f.MaxPeakMagnitude != nil ||
		f.MinLatestMagnitude != nil || f.MaxLatestMagnitude != nil ||
		f.NumberDetections != nil || f.FirstDetectionAfter != nil || f.LastDetectionBefore != nil
}

func (f *ObjectFilters) usesAnnotations() bool {
	return len(f.Annotations) > 0 || len(f.AnnotationsFilterOrigin) > 0 ||
		f.AnnotationsFilterBefore != nil || f.AnnotationsFilterAfter != nil
}

func (f *ObjectFilters) usesComments() bool {
	return len(f.CommentsFilter) > 0 || f.CommentsFilterAuthor != "" ||
		f.CommentsFilterBefore != nil || f.CommentsFilterAfter != nil
}

// PageOptions control ordering and pagination
type PageOptions struct {
	SortBy       string
	SortOrder    query.Direction
	SortOrderSet bool
	Page         int
	PerPage      int
	TotalMatches *int64
	UseCache     bool
	QueryID      string
}

// IncludeOptions toggle per-page attachments
type IncludeOptions struct {
	Groups           bool
	Classifications  bool
	Annotations      bool
	Thumbnails       bool
	PhotometryExists bool
	SpectrumExists   bool
	CommentExists    bool
	DetectionStats   bool
	Labellers        bool
	Hosts            bool
	Derived          bool
	GeoJSON          bool
}

// paramParser coerces raw string parameters and keeps the first failure
type paramParser struct {
	err error
}

func (p *paramParser) fail(param, format string, args ...any) {
	if p.err == nil {
		p.err = newValidationError(param, format, args...)
	}
}

func (p *paramParser) floatParam(param, raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(param, "must be a number, got %q", raw)
		return nil
	}
	return &v
}

func (p *paramParser) intParam(param, raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(param, "must be an integer, got %q", raw)
		return nil
	}
	return &v
}

func (p *paramParser) int64Param(param, raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.fail(param, "must be an integer, got %q", raw)
		return nil
	}
	return &v
}

func (p *paramParser) boolParam(param, raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	v, err := utils.ParseBoolToken(raw)
	if err != nil {
		p.fail(param, "%v", err)
		return false
	}
	return v
}

func (p *paramParser) dateParam(param, raw string) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	t, err := utils.ParseDate(raw)
	if err != nil {
		p.fail(param, "could not parse date %q", raw)
		return nil
	}
	return &t
}

func (p *paramParser) int64List(param, raw string) []int64 {
	var out []int64
	for _, item := range utils.SplitList(raw) {
		v, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			p.fail(param, "must be a comma-separated list of integers, got %q", item)
			return nil
		}
		out = append(out, v)
	}
	return utils.Unique(out)
}

func (p *paramParser) classificationPairs(param, raw string) []ClassificationPair {
	var out []ClassificationPair
	seen := make(map[ClassificationPair]bool)
	for _, item := range utils.SplitList(raw) {
		taxonomy, value, ok := strings.Cut(item, ":")
		taxonomy, value = strings.TrimSpace(taxonomy), strings.TrimSpace(value)
		if !ok || taxonomy == "" || value == "" {
			p.fail(param, "expected taxonomy:classification, got %q", item)
			return nil
		}
		pair := ClassificationPair{Taxonomy: taxonomy, Value: value}
		if !seen[pair] {
			seen[pair] = true
			out = append(out, pair)
		}
	}
	return out
}

func (p *paramParser) annotationFilters(param, raw string) []AnnotationFilter {
	var out []AnnotationFilter
	for _, item := range utils.SplitList(raw) {
		parts := strings.Split(item, ":")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if parts[0] == "" || len(parts) > 3 {
			p.fail(param, "expected name, name:value or name:value:op, got %q", item)
			return nil
		}
		af := AnnotationFilter{Key: parts[0]}
		if len(parts) == 3 {
			op, ok := annotationOperators[strings.ToLower(parts[2])]
			if !ok {
				p.fail(param, "unknown operator %q, expected one of lt, le, eq, ne, ge, gt", parts[2])
				return nil
			}
			v, err := strconv.ParseFloat(parts[1], 64)
			if err != nil {
				p.fail(param, "comparison value must be a number, got %q", parts[1])
				return nil
			}
			af.Op, af.Value = op, v
		}
		out = append(out, af)
	}
	return out
}

// parseObjectFilters coerces and cross-checks the shared object filters
func parseObjectFilters(p *paramParser, in dto.ObjectFilterParams, cfg config.QueryConfig) ObjectFilters {
	f := ObjectFilters{
		SourceID:              strings.TrimSpace(in.SourceID),
		RejectedSourceIDs:     utils.SplitList(in.RejectedSourceIDs),
		Alias:                 strings.TrimSpace(in.Alias),
		Origin:                strings.TrimSpace(in.Origin),
		HasTNSName:            p.boolParam("hasTNSname", in.HasTNSName),
		HasNoTNSName:          p.boolParam("hasNoTNSname", in.HasNoTNSName),
		ListName:              strings.TrimSpace(in.ListName),
		FollowupRequestStatus: strings.TrimSpace(in.FollowupRequestStatus),
		CommentsFilter:        utils.SplitList(in.CommentsFilter),
		CommentsFilterAuthor:  strings.TrimSpace(in.CommentsFilterAuthor),
	}
	if m := tnsDesignation.FindStringSubmatch(f.SourceID); m != nil {
		f.TNSName = m[2]
	}
	if f.HasTNSName && f.HasNoTNSName {
		p.fail("hasNoTNSname", "cannot be combined with hasTNSname")
	}

	f.Cone = parseCone(p, in, cfg)

	f.StartDate = p.dateParam("startDate", in.StartDate)
	f.EndDate = p.dateParam("endDate", in.EndDate)
	f.CreatedOrModifiedAfter = p.dateParam("createdOrModifiedAfter", in.CreatedOrModifiedAfter)

	f.MinRedshift = p.floatParam("minRedshift", in.MinRedshift)
	f.MaxRedshift = p.floatParam("maxRedshift", in.MaxRedshift)
	f.MinPeakMagnitude = p.floatParam("minPeakMagnitude", in.MinPeakMagnitude)
	f.MaxPeakMagnitude = p.floatParam("maxPeakMagnitude", in.MaxPeakMagnitude)
	f.MinLatestMagnitude = p.floatParam("minLatestMagnitude", in.MinLatestMagnitude)
	f.MaxLatestMagnitude = p.floatParam("maxLatestMagnitude", in.MaxLatestMagnitude)
	f.NumberDetections = p.intParam("numberDetections", in.NumberDetections)
	f.FirstDetectionAfter = p.dateParam("firstDetectionAfter", in.FirstDetectionAfter)
	f.LastDetectionBefore = p.dateParam("lastDetectionBefore", in.LastDetectionBefore)

	f.HasSpectrum = p.boolParam("hasSpectrum", in.HasSpectrum)
	f.HasNoSpectrum = p.boolParam("hasNoSpectrum", in.HasNoSpectrum)
	f.HasSpectrumAfter = p.dateParam("hasSpectrumAfter", in.HasSpectrumAfter)
	f.HasSpectrumBefore = p.dateParam("hasSpectrumBefore", in.HasSpectrumBefore)
	if f.HasNoSpectrum && (f.HasSpectrum || f.HasSpectrumAfter != nil || f.HasSpectrumBefore != nil) {
		p.fail("hasNoSpectrum", "cannot be combined with spectrum existence filters")
	}
	f.HasFollowupRequest = p.boolParam("hasFollowupRequest", in.HasFollowupRequest)

	f.HasBeenLabelled = p.boolParam("hasBeenLabelled", in.HasBeenLabelled)
	f.HasNotBeenLabelled = p.boolParam("hasNotBeenLabelled", in.HasNotBeenLabelled)
	f.CurrentUserLabeller = p.boolParam("currentUserLabeller", in.CurrentUserLabeller)
	if f.HasBeenLabelled && f.HasNotBeenLabelled {
		p.fail("hasNotBeenLabelled", "cannot be combined with hasBeenLabelled")
	}

	f.Classifications = p.classificationPairs("classifications", in.Classifications)
	f.ClassificationsSimul = p.boolParam("classificationsSimul", in.ClassificationsSimul)
	f.Nonclassifications = p.classificationPairs("nonclassifications", in.Nonclassifications)
	f.Unclassified = p.boolParam("unclassified", in.Unclassified)
	f.Classified = p.boolParam("classified", in.Classified)
	if f.Unclassified && f.Classified {
		p.fail("classified", "cannot be combined with unclassified")
	}

	f.Annotations = p.annotationFilters("annotationsFilter", in.AnnotationsFilter)
	f.AnnotationsFilterOrigin = utils.SplitList(in.AnnotationsFilterOrigin)
	f.AnnotationsFilterBefore = p.dateParam("annotationsFilterBefore", in.AnnotationsFilterBefore)
	f.AnnotationsFilterAfter = p.dateParam("annotationsFilterAfter", in.AnnotationsFilterAfter)

	f.CommentsFilterBefore = p.dateParam("commentsFilterBefore", in.CommentsFilterBefore)
	f.CommentsFilterAfter = p.dateParam("commentsFilterAfter", in.CommentsFilterAfter)

	f.Localization = parseLocalization(p, in, f.StartDate, f.EndDate)

	catalog, entry := strings.TrimSpace(in.SpatialCatalogName), strings.TrimSpace(in.SpatialCatalogEntryName)
	switch {
	case entry != "" && catalog == "":
		p.fail("spatialCatalogEntryName", "requires spatialCatalogName")
	case catalog != "" && entry == "":
		p.fail("spatialCatalogName", "requires spatialCatalogEntryName")
	case catalog != "":
		f.SpatialCatalog = &SpatialCatalogSearch{CatalogName: catalog, EntryName: entry}
	}

	return f
}

func parseCone(p *paramParser, in dto.ObjectFilterParams, cfg config.QueryConfig) *ConeSearch {
	ra := p.floatParam("ra", in.RA)
	dec := p.floatParam("dec", in.Dec)
	radius := p.floatParam("radius", in.Radius)
	if ra == nil && dec == nil && radius == nil {
		return nil
	}
	if ra == nil || dec == nil || radius == nil {
		p.fail("radius", "ra, dec and radius must be given together")
		return nil
	}
	if *dec < -90 || *dec > 90 {
		p.fail("dec", "must be within [-90, 90]")
		return nil
	}
	if *radius <= 0 {
		p.fail("radius", "must be positive")
		return nil
	}
	deg, err := utils.RadiusToDegrees(*radius, in.RadiusUnits)
	if err != nil {
		p.fail("radiusUnits", "%v", err)
		return nil
	}
	maxRadius := cfg.MaxConeRadiusDeg
	if maxRadius <= 0 {
		maxRadius = utils.MaxConeRadiusDeg
	}
	if deg > maxRadius {
		p.fail("radius", "must not exceed %g degree", maxRadius)
		return nil
	}
	return &ConeSearch{RA: *ra, Dec: *dec, RadiusDeg: deg}
}

func parseLocalization(p *paramParser, in dto.ObjectFilterParams, start, end *time.Time) *LocalizationSearch {
	name := strings.TrimSpace(in.LocalizationName)
	dateobs := p.dateParam("localizationDateobs", in.LocalizationDateobs)
	if dateobs == nil {
		if name != "" {
			p.fail("localizationName", "requires localizationDateobs")
		}
		return nil
	}
	if start == nil || end == nil {
		p.fail("localizationDateobs", "requires both startDate and endDate")
		return nil
	}

	loc := &LocalizationSearch{
		Dateobs:          *dateobs,
		Cumprob:          defaultLocalizationCumprob,
		RejectSources:    p.boolParam("localizationRejectSources", in.LocalizationRejectSources),
		IncludeConfirmed: p.boolParam("includeSourcesConfirmedInGcn", in.IncludeSourcesConfirmedInGcn),
	}
	if name != "" {
		loc.Name = &name
	}
	if cp := p.floatParam("localizationCumprob", in.LocalizationCumprob); cp != nil {
		if *cp <= 0 || *cp > 1 {
			p.fail("localizationCumprob", "must be within (0, 1]")
			return nil
		}
		loc.Cumprob = *cp
	}
	return loc
}

func parsePageOptions(p *paramParser, in dto.PageParams, cfg config.QueryConfig) PageOptions {
	opts := PageOptions{
		SortBy:  strings.TrimSpace(in.SortBy),
		Page:    1,
		PerPage: cfg.DefaultNumPerPage,
		QueryID: strings.TrimSpace(in.QueryID),
	}
	if opts.PerPage <= 0 {
		opts.PerPage = utils.DefaultNumPerPage
	}
	maxPerPage := cfg.MaxNumPerPage
	if maxPerPage <= 0 {
		maxPerPage = utils.MaxNumPerPage
	}

	if v := p.intParam("pageNumber", in.PageNumber); v != nil {
		opts.Page = *v
	}
	if v := p.intParam("numPerPage", in.NumPerPage); v != nil {
		if *v <= 0 || *v > maxPerPage {
			p.fail("numPerPage", "must be between 1 and %d", maxPerPage)
		}
		opts.PerPage = *v
	}
	if v := p.int64Param("totalMatches", in.TotalMatches); v != nil {
		if *v < 0 {
			p.fail("totalMatches", "must not be negative")
		}
		opts.TotalMatches = v
	}

	if strings.TrimSpace(in.SortOrder) != "" {
		dir, ok := query.ParseDirection(in.SortOrder)
		if !ok {
			p.fail("sortOrder", "must be asc or desc")
		}
		opts.SortOrder, opts.SortOrderSet = dir, true
	}

	opts.UseCache = p.boolParam("useCache", in.UseCache)
	return opts
}

func parseIncludeOptions(p *paramParser, in dto.IncludeParams) IncludeOptions {
	return IncludeOptions{
		Groups:           p.boolParam("includeGroups", in.IncludeGroups),
		Classifications:  p.boolParam("includeClassifications", in.IncludeClassifications),
		Annotations:      p.boolParam("includeAnnotations", in.IncludeAnnotations),
		Thumbnails:       p.boolParam("includeThumbnails", in.IncludeThumbnails),
		PhotometryExists: p.boolParam("includePhotometryExists", in.IncludePhotometryExists),
		SpectrumExists:   p.boolParam("includeSpectrumExists", in.IncludeSpectrumExists),
		CommentExists:    p.boolParam("includeCommentExists", in.IncludeCommentExists),
		DetectionStats:   p.boolParam("includeDetectionStats", in.IncludeDetectionStats),
		Labellers:        p.boolParam("includeLabellers", in.IncludeLabellers),
		Hosts:            p.boolParam("includeHosts", in.IncludeHosts),
		Derived:          p.boolParam("includeDerived", in.IncludeDerived),
		GeoJSON:          p.boolParam("includeGeoJSON", in.IncludeGeoJSON),
	}
}

package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/skyportal/source-query/app/dto"
	"github.com/xuri/excelize/v2"
)

const sourcesSheetName = "sources"

// ExportService renders search results as spreadsheets
type ExportService interface {
	SourcesWorkbook(items []dto.SourceItem) ([]byte, error)
}

type ExportServiceImpl struct{}

func NewExportService() ExportService {
	return &ExportServiceImpl{}
}

var sourcesHeader = []string{
	"id", "ra", "dec", "redshift", "alias", "origin", "tns_name",
	"groups", "classifications", "saved_at", "created_at",
}

// SourcesWorkbook writes one row per source, in result order
func (s *ExportServiceImpl) SourcesWorkbook(items []dto.SourceItem) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	xl.SetSheetName(xl.GetSheetName(0), sourcesSheetName)
	if err := xl.SetSheetRow(sourcesSheetName, "A1", &sourcesHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, it := range items {
		record := []any{
			it.ID,
			it.RA,
			it.Dec,
			optionalFloat(it.Redshift),
			strings.Join(it.Alias, ","),
			optionalString(it.Origin),
			optionalString(it.TNSName),
			groupNames(it.Groups),
			classificationNames(it.Classifications),
			firstSavedAt(it.Groups),
			it.CreatedAt.UTC().Format(time.RFC3339),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := xl.SetSheetRow(sourcesSheetName, cell, &record); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func groupNames(groups []dto.SourceGroupItem) string {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	return strings.Join(names, ",")
}

func classificationNames(cls []dto.ClassificationItem) string {
	names := make([]string, 0, len(cls))
	for _, c := range cls {
		names = append(names, c.Taxonomy+":"+c.Classification)
	}
	return strings.Join(names, ",")
}

// firstSavedAt is the earliest save across the listed groups
func firstSavedAt(groups []dto.SourceGroupItem) string {
	var first time.Time
	for _, g := range groups {
		if first.IsZero() || g.SavedAt.Before(first) {
			first = g.SavedAt
		}
	}
	if first.IsZero() {
		return ""
	}
	return first.UTC().Format(time.RFC3339)
}

package services

import (
	"database/sql"
	"fmt"
	"io"
	"sort"

	"github.com/SagastaDev/equity-valuator/src/logger"
	"github.com/SagastaDev/equity-valuator/src/models"
	"github.com/SagastaDev/equity-valuator/src/parsers"
	"github.com/SagastaDev/equity-valuator/src/security/validation"
	"github.com/google/uuid"
)

type ingestServiceImpl struct {
	db               *sql.DB
	transformService TransformService
}

// NewIngestService creates the raw data ingestion service. It needs the
// transform service to invalidate cached reports after each write.
func NewIngestService(db *sql.DB, transformService TransformService) IngestService {
	return &ingestServiceImpl{
		db:               db,
		transformService: transformService,
	}
}

// IngestBatch parses an uploaded batch and upserts every data point inside
// one transaction. Re-uploading a period overwrites its values in place.
func (s *ingestServiceImpl) IngestBatch(fileReader io.Reader, format string, providerID int64, companyID string) (*IngestResult, error) {
	if _, err := models.GetProviderByID(s.db, providerID); err != nil {
		return nil, err
	}
	if _, err := models.GetCompanyByID(s.db, companyID); err != nil {
		return nil, err
	}

	parser, err := parsers.GetParser(format)
	if err != nil {
		return nil, err
	}
	points, err := parser.Parse(fileReader)
	if err != nil {
		return nil, fmt.Errorf("parsing upload: %w", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("upload contains no data points")
	}

	for _, p := range points {
		if err := validation.ValidateFieldName(p.RawFieldName); err != nil {
			return nil, err
		}
		switch models.PeriodType(p.PeriodType) {
		case models.PeriodAnnual, models.PeriodQuarterly, models.PeriodDaily:
		default:
			return nil, fmt.Errorf("unsupported period_type %q for field %s", p.PeriodType, p.RawFieldName)
		}
	}

	uploadID := uuid.NewString()
	logger.L.Info("ingesting raw data batch",
		"uploadID", uploadID, "providerID", providerID, "companyID", companyID, "points", len(points))

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning ingest transaction: %w", err)
	}
	defer tx.Rollback()

	periodSet := make(map[string]bool)
	for _, p := range points {
		entry := &models.RawDataEntry{
			ProviderID:   providerID,
			CompanyID:    companyID,
			FiscalPeriod: p.FiscalPeriod,
			PeriodType:   models.PeriodType(p.PeriodType),
			RawFieldName: p.RawFieldName,
			ValueKind:    p.ValueKind,
			Value:        p.Value,
			UploadID:     uploadID,
		}
		if err := models.UpsertRawDataEntry(tx, entry); err != nil {
			return nil, err
		}
		periodSet[p.FiscalPeriod.Format("2006-01-02")] = true
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing ingest transaction: %w", err)
	}

	s.transformService.InvalidateCompany(companyID)

	periods := make([]string, 0, len(periodSet))
	for p := range periodSet {
		periods = append(periods, p)
	}
	sort.Strings(periods)

	return &IngestResult{
		UploadID:      uploadID,
		EntriesStored: len(points),
		FiscalPeriods: periods,
	}, nil
}

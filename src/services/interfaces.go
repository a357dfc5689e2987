package services

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/SagastaDev/equity-valuator/src/models"
)

// ResolutionReport is the outward form of one canonical resolution: the
// resolved values plus a detail row for every field that had to be omitted.
type ResolutionReport struct {
	ProviderID   int64            `json:"provider_id"`
	CompanyID    string           `json:"company_id"`
	FiscalPeriod string           `json:"fiscal_period"`
	Values       map[string]any   `json:"values"`
	Omissions    []OmissionDetail `json:"omissions"`
}

// OmissionDetail explains one field missing from a report.
type OmissionDetail struct {
	CanonicalField string `json:"canonical_field,omitempty"`
	RawField       string `json:"raw_field,omitempty"`
	RuleID         string `json:"rule_id,omitempty"`
	Reason         string `json:"reason"`
	Error          string `json:"error,omitempty"`
}

// TransformService resolves raw provider data into canonical values.
type TransformService interface {
	ResolveCanonical(providerID int64, companyID string, fiscalPeriod time.Time) (*ResolutionReport, error)
	ResolveHistory(ctx context.Context, providerID int64, companyID string) ([]*ResolutionReport, error)
	TestTransform(expression json.RawMessage, sample map[string]float64) (float64, error)
	InvalidateCompany(companyID string)
	InvalidateAll()
}

// IngestResult summarizes one accepted raw data upload.
type IngestResult struct {
	UploadID      string   `json:"upload_id"`
	EntriesStored int      `json:"entries_stored"`
	FiscalPeriods []string `json:"fiscal_periods"`
}

// IngestService parses uploaded raw data batches and persists them.
type IngestService interface {
	IngestBatch(fileReader io.Reader, format string, providerID int64, companyID string) (*IngestResult, error)
}

// PriceService fetches current market quotes and persists them.
type PriceService interface {
	RefreshPrice(companyID string) (*models.PriceData, error)
	GetPriceHistory(companyID string) ([]models.PriceData, error)
}

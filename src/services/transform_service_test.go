package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/SagastaDev/equity-valuator/src/database"
	"github.com/SagastaDev/equity-valuator/src/logger"
	"github.com/SagastaDev/equity-valuator/src/models"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServiceTest(t *testing.T) *sql.DB {
	t.Helper()
	logger.InitLogger("error")
	database.InitDB(filepath.Join(t.TempDir(), "service_test.db"))
	database.SeedCanonicalFields()
	return database.DB
}

func newTestTransformService(db *sql.DB) TransformService {
	return NewTransformService(db, cache.New(time.Minute, time.Minute))
}

func seedCompanyAndProvider(t *testing.T, db *sql.DB) (int64, string) {
	t.Helper()
	provider, err := models.CreateProvider(db, "TestData Inc")
	require.NoError(t, err)
	company := &models.Company{Ticker: "ACME", Name: "Acme Corp", Country: "US", Currency: "USD"}
	require.NoError(t, models.CreateCompany(db, company))
	return provider.ID, company.ID
}

func fieldIDByName(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	field, err := models.GetCanonicalFieldByName(db, name)
	require.NoError(t, err)
	return field.ID
}

func seedDirectRule(t *testing.T, db *sql.DB, providerID int64, rawField, canonicalName string) {
	t.Helper()
	require.NoError(t, models.CreateMappedField(db, &models.MappedField{
		ProviderID:   providerID,
		CanonicalID:  fieldIDByName(t, db, canonicalName),
		RawFieldName: rawField,
	}))
}

func seedRawNumber(t *testing.T, db *sql.DB, providerID int64, companyID string, period time.Time, field string, value float64) {
	t.Helper()
	encoded, err := json.Marshal(value)
	require.NoError(t, err)
	require.NoError(t, models.UpsertRawDataEntry(db, &models.RawDataEntry{
		ProviderID:   providerID,
		CompanyID:    companyID,
		FiscalPeriod: period,
		PeriodType:   models.PeriodAnnual,
		RawFieldName: field,
		ValueKind:    "number",
		Value:        encoded,
	}))
}

func TestResolveCanonicalDirectAndComputed(t *testing.T) {
	db := setupServiceTest(t)
	providerID, companyID := seedCompanyAndProvider(t, db)
	period := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	seedDirectRule(t, db, providerID, "revenues", "total_revenue")
	seedDirectRule(t, db, providerID, "ni", "net_income")
	seedRawNumber(t, db, providerID, companyID, period, "revenues", 200)
	seedRawNumber(t, db, providerID, companyID, period, "ni", 50)

	svc := newTestTransformService(db)
	report, err := svc.ResolveCanonical(providerID, companyID, period)
	require.NoError(t, err)

	assert.Equal(t, "2023-12-31", report.FiscalPeriod)
	assert.Equal(t, 200.0, report.Values["total_revenue"])
	assert.Equal(t, 50.0, report.Values["net_income"])
	assert.Equal(t, 0.25, report.Values["net_margin"])

	// Ratios whose inputs were never resolved come back as omissions, not errors.
	reasons := make(map[string]string)
	for _, o := range report.Omissions {
		reasons[o.CanonicalField] = o.Reason
	}
	assert.Equal(t, "missing_computed_input", reasons["debt_to_equity"])
	assert.Equal(t, "missing_computed_input", reasons["current_ratio"])
}

func TestResolveCanonicalTransformedMapping(t *testing.T) {
	db := setupServiceTest(t)
	providerID, companyID := seedCompanyAndProvider(t, db)
	period := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	require.NoError(t, models.CreateMappedField(db, &models.MappedField{
		ProviderID:          providerID,
		CanonicalID:         fieldIDByName(t, db, "total_revenue"),
		RawFieldName:        "rev_millions",
		TransformExpression: json.RawMessage(`{"op":"multiply","args":[{"field":"rev_millions"},{"value":1000000}]}`),
	}))
	seedRawNumber(t, db, providerID, companyID, period, "rev_millions", 2.5)

	svc := newTestTransformService(db)
	report, err := svc.ResolveCanonical(providerID, companyID, period)
	require.NoError(t, err)
	assert.Equal(t, 2500000.0, report.Values["total_revenue"])
}

func TestResolveCanonicalMalformedStoredExpression(t *testing.T) {
	db := setupServiceTest(t)
	providerID, companyID := seedCompanyAndProvider(t, db)
	period := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	require.NoError(t, models.CreateMappedField(db, &models.MappedField{
		ProviderID:          providerID,
		CanonicalID:         fieldIDByName(t, db, "total_revenue"),
		RawFieldName:        "revenues",
		TransformExpression: json.RawMessage(`{"neither":"shape"}`),
	}))
	seedDirectRule(t, db, providerID, "ni", "net_income")
	seedRawNumber(t, db, providerID, companyID, period, "revenues", 200)
	seedRawNumber(t, db, providerID, companyID, period, "ni", 50)

	svc := newTestTransformService(db)
	report, err := svc.ResolveCanonical(providerID, companyID, period)
	require.NoError(t, err)

	// The broken rule degrades to one omission; the rest still resolves.
	assert.Equal(t, 50.0, report.Values["net_income"])
	assert.NotContains(t, report.Values, "total_revenue")
	found := false
	for _, o := range report.Omissions {
		if o.RawField == "revenues" && o.Reason == "transform_failed" {
			found = true
		}
	}
	assert.True(t, found, "expected a transform_failed omission for the broken rule")
}

func TestResolveCanonicalCacheAndInvalidation(t *testing.T) {
	db := setupServiceTest(t)
	providerID, companyID := seedCompanyAndProvider(t, db)
	period := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	seedDirectRule(t, db, providerID, "revenues", "total_revenue")
	seedRawNumber(t, db, providerID, companyID, period, "revenues", 100)

	svc := newTestTransformService(db)
	first, err := svc.ResolveCanonical(providerID, companyID, period)
	require.NoError(t, err)
	assert.Equal(t, 100.0, first.Values["total_revenue"])

	// A write that bypasses the services does not show until invalidation.
	seedRawNumber(t, db, providerID, companyID, period, "revenues", 300)
	cached, err := svc.ResolveCanonical(providerID, companyID, period)
	require.NoError(t, err)
	assert.Equal(t, 100.0, cached.Values["total_revenue"])

	svc.InvalidateCompany(companyID)
	fresh, err := svc.ResolveCanonical(providerID, companyID, period)
	require.NoError(t, err)
	assert.Equal(t, 300.0, fresh.Values["total_revenue"])
}

func TestResolveCanonicalUnknownCompany(t *testing.T) {
	db := setupServiceTest(t)
	providerID, _ := seedCompanyAndProvider(t, db)

	svc := newTestTransformService(db)
	_, err := svc.ResolveCanonical(providerID, "no-such-company", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, models.ErrCompanyNotFound)
}

func TestResolveHistory(t *testing.T) {
	db := setupServiceTest(t)
	providerID, companyID := seedCompanyAndProvider(t, db)
	seedDirectRule(t, db, providerID, "revenues", "total_revenue")

	periods := []time.Time{
		time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	for i, period := range periods {
		seedRawNumber(t, db, providerID, companyID, period, "revenues", float64(100*(i+1)))
	}

	svc := newTestTransformService(db)
	reports, err := svc.ResolveHistory(context.Background(), providerID, companyID)
	require.NoError(t, err)
	require.Len(t, reports, 3)

	// Oldest first, regardless of resolution concurrency.
	assert.Equal(t, "2021-12-31", reports[0].FiscalPeriod)
	assert.Equal(t, 100.0, reports[0].Values["total_revenue"])
	assert.Equal(t, "2023-12-31", reports[2].FiscalPeriod)
	assert.Equal(t, 300.0, reports[2].Values["total_revenue"])
}

func TestTestTransform(t *testing.T) {
	db := setupServiceTest(t)
	svc := newTestTransformService(db)

	result, err := svc.TestTransform(
		json.RawMessage(`{"op":"multiply","args":[{"field":"a"},{"value":2}]}`),
		map[string]float64{"a": 21},
	)
	require.NoError(t, err)
	assert.Equal(t, 42.0, result)

	_, err = svc.TestTransform(json.RawMessage(`{"op":"divide","args":[{"value":1}]}`), nil)
	assert.Error(t, err)
}

func TestIngestBatchJSON(t *testing.T) {
	db := setupServiceTest(t)
	providerID, companyID := seedCompanyAndProvider(t, db)
	seedDirectRule(t, db, providerID, "revenues", "total_revenue")

	transformSvc := newTestTransformService(db)
	ingestSvc := NewIngestService(db, transformSvc)

	payload := `[
		{"fiscal_period":"2023-12-31","raw_field_name":"revenues","value":500},
		{"fiscal_period":"2023-12-31","raw_field_name":"segment_names","value":["widgets","gadgets"]},
		{"fiscal_period":"2022-12-31","raw_field_name":"revenues","value":450}
	]`
	result, err := ingestSvc.IngestBatch(bytes.NewReader([]byte(payload)), "json", providerID, companyID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.EntriesStored)
	assert.Equal(t, []string{"2022-12-31", "2023-12-31"}, result.FiscalPeriods)
	assert.NotEmpty(t, result.UploadID)

	report, err := transformSvc.ResolveCanonical(providerID, companyID, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 500.0, report.Values["total_revenue"])
}

func TestIngestBatchOverwritesOnReupload(t *testing.T) {
	db := setupServiceTest(t)
	providerID, companyID := seedCompanyAndProvider(t, db)
	seedDirectRule(t, db, providerID, "revenues", "total_revenue")

	transformSvc := newTestTransformService(db)
	ingestSvc := NewIngestService(db, transformSvc)

	upload := func(value string) {
		payload := `[{"fiscal_period":"2023-12-31","raw_field_name":"revenues","value":` + value + `}]`
		_, err := ingestSvc.IngestBatch(bytes.NewReader([]byte(payload)), "json", providerID, companyID)
		require.NoError(t, err)
	}
	upload("500")
	upload("525")

	entries, err := models.ListRawDataEntries(db, providerID, companyID, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	report, err := transformSvc.ResolveCanonical(providerID, companyID, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 525.0, report.Values["total_revenue"])
}

func TestIngestBatchRejectsBadFieldName(t *testing.T) {
	db := setupServiceTest(t)
	providerID, companyID := seedCompanyAndProvider(t, db)

	ingestSvc := NewIngestService(db, newTestTransformService(db))
	payload := `[{"fiscal_period":"2023-12-31","raw_field_name":"bad field!","value":1}]`
	_, err := ingestSvc.IngestBatch(bytes.NewReader([]byte(payload)), "json", providerID, companyID)
	assert.Error(t, err)
}

func TestIngestBatchCSV(t *testing.T) {
	db := setupServiceTest(t)
	providerID, companyID := seedCompanyAndProvider(t, db)
	seedDirectRule(t, db, providerID, "net_income_raw", "net_income")

	transformSvc := newTestTransformService(db)
	ingestSvc := NewIngestService(db, transformSvc)

	csvData := "fiscal_period,period_type,raw_field_name,value\n" +
		"2023-12-31,annual,net_income_raw,75.5\n"
	result, err := ingestSvc.IngestBatch(bytes.NewReader([]byte(csvData)), "csv", providerID, companyID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EntriesStored)

	report, err := transformSvc.ResolveCanonical(providerID, companyID, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 75.5, report.Values["net_income"])
}

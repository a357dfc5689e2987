// src/models/rawdata.go
package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PeriodType is the reporting granularity of a raw data point.
type PeriodType string

const (
	PeriodAnnual    PeriodType = "annual"
	PeriodQuarterly PeriodType = "quarterly"
	PeriodDaily     PeriodType = "daily" // market quotes, one point per trading day
)

// RawDataEntry is one observed value for a (provider, company, fiscal
// period, raw field) tuple, exactly as the provider reported it. Value is
// stored as JSON so numbers, strings, lists and objects all fit; ValueKind
// tags which one it is.
type RawDataEntry struct {
	ID           string          `json:"id"`
	ProviderID   int64           `json:"provider_id"`
	CompanyID    string          `json:"company_id"`
	FiscalPeriod time.Time       `json:"fiscal_period"`
	PeriodType   PeriodType      `json:"period_type"`
	RawFieldName string          `json:"raw_field_name"`
	ValueKind    string          `json:"value_kind"`
	Value        json.RawMessage `json:"value"`
	UploadID     string          `json:"upload_id,omitempty"`
}

// UpsertRawDataEntry writes one raw data point, replacing any existing
// entry for the same (provider, company, fiscal period, raw field) tuple.
// Corrective re-ingestion therefore overwrites in place, preserving the
// uniqueness invariant.
func UpsertRawDataEntry(db DBTX, e *RawDataEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := db.Exec(`
	INSERT INTO raw_data_entries (id, provider_id, company_id, fiscal_period, period_type, raw_field_name, value_kind, value, upload_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(provider_id, company_id, fiscal_period, raw_field_name)
	DO UPDATE SET period_type = excluded.period_type, value_kind = excluded.value_kind, value = excluded.value, upload_id = excluded.upload_id`,
		e.ID, e.ProviderID, e.CompanyID, e.FiscalPeriod.Format(dateLayout), string(e.PeriodType),
		e.RawFieldName, e.ValueKind, string(e.Value), e.UploadID)
	if err != nil {
		return fmt.Errorf("upserting raw data entry %s: %w", e.RawFieldName, err)
	}
	return nil
}

// DBTX lets the accessors run inside or outside an explicit transaction.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// ListRawDataEntries returns the raw snapshot for one resolution triple.
func ListRawDataEntries(db DBTX, providerID int64, companyID string, fiscalPeriod time.Time) ([]RawDataEntry, error) {
	rows, err := db.Query(`
	SELECT id, provider_id, company_id, fiscal_period, period_type, raw_field_name, value_kind, value, upload_id
	FROM raw_data_entries
	WHERE provider_id = ? AND company_id = ? AND fiscal_period = ?
	ORDER BY raw_field_name`, providerID, companyID, fiscalPeriod.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []RawDataEntry
	for rows.Next() {
		var e RawDataEntry
		var period, uploadID sql.NullString
		var value string
		if err := rows.Scan(&e.ID, &e.ProviderID, &e.CompanyID, &period, &e.PeriodType,
			&e.RawFieldName, &e.ValueKind, &value, &uploadID); err != nil {
			return nil, err
		}
		if period.Valid {
			if t, err := time.Parse(dateLayout, period.String); err == nil {
				e.FiscalPeriod = t
			}
		}
		if uploadID.Valid {
			e.UploadID = uploadID.String
		}
		e.Value = json.RawMessage(value)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListFiscalPeriods returns the distinct reporting periods a provider has
// data for, oldest first.
func ListFiscalPeriods(db DBTX, providerID int64, companyID string) ([]time.Time, error) {
	rows, err := db.Query(`
	SELECT DISTINCT fiscal_period FROM raw_data_entries
	WHERE provider_id = ? AND company_id = ?
	ORDER BY fiscal_period`, providerID, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("malformed fiscal_period %q: %w", raw, err)
		}
		periods = append(periods, t)
	}
	return periods, rows.Err()
}

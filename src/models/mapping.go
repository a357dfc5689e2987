// src/models/mapping.go
package models

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// MappedField associates one provider raw field with a canonical field.
// CompanyID narrows the rule to a single company (nil = every company of
// the provider); StartDate/EndDate bound its validity; a non-nil
// TransformExpression holds the JSON formula applied instead of a direct
// value copy.
type MappedField struct {
	ID                  string          `json:"id"`
	ProviderID          int64           `json:"provider_id"`
	CanonicalID         int64           `json:"canonical_id"`
	RawFieldName        string          `json:"raw_field_name"`
	CompanyID           *string         `json:"company_id,omitempty"`
	StartDate           *time.Time      `json:"start_date,omitempty"`
	EndDate             *time.Time      `json:"end_date,omitempty"`
	TransformExpression json.RawMessage `json:"transform_expression,omitempty"`
}

var ErrMappedFieldNotFound = errors.New("mapped field not found")

func CreateMappedField(db *sql.DB, m *MappedField) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	stmt, err := db.Prepare(`
	INSERT INTO mapped_fields (id, provider_id, canonical_id, raw_field_name, company_id, start_date, end_date, transform_expression)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(m.ID, m.ProviderID, m.CanonicalID, m.RawFieldName,
		m.CompanyID, nullableDate(m.StartDate), nullableDate(m.EndDate), nullableJSON(m.TransformExpression))
	return err
}

func UpdateMappedField(db *sql.DB, m *MappedField) error {
	stmt, err := db.Prepare(`
	UPDATE mapped_fields
	SET provider_id = ?, canonical_id = ?, raw_field_name = ?, company_id = ?, start_date = ?, end_date = ?, transform_expression = ?
	WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(m.ProviderID, m.CanonicalID, m.RawFieldName,
		m.CompanyID, nullableDate(m.StartDate), nullableDate(m.EndDate), nullableJSON(m.TransformExpression), m.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrMappedFieldNotFound
	}
	return nil
}

func DeleteMappedField(db *sql.DB, id string) error {
	res, err := db.Exec(`DELETE FROM mapped_fields WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrMappedFieldNotFound
	}
	return nil
}

func GetMappedFieldByID(db *sql.DB, id string) (*MappedField, error) {
	row := db.QueryRow(`
	SELECT id, provider_id, canonical_id, raw_field_name, company_id, start_date, end_date, transform_expression
	FROM mapped_fields WHERE id = ?`, id)
	m, err := scanMappedField(row)
	if err == sql.ErrNoRows {
		return nil, ErrMappedFieldNotFound
	}
	return m, err
}

// ListMappedFieldsByProvider returns every rule of a provider in ID order.
// The resolver re-sorts by specificity; the stable base order keeps results
// reproducible across calls.
func ListMappedFieldsByProvider(db *sql.DB, providerID int64) ([]MappedField, error) {
	rows, err := db.Query(`
	SELECT id, provider_id, canonical_id, raw_field_name, company_id, start_date, end_date, transform_expression
	FROM mapped_fields WHERE provider_id = ? ORDER BY id`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMappedFields(rows)
}

func ListAllMappedFields(db *sql.DB) ([]MappedField, error) {
	rows, err := db.Query(`
	SELECT id, provider_id, canonical_id, raw_field_name, company_id, start_date, end_date, transform_expression
	FROM mapped_fields ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMappedFields(rows)
}

func collectMappedFields(rows *sql.Rows) ([]MappedField, error) {
	var mappings []MappedField
	for rows.Next() {
		m, err := scanMappedField(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *m)
	}
	return mappings, rows.Err()
}

func scanMappedField(row interface{ Scan(...any) error }) (*MappedField, error) {
	var m MappedField
	var companyID, startDate, endDate, expression sql.NullString
	err := row.Scan(&m.ID, &m.ProviderID, &m.CanonicalID, &m.RawFieldName,
		&companyID, &startDate, &endDate, &expression)
	if err != nil {
		return nil, err
	}
	if companyID.Valid {
		m.CompanyID = &companyID.String
	}
	if startDate.Valid {
		if t, err := time.Parse(dateLayout, startDate.String); err == nil {
			m.StartDate = &t
		}
	}
	if endDate.Valid {
		if t, err := time.Parse(dateLayout, endDate.String); err == nil {
			m.EndDate = &t
		}
	}
	if expression.Valid && expression.String != "" {
		m.TransformExpression = json.RawMessage(expression.String)
	}
	return &m, nil
}

func nullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

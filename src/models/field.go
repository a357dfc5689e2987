// src/models/field.go
package models

import (
	"database/sql"
	"errors"
)

// FieldCategory groups canonical fields the way the admin UI presents them.
type FieldCategory string

const (
	CategoryFundamental FieldCategory = "fundamental"
	CategoryMarket      FieldCategory = "market"
	CategoryRatio       FieldCategory = "ratio"
)

// CanonicalField is a standardized financial concept shared across all
// providers. Computed fields are derived from other canonical values and
// are never the target of a mapping rule.
type CanonicalField struct {
	ID          int64         `json:"id"`
	Code        int64         `json:"code"`
	Name        string        `json:"name"`
	DisplayName string        `json:"display_name"`
	Type        string        `json:"type"`
	Category    FieldCategory `json:"category"`
	IsComputed  bool          `json:"is_computed"`
}

var ErrCanonicalFieldNotFound = errors.New("canonical field not found")

func CreateCanonicalField(db *sql.DB, f *CanonicalField) error {
	stmt, err := db.Prepare(`
	INSERT INTO canonical_fields (code, name, display_name, type, category, is_computed)
	VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(f.Code, f.Name, f.DisplayName, f.Type, string(f.Category), f.IsComputed)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = id
	return nil
}

func GetCanonicalFieldByName(db *sql.DB, name string) (*CanonicalField, error) {
	row := db.QueryRow(`
	SELECT id, code, name, display_name, type, category, is_computed
	FROM canonical_fields WHERE name = ?`, name)
	return scanCanonicalField(row)
}

func GetCanonicalFieldByID(db *sql.DB, id int64) (*CanonicalField, error) {
	row := db.QueryRow(`
	SELECT id, code, name, display_name, type, category, is_computed
	FROM canonical_fields WHERE id = ?`, id)
	return scanCanonicalField(row)
}

func scanCanonicalField(row interface{ Scan(...any) error }) (*CanonicalField, error) {
	var f CanonicalField
	var category string
	err := row.Scan(&f.ID, &f.Code, &f.Name, &f.DisplayName, &f.Type, &category, &f.IsComputed)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCanonicalFieldNotFound
		}
		return nil, err
	}
	f.Category = FieldCategory(category)
	return &f, nil
}

// ListCanonicalFields returns the full field set in ID order, which keeps
// downstream resolution deterministic.
func ListCanonicalFields(db *sql.DB) ([]CanonicalField, error) {
	rows, err := db.Query(`
	SELECT id, code, name, display_name, type, category, is_computed
	FROM canonical_fields ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []CanonicalField
	for rows.Next() {
		f, err := scanCanonicalField(rows)
		if err != nil {
			return nil, err
		}
		fields = append(fields, *f)
	}
	return fields, rows.Err()
}

func CountCanonicalFields(db *sql.DB) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM canonical_fields`).Scan(&count)
	return count, err
}

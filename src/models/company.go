// src/models/company.go
package models

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

type Industry struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Company struct {
	ID         string `json:"id"`
	Ticker     string `json:"ticker"`
	Name       string `json:"name"`
	Country    string `json:"country"`
	Currency   string `json:"currency"`
	IndustryID *int64 `json:"industry_id,omitempty"`
}

var ErrCompanyNotFound = errors.New("company not found")

func CreateCompany(db *sql.DB, c *Company) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	stmt, err := db.Prepare(`
	INSERT INTO companies (id, ticker, name, country, currency, industry_id)
	VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(c.ID, c.Ticker, c.Name, c.Country, c.Currency, c.IndustryID)
	return err
}

func scanCompany(row interface{ Scan(...any) error }) (*Company, error) {
	var c Company
	var industryID sql.NullInt64
	err := row.Scan(&c.ID, &c.Ticker, &c.Name, &c.Country, &c.Currency, &industryID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCompanyNotFound
		}
		return nil, err
	}
	if industryID.Valid {
		c.IndustryID = &industryID.Int64
	}
	return &c, nil
}

func GetCompanyByID(db *sql.DB, id string) (*Company, error) {
	row := db.QueryRow(`
	SELECT id, ticker, name, country, currency, industry_id
	FROM companies WHERE id = ?`, id)
	return scanCompany(row)
}

func GetCompanyByTicker(db *sql.DB, ticker string) (*Company, error) {
	row := db.QueryRow(`
	SELECT id, ticker, name, country, currency, industry_id
	FROM companies WHERE ticker = ?`, ticker)
	return scanCompany(row)
}

func ListCompanies(db *sql.DB) ([]Company, error) {
	rows, err := db.Query(`
	SELECT id, ticker, name, country, currency, industry_id
	FROM companies ORDER BY ticker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, rows.Err()
}

// src/models/price.go
package models

import (
	"database/sql"
	"time"
)

// PriceData is one market close quote for a company from one provider.
type PriceData struct {
	ID         int64     `json:"id"`
	CompanyID  string    `json:"company_id"`
	ProviderID int64     `json:"provider_id"`
	Date       time.Time `json:"date"`
	Close      float64   `json:"close"`
	Currency   string    `json:"currency"`
}

func UpsertPriceData(db *sql.DB, p *PriceData) error {
	_, err := db.Exec(`
	INSERT INTO price_data (company_id, provider_id, date, close, currency)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(company_id, provider_id, date)
	DO UPDATE SET close = excluded.close, currency = excluded.currency`,
		p.CompanyID, p.ProviderID, p.Date.Format(dateLayout), p.Close, p.Currency)
	return err
}

func ListPricesForCompany(db *sql.DB, companyID string) ([]PriceData, error) {
	rows, err := db.Query(`
	SELECT id, company_id, provider_id, date, close, currency
	FROM price_data WHERE company_id = ? ORDER BY date`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []PriceData
	for rows.Next() {
		var p PriceData
		var rawDate string
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.ProviderID, &rawDate, &p.Close, &p.Currency); err != nil {
			return nil, err
		}
		if t, err := time.Parse(dateLayout, rawDate); err == nil {
			p.Date = t
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

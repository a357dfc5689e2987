// src/models/provider.go
package models

import (
	"database/sql"
	"errors"
)

// Provider is one external source of financial data (Yahoo Finance, a test
// fixture provider, ...). Raw data entries and mapping rules both hang off
// a provider.
type Provider struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

var ErrProviderNotFound = errors.New("provider not found")

func CreateProvider(db *sql.DB, name string) (*Provider, error) {
	stmt, err := db.Prepare(`INSERT INTO providers (name) VALUES (?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	res, err := stmt.Exec(name)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Provider{ID: id, Name: name}, nil
}

func GetProviderByID(db *sql.DB, id int64) (*Provider, error) {
	var p Provider
	err := db.QueryRow(`SELECT id, name FROM providers WHERE id = ?`, id).Scan(&p.ID, &p.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

func GetProviderByName(db *sql.DB, name string) (*Provider, error) {
	var p Provider
	err := db.QueryRow(`SELECT id, name FROM providers WHERE name = ?`, name).Scan(&p.ID, &p.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetOrCreateProvider looks a provider up by name and creates it when absent.
func GetOrCreateProvider(db *sql.DB, name string) (*Provider, error) {
	p, err := GetProviderByName(db, name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProviderNotFound) {
		return nil, err
	}
	return CreateProvider(db, name)
}

func ListProviders(db *sql.DB) ([]Provider, error) {
	rows, err := db.Query(`SELECT id, name FROM providers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// src/models/changelog.go
package models

import (
	"database/sql"
	"time"
)

// ChangeLog records one administrative edit to a mapping rule, for audit.
type ChangeLog struct {
	ID            int64     `json:"id"`
	MappedFieldID string    `json:"mapped_field_id"`
	UserID        int64     `json:"user_id"`
	Timestamp     time.Time `json:"timestamp"`
	Description   string    `json:"change_description"`
}

func CreateChangeLog(db *sql.DB, entry *ChangeLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	stmt, err := db.Prepare(`
	INSERT INTO change_logs (mapped_field_id, user_id, timestamp, change_description)
	VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(entry.MappedFieldID, entry.UserID, entry.Timestamp, entry.Description)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	return nil
}

func ListChangeLogsForMapping(db *sql.DB, mappedFieldID string) ([]ChangeLog, error) {
	rows, err := db.Query(`
	SELECT id, mapped_field_id, user_id, timestamp, change_description
	FROM change_logs WHERE mapped_field_id = ? ORDER BY timestamp DESC, id DESC`, mappedFieldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []ChangeLog
	for rows.Next() {
		var entry ChangeLog
		if err := rows.Scan(&entry.ID, &entry.MappedFieldID, &entry.UserID, &entry.Timestamp, &entry.Description); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

package database

import (
	"database/sql"
	stdlog "log"

	"github.com/SagastaDev/equity-valuator/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateUserTable()
	migrateMappedFieldsTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL DEFAULT 'viewer',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		user_agent TEXT,
		client_ip TEXT,
		is_blocked BOOLEAN DEFAULT FALSE,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS industries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT UNIQUE,
		name TEXT NOT NULL,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		country TEXT NOT NULL,
		currency TEXT NOT NULL,
		industry_id INTEGER,
		FOREIGN KEY(industry_id) REFERENCES industries(id)
	);

	CREATE TABLE IF NOT EXISTS providers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS canonical_fields (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code INTEGER UNIQUE,
		name TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		type TEXT NOT NULL,
		category TEXT NOT NULL,
		is_computed BOOLEAN DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS mapped_fields (
		id TEXT PRIMARY KEY,
		provider_id INTEGER NOT NULL,
		canonical_id INTEGER NOT NULL,
		raw_field_name TEXT NOT NULL,
		company_id TEXT,
		start_date TEXT,
		end_date TEXT,
		transform_expression TEXT,
		FOREIGN KEY(provider_id) REFERENCES providers(id),
		FOREIGN KEY(canonical_id) REFERENCES canonical_fields(id),
		FOREIGN KEY(company_id) REFERENCES companies(id)
	);

	CREATE TABLE IF NOT EXISTS raw_data_entries (
		id TEXT PRIMARY KEY,
		provider_id INTEGER NOT NULL,
		company_id TEXT NOT NULL,
		fiscal_period TEXT NOT NULL,
		period_type TEXT NOT NULL,
		raw_field_name TEXT NOT NULL,
		value_kind TEXT NOT NULL,
		value TEXT,
		upload_id TEXT,
		FOREIGN KEY(provider_id) REFERENCES providers(id),
		FOREIGN KEY(company_id) REFERENCES companies(id),
		UNIQUE(provider_id, company_id, fiscal_period, raw_field_name)
	);

	CREATE TABLE IF NOT EXISTS change_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mapped_field_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		change_description TEXT NOT NULL,
		FOREIGN KEY(mapped_field_id) REFERENCES mapped_fields(id),
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS price_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		company_id TEXT NOT NULL,
		provider_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		close REAL NOT NULL,
		currency TEXT,
		FOREIGN KEY(company_id) REFERENCES companies(id),
		FOREIGN KEY(provider_id) REFERENCES providers(id),
		UNIQUE(company_id, provider_id, date)
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

func tableColumns(table string) (map[string]bool, bool) {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false
		}
		if logger.L != nil {
			logger.L.Error("Error checking for table", "table", table, "error", err)
		} else {
			stdlog.Printf("Error checking for table %s: %v", table, err)
		}
		return nil, false
	}

	rows, err := DB.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema", "table", table, "error", err)
		} else {
			stdlog.Printf("Error querying table schema for %s: %v", table, err)
		}
		return nil, false
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info", "table", table, "error", err)
			} else {
				stdlog.Printf("Error scanning column info for %s: %v", table, err)
			}
			return nil, false
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info", "table", table, "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for %s: %v", table, err)
		}
		return nil, false
	}
	return columnExists, true
}

func addColumn(table, column, definition string) {
	_, err := DB.Exec("ALTER TABLE " + table + " ADD COLUMN " + column + " " + definition)
	if err != nil {
		logger.L.Error("Error adding column", "table", table, "column", column, "error", err)
	} else {
		logger.L.Info("Added column", "table", table, "column", column)
	}
}

func migrateUserTable() {
	columnExists, ok := tableColumns("users")
	if !ok {
		if logger.L != nil {
			logger.L.Info("'users' table does not exist, no migration needed as table will be created.")
		} else {
			stdlog.Println("'users' table does not exist, no migration needed as table will be created.")
		}
		return
	}

	if _, exists := columnExists["role"]; !exists {
		addColumn("users", "role", "TEXT NOT NULL DEFAULT 'viewer'")
	}
	if _, exists := columnExists["created_at"]; !exists {
		addColumn("users", "created_at", "TIMESTAMP DEFAULT CURRENT_TIMESTAMP")
	}
	if _, exists := columnExists["updated_at"]; !exists {
		addColumn("users", "updated_at", "TIMESTAMP DEFAULT CURRENT_TIMESTAMP")
	}
}

// Company scoping, date bounds and transform expressions were added to
// mapping rules after the first release; older databases get the columns
// retrofitted here.
func migrateMappedFieldsTable() {
	columnExists, ok := tableColumns("mapped_fields")
	if !ok {
		if logger.L != nil {
			logger.L.Info("'mapped_fields' table does not exist, no migration needed as table will be created.")
		} else {
			stdlog.Println("'mapped_fields' table does not exist, no migration needed as table will be created.")
		}
		return
	}

	if _, exists := columnExists["company_id"]; !exists {
		addColumn("mapped_fields", "company_id", "TEXT")
	}
	if _, exists := columnExists["start_date"]; !exists {
		addColumn("mapped_fields", "start_date", "TEXT")
	}
	if _, exists := columnExists["end_date"]; !exists {
		addColumn("mapped_fields", "end_date", "TEXT")
	}
	if _, exists := columnExists["transform_expression"]; !exists {
		addColumn("mapped_fields", "transform_expression", "TEXT")
	}
}

package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"facilityai/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database for the given driver.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL DEFAULT '',
				role TEXT NOT NULL DEFAULT 'user',
				plan TEXT NOT NULL DEFAULT 'Free',
				subscription_cycle TEXT NOT NULL DEFAULT 'Mensal',
				used_tokens_current_month INTEGER NOT NULL DEFAULT 0,
				last_reset_date DATETIME NOT NULL,
				created_at DATETIME NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 0,
				last_login DATETIME
			)`,
			`CREATE TABLE IF NOT EXISTS agents (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE,
				specialty TEXT NOT NULL DEFAULT '',
				system_instruction TEXT NOT NULL DEFAULT '',
				creator_id INTEGER,
				FOREIGN KEY(creator_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS chat_messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				agent_id TEXT NOT NULL,
				sender TEXT NOT NULL,
				text TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_messages_agent ON chat_messages(agent_id)`,
			`CREATE TABLE IF NOT EXISTS knowledge_documents (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				file_name TEXT NOT NULL,
				agent_name TEXT NOT NULL,
				uploaded_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_knowledge_documents_agent ON knowledge_documents(agent_name)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				name VARCHAR(255) NOT NULL,
				email VARCHAR(255) NOT NULL UNIQUE,
				password_hash VARCHAR(255) NOT NULL DEFAULT '',
				role VARCHAR(50) NOT NULL DEFAULT 'user',
				plan VARCHAR(50) NOT NULL DEFAULT 'Free',
				subscription_cycle VARCHAR(50) NOT NULL DEFAULT 'Mensal',
				used_tokens_current_month BIGINT NOT NULL DEFAULT 0,
				last_reset_date DATETIME NOT NULL,
				created_at DATETIME NOT NULL,
				is_active TINYINT(1) NOT NULL DEFAULT 0,
				last_login DATETIME NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS agents (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				name VARCHAR(255) NOT NULL UNIQUE,
				specialty VARCHAR(255) NOT NULL DEFAULT '',
				system_instruction MEDIUMTEXT NOT NULL,
				creator_id BIGINT UNSIGNED NULL,
				PRIMARY KEY (id),
				CONSTRAINT fk_agents_creator FOREIGN KEY (creator_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS chat_messages (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_id BIGINT UNSIGNED NOT NULL,
				agent_id VARCHAR(255) NOT NULL,
				sender VARCHAR(50) NOT NULL,
				text MEDIUMTEXT NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_chat_messages_user (user_id),
				INDEX idx_chat_messages_agent (agent_id),
				CONSTRAINT fk_chat_messages_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS knowledge_documents (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				file_name VARCHAR(255) NOT NULL,
				agent_name VARCHAR(255) NOT NULL,
				uploaded_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_knowledge_documents_agent (agent_name)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}

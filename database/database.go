package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lochel/genealogy/logging"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// MaxContactMessages is the number of stored contact messages after which new
// submissions are rejected.
const MaxContactMessages = 100

var ErrContactLimit = errors.New("contact message limit reached")

// RequestLogEntry is one served HTTP request.
type RequestLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	RemoteAddr string    `json:"remote_addr"`
	Method     string    `json:"method"`
	Scheme     string    `json:"scheme"`
	FullPath   string    `json:"full_path"`
	Status     int       `json:"status"`
}

// ContactMessage is a message left through the contact form.
type ContactMessage struct {
	ID      int64     `json:"id"`
	Date    time.Time `json:"date"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Message string    `json:"message"`
}

func InitDB(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// enable write-ahead Logging for better concurrency
	_, err = db.Exec("PRAGMA journal_mode=WAL;")
	if err != nil {
		logging.L().Warnf("database: failed to set WAL mode: %v", err)
	}

	sqlStmt := `
	CREATE TABLE IF NOT EXISTS request_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		remote_addr TEXT NOT NULL,
		method TEXT NOT NULL,
		scheme TEXT NOT NULL,
		full_path TEXT NOT NULL,
		status INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS contact_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date INTEGER NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		message TEXT NOT NULL
	);
	`
	_, err = db.Exec(sqlStmt)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logging.L().Infof("database: initialized successfully at %s", dataSourceName)
	return db, nil
}

// LogRequest appends one entry to the request log.
func LogRequest(db *sql.DB, entry RequestLogEntry) error {
	queryBuilder := psql.Insert("request_log").
		Columns("timestamp", "remote_addr", "method", "scheme", "full_path", "status").
		Values(entry.Timestamp.Unix(), entry.RemoteAddr, entry.Method, entry.Scheme, entry.FullPath, entry.Status)

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL query for LogRequest: %w", err)
	}
	if _, err := db.Exec(sqlStr, args...); err != nil {
		return fmt.Errorf("failed to insert request log entry: %w", err)
	}
	return nil
}

// RecentRequests returns up to limit entries, newest first.
func RecentRequests(db *sql.DB, limit uint64) ([]RequestLogEntry, error) {
	queryBuilder := psql.Select("timestamp", "remote_addr", "method", "scheme", "full_path", "status").
		From("request_log").
		OrderBy("id DESC").
		Limit(limit)

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for RecentRequests: %w", err)
	}
	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query request log: %w", err)
	}
	defer rows.Close()

	entries := []RequestLogEntry{}
	for rows.Next() {
		var e RequestLogEntry
		var ts int64
		if err := rows.Scan(&ts, &e.RemoteAddr, &e.Method, &e.Scheme, &e.FullPath, &e.Status); err != nil {
			return nil, fmt.Errorf("failed to scan request log entry: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddContactMessage stores msg unless MaxContactMessages are already stored.
func AddContactMessage(db *sql.DB, msg ContactMessage) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("contact_messages").ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL query for contact count: %w", err)
	}
	var count int
	if err := tx.QueryRow(countSQL, countArgs...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count contact messages: %w", err)
	}
	if count >= MaxContactMessages {
		return 0, ErrContactLimit
	}

	insertSQL, insertArgs, err := psql.Insert("contact_messages").
		Columns("date", "name", "email", "message").
		Values(msg.Date.Unix(), msg.Name, msg.Email, msg.Message).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL query for AddContactMessage: %w", err)
	}
	res, err := tx.Exec(insertSQL, insertArgs...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert contact message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read contact message id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit contact message: %w", err)
	}
	return id, nil
}

// ListContactMessages returns all stored messages, oldest first.
func ListContactMessages(db *sql.DB) ([]ContactMessage, error) {
	sqlStr, args, err := psql.Select("id", "date", "name", "email", "message").
		From("contact_messages").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for ListContactMessages: %w", err)
	}
	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contact messages: %w", err)
	}
	defer rows.Close()

	messages := []ContactMessage{}
	for rows.Next() {
		var m ContactMessage
		var ts int64
		if err := rows.Scan(&m.ID, &ts, &m.Name, &m.Email, &m.Message); err != nil {
			return nil, fmt.Errorf("failed to scan contact message: %w", err)
		}
		m.Date = time.Unix(ts, 0)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

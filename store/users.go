package store

import (
	"database/sql"
	"fmt"
	"time"
)

type User struct {
	UserID    string    `json:"user_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Online    bool      `json:"online"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const userSelectCols = `user_id, latitude, longitude, is_online, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var createdAt, updatedAt any
	if err := row.Scan(&u.UserID, &u.Latitude, &u.Longitude, &u.Online, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

// UpsertUser inserts or refreshes a user row and marks it online.
// Rows are never deleted; a returning client overwrites its location.
func (db *DB) UpsertUser(userID string, latitude, longitude float64, online bool) error {
	_, err := db.Exec(db.Q(`INSERT INTO users (user_id, latitude, longitude, is_online)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET latitude=excluded.latitude, longitude=excluded.longitude, is_online=excluded.is_online, updated_at=datetime('now','localtime')`),
		userID, latitude, longitude, online)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", userID, err)
	}
	return nil
}

func (db *DB) SetUserOnline(userID string, online bool) error {
	_, err := db.Exec(db.Q(`UPDATE users SET is_online=?, updated_at=datetime('now','localtime') WHERE user_id=?`),
		online, userID)
	return err
}

func (db *DB) GetUser(userID string) (*User, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM users WHERE user_id=?`, userSelectCols)), userID)
	return scanUser(row)
}

func (db *DB) ListUsers() ([]*User, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM users ORDER BY user_id`, userSelectCols)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListOnlineUserIDs returns the ids of all users currently flagged online.
func (db *DB) ListOnlineUserIDs() ([]string, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT user_id FROM users WHERE is_online = %s ORDER BY user_id`, db.dialect.BoolTrue()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanUsers(rows *sql.Rows) ([]*User, error) {
	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

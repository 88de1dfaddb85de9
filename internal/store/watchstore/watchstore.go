// Package watchstore persists the two watched collections: accounts with
// their mention cursor, and tweets with their last reconciled reaction sets.
// Pure data access; business rules live with the callers.
package watchstore

import (
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("watchstore: not found")

// DB wraps the SQLite database holding watched accounts and tweets.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS watched_accounts (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  remote_id INTEGER NOT NULL UNIQUE,
	  identifier TEXT NOT NULL,
	  name TEXT NOT NULL DEFAULT '',
	  watched_by TEXT NOT NULL DEFAULT '',
	  watched_since INTEGER NOT NULL,
	  last_updated INTEGER NOT NULL,
	  last_refreshed INTEGER NOT NULL,
	  mention_cursor INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS watched_tweets (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  tweet_link TEXT NOT NULL UNIQUE,
	  likers TEXT NOT NULL DEFAULT '[]',
	  retweeters TEXT NOT NULL DEFAULT '[]'
	);
	`)
	return err
}

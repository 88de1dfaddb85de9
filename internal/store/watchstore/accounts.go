package watchstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tweetwatch/internal/model"
)

// AddAccount inserts a watched account and fills in its surrogate id.
func (d *DB) AddAccount(ctx context.Context, a *model.WatchedAccount) error {
	now := time.Now().UTC()
	if a.WatchedSince.IsZero() {
		a.WatchedSince = now
	}
	a.LastUpdated = now
	a.LastRefreshed = now
	res, err := d.sql.ExecContext(ctx, `
		INSERT INTO watched_accounts(remote_id, identifier, name, watched_by, watched_since, last_updated, last_refreshed, mention_cursor)
		VALUES(?,?,?,?,?,?,?,?)`,
		a.RemoteID, a.Identifier, a.Name, a.WatchedBy,
		a.WatchedSince.Unix(), a.LastUpdated.Unix(), a.LastRefreshed.Unix(), a.MentionCursor)
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

const accountColumns = `id, remote_id, identifier, name, watched_by, watched_since, last_updated, last_refreshed, mention_cursor`

func (d *DB) GetAccountByID(ctx context.Context, id int64) (model.WatchedAccount, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM watched_accounts WHERE id=?`, id)
	return scanAccount(row)
}

func (d *DB) GetAccountByRemoteID(ctx context.Context, remoteID int64) (model.WatchedAccount, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM watched_accounts WHERE remote_id=?`, remoteID)
	return scanAccount(row)
}

// ListAccounts returns all watched accounts in activation order.
func (d *DB) ListAccounts(ctx context.Context) ([]model.WatchedAccount, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT `+accountColumns+` FROM watched_accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WatchedAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (d *DB) CountAccounts(ctx context.Context) (int64, error) {
	var n int64
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM watched_accounts`).Scan(&n)
	return n, err
}

func (d *DB) DeleteAccount(ctx context.Context, id int64) error {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM watched_accounts WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateMentionCursor advances the account's mention cursor. The cursor never
// moves backward: an update with a lower value is a silent no-op.
func (d *DB) UpdateMentionCursor(ctx context.Context, id, cursor int64) error {
	res, err := d.sql.ExecContext(ctx, `
		UPDATE watched_accounts SET mention_cursor=?, last_updated=?
		WHERE id=? AND mention_cursor < ?`,
		cursor, time.Now().UTC().Unix(), id, cursor)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// distinguish a guarded no-op from a missing row
		if _, err := d.GetAccountByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// TouchAccountRefreshed records that remote metadata was re-read.
func (d *DB) TouchAccountRefreshed(ctx context.Context, id int64) error {
	_, err := d.sql.ExecContext(ctx, `UPDATE watched_accounts SET last_refreshed=? WHERE id=?`, time.Now().UTC().Unix(), id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.WatchedAccount, error) {
	var a model.WatchedAccount
	var since, updated, refreshed int64
	err := row.Scan(&a.ID, &a.RemoteID, &a.Identifier, &a.Name, &a.WatchedBy, &since, &updated, &refreshed, &a.MentionCursor)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.WatchedSince = time.Unix(since, 0).UTC()
	a.LastUpdated = time.Unix(updated, 0).UTC()
	a.LastRefreshed = time.Unix(refreshed, 0).UTC()
	return a, nil
}

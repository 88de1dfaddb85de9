package watchstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"

	"tweetwatch/internal/model"
)

// AddTweet inserts a watched tweet and fills in its surrogate id.
func (d *DB) AddTweet(ctx context.Context, t *model.WatchedTweet) error {
	res, err := d.sql.ExecContext(ctx, `
		INSERT INTO watched_tweets(tweet_link, likers, retweeters) VALUES(?,?,?)`,
		t.TweetLink, encodeSet(t.Likers), encodeSet(t.Retweeters))
	if err != nil {
		return err
	}
	t.ID, err = res.LastInsertId()
	return err
}

func (d *DB) GetTweetByID(ctx context.Context, id int64) (model.WatchedTweet, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT id, tweet_link, likers, retweeters FROM watched_tweets WHERE id=?`, id)
	return scanTweet(row)
}

func (d *DB) GetTweetByLink(ctx context.Context, tweetLink string) (model.WatchedTweet, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT id, tweet_link, likers, retweeters FROM watched_tweets WHERE tweet_link=?`, tweetLink)
	return scanTweet(row)
}

// ListTweets returns all watched tweets in activation order.
func (d *DB) ListTweets(ctx context.Context) ([]model.WatchedTweet, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT id, tweet_link, likers, retweeters FROM watched_tweets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WatchedTweet
	for rows.Next() {
		t, err := scanTweet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (d *DB) CountTweets(ctx context.Context) (int64, error) {
	var n int64
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM watched_tweets`).Scan(&n)
	return n, err
}

func (d *DB) DeleteTweet(ctx context.Context, id int64) error {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM watched_tweets WHERE id=?`, id)
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

// UpdateTweetReactions replaces both reaction snapshots in one write.
func (d *DB) UpdateTweetReactions(ctx context.Context, id int64, likers, retweeters map[string]struct{}) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE watched_tweets SET likers=?, retweeters=? WHERE id=?`,
		encodeSet(likers), encodeSet(retweeters), id)
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

func scanTweet(row rowScanner) (model.WatchedTweet, error) {
	var t model.WatchedTweet
	var likers, retweeters string
	err := row.Scan(&t.ID, &t.TweetLink, &likers, &retweeters)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Likers = decodeSet(likers)
	t.Retweeters = decodeSet(retweeters)
	return t, nil
}

// encodeSet stores a handle set as a sorted JSON array for stable rows.
func encodeSet(s map[string]struct{}) string {
	handles := make([]string, 0, len(s))
	for h := range s {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	b, _ := json.Marshal(handles)
	return string(b)
}

func decodeSet(raw string) map[string]struct{} {
	var handles []string
	_ = json.Unmarshal([]byte(raw), &handles)
	out := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		out[h] = struct{}{}
	}
	return out
}

// Package reconcile implements the poll cycle: it compares the current
// remote state of watched accounts and tweets with the stored cursors and
// reaction snapshots, and emits one trigger per newly observed action.
package reconcile

import (
	"context"

	"tweetwatch/internal/model"
)

// Store is the persistence surface the reconcilers need.
// *watchstore.DB satisfies it.
type Store interface {
	ListAccounts(ctx context.Context) ([]model.WatchedAccount, error)
	UpdateMentionCursor(ctx context.Context, id, cursor int64) error
	ListTweets(ctx context.Context) ([]model.WatchedTweet, error)
	UpdateTweetReactions(ctx context.Context, id int64, likers, retweeters map[string]struct{}) error
}

// TriggerSink consumes triggers exactly once each.
// *dispatch.Dispatcher satisfies it.
type TriggerSink interface {
	Dispatch(trigger model.Trigger)
}

// TokenSource supplies the current bearer token. A blank token means
// polling is disabled and the cycle is a no-op.
type TokenSource interface {
	BearerToken(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) BearerToken(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return TokenSourceFunc(func(context.Context) (string, error) { return token, nil })
}

// Package watch manages the watched collections: adding an account resolves
// its handle remotely and primes the mention cursor; adding a tweet primes
// its reaction snapshot. Neither ever retro-grants triggers for actions that
// happened before watching began.
package watch

import (
	"context"
	"errors"
	"fmt"

	"tweetwatch/internal/cache"
	"tweetwatch/internal/gateway"
	"tweetwatch/internal/logging"
	"tweetwatch/internal/model"
	"tweetwatch/internal/reconcile"
	"tweetwatch/internal/store/watchstore"
)

// MaxWatchedAccounts caps active watched accounts system-wide.
const MaxWatchedAccounts = 2

var (
	ErrAccountLimitReached = errors.New("watch: maximum number of watched accounts reached")
	ErrAlreadyWatched      = errors.New("watch: already watched")
	ErrNoBearerToken       = errors.New("watch: no bearer token configured")
)

// RuleDisabler is notified when an account is deleted so rules bound to it
// can be switched off. Optional.
type RuleDisabler interface {
	DisableRulesForAccount(ctx context.Context, remoteAccountID int64) error
}

// Service wires the store, gateway and cache for watch administration.
type Service struct {
	store    *watchstore.DB
	gw       gateway.Gateway
	tokens   reconcile.TokenSource
	accCache *cache.AccountCache
	rules    RuleDisabler // may be nil
}

func NewService(store *watchstore.DB, gw gateway.Gateway, tokens reconcile.TokenSource, accCache *cache.AccountCache, rules RuleDisabler) *Service {
	return &Service{store: store, gw: gw, tokens: tokens, accCache: accCache, rules: rules}
}

// AddAccount resolves handle remotely and starts watching it. The mention
// cursor is primed with the newest current mention so only mentions posted
// after watching began produce triggers.
func (s *Service) AddAccount(ctx context.Context, handle, watchedBy string) (model.WatchedAccount, error) {
	var out model.WatchedAccount
	token, err := s.token(ctx)
	if err != nil {
		return out, err
	}
	n, err := s.store.CountAccounts(ctx)
	if err != nil {
		return out, err
	}
	if n >= MaxWatchedAccounts {
		return out, ErrAccountLimitReached
	}
	remote, err := s.gw.LookupAccountByHandle(ctx, handle, token)
	if err != nil {
		return out, fmt.Errorf("resolving @%s: %w", handle, err)
	}
	if _, err := s.store.GetAccountByRemoteID(ctx, remote.ID); err == nil {
		return out, ErrAlreadyWatched
	} else if !errors.Is(err, watchstore.ErrNotFound) {
		return out, err
	}

	account := model.WatchedAccount{
		RemoteID:   remote.ID,
		Identifier: remote.Username,
		Name:       remote.Name,
		WatchedBy:  watchedBy,
	}
	if mentions, err := s.gw.FetchMentionsSince(ctx, remote.ID, 0, token); err == nil {
		for _, m := range mentions {
			if m.TweetID > account.MentionCursor {
				account.MentionCursor = m.TweetID
			}
		}
	} else {
		logging.Warn("cursor_prime_failed", map[string]any{"handle": handle, "error": err.Error()})
	}
	if err := s.store.AddAccount(ctx, &account); err != nil {
		return out, err
	}
	logging.Info("account_watched", map[string]any{"handle": account.Identifier, "remoteId": account.RemoteID})
	return account, nil
}

// DeleteAccount stops watching the account, invalidates its cache entry and
// disables any rules bound to it.
func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	account, err := s.store.GetAccountByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	if s.accCache != nil {
		if token, err := s.token(ctx); err == nil {
			s.accCache.Invalidate(account.RemoteID, token)
		}
	}
	if s.rules != nil {
		if err := s.rules.DisableRulesForAccount(ctx, account.RemoteID); err != nil {
			logging.Warn("rule_disable_failed", map[string]any{"remoteId": account.RemoteID, "error": err.Error()})
		}
	}
	logging.Info("account_unwatched", map[string]any{"handle": account.Identifier})
	return nil
}

// AddTweet starts watching a tweet link, priming the reaction snapshot so
// pre-existing likes and retweets never produce triggers.
func (s *Service) AddTweet(ctx context.Context, tweetLink string) (model.WatchedTweet, error) {
	var out model.WatchedTweet
	if model.ExtractTweetID(tweetLink) == 0 {
		return out, fmt.Errorf("watch: no tweet id in link %q", tweetLink)
	}
	if _, err := s.store.GetTweetByLink(ctx, tweetLink); err == nil {
		return out, ErrAlreadyWatched
	} else if !errors.Is(err, watchstore.ErrNotFound) {
		return out, err
	}
	token, err := s.token(ctx)
	if err != nil {
		return out, err
	}

	tweet := model.WatchedTweet{TweetLink: tweetLink}
	if likers, err := s.gw.FetchLikers(ctx, tweetLink, token); err == nil {
		tweet.Likers = likers
	} else {
		logging.Warn("likers_prime_failed", map[string]any{"link": tweetLink, "error": err.Error()})
	}
	if retweeters, err := s.gw.FetchRetweeters(ctx, tweetLink, token); err == nil {
		tweet.Retweeters = retweeters
	} else {
		logging.Warn("retweeters_prime_failed", map[string]any{"link": tweetLink, "error": err.Error()})
	}
	if err := s.store.AddTweet(ctx, &tweet); err != nil {
		return out, err
	}
	logging.Info("tweet_watched", map[string]any{"link": tweetLink})
	return tweet, nil
}

// RemoteDetails returns the cached remote metadata for a watched account,
// fetching through the gateway on a cache miss, and records the refresh.
func (s *Service) RemoteDetails(ctx context.Context, id int64) (model.RemoteAccount, error) {
	var out model.RemoteAccount
	account, err := s.store.GetAccountByID(ctx, id)
	if err != nil {
		return out, err
	}
	token, err := s.token(ctx)
	if err != nil {
		return out, err
	}
	remote, err := s.accCache.Get(ctx, account.RemoteID, token)
	if err != nil {
		return out, err
	}
	if err := s.store.TouchAccountRefreshed(ctx, account.ID); err != nil {
		return out, err
	}
	return remote, nil
}

// DeleteTweet stops watching a tweet.
func (s *Service) DeleteTweet(ctx context.Context, id int64) error {
	return s.store.DeleteTweet(ctx, id)
}

// Accounts lists all watched accounts.
func (s *Service) Accounts(ctx context.Context) ([]model.WatchedAccount, error) {
	return s.store.ListAccounts(ctx)
}

// Tweets lists all watched tweets.
func (s *Service) Tweets(ctx context.Context) ([]model.WatchedTweet, error) {
	return s.store.ListTweets(ctx)
}

func (s *Service) token(ctx context.Context) (string, error) {
	token, err := s.tokens.BearerToken(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNoBearerToken
	}
	return token, nil
}

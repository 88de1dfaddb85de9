package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tweetwatch/internal/cache"
	"tweetwatch/internal/gateway"
	"tweetwatch/internal/logging"
	"tweetwatch/internal/metrics"
)

// ErrTokenUnusable aborts a cycle when the shared bearer token is rejected;
// it is reported once per cycle, not once per item.
var ErrTokenUnusable = errors.New("reconcile: bearer token unusable")

// Runner drives one reconciliation cycle over all watched accounts and
// tweets. Cycles never overlap: RunCycle called while a prior call is
// in-flight is a counted no-op, because cursor advancement is not safe
// under concurrent cycles for the same account.
type Runner struct {
	store    Store
	gw       gateway.Gateway
	tokens   TokenSource
	accounts *MentionReconciler
	tweets   *ReactionReconciler
	accCache *cache.AccountCache
	workers  int
	running  atomic.Bool
}

func NewRunner(store Store, gw gateway.Gateway, tokens TokenSource, sink TriggerSink, accCache *cache.AccountCache, workers int) *Runner {
	if workers <= 0 {
		workers = 10
	}
	return &Runner{
		store:    store,
		gw:       gw,
		tokens:   tokens,
		accounts: NewMentionReconciler(gw, store, sink),
		tweets:   NewReactionReconciler(gw, store, sink),
		accCache: accCache,
		workers:  workers,
	}
}

// ForceRefreshAccountCache empties the account cache so the next lookups
// refetch remote metadata.
func (r *Runner) ForceRefreshAccountCache() {
	if r.accCache != nil {
		r.accCache.InvalidateAll()
	}
}

// RunCycle executes one full pass. A blank token makes the whole cycle a
// reported no-op. A token the probe rejects aborts before any item is
// processed; a token failure surfacing mid-cycle stops the remaining items.
// Failures local to one account or tweet are logged and skipped.
func (r *Runner) RunCycle(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		metrics.CycleSkipped.Inc()
		logging.Warn("cycle_skipped_overlap", nil)
		return nil
	}
	defer r.running.Store(false)

	metrics.CycleRuns.Inc()
	start := time.Now()
	defer metrics.ObserveCycleDuration(start)

	token, err := r.tokens.BearerToken(ctx)
	if err != nil {
		metrics.CycleErrors.Inc()
		return err
	}
	if token == "" {
		logging.Info("cycle_noop_no_token", nil)
		return nil
	}
	if status, err := r.gw.ProbeTokenStatus(ctx, token); err == nil && status != nil && !status.Valid {
		metrics.CycleErrors.Inc()
		logging.Error("cycle_aborted_token_invalid", nil)
		return ErrTokenUnusable
	}
	// an indeterminate probe (transport failure) does not block the cycle

	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	accounts, err := r.store.ListAccounts(cycleCtx)
	if err != nil {
		metrics.CycleErrors.Inc()
		return err
	}
	tweets, err := r.store.ListTweets(cycleCtx)
	if err != nil {
		metrics.CycleErrors.Inc()
		return err
	}

	var tokenBroken atomic.Bool
	fail := func(kind string, id int64, err error) {
		if gateway.IsTokenError(err) {
			if !tokenBroken.Swap(true) {
				logging.Error("cycle_aborted_token_error", map[string]any{"error": err.Error()})
			}
			cancel()
			return
		}
		metrics.ItemErrors.WithLabelValues(kind).Inc()
		logging.Warn(kind+"_reconcile_error", map[string]any{"id": id, "error": err.Error()})
	}

	g, gctx := errgroup.WithContext(cycleCtx)
	g.SetLimit(r.workers)
	for _, account := range accounts {
		account := account
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if err := r.accounts.ReconcileAccount(gctx, account, token); err != nil {
				fail("account", account.ID, err)
			}
			return nil
		})
	}
	for _, tweet := range tweets {
		tweet := tweet
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if err := r.tweets.ReconcileTweet(gctx, tweet, token); err != nil {
				fail("tweet", tweet.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if tokenBroken.Load() {
		metrics.CycleErrors.Inc()
		return ErrTokenUnusable
	}
	logging.Info("cycle_done", map[string]any{
		"accounts": len(accounts),
		"tweets":   len(tweets),
		"took":     time.Since(start).String(),
	})
	return ctx.Err()
}

// RunLoop runs RunCycle on a ticker until ctx is cancelled. The first cycle
// starts immediately.
func (r *Runner) RunLoop(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	if err := r.RunCycle(ctx); err != nil {
		logging.Error("cycle_error", map[string]any{"error": err.Error()})
	}
	for {
		select {
		case <-ctx.Done():
			logging.Info("poll_loop_stop", nil)
			return ctx.Err()
		case <-t.C:
			if err := r.RunCycle(ctx); err != nil {
				logging.Error("cycle_error", map[string]any{"error": err.Error()})
			}
		}
	}
}

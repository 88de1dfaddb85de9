package reconcile

import (
	"context"
	"sort"

	"tweetwatch/internal/gateway"
	"tweetwatch/internal/model"
)

// ReactionReconciler diffs a watched tweet's current likers/retweeters
// against the stored snapshot and emits one trigger per new handle.
// Removals are ignored: unliking never retracts a granted trigger.
type ReactionReconciler struct {
	gw    gateway.Gateway
	store Store
	sink  TriggerSink
}

func NewReactionReconciler(gw gateway.Gateway, store Store, sink TriggerSink) *ReactionReconciler {
	return &ReactionReconciler{gw: gw, store: store, sink: sink}
}

// ReconcileTweet fetches both reaction sets, dispatches triggers for the
// set difference, and persists the new snapshot in one write. Any fetch
// failure skips the tweet without mutation: triggers are never granted from
// partial data.
func (r *ReactionReconciler) ReconcileTweet(ctx context.Context, tweet model.WatchedTweet, token string) error {
	likers, err := r.gw.FetchLikers(ctx, tweet.TweetLink, token)
	if err != nil {
		return err
	}
	retweeters, err := r.gw.FetchRetweeters(ctx, tweet.TweetLink, token)
	if err != nil {
		return err
	}

	tweetID := tweet.TweetID()
	for _, handle := range newHandles(likers, tweet.Likers) {
		r.sink.Dispatch(model.Trigger{
			Kind:        model.LikeTweetEvent,
			ActorHandle: handle,
			ObjectID:    tweetID,
			ObjectType:  "tweet",
		})
	}
	for _, handle := range newHandles(retweeters, tweet.Retweeters) {
		r.sink.Dispatch(model.Trigger{
			Kind:        model.RetweetTweetEvent,
			ActorHandle: handle,
			ObjectID:    tweetID,
			ObjectType:  "tweet",
		})
	}

	if equalSets(likers, tweet.Likers) && equalSets(retweeters, tweet.Retweeters) {
		return nil
	}
	return r.store.UpdateTweetReactions(ctx, tweet.ID, likers, retweeters)
}

// newHandles returns the handles in current but not in stored, sorted for
// deterministic dispatch.
func newHandles(current, stored map[string]struct{}) []string {
	var out []string
	for h := range current {
		if _, ok := stored[h]; !ok {
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out
}

func equalSets(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for h := range a {
		if _, ok := b[h]; !ok {
			return false
		}
	}
	return true
}

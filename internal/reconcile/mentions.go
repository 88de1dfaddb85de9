package reconcile

import (
	"context"
	"strings"

	"tweetwatch/internal/gateway"
	"tweetwatch/internal/metrics"
	"tweetwatch/internal/model"
)

// MentionReconciler turns new mentions of a watched account into triggers
// and advances the account's mention cursor.
type MentionReconciler struct {
	gw    gateway.Gateway
	store Store
	sink  TriggerSink
}

func NewMentionReconciler(gw gateway.Gateway, store Store, sink TriggerSink) *MentionReconciler {
	return &MentionReconciler{gw: gw, store: store, sink: sink}
}

// ReconcileAccount fetches mentions since the stored cursor, filters
// self-reply noise, dispatches one trigger per surviving mention in API
// order, and advances the cursor to the highest id of the batch. An empty
// batch leaves the cursor untouched, so a failed cycle retries naturally.
func (r *MentionReconciler) ReconcileAccount(ctx context.Context, account model.WatchedAccount, token string) error {
	mentions, err := r.gw.FetchMentionsSince(ctx, account.RemoteID, account.MentionCursor, token)
	if err != nil {
		return err
	}
	if len(mentions) == 0 {
		return nil
	}
	metrics.MentionsFetched.Add(float64(len(mentions)))

	maxID := account.MentionCursor
	for _, m := range mentions {
		if m.TweetID > maxID {
			maxID = m.TweetID
		}
		if !keepMention(m, account.Identifier) {
			continue
		}
		r.sink.Dispatch(model.Trigger{
			Kind:        model.MentionAccountEvent,
			ActorHandle: m.AuthorHandle,
			ObjectID:    m.TweetID,
			ObjectType:  "tweet",
			AccountID:   account.RemoteID,
		})
	}
	// the cursor covers the whole batch, filtered mentions included
	return r.store.UpdateMentionCursor(ctx, account.ID, maxID)
}

// keepMention drops automatic reply-quotes: a mention inside the watched
// account's own thread where the handle appears only once is the reply
// prefix Twitter inserts, not a genuine third-party mention.
func keepMention(m model.RawMention, identifier string) bool {
	if m.TweetID == m.ParentID {
		return true
	}
	return strings.Count(m.Text, "@"+identifier) >= 2
}

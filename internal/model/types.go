package model

import "time"

// Trigger kinds, matching the rule titles registered in the gamification
// event catalog.
const (
	MentionAccountEvent = "mentionAccount"
	LikeTweetEvent      = "likeTweet"
	RetweetTweetEvent   = "retweet"
)

// ConnectorName identifies this connector in the identity mapping.
const ConnectorName = "twitter"

// GamificationGenericEvent is the event name broadcast for every trigger.
const GamificationGenericEvent = "gamification.generic.action"

// WatchedAccount is a persisted account whose mentions are polled.
type WatchedAccount struct {
	ID            int64
	RemoteID      int64
	Identifier    string // handle, without the leading @
	Name          string
	WatchedBy     string
	WatchedSince  time.Time
	LastUpdated   time.Time
	LastRefreshed time.Time
	// MentionCursor is the highest mention tweet id already processed.
	// Zero means no mention has been seen yet.
	MentionCursor int64
}

// WatchedTweet is a persisted tweet whose likers and retweeters are polled.
type WatchedTweet struct {
	ID         int64
	TweetLink  string
	Likers     map[string]struct{}
	Retweeters map[string]struct{}
}

// TweetID returns the numeric tweet id embedded in the tweet link, or 0 if
// the link does not contain one.
func (t WatchedTweet) TweetID() int64 {
	return ExtractTweetID(t.TweetLink)
}

// RemoteAccount is the subset of X user fields the engine uses.
type RemoteAccount struct {
	ID          int64
	Username    string
	Name        string
	Description string
	AvatarURL   string
}

// RawMention is one mention tweet as returned by the mentions endpoint.
type RawMention struct {
	TweetID      int64
	ParentID     int64 // conversation root id
	Text         string
	AuthorID     int64
	AuthorHandle string
}

// Trigger is an observed social action eligible for gamification. It is
// produced by a reconciler and consumed exactly once by the dispatcher.
type Trigger struct {
	Kind        string // one of the *Event constants
	ActorHandle string
	ObjectID    int64  // tweet id
	ObjectType  string // always "tweet"
	AccountID   int64  // watched account remote id; 0 for tweet-scoped triggers
}

// TokenStatus reports whether the bearer token is usable and how much quota
// remains on the account lookup resource.
type TokenStatus struct {
	Valid     bool
	Remaining int64
	ResetAt   time.Time
}

// EventDetails is the structured detail blob attached to every broadcast
// event for downstream de-duplication.
type EventDetails struct {
	AccountID int64 `json:"accountId"`
	TweetID   int64 `json:"tweetId"`
}

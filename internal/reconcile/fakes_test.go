package reconcile

import (
	"context"
	"sync"

	"tweetwatch/internal/model"
)

// fakeGateway serves canned remote state and records calls.
type fakeGateway struct {
	mu sync.Mutex

	mentionsByCursor map[int64][]model.RawMention
	mentionsErr      error
	mentionCalls     int

	likers        map[string]struct{}
	likersErr     error
	retweeters    map[string]struct{}
	retweetersErr error

	probe    *model.TokenStatus
	probeErr error

	block chan struct{} // when set, FetchMentionsSince parks until closed
}

func (g *fakeGateway) LookupAccountByHandle(ctx context.Context, handle, token string) (model.RemoteAccount, error) {
	return model.RemoteAccount{}, nil
}

func (g *fakeGateway) LookupAccountByID(ctx context.Context, remoteID int64, token string) (model.RemoteAccount, error) {
	return model.RemoteAccount{ID: remoteID}, nil
}

func (g *fakeGateway) FetchMentionsSince(ctx context.Context, remoteID, sinceID int64, token string) ([]model.RawMention, error) {
	g.mu.Lock()
	g.mentionCalls++
	block := g.block
	g.mu.Unlock()
	if block != nil {
		<-block
	}
	if g.mentionsErr != nil {
		return nil, g.mentionsErr
	}
	return g.mentionsByCursor[sinceID], nil
}

func (g *fakeGateway) FetchLikers(ctx context.Context, tweetLink, token string) (map[string]struct{}, error) {
	if g.likersErr != nil {
		return nil, g.likersErr
	}
	return g.likers, nil
}

func (g *fakeGateway) FetchRetweeters(ctx context.Context, tweetLink, token string) (map[string]struct{}, error) {
	if g.retweetersErr != nil {
		return nil, g.retweetersErr
	}
	return g.retweeters, nil
}

func (g *fakeGateway) ProbeTokenStatus(ctx context.Context, token string) (*model.TokenStatus, error) {
	if g.probeErr != nil {
		return nil, g.probeErr
	}
	if g.probe != nil {
		return g.probe, nil
	}
	return &model.TokenStatus{Valid: true}, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mentionCalls
}

// memStore is an in-memory Store with the same monotonic cursor guard as
// the real one.
type memStore struct {
	mu       sync.Mutex
	accounts []model.WatchedAccount
	tweets   []model.WatchedTweet

	cursorWrites   int
	reactionWrites int
}

func (s *memStore) ListAccounts(ctx context.Context) ([]model.WatchedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.WatchedAccount(nil), s.accounts...), nil
}

func (s *memStore) UpdateMentionCursor(ctx context.Context, id, cursor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursorWrites++
	for i := range s.accounts {
		if s.accounts[i].ID == id && s.accounts[i].MentionCursor < cursor {
			s.accounts[i].MentionCursor = cursor
		}
	}
	return nil
}

func (s *memStore) ListTweets(ctx context.Context) ([]model.WatchedTweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.WatchedTweet(nil), s.tweets...), nil
}

func (s *memStore) UpdateTweetReactions(ctx context.Context, id int64, likers, retweeters map[string]struct{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reactionWrites++
	for i := range s.tweets {
		if s.tweets[i].ID == id {
			s.tweets[i].Likers = likers
			s.tweets[i].Retweeters = retweeters
		}
	}
	return nil
}

func (s *memStore) account(id int64) model.WatchedAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			return a
		}
	}
	return model.WatchedAccount{}
}

// collectSink records dispatched triggers in order.
type collectSink struct {
	mu       sync.Mutex
	triggers []model.Trigger
}

func (s *collectSink) Dispatch(trigger model.Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, trigger)
}

func (s *collectSink) all() []model.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Trigger(nil), s.triggers...)
}

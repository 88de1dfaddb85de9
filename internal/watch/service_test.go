package watch

import (
	"context"
	"errors"
	"testing"

	"tweetwatch/internal/cache"
	"tweetwatch/internal/model"
	"tweetwatch/internal/reconcile"
	"tweetwatch/internal/store/watchstore"
)

type fakeGateway struct {
	accounts   map[string]model.RemoteAccount
	mentions   []model.RawMention
	likers     map[string]struct{}
	retweeters map[string]struct{}
	likersErr  error
}

func (g *fakeGateway) LookupAccountByHandle(_ context.Context, handle, _ string) (model.RemoteAccount, error) {
	acc, ok := g.accounts[handle]
	if !ok {
		return model.RemoteAccount{}, errors.New("no such account")
	}
	return acc, nil
}

func (g *fakeGateway) LookupAccountByID(_ context.Context, id int64, _ string) (model.RemoteAccount, error) {
	for _, acc := range g.accounts {
		if acc.ID == id {
			return acc, nil
		}
	}
	return model.RemoteAccount{}, errors.New("no such account")
}

func (g *fakeGateway) FetchMentionsSince(context.Context, int64, int64, string) ([]model.RawMention, error) {
	return g.mentions, nil
}

func (g *fakeGateway) FetchLikers(context.Context, string, string) (map[string]struct{}, error) {
	if g.likersErr != nil {
		return nil, g.likersErr
	}
	return g.likers, nil
}

func (g *fakeGateway) FetchRetweeters(context.Context, string, string) (map[string]struct{}, error) {
	return g.retweeters, nil
}

func (g *fakeGateway) ProbeTokenStatus(context.Context, string) (*model.TokenStatus, error) {
	return &model.TokenStatus{Valid: true}, nil
}

func newTestService(t *testing.T, gw *fakeGateway) (*Service, *watchstore.DB) {
	t.Helper()
	db, err := watchstore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	svc := NewService(db, gw, reconcile.StaticToken("tok"), cache.NewAccountCache(gw), nil)
	return svc, db
}

func TestAddAccountPrimesCursor(t *testing.T) {
	gw := &fakeGateway{
		accounts: map[string]model.RemoteAccount{"nasa": {ID: 42, Username: "nasa", Name: "NASA"}},
		mentions: []model.RawMention{
			{TweetID: 900, ParentID: 900, AuthorHandle: "alice"},
			{TweetID: 950, ParentID: 950, AuthorHandle: "bob"},
		},
	}
	svc, _ := newTestService(t, gw)

	acc, err := svc.AddAccount(context.Background(), "nasa", "admin")
	if err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	if acc.MentionCursor != 950 {
		t.Fatalf("cursor = %d, want 950", acc.MentionCursor)
	}
	if acc.RemoteID != 42 || acc.Identifier != "nasa" {
		t.Fatalf("unexpected account: %+v", acc)
	}
}

func TestAddAccountDuplicate(t *testing.T) {
	gw := &fakeGateway{accounts: map[string]model.RemoteAccount{"nasa": {ID: 42, Username: "nasa"}}}
	svc, _ := newTestService(t, gw)

	if _, err := svc.AddAccount(context.Background(), "nasa", "admin"); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := svc.AddAccount(context.Background(), "nasa", "admin"); !errors.Is(err, ErrAlreadyWatched) {
		t.Fatalf("err = %v, want ErrAlreadyWatched", err)
	}
}

func TestAddAccountLimit(t *testing.T) {
	gw := &fakeGateway{accounts: map[string]model.RemoteAccount{
		"a": {ID: 1, Username: "a"},
		"b": {ID: 2, Username: "b"},
		"c": {ID: 3, Username: "c"},
	}}
	svc, _ := newTestService(t, gw)

	for _, h := range []string{"a", "b"} {
		if _, err := svc.AddAccount(context.Background(), h, "admin"); err != nil {
			t.Fatalf("add %s: %v", h, err)
		}
	}
	if _, err := svc.AddAccount(context.Background(), "c", "admin"); !errors.Is(err, ErrAccountLimitReached) {
		t.Fatalf("err = %v, want ErrAccountLimitReached", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	gw := &fakeGateway{accounts: map[string]model.RemoteAccount{"nasa": {ID: 42, Username: "nasa"}}}
	svc, db := newTestService(t, gw)

	acc, err := svc.AddAccount(context.Background(), "nasa", "admin")
	if err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	if err := svc.DeleteAccount(context.Background(), acc.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, err := db.GetAccountByID(context.Background(), acc.ID); !errors.Is(err, watchstore.ErrNotFound) {
		t.Fatalf("account still present after delete: %v", err)
	}
}

func TestRemoteDetailsUsesCacheAndTouchesRefresh(t *testing.T) {
	gw := &fakeGateway{accounts: map[string]model.RemoteAccount{"nasa": {ID: 42, Username: "nasa", Name: "NASA", Description: "space"}}}
	svc, db := newTestService(t, gw)

	acc, err := svc.AddAccount(context.Background(), "nasa", "admin")
	if err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	details, err := svc.RemoteDetails(context.Background(), acc.ID)
	if err != nil {
		t.Fatalf("RemoteDetails: %v", err)
	}
	if details.Name != "NASA" || details.Description != "space" {
		t.Fatalf("details = %+v", details)
	}
	got, err := db.GetAccountByID(context.Background(), acc.ID)
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if got.LastRefreshed.IsZero() {
		t.Fatal("LastRefreshed not recorded")
	}
}

func TestAddTweetPrimesSnapshot(t *testing.T) {
	gw := &fakeGateway{
		likers:     map[string]struct{}{"alice": {}, "bob": {}},
		retweeters: map[string]struct{}{"carol": {}},
	}
	svc, _ := newTestService(t, gw)

	tweet, err := svc.AddTweet(context.Background(), "https://x.com/nasa/status/123456")
	if err != nil {
		t.Fatalf("AddTweet: %v", err)
	}
	if len(tweet.Likers) != 2 || len(tweet.Retweeters) != 1 {
		t.Fatalf("snapshot not primed: %+v", tweet)
	}
}

func TestAddTweetRejectsBadLink(t *testing.T) {
	svc, _ := newTestService(t, &fakeGateway{})
	if _, err := svc.AddTweet(context.Background(), "https://x.com/nasa"); err == nil {
		t.Fatal("expected error for link with no tweet id")
	}
}

func TestAddTweetPrimeFailureStillWatches(t *testing.T) {
	gw := &fakeGateway{
		likersErr:  errors.New("boom"),
		retweeters: map[string]struct{}{"carol": {}},
	}
	svc, db := newTestService(t, gw)

	tweet, err := svc.AddTweet(context.Background(), "https://x.com/nasa/status/777")
	if err != nil {
		t.Fatalf("AddTweet: %v", err)
	}
	got, err := db.GetTweetByID(context.Background(), tweet.ID)
	if err != nil {
		t.Fatalf("GetTweetByID: %v", err)
	}
	if len(got.Likers) != 0 || len(got.Retweeters) != 1 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"tweetwatch/internal/model"
)

type fakeRules struct {
	disabled map[string]bool
}

func (f fakeRules) IsTriggerEnabledForAccount(ctx context.Context, kind string, remoteAccountID int64) bool {
	return !f.disabled[kind]
}

type fakeIdentities struct {
	mapping map[string]string
}

func (f fakeIdentities) ResolveInternalUser(ctx context.Context, connector, handle string) (string, error) {
	return f.mapping[handle], nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []map[string]string
}

func (b *recordingBus) Broadcast(ctx context.Context, eventName string, payload map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, payload)
	return nil
}

func (b *recordingBus) all() []map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]string(nil), b.events...)
}

func newTestDispatcher(rules fakeRules, ids fakeIdentities, bus *recordingBus) *Dispatcher {
	d := New(rules, ids, bus, 2, 16)
	d.Start()
	return d
}

func TestDispatchBroadcastsResolvedTrigger(t *testing.T) {
	bus := &recordingBus{}
	d := newTestDispatcher(fakeRules{}, fakeIdentities{mapping: map[string]string{"alice": "u1"}}, bus)

	d.Dispatch(model.Trigger{
		Kind:        model.MentionAccountEvent,
		ActorHandle: "alice",
		ObjectID:    105,
		ObjectType:  "tweet",
		AccountID:   42,
	})
	d.Stop()

	events := bus.all()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	e := events[0]
	if e["senderId"] != "u1" || e["receiverId"] != "u1" {
		t.Fatalf("sender/receiver = %q/%q", e["senderId"], e["receiverId"])
	}
	if e["objectId"] != "105" || e["objectType"] != "tweet" || e["ruleTitle"] != model.MentionAccountEvent {
		t.Fatalf("payload = %v", e)
	}
	var details model.EventDetails
	if err := json.Unmarshal([]byte(e["eventDetails"]), &details); err != nil {
		t.Fatalf("eventDetails not structured JSON: %v", err)
	}
	if details.AccountID != 42 || details.TweetID != 105 {
		t.Fatalf("details = %+v", details)
	}
}

func TestDisabledTriggerDroppedSilently(t *testing.T) {
	bus := &recordingBus{}
	d := newTestDispatcher(
		fakeRules{disabled: map[string]bool{model.LikeTweetEvent: true}},
		fakeIdentities{mapping: map[string]string{"alice": "u1"}},
		bus,
	)

	d.Dispatch(model.Trigger{Kind: model.LikeTweetEvent, ActorHandle: "alice", ObjectID: 1, ObjectType: "tweet"})
	d.Stop()

	if len(bus.all()) != 0 {
		t.Fatal("disabled trigger must not broadcast")
	}
}

func TestUnresolvedIdentityDropped(t *testing.T) {
	bus := &recordingBus{}
	d := newTestDispatcher(fakeRules{}, fakeIdentities{}, bus)

	d.Dispatch(model.Trigger{Kind: model.RetweetTweetEvent, ActorHandle: "stranger", ObjectID: 1, ObjectType: "tweet"})
	d.Stop()

	if len(bus.all()) != 0 {
		t.Fatal("unresolved trigger must not broadcast")
	}
}

func TestStopDrainsQueue(t *testing.T) {
	bus := &recordingBus{}
	d := New(fakeRules{}, fakeIdentities{mapping: map[string]string{"alice": "u1"}}, bus, 1, 16)

	// enqueue before any worker runs
	for i := 0; i < 5; i++ {
		d.Dispatch(model.Trigger{Kind: model.MentionAccountEvent, ActorHandle: "alice", ObjectID: int64(i), ObjectType: "tweet"})
	}
	d.Start()
	d.Stop()

	if got := len(bus.all()); got != 5 {
		t.Fatalf("broadcast %d events, want 5", got)
	}
}

func TestDispatchAfterStopDoesNotPanic(t *testing.T) {
	bus := &recordingBus{}
	d := newTestDispatcher(fakeRules{}, fakeIdentities{}, bus)
	d.Stop()
	d.Dispatch(model.Trigger{Kind: model.MentionAccountEvent, ActorHandle: "a"})
}

type slowBus struct {
	recordingBus
	delay time.Duration
}

func (b *slowBus) Broadcast(ctx context.Context, eventName string, payload map[string]string) error {
	time.Sleep(b.delay)
	return b.recordingBus.Broadcast(ctx, eventName, payload)
}

func TestFullQueueDropsOldest(t *testing.T) {
	bus := &slowBus{delay: 50 * time.Millisecond}
	d := New(fakeRules{}, fakeIdentities{mapping: map[string]string{"alice": "u1"}}, bus, 1, 2)

	// no workers started: queue of 2 overflows on the third enqueue
	for i := 0; i < 3; i++ {
		d.Dispatch(model.Trigger{Kind: model.MentionAccountEvent, ActorHandle: "alice", ObjectID: int64(i), ObjectType: "tweet"})
	}
	if d.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", d.Pending())
	}
	d.Start()
	d.Stop()

	events := bus.all()
	if len(events) != 2 {
		t.Fatalf("broadcast %d events, want 2", len(events))
	}
	// oldest (objectId 0) was evicted
	for _, e := range events {
		if e["objectId"] == "0" {
			t.Fatal("oldest trigger should have been dropped")
		}
	}
}

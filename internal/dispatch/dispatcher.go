// Package dispatch turns reconciled triggers into broadcast gamification
// events on its own bounded worker pool, so a slow downstream consumer can
// never stall a poll cycle.
package dispatch

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"tweetwatch/internal/logging"
	"tweetwatch/internal/metrics"
	"tweetwatch/internal/model"
)

// RuleCatalog answers whether a trigger kind is currently enabled for a
// watched account or tweet.
type RuleCatalog interface {
	IsTriggerEnabledForAccount(ctx context.Context, triggerKind string, remoteAccountID int64) bool
}

// IdentityResolver maps a connector handle to an internal user id. An empty
// id means the remote user has not linked an internal account.
type IdentityResolver interface {
	ResolveInternalUser(ctx context.Context, connectorName, remoteHandle string) (string, error)
}

// EventBus receives the generic gamification event. Delivery is
// fire-and-forget; a broadcast failure is logged and swallowed.
type EventBus interface {
	Broadcast(ctx context.Context, eventName string, payload map[string]string) error
}

// Dispatcher owns a bounded queue of pending triggers and a fixed worker
// pool draining it. When the queue is full the oldest pending trigger is
// dropped and counted, bounding memory if the downstream is persistently
// slow.
type Dispatcher struct {
	rules      RuleCatalog
	identities IdentityResolver
	bus        EventBus

	queue   chan model.Trigger
	workers int
	done    chan struct{}
	stopped atomic.Bool
	wg      sync.WaitGroup

	callTimeout time.Duration
}

func New(rules RuleCatalog, identities IdentityResolver, bus EventBus, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		rules:       rules,
		identities:  identities,
		bus:         bus,
		queue:       make(chan model.Trigger, queueSize),
		workers:     workers,
		done:        make(chan struct{}),
		callTimeout: 10 * time.Second,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Stop drains the queue and waits for in-flight broadcasts to finish.
func (d *Dispatcher) Stop() {
	if d.stopped.Swap(true) {
		return
	}
	close(d.done)
	d.wg.Wait()
}

// Dispatch enqueues one trigger. It never blocks the caller: if the queue is
// full, the oldest pending trigger is evicted and counted as dropped.
func (d *Dispatcher) Dispatch(trigger model.Trigger) {
	if d.stopped.Load() {
		metrics.TriggersDropped.WithLabelValues("stopped").Inc()
		return
	}
	for {
		select {
		case d.queue <- trigger:
			return
		default:
		}
		select {
		case old := <-d.queue:
			metrics.TriggersDropped.WithLabelValues("queue_full").Inc()
			logging.Warn("trigger_dropped", map[string]any{"kind": old.Kind, "objectId": old.ObjectID})
		default:
		}
	}
}

// Pending reports the number of queued triggers.
func (d *Dispatcher) Pending() int { return len(d.queue) }

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case tr := <-d.queue:
			d.process(tr)
		case <-d.done:
			for {
				select {
				case tr := <-d.queue:
					d.process(tr)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) process(tr model.Trigger) {
	ctx, cancel := context.WithTimeout(context.Background(), d.callTimeout)
	defer cancel()

	if !d.rules.IsTriggerEnabledForAccount(ctx, tr.Kind, tr.AccountID) {
		metrics.TriggersDropped.WithLabelValues("disabled").Inc()
		return
	}
	userID, err := d.identities.ResolveInternalUser(ctx, model.ConnectorName, tr.ActorHandle)
	if err != nil {
		metrics.TriggersDropped.WithLabelValues("identity_error").Inc()
		logging.Error("identity_resolve_error", map[string]any{"handle": tr.ActorHandle, "error": err.Error()})
		return
	}
	if userID == "" {
		// remote user without a linked internal account; not an error
		metrics.TriggersDropped.WithLabelValues("unresolved").Inc()
		return
	}

	details, _ := json.Marshal(model.EventDetails{AccountID: tr.AccountID, TweetID: tr.ObjectID})
	payload := map[string]string{
		"senderId":     userID,
		"receiverId":   userID,
		"objectId":     strconv.FormatInt(tr.ObjectID, 10),
		"objectType":   tr.ObjectType,
		"ruleTitle":    tr.Kind,
		"eventDetails": string(details),
	}
	if err := d.bus.Broadcast(ctx, model.GamificationGenericEvent, payload); err != nil {
		logging.Error("broadcast_error", map[string]any{"kind": tr.Kind, "error": err.Error()})
		return
	}
	metrics.TriggersDispatched.WithLabelValues(tr.Kind).Inc()
	logging.Info("trigger_broadcast", map[string]any{"kind": tr.Kind, "user": userID, "objectId": tr.ObjectID})
}

// Package netmon maintains the last-known network snapshot and fans change
// events out to subscribers.
package netmon

import (
	"context"
	"sync"
	"time"

	mediaerrors "github.com/kingkw1/2Truths-1Lie-sub004/errors"
	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

const subscriberBuffer = 16

// Notifier holds the current network snapshot and notifies subscribers on
// every change. It is the core behind the public monitor type and satisfies
// mediatypes.NetworkMonitor on its own, which makes it handy for tests.
//
// Thread Safety: all methods are safe for concurrent use.
type Notifier struct {
	mu      sync.RWMutex
	current mediatypes.NetworkState
	subs    map[int]chan mediatypes.NetworkState
	nextID  int
}

// NewNotifier creates a Notifier seeded with the given snapshot.
func NewNotifier(initial mediatypes.NetworkState) *Notifier {
	return &Notifier{
		current: initial,
		subs:    make(map[int]chan mediatypes.NetworkState),
	}
}

// Current returns the last known snapshot without blocking.
func (n *Notifier) Current() mediatypes.NetworkState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.current
}

// Online reports whether the last known snapshot is online.
func (n *Notifier) Online() bool {
	return n.Current().Online()
}

// Set publishes a new snapshot. Subscribers are notified only when the
// snapshot differs from the current one; a slow subscriber loses its oldest
// pending event rather than blocking the publisher.
func (n *Notifier) Set(state mediatypes.NetworkState) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if state == n.current {
		return
	}
	n.current = state

	for _, ch := range n.subs {
		select {
		case ch <- state:
		default:
			// Drop the oldest pending event to make room. Publishers are
			// serialized by the lock, so the freed slot cannot be stolen.
			select {
			case <-ch:
			default:
			}
			ch <- state
		}
	}
}

// Subscribe registers for change events. The returned func unsubscribes and
// closes the event channel; calling it more than once is safe.
func (n *Notifier) Subscribe() (<-chan mediatypes.NetworkState, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	ch := make(chan mediatypes.NetworkState, subscriberBuffer)
	n.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
			close(ch)
		})
	}
	return ch, unsubscribe
}

// WaitOnline blocks until the monitor reports online, the bound elapses, or
// the context is cancelled. A zero bound fails immediately when offline.
func WaitOnline(ctx context.Context, monitor mediatypes.NetworkMonitor, bound time.Duration) error {
	if monitor.Online() {
		return nil
	}

	events, unsubscribe := monitor.Subscribe()
	defer unsubscribe()

	// Re-check after subscribing so a restore between the first check and
	// the subscription is not missed.
	if monitor.Online() {
		return nil
	}

	timer := time.NewTimer(bound)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return mediaerrors.FromTransport("network.wait", ctx.Err())
		case state, ok := <-events:
			if !ok {
				return mediaerrors.NewError("network.wait", mediaerrors.ErrNetwork).
					WithMessage("monitor closed subscription")
			}
			if state.Online() {
				return nil
			}
		case <-timer.C:
			return mediaerrors.NewError("network.wait", mediaerrors.ErrTimeout).
				WithMessage("connectivity not restored within bound")
		}
	}
}

package media

import (
	"context"
	"time"

	"github.com/kingkw1/2Truths-1Lie-sub004/internal/netmon"
	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

// defaultProbeInterval paces the probe loop when the caller does not set
// one.
const defaultProbeInterval = 30 * time.Second

// ProbeFunc checks connectivity and returns the current network state.
// A non-nil error means the probe itself failed and is treated as offline.
type ProbeFunc func(ctx context.Context) (mediatypes.NetworkState, error)

// Monitor is the concrete network monitor. The embedding application pushes
// connectivity changes into it via Set, typically bridged from the
// platform's reachability callbacks; an optional probe loop can refresh the
// state actively.
//
// Monitor implements mediatypes.NetworkMonitor.
type Monitor struct {
	notifier *netmon.Notifier
}

var _ mediatypes.NetworkMonitor = (*Monitor)(nil)

// NewMonitor creates a monitor seeded with the given state.
func NewMonitor(initial mediatypes.NetworkState) *Monitor {
	return &Monitor{notifier: netmon.NewNotifier(initial)}
}

// Current returns the last known connectivity snapshot.
func (m *Monitor) Current() mediatypes.NetworkState { return m.notifier.Current() }

// Online reports whether the device is connected and the internet is
// reachable per the last known snapshot.
func (m *Monitor) Online() bool { return m.notifier.Online() }

// Subscribe registers for connectivity change events. The returned func
// unsubscribes. Slow subscribers miss intermediate states rather than
// blocking the publisher.
func (m *Monitor) Subscribe() (<-chan mediatypes.NetworkState, func()) {
	return m.notifier.Subscribe()
}

// Set publishes a new connectivity snapshot. Publishing a snapshot equal to
// the current one is a no-op.
func (m *Monitor) Set(state mediatypes.NetworkState) { m.notifier.Set(state) }

// Watch runs a probe loop until the context is cancelled, publishing each
// probe result. A probe error publishes an offline snapshot: an unverifiable
// network is treated as no network. Watch blocks; run it on its own
// goroutine.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration, probe ProbeFunc) {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state, err := probe(ctx)
			if err != nil {
				m.Set(mediatypes.NetworkState{
					Connected: false,
					Transport: mediatypes.TransportOther,
					Quality:   mediatypes.QualityUnknown,
				})
				continue
			}
			m.Set(state)
		}
	}
}

// Network returns the current connectivity snapshot.
func (c *Client) Network() mediatypes.NetworkState {
	return c.monitor.Current()
}

// Online reports whether the pipeline considers the device online.
func (c *Client) Online() bool {
	return c.monitor.Online()
}

// SetNetworkState pushes a connectivity change into the client's monitor.
// It only has an effect when the monitor accepts pushed states, which the
// default monitor and *Monitor do.
func (c *Client) SetNetworkState(state mediatypes.NetworkState) {
	if m, ok := c.monitor.(interface{ Set(mediatypes.NetworkState) }); ok {
		m.Set(state)
	}
}

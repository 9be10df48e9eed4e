package media

import (
	"context"

	"github.com/kingkw1/2Truths-1Lie-sub004/internal/offline"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/session"
)

// QueueLen reports how many uploads are parked in the offline queue.
func (c *Client) QueueLen() int {
	if c.queue == nil {
		return 0
	}
	return c.queue.Len()
}

// QueuedPaths lists the source paths parked in the offline queue, in replay
// order.
func (c *Client) QueuedPaths() []string {
	if c.queue == nil {
		return nil
	}
	entries := c.queue.Entries()
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths
}

// DrainQueue replays the offline queue now instead of waiting for the next
// connectivity event. Entries that fail transiently or queue again stay
// parked; entries that complete or fail permanently leave the queue.
func (c *Client) DrainQueue(ctx context.Context) {
	if c.queue == nil {
		return
	}
	c.queue.Drain(ctx, c.replayEntry)
}

// watchConnectivity drains the offline queue on every offline-to-online
// transition. It runs for the client's lifetime and stops when Close
// cancels its context.
func (c *Client) watchConnectivity(ctx context.Context) {
	defer c.wg.Done()

	events, unsubscribe := c.monitor.Subscribe()
	defer unsubscribe()

	online := c.monitor.Online()
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-events:
			if !ok {
				return
			}
			was := online
			online = state.Online()
			if !was && online && c.queue.Len() > 0 {
				c.logger.Info("connectivity restored, draining offline queue",
					"queued", c.queue.Len())
				c.queue.Drain(ctx, c.replayEntry)
			}
		}
	}
}

// enqueueRequest parks an upload request in the offline queue. Wired into
// the session manager as its enqueue callback.
func (c *Client) enqueueRequest(ctx context.Context, req session.Request) error {
	return c.queue.Enqueue(ctx, offline.Entry{
		Path:            req.Path,
		Filename:        req.Filename,
		ContentType:     req.ContentType,
		ChunkSize:       req.ChunkSize,
		RetriesPerChunk: req.RetriesPerChunk,
		HashChunks:      req.HashChunks,
	})
}

// replayEntry re-runs one queued upload as a fresh session marked Resumed.
// Queueing stays enabled so an upload interrupted by another offline spell
// parks again instead of failing.
func (c *Client) replayEntry(ctx context.Context, e offline.Entry) error {
	handle, err := c.sessions.Start(ctx, session.Request{
		Path:            e.Path,
		Filename:        e.Filename,
		ContentType:     e.ContentType,
		ChunkSize:       e.ChunkSize,
		RetriesPerChunk: e.RetriesPerChunk,
		HashChunks:      e.HashChunks,
		QueueOnOffline:  true,
		Resumed:         true,
	})
	if err != nil {
		return err
	}
	_, err = handle.Wait(ctx)
	return err
}

package media

import (
	"context"

	"github.com/kingkw1/2Truths-1Lie-sub004/internal/session"
	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

// Upload uploads one media file and blocks until the session reaches a
// terminal state.
//
// Offline behavior follows the client configuration: with the offline queue
// enabled the upload parks in the queue (the returned error matches
// errors.IsQueued) and replays when connectivity returns; with the queue
// disabled the upload waits up to the configured offline wait.
func (c *Client) Upload(ctx context.Context, path string, opts ...mediatypes.UploadOption) (*mediatypes.UploadResult, error) {
	up, err := c.StartUpload(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	return up.Wait(ctx)
}

// StartUpload starts an upload session and returns a handle observing it.
// The handle's event channel delivers incremental progress and exactly one
// terminal event, then closes.
func (c *Client) StartUpload(ctx context.Context, path string, opts ...mediatypes.UploadOption) (*UploadHandle, error) {
	cfg := c.uploadDefaults()
	for _, opt := range opts {
		opt(&cfg)
	}

	handle, err := c.sessions.Start(ctx, session.Request{
		Path:            path,
		Filename:        cfg.Filename,
		ContentType:     cfg.ContentType,
		ChunkSize:       cfg.ChunkSize,
		RetriesPerChunk: cfg.RetriesPerChunk,
		HashChunks:      cfg.HashChunks,
		QueueOnOffline:  cfg.QueueOnOffline,
		OfflineWait:     cfg.OfflineWait,
	})
	if err != nil {
		return nil, err
	}
	return &UploadHandle{handle: handle}, nil
}

// uploadDefaults seeds the per-upload configuration from the client
// configuration. Chunk hashing is on by default; offline queueing follows
// whether the client carries a queue.
func (c *Client) uploadDefaults() mediatypes.UploadOptionConfig {
	return mediatypes.UploadOptionConfig{
		HashChunks:     true,
		QueueOnOffline: c.queue != nil,
		OfflineWait:    c.cfg.OfflineWait,
	}
}

// UploadHandle observes one running upload session.
type UploadHandle struct {
	handle *session.Handle
}

// ID returns the upload session id.
func (u *UploadHandle) ID() string { return u.handle.ID() }

// Events returns the session's progress stream. The channel delivers
// incremental events while the upload runs and exactly one terminal event
// carrying the result or error, then closes.
func (u *UploadHandle) Events() <-chan mediatypes.UploadProgress { return u.handle.Events() }

// Done closes when the session reaches a terminal state.
func (u *UploadHandle) Done() <-chan struct{} { return u.handle.Done() }

// Cancel aborts the session. The in-flight transfer stops via context;
// chunks already uploaded are not rolled back.
func (u *UploadHandle) Cancel() { u.handle.Cancel() }

// Snapshot returns the session's current state.
func (u *UploadHandle) Snapshot() mediatypes.UploadSession { return u.handle.Snapshot() }

// Wait blocks until the session reaches a terminal state and returns its
// outcome.
func (u *UploadHandle) Wait(ctx context.Context) (*mediatypes.UploadResult, error) {
	return u.handle.Wait(ctx)
}

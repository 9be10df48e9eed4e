package media

import (
	"context"

	"github.com/kingkw1/2Truths-1Lie-sub004/internal/merge"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/session"
	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

// Merge uploads the input clips, initiates the server-side merge, and blocks
// until the merge job reaches a terminal state.
func (c *Client) Merge(ctx context.Context, files []mediatypes.MergeFile, opts ...mediatypes.MergeOption) (*mediatypes.MergeResult, error) {
	job, err := c.SubmitForMerge(ctx, files, opts...)
	if err != nil {
		return nil, err
	}
	return job.Wait(ctx)
}

// SubmitForMerge starts a merge job and returns a handle observing it.
//
// The job uploads every input clip with bounded parallelism, then asks the
// backend to merge them in statement order. A wrong input count fails fast
// with a validation error before anything is uploaded. Any input upload
// failure fails the whole job; media already uploaded is not rolled back.
func (c *Client) SubmitForMerge(ctx context.Context, files []mediatypes.MergeFile, opts ...mediatypes.MergeOption) (*MergeHandle, error) {
	var cfg mediatypes.MergeOptionConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	upCfg := c.uploadDefaults()
	for _, opt := range cfg.Upload {
		opt(&upCfg)
	}

	job, err := c.submitter.Submit(ctx, merge.SubmitRequest{
		Files:            files,
		Concurrency:      cfg.Concurrency,
		ExpectedCount:    cfg.ExpectedCount,
		DegradedFallback: cfg.DegradedFallback,
		Upload:           uploadRequestTemplate(upCfg),
		Poll:             c.pollOptions(cfg.Poll),
	})
	if err != nil {
		return nil, err
	}
	return &MergeHandle{job: job}, nil
}

// WatchMerge starts polling an existing backend merge session, e.g. one
// whose submitting process died before observing the terminal state.
// Watching a merge session that is already being watched is a validation
// error.
func (c *Client) WatchMerge(ctx context.Context, mergeSessionID string, opts ...mediatypes.PollOption) (*MergeHandle, error) {
	job, err := c.poller.Watch(ctx, mergeSessionID, c.pollOptions(opts))
	if err != nil {
		return nil, err
	}
	return &MergeHandle{job: job}, nil
}

// pollOptions resolves per-run poll options over the client defaults.
func (c *Client) pollOptions(opts []mediatypes.PollOption) merge.PollOptions {
	cfg := mediatypes.PollOptionConfig{
		Interval:             c.cfg.PollInterval,
		MaxInterval:          c.cfg.PollMaxInterval,
		Timeout:              c.cfg.PollTimeout,
		AssumedMergeDuration: c.cfg.AssumedMergeDuration,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return merge.PollOptions{
		Interval:             cfg.Interval,
		MaxInterval:          cfg.MaxInterval,
		Timeout:              cfg.Timeout,
		AssumedMergeDuration: cfg.AssumedMergeDuration,
	}
}

// uploadRequestTemplate converts resolved upload options into the session
// request template used for every input of a merge job. Path and Filename
// are filled per input.
func uploadRequestTemplate(cfg mediatypes.UploadOptionConfig) session.Request {
	return session.Request{
		ContentType:     cfg.ContentType,
		ChunkSize:       cfg.ChunkSize,
		RetriesPerChunk: cfg.RetriesPerChunk,
		HashChunks:      cfg.HashChunks,
		OfflineWait:     cfg.OfflineWait,
	}
}

// MergeHandle observes one running merge job.
type MergeHandle struct {
	job *merge.Job
}

// ID returns the client-side merge job id.
func (m *MergeHandle) ID() string { return m.job.ID() }

// MergeSessionID returns the backend merge session id, empty until merge
// initiation succeeds.
func (m *MergeHandle) MergeSessionID() string { return m.job.MergeSessionID() }

// Events returns the job's progress stream. Upload-phase events report the
// lower half of the percent range, merge-phase events the upper half; the
// stream ends with exactly one terminal event.
func (m *MergeHandle) Events() <-chan mediatypes.MergeProgress { return m.job.Events() }

// Done closes when the job reaches a terminal state.
func (m *MergeHandle) Done() <-chan struct{} { return m.job.Done() }

// Cancel aborts the job: input uploads stop and the merge is no longer
// observed locally. The backend merge itself is not revoked.
func (m *MergeHandle) Cancel() { m.job.Cancel() }

// Snapshot returns the job's current state.
func (m *MergeHandle) Snapshot() mediatypes.MergeJob { return m.job.Snapshot() }

// Wait blocks until the job reaches a terminal state and returns its
// outcome.
func (m *MergeHandle) Wait(ctx context.Context) (*mediatypes.MergeResult, error) {
	return m.job.Wait(ctx)
}

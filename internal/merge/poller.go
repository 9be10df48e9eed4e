package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mediaerrors "github.com/kingkw1/2Truths-1Lie-sub004/errors"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/mediaapi"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/retry"
	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

// PollOptions tunes one polling run. Zero fields fall back to the poller's
// defaults.
type PollOptions struct {
	// Interval is the base delay between status fetches.
	Interval time.Duration

	// MaxInterval caps the interval growth while fetches fail transiently.
	MaxInterval time.Duration

	// Timeout bounds the whole polling run; exceeding it fails the job.
	Timeout time.Duration

	// AssumedMergeDuration feeds the time estimate while the backend has not
	// yet reported merge progress.
	AssumedMergeDuration time.Duration
}

func (o PollOptions) withDefaults(d PollOptions) PollOptions {
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = d.MaxInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.AssumedMergeDuration <= 0 {
		o.AssumedMergeDuration = d.AssumedMergeDuration
	}
	return o
}

// PollerConfig carries the poller's collaborators and defaults.
type PollerConfig struct {
	// API is the backend status endpoint.
	API mediaapi.API

	// Defaults fill zero fields of per-run options.
	Defaults PollOptions

	// Logger receives polling lifecycle logs.
	Logger *slog.Logger
}

// Poller tracks asynchronous merges by polling the backend status endpoint
// and normalizing each report into the job's progress stream.
type Poller struct {
	api      mediaapi.API
	defaults PollOptions
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]*Job
}

// NewPoller creates a merge status poller.
func NewPoller(cfg PollerConfig) *Poller {
	defaults := cfg.Defaults.withDefaults(PollOptions{
		Interval:             mediatypes.DefaultPollInterval,
		MaxInterval:          mediatypes.DefaultPollMaxInterval,
		Timeout:              mediatypes.DefaultPollTimeout,
		AssumedMergeDuration: mediatypes.DefaultAssumedMergeDuration,
	})
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		api:      cfg.API,
		defaults: defaults,
		logger:   logger,
		active:   make(map[string]*Job),
	}
}

// Watch starts tracking an existing backend merge session and returns the
// job observing it. A merge session already being watched is rejected.
func (p *Poller) Watch(ctx context.Context, mergeSessionID string, opts PollOptions) (*Job, error) {
	const op = "watchMerge"

	if mergeSessionID == "" {
		return nil, mediaerrors.NewError(op, mediaerrors.ErrValidation).
			WithMessage("merge session id cannot be empty")
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := newJob(nil, cancel)
	job.setMergeSessionID(mergeSessionID)

	if err := p.register(mergeSessionID, job); err != nil {
		cancel()
		return nil, err
	}

	go func() {
		defer p.deregister(mergeSessionID)
		p.loop(jobCtx, job, mergeSessionID, opts.withDefaults(p.defaults))
	}()

	return job, nil
}

// Watching reports whether a poll is currently running for the merge
// session.
func (p *Poller) Watching(mergeSessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[mergeSessionID]
	return ok
}

// CancelAll cancels every job currently attached to the poller.
func (p *Poller) CancelAll() {
	p.mu.Lock()
	jobs := make([]*Job, 0, len(p.active))
	for _, job := range p.active {
		jobs = append(jobs, job)
	}
	p.mu.Unlock()
	for _, job := range jobs {
		job.Cancel()
	}
}

// attach runs the polling loop for a job that already exists, blocking until
// the job reaches a terminal state. The submitter calls this from the job's
// own goroutine after asynchronous merge initiation.
func (p *Poller) attach(ctx context.Context, job *Job, mergeSessionID string, opts PollOptions) error {
	if err := p.register(mergeSessionID, job); err != nil {
		return err
	}
	defer p.deregister(mergeSessionID)
	p.loop(ctx, job, mergeSessionID, opts.withDefaults(p.defaults))
	return nil
}

func (p *Poller) register(mergeSessionID string, job *Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.active[mergeSessionID]; exists {
		return mediaerrors.NewError("watchMerge", mediaerrors.ErrValidation).
			WithMessage(fmt.Sprintf("merge session %s is already being watched", mergeSessionID))
	}
	p.active[mergeSessionID] = job
	return nil
}

func (p *Poller) deregister(mergeSessionID string) {
	p.mu.Lock()
	delete(p.active, mergeSessionID)
	p.mu.Unlock()
}

// loop polls the status endpoint until the merge completes, fails, times
// out, or the caller cancels. Transient fetch errors double the interval up
// to the cap; a successful fetch resets it.
func (p *Poller) loop(ctx context.Context, job *Job, mergeSessionID string, opts PollOptions) {
	const op = "mergeStatus"

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	interval := opts.Interval

	for {
		status, err := p.api.MergeStatus(ctx, mergeSessionID)
		switch {
		case err == nil:
			interval = opts.Interval
			prog := Normalize(status, opts.AssumedMergeDuration)
			switch prog.Stage {
			case mediatypes.MergeCompleted:
				result := p.completedResult(job, mergeSessionID, status)
				p.logger.Info("merge completed",
					"merge_session_id", mergeSessionID, "url", result.MergedVideoURL)
				job.finish(mediatypes.MergeCompleted, result, nil)
				return
			case mediatypes.MergeFailed:
				job.finish(mediatypes.MergeFailed, nil,
					mediaerrors.NewError(op, mediaerrors.ErrServer).
						WithSession(mergeSessionID).
						WithMessage("backend reported merge failure"))
				return
			default:
				job.publish(prog)
			}

		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			job.finish(mediatypes.MergeFailed, nil, p.timeoutErr(mergeSessionID, opts.Timeout))
			return

		case mediaerrors.IsCancelled(err):
			job.finish(mediatypes.MergeCancelled, nil, err)
			return

		case !mediaerrors.IsRetryable(err):
			// A missing or rejected merge session will not recover.
			job.finish(mediatypes.MergeFailed, nil, err)
			return

		default:
			interval *= 2
			if interval > opts.MaxInterval {
				interval = opts.MaxInterval
			}
			p.logger.Warn("merge status fetch failed, backing off",
				"merge_session_id", mergeSessionID, "interval", interval, "error", err)
		}

		if err := retry.Sleep(ctx, interval); err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				job.finish(mediatypes.MergeFailed, nil, p.timeoutErr(mergeSessionID, opts.Timeout))
				return
			}
			job.finish(mediatypes.MergeCancelled, nil,
				mediaerrors.FromTransport(op, err).WithSession(mergeSessionID))
			return
		}
	}
}

func (p *Poller) timeoutErr(mergeSessionID string, timeout time.Duration) error {
	return mediaerrors.NewError("mergeStatus", mediaerrors.ErrTimeout).
		WithSession(mergeSessionID).
		WithMessage(fmt.Sprintf("merge did not complete within %s", timeout))
}

// completedResult assembles the terminal result from the final status
// report.
func (p *Poller) completedResult(job *Job, mergeSessionID string, status *mediaapi.MergeStatusOutput) *mediatypes.MergeResult {
	result := &mediatypes.MergeResult{
		JobID:          job.id,
		MergeSessionID: mergeSessionID,
		MergedVideoURL: status.MergedVideoURL,
		MediaIDs:       job.Snapshot().MediaIDs,
	}
	if status.MergedVideoMetadata != nil {
		result.Segments = segmentsFromAPI(status.MergedVideoMetadata.SegmentMetadata)
	}
	return result
}

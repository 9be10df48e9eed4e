package merge

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	mediaerrors "github.com/kingkw1/2Truths-1Lie-sub004/errors"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/mediaapi"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/retry"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/session"
	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

// initiateAttempts bounds how many times merge initiation is tried when the
// failure is transient.
const initiateAttempts = 3

// SubmitterConfig carries the submitter's collaborators.
type SubmitterConfig struct {
	// API is the backend merge initiation is sent to.
	API mediaapi.API

	// Sessions runs the per-file uploads.
	Sessions *session.Manager

	// Backoff schedules delays between merge initiation retries. It should
	// carry the tighter merge delay cap.
	Backoff *retry.Backoff

	// Poller tracks asynchronous merges after initiation.
	Poller *Poller

	// Concurrency bounds how many input files upload at once.
	Concurrency int

	// ExpectedCount is the exact number of input files a submission must
	// carry.
	ExpectedCount int

	// Logger receives job lifecycle logs.
	Logger *slog.Logger
}

// SubmitRequest describes one merge submission.
type SubmitRequest struct {
	// Files are the input clips in statement order.
	Files []mediatypes.MergeFile

	// Concurrency overrides the configured upload bound when positive.
	Concurrency int

	// ExpectedCount overrides the configured input count when positive.
	ExpectedCount int

	// DegradedFallback completes the job locally with synthesized segment
	// timings when merge initiation fails for a transient reason. Off by
	// default; degraded completions carry no merged video URL.
	DegradedFallback bool

	// Upload is the template for per-file upload behavior. Path and
	// Filename are taken from Files; offline queueing is disabled because a
	// merge submission fails or succeeds as a unit.
	Upload session.Request

	// Poll tunes the status poller for the asynchronous merge phase.
	Poll PollOptions
}

// Submitter coordinates the upload of all merge inputs and hands completed
// submissions to the backend.
type Submitter struct {
	api         mediaapi.API
	sessions    *session.Manager
	backoff     *retry.Backoff
	poller      *Poller
	concurrency int
	expected    int
	logger      *slog.Logger
}

// NewSubmitter creates a merge submitter.
func NewSubmitter(cfg SubmitterConfig) *Submitter {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = mediatypes.DefaultConcurrency
	}
	expected := cfg.ExpectedCount
	if expected <= 0 {
		expected = mediatypes.DefaultMergeCount
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		api:         cfg.API,
		sessions:    cfg.Sessions,
		backoff:     cfg.Backoff,
		poller:      cfg.Poller,
		concurrency: concurrency,
		expected:    expected,
		logger:      logger,
	}
}

// Submit validates the input set and launches the merge job on its own
// goroutine. A wrong file count fails fast before any upload or network
// call.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	const op = "submitForMerge"

	expected := req.ExpectedCount
	if expected <= 0 {
		expected = s.expected
	}
	if len(req.Files) != expected {
		return nil, mediaerrors.NewError(op, mediaerrors.ErrValidation).
			WithMessage(fmt.Sprintf("expected exactly %d files, got %d", expected, len(req.Files)))
	}

	files := make([]mediatypes.MergeFile, len(req.Files))
	copy(files, req.Files)
	for i := range files {
		if files[i].Path == "" {
			return nil, mediaerrors.NewError(op, mediaerrors.ErrValidation).
				WithMessage(fmt.Sprintf("file %d has no path", i))
		}
		if files[i].Filename == "" {
			files[i].Filename = path.Base(files[i].Path)
		}
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := newJob(files, cancel)

	s.logger.Info("merge job started",
		"job_id", job.id,
		"files", len(files),
		"concurrency", s.resolveConcurrency(req.Concurrency),
	)

	go s.run(jobCtx, job, req)

	return job, nil
}

func (s *Submitter) resolveConcurrency(override int) int {
	if override > 0 {
		return override
	}
	return s.concurrency
}

// run drives a job to a terminal state: bounded-parallel uploads, merge
// initiation, then either synchronous completion or the polling phase.
func (s *Submitter) run(ctx context.Context, job *Job, req SubmitRequest) {
	job.publish(mediatypes.MergeProgress{
		Stage: mediatypes.MergePending,
		Step:  "uploading",
	})

	results, err := s.uploadAll(ctx, job, req)
	if err != nil {
		if ctx.Err() != nil || mediaerrors.IsCancelled(err) {
			job.finish(mediatypes.MergeCancelled, nil, err)
			return
		}
		s.logger.Warn("merge input upload failed", "job_id", job.id, "error", err)
		job.finish(mediatypes.MergeFailed, nil, err)
		return
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.MediaID
	}
	job.setMediaIDs(ids)
	job.publish(mediatypes.MergeProgress{
		Stage:   mediatypes.MergeProcessing,
		Percent: 50,
		Step:    "initiating merge",
	})

	out, err := s.initiate(ctx, job, ids)
	if err != nil {
		switch {
		case mediaerrors.IsCancelled(err):
			job.finish(mediatypes.MergeCancelled, nil, err)
		case req.DegradedFallback && mediaerrors.IsRetryable(err):
			s.logger.Warn("merge initiation failed, completing in degraded mode",
				"job_id", job.id, "error", err)
			job.finish(mediatypes.MergeCompleted, degradedResult(job, ids), nil)
		default:
			job.finish(mediatypes.MergeFailed, nil, err)
		}
		return
	}

	job.setMergeSessionID(out.MergeSessionID)

	if out.SyncComplete() {
		// The backend merged inline; no polling phase.
		job.finish(mediatypes.MergeCompleted, &mediatypes.MergeResult{
			JobID:          job.id,
			MergeSessionID: out.MergeSessionID,
			MergedVideoURL: out.MergedVideoURL,
			Segments:       segmentsFromAPI(out.SegmentMetadata),
			MediaIDs:       ids,
		}, nil)
		return
	}

	job.publish(mediatypes.MergeProgress{
		Stage:   mediatypes.MergeProcessing,
		Percent: 50,
		Step:    "waiting for merge",
	})
	if err := s.poller.attach(ctx, job, out.MergeSessionID, req.Poll); err != nil {
		job.finish(mediatypes.MergeFailed, nil, err)
	}
}

// uploadAll uploads every input with at most the configured number in
// flight. The first terminal failure cancels the siblings; results come back
// in input order.
func (s *Submitter) uploadAll(
	ctx context.Context,
	job *Job,
	req SubmitRequest,
) ([]*mediatypes.UploadResult, error) {
	n := len(job.files)
	concurrency := s.resolveConcurrency(req.Concurrency)

	uploadCtx, cancelUploads := context.WithCancel(ctx)
	defer cancelUploads()

	sem := make(chan struct{}, concurrency)
	results := make([]*mediatypes.UploadResult, n)
	fractions := make([]float64, n)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	record := func(err error) {
		mu.Lock()
		if firstErr == nil || (mediaerrors.IsCancelled(firstErr) && !mediaerrors.IsCancelled(err)) {
			firstErr = err
		}
		mu.Unlock()
	}

	for i := range job.files {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-uploadCtx.Done():
				record(mediaerrors.FromTransport("upload", uploadCtx.Err()))
				return
			}
			defer func() { <-sem }()

			file := job.files[idx]
			upReq := req.Upload
			upReq.Path = file.Path
			upReq.Filename = file.Filename
			upReq.QueueOnOffline = false

			handle, err := s.sessions.Start(uploadCtx, upReq)
			if err != nil {
				record(err)
				cancelUploads()
				return
			}

			for ev := range handle.Events() {
				mu.Lock()
				fractions[idx] = ev.Percent / 100
				var sum float64
				for _, f := range fractions {
					sum += f
				}
				overall := sum / float64(n) * 50
				mu.Unlock()
				job.publish(mediatypes.MergeProgress{
					Stage:   mediatypes.MergePending,
					Percent: overall,
					Step:    "uploading",
				})
			}

			result, err := handle.Wait(uploadCtx)
			if err != nil {
				record(err)
				cancelUploads()
				return
			}
			mu.Lock()
			results[idx] = result
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// initiate submits the ordered media identifiers for merging, retrying
// transient failures a bounded number of times.
func (s *Submitter) initiate(ctx context.Context, job *Job, ids []string) (*mediaapi.InitiateMergeOutput, error) {
	const op = "initiateMerge"

	videos := make([]mediaapi.MergeVideo, len(job.files))
	for i, f := range job.files {
		videos[i] = mediaapi.MergeVideo{
			MediaID:         ids[i],
			StatementIndex:  f.StatementIndex,
			DurationSeconds: f.Duration.Seconds(),
			Filename:        f.Filename,
		}
	}
	in := &mediaapi.InitiateMergeInput{JobID: job.id, Videos: videos}

	for attempt := 1; ; attempt++ {
		out, err := s.api.InitiateMerge(ctx, in)
		if err == nil {
			return out, nil
		}
		if mediaerrors.IsCancelled(err) || !mediaerrors.IsRetryable(err) || attempt == initiateAttempts {
			return nil, err
		}
		s.logger.Warn("merge initiation failed, retrying",
			"job_id", job.id, "attempt", attempt, "error", err)
		if werr := retry.Sleep(ctx, s.backoff.Delay(attempt)); werr != nil {
			return nil, mediaerrors.FromTransport(op, werr)
		}
	}
}

// degradedResult synthesizes a local completion from the known clip
// durations. Segment offsets are cumulative in statement order.
func degradedResult(job *Job, ids []string) *mediatypes.MergeResult {
	segments := make([]mediatypes.SegmentTiming, len(job.files))
	var offset time.Duration
	for i, f := range job.files {
		segments[i] = mediatypes.SegmentTiming{
			StatementIndex: f.StatementIndex,
			Start:          offset,
			End:            offset + f.Duration,
		}
		offset += f.Duration
	}
	return &mediatypes.MergeResult{
		JobID:    job.id,
		Segments: segments,
		MediaIDs: ids,
		Degraded: true,
	}
}

func segmentsFromAPI(in []mediaapi.SegmentMetadata) []mediatypes.SegmentTiming {
	out := make([]mediatypes.SegmentTiming, len(in))
	for i, seg := range in {
		out[i] = mediatypes.SegmentTiming{
			StatementIndex: seg.StatementIndex,
			Start:          time.Duration(seg.StartTime * float64(time.Second)),
			End:            time.Duration(seg.EndTime * float64(time.Second)),
		}
	}
	return out
}

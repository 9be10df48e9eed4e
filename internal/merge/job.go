package merge

import (
	"context"
	"sync"

	"github.com/google/uuid"

	mediaerrors "github.com/kingkw1/2Truths-1Lie-sub004/errors"
	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

// eventBuffer sizes each job's progress channel. Incremental events may be
// dropped when the consumer lags; the terminal event is always delivered.
const eventBuffer = 64

// Job tracks one merge submission end to end. The coordinating goroutine is
// the only writer after creation; mu guards the fields shared with
// snapshots.
type Job struct {
	id    string
	files []mediatypes.MergeFile

	events   chan mediatypes.MergeProgress
	done     chan struct{}
	cancel   func()
	terminal sync.Once

	mu             sync.Mutex
	stage          mediatypes.MergeStage
	percent        float64
	mediaIDs       []string
	mergeSessionID string
	result         *mediatypes.MergeResult
	err            error
}

func newJob(files []mediatypes.MergeFile, cancel context.CancelFunc) *Job {
	return &Job{
		id:     uuid.NewString(),
		files:  files,
		events: make(chan mediatypes.MergeProgress, eventBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
		stage:  mediatypes.MergePending,
	}
}

// ID returns the local job identifier.
func (j *Job) ID() string { return j.id }

// Events returns the progress stream. The channel delivers incremental
// snapshots and closes after exactly one terminal event.
func (j *Job) Events() <-chan mediatypes.MergeProgress { return j.events }

// Done returns a channel that closes once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel stops the job locally. In-flight uploads are aborted; server-side
// merge work, if already initiated, continues unobserved.
func (j *Job) Cancel() { j.cancel() }

// MergeSessionID returns the backend merge session identifier, empty until
// merge initiation succeeds.
func (j *Job) MergeSessionID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.mergeSessionID
}

// Snapshot returns a copy of the job's current state.
func (j *Job) Snapshot() mediatypes.MergeJob {
	j.mu.Lock()
	defer j.mu.Unlock()
	files := make([]mediatypes.MergeFile, len(j.files))
	copy(files, j.files)
	ids := make([]string, len(j.mediaIDs))
	copy(ids, j.mediaIDs)
	return mediatypes.MergeJob{
		ID:             j.id,
		Stage:          j.stage,
		Percent:        j.percent,
		Files:          files,
		MediaIDs:       ids,
		MergeSessionID: j.mergeSessionID,
		Result:         j.result,
	}
}

// Wait blocks until the job finishes and returns its outcome.
func (j *Job) Wait(ctx context.Context) (*mediatypes.MergeResult, error) {
	select {
	case <-ctx.Done():
		return nil, mediaerrors.FromTransport("merge", ctx.Err())
	case <-j.done:
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

func (j *Job) setMediaIDs(ids []string) {
	j.mu.Lock()
	j.mediaIDs = ids
	j.mu.Unlock()
}

func (j *Job) setMergeSessionID(id string) {
	j.mu.Lock()
	j.mergeSessionID = id
	j.mu.Unlock()
}

// publish emits an incremental progress event without blocking. The percent
// is clamped so the two-phase bar never moves backwards even when the server
// report regresses.
func (j *Job) publish(ev mediatypes.MergeProgress) {
	j.mu.Lock()
	if ev.Percent < j.percent {
		ev.Percent = j.percent
	}
	j.stage = ev.Stage
	j.percent = ev.Percent
	ev.JobID = j.id
	j.mu.Unlock()

	select {
	case j.events <- ev:
	default:
	}
}

// finish moves the job to a terminal stage, delivers exactly one terminal
// event, and closes the stream. Only the first call wins.
func (j *Job) finish(stage mediatypes.MergeStage, result *mediatypes.MergeResult, err error) {
	j.terminal.Do(func() {
		j.mu.Lock()
		j.stage = stage
		if stage == mediatypes.MergeCompleted {
			j.percent = 100
		}
		j.result = result
		j.err = err
		ev := mediatypes.MergeProgress{
			JobID:   j.id,
			Stage:   stage,
			Percent: j.percent,
			Step:    string(stage),
			Result:  result,
			Err:     err,
		}
		j.mu.Unlock()

		// The coordinating goroutine is the sole sender, so freeing one
		// buffered slot cannot race with another producer.
		select {
		case j.events <- ev:
		default:
			select {
			case <-j.events:
			default:
			}
			j.events <- ev
		}
		close(j.events)
		close(j.done)
	})
}

package session

import (
	"context"
	"sync"
	"time"

	mediaerrors "github.com/kingkw1/2Truths-1Lie-sub004/errors"
	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

// eventBuffer sizes each session's progress channel. Incremental events may
// be dropped when the consumer lags; the terminal event is always delivered.
const eventBuffer = 64

// Request describes a single upload to execute.
type Request struct {
	// Path is the local filesystem path of the media file.
	Path string

	// Filename is the name reported to the backend. Defaults to the base
	// name of Path.
	Filename string

	// ContentType is the MIME type sent with each chunk. Empty means detect
	// it from the file content.
	ContentType string

	// ChunkSize overrides the planned chunk size when positive.
	ChunkSize int64

	// RetriesPerChunk overrides the planned retry budget when positive.
	RetriesPerChunk int

	// HashChunks enables per-chunk SHA-256 digests.
	HashChunks bool

	// QueueOnOffline hands the request to the offline queue instead of
	// waiting when the device has no connectivity.
	QueueOnOffline bool

	// OfflineWait bounds how long the session blocks waiting for
	// connectivity when queueing is not available.
	OfflineWait time.Duration

	// Resumed marks a request replayed from the offline queue.
	Resumed bool
}

// session tracks one upload through its lifecycle. The run goroutine is the
// only writer after Start; mu guards the fields it shares with snapshots.
type session struct {
	id          string
	req         Request
	contentType string
	totalSize   int64
	chunkSize   int64
	retries     int

	events   chan mediatypes.UploadProgress
	done     chan struct{}
	cancel   func()
	terminal sync.Once

	mu        sync.Mutex
	state     mediatypes.SessionState
	chunks    []mediatypes.UploadChunk
	uploaded  int
	sent      int64
	startedAt time.Time
	network   mediatypes.NetworkState
	result    *mediatypes.UploadResult
	err       error
}

// snapshot returns a copy of the current session state.
func (s *session) snapshot() mediatypes.UploadSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunks := make([]mediatypes.UploadChunk, len(s.chunks))
	copy(chunks, s.chunks)
	return mediatypes.UploadSession{
		ID:               s.id,
		Path:             s.req.Path,
		Filename:         s.req.Filename,
		TotalSize:        s.totalSize,
		ChunkSize:        s.chunkSize,
		Chunks:           chunks,
		BytesTransferred: s.sent,
		StartedAt:        s.startedAt,
		Network:          s.network,
		Resumed:          s.req.Resumed,
		State:            s.state,
	}
}

// progressLocked builds a progress snapshot. Callers hold s.mu.
func (s *session) progressLocked(stage string) mediatypes.UploadProgress {
	ev := mediatypes.UploadProgress{
		SessionID:        s.id,
		State:            s.state,
		Stage:            stage,
		BytesTransferred: s.sent,
		TotalBytes:       s.totalSize,
		ChunksUploaded:   s.uploaded,
		ChunkCount:       len(s.chunks),
	}
	if s.totalSize > 0 {
		ev.Percent = float64(s.sent) / float64(s.totalSize) * 100
	}
	// Throughput is cumulative bytes over elapsed wall time, which smooths
	// out per-chunk rate spikes.
	elapsed := time.Since(s.startedAt).Seconds()
	if elapsed > 0 && s.sent > 0 {
		ev.Throughput = float64(s.sent) / elapsed
		remaining := s.totalSize - s.sent
		ev.ETA = time.Duration(float64(remaining) / ev.Throughput * float64(time.Second))
	}
	return ev
}

// emit publishes an incremental progress event without blocking. Events are
// dropped when the consumer falls behind; the terminal event is not sent
// through this path.
func (s *session) emit(ev mediatypes.UploadProgress) {
	select {
	case s.events <- ev:
	default:
	}
}

// emitStage records a state transition and publishes it.
func (s *session) emitStage(state mediatypes.SessionState, stage string) {
	s.mu.Lock()
	s.state = state
	ev := s.progressLocked(stage)
	s.mu.Unlock()
	s.emit(ev)
}

// markChunkUploaded records a successful chunk transfer and publishes the
// updated progress.
func (s *session) markChunkUploaded(index int, hash string) {
	s.mu.Lock()
	s.chunks[index].Uploaded = true
	s.chunks[index].Hash = hash
	s.sent += s.chunks[index].Size()
	s.uploaded++
	ev := s.progressLocked("uploading")
	s.mu.Unlock()
	s.emit(ev)
}

// markChunkRetry counts a failed attempt against the chunk's budget.
func (s *session) markChunkRetry(index int) {
	s.mu.Lock()
	s.chunks[index].Retries++
	ev := s.progressLocked("retrying")
	s.mu.Unlock()
	s.emit(ev)
}

// finish moves the session to a terminal state, delivers exactly one
// terminal event, and closes the stream. Safe to call more than once; only
// the first call wins.
func (s *session) finish(state mediatypes.SessionState, stage string, result *mediatypes.UploadResult, err error) {
	s.terminal.Do(func() {
		s.mu.Lock()
		s.state = state
		s.result = result
		s.err = err
		ev := s.progressLocked(stage)
		ev.Result = result
		ev.Err = err
		s.mu.Unlock()

		// The run goroutine is the sole sender, so making room by dropping
		// one buffered event cannot race with another producer.
		select {
		case s.events <- ev:
		default:
			select {
			case <-s.events:
			default:
			}
			s.events <- ev
		}
		close(s.events)
		close(s.done)
	})
}

// Handle exposes a running upload session to callers.
type Handle struct {
	s *session
}

// ID returns the session identifier.
func (h *Handle) ID() string { return h.s.id }

// Events returns the progress stream. The channel delivers incremental
// snapshots and closes after exactly one terminal event.
func (h *Handle) Events() <-chan mediatypes.UploadProgress { return h.s.events }

// Done returns a channel that closes once the session reaches a terminal
// state.
func (h *Handle) Done() <-chan struct{} { return h.s.done }

// Cancel aborts the session. The in-flight transfer stops at the next
// network boundary; already-uploaded chunks are not rolled back.
func (h *Handle) Cancel() { h.s.cancel() }

// Snapshot returns a copy of the current session state.
func (h *Handle) Snapshot() mediatypes.UploadSession { return h.s.snapshot() }

// Wait blocks until the session finishes and returns its outcome.
func (h *Handle) Wait(ctx context.Context) (*mediatypes.UploadResult, error) {
	select {
	case <-ctx.Done():
		return nil, mediaerrors.FromTransport("upload", ctx.Err())
	case <-h.s.done:
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.result, h.s.err
}

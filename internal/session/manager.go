package session

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/input-output-hk/catalyst-forge-libs/fs"

	mediaerrors "github.com/kingkw1/2Truths-1Lie-sub004/errors"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/mediaapi"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/netmon"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/planner"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/retry"
	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

// DefaultContentType is sent when content detection cannot identify the file.
const DefaultContentType = "application/octet-stream"

// Config carries the manager's collaborators.
type Config struct {
	// API is the backend the manager uploads through.
	API mediaapi.API

	// FS is the filesystem media files are read from.
	FS fs.Filesystem

	// Monitor supplies connectivity state for planning and offline gating.
	Monitor mediatypes.NetworkMonitor

	// Backoff schedules delays between chunk retry attempts.
	Backoff *retry.Backoff

	// Enqueue hands a request to the offline queue. Nil disables queueing
	// even when a request asks for it.
	Enqueue func(ctx context.Context, req Request) error

	// OfflineWait is the default bounded wait for connectivity when a
	// request does not set its own.
	OfflineWait time.Duration

	// Logger receives structured session lifecycle logs.
	Logger *slog.Logger
}

// Manager owns all active upload sessions and runs each one on its own
// goroutine.
type Manager struct {
	api         mediaapi.API
	fsys        fs.Filesystem
	monitor     mediatypes.NetworkMonitor
	backoff     *retry.Backoff
	enqueue     func(ctx context.Context, req Request) error
	offlineWait time.Duration
	logger      *slog.Logger

	mu     sync.RWMutex
	active map[string]*session
}

// New creates a session manager.
func New(cfg Config) *Manager {
	wait := cfg.OfflineWait
	if wait <= 0 {
		wait = mediatypes.DefaultOfflineWait
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		api:         cfg.API,
		fsys:        cfg.FS,
		monitor:     cfg.Monitor,
		backoff:     cfg.Backoff,
		enqueue:     cfg.Enqueue,
		offlineWait: wait,
		logger:      logger,
		active:      make(map[string]*session),
	}
}

// Start validates the request, plans the chunk list, and launches the upload
// on its own goroutine. Validation failures are returned synchronously and
// produce no session.
func (m *Manager) Start(ctx context.Context, req Request) (*Handle, error) {
	const op = "upload"

	if req.Path == "" {
		return nil, mediaerrors.NewError(op, mediaerrors.ErrValidation).
			WithMessage("path cannot be empty")
	}

	info, err := m.fsys.Stat(req.Path)
	if err != nil {
		return nil, mediaerrors.NewPathError(op, req.Path,
			fmt.Errorf("%w: %w", mediaerrors.ErrStorage, err))
	}
	if info.IsDir() {
		return nil, mediaerrors.NewPathError(op, req.Path, mediaerrors.ErrValidation).
			WithMessage("path points to a directory, not a file")
	}
	if info.Size() == 0 {
		return nil, mediaerrors.NewPathError(op, req.Path, mediaerrors.ErrValidation).
			WithMessage("file is empty")
	}

	if req.Filename == "" {
		req.Filename = path.Base(req.Path)
	}
	if req.ContentType == "" {
		req.ContentType = m.detectContentType(req.Path)
	}
	if req.OfflineWait <= 0 {
		req.OfflineWait = m.offlineWait
	}

	network := m.monitor.Current()
	plan := planner.PlanFor(network.Quality)
	if req.ChunkSize > 0 {
		plan.ChunkSize = req.ChunkSize
	}
	if req.RetriesPerChunk > 0 {
		plan.RetriesPerChunk = req.RetriesPerChunk
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{
		id:          uuid.NewString(),
		req:         req,
		contentType: req.ContentType,
		totalSize:   info.Size(),
		chunkSize:   plan.ChunkSize,
		retries:     plan.RetriesPerChunk,
		events:      make(chan mediatypes.UploadProgress, eventBuffer),
		done:        make(chan struct{}),
		cancel:      cancel,
		state:       mediatypes.SessionCreated,
		chunks:      planner.Chunks(info.Size(), plan.ChunkSize),
		startedAt:   time.Now(),
		network:     network,
	}

	m.mu.Lock()
	m.active[s.id] = s
	m.mu.Unlock()

	m.logger.Info("upload session started",
		"session_id", s.id,
		"path", req.Path,
		"size", s.totalSize,
		"chunks", len(s.chunks),
		"chunk_size", s.chunkSize,
		"quality", string(network.Quality),
		"resumed", req.Resumed,
	)

	go m.run(runCtx, s)

	return &Handle{s: s}, nil
}

// Get returns a snapshot of the identified session.
func (m *Manager) Get(id string) (mediatypes.UploadSession, bool) {
	m.mu.RLock()
	s, ok := m.active[id]
	m.mu.RUnlock()
	if !ok {
		return mediatypes.UploadSession{}, false
	}
	return s.snapshot(), true
}

// Sessions returns snapshots of every session still tracked by the manager.
func (m *Manager) Sessions() []mediatypes.UploadSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]mediatypes.UploadSession, 0, len(m.active))
	for _, s := range m.active {
		out = append(out, s.snapshot())
	}
	return out
}

// Cancel aborts the identified session. It reports false when no session with
// that id is active.
func (m *Manager) Cancel(id string) bool {
	m.mu.RLock()
	s, ok := m.active[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	s.cancel()
	return true
}

// Len reports how many sessions are currently active.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// run executes the session to a terminal state.
func (m *Manager) run(ctx context.Context, s *session) {
	defer func() {
		m.mu.Lock()
		delete(m.active, s.id)
		m.mu.Unlock()
	}()
	defer s.cancel()

	const op = "upload"

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.emitStage(mediatypes.SessionUploading, "uploading")

	file, err := m.fsys.Open(s.req.Path)
	if err != nil {
		s.finish(mediatypes.SessionFailed, "failed", nil,
			mediaerrors.NewPathError(op, s.req.Path,
				fmt.Errorf("%w: %w", mediaerrors.ErrStorage, err)).
				WithSession(s.id))
		return
	}
	defer file.Close()

	// One chunk-sized buffer serves every attempt; chunk ceilings keep it
	// at most a couple of MiB.
	buf := make([]byte, s.chunkSize)

	for i := range s.chunks {
		if err := m.uploadChunk(ctx, s, file, i, buf); err != nil {
			return
		}
	}

	m.finalize(ctx, s)
}

// uploadChunk transfers one chunk, honoring the offline gate and the retry
// budget. A non-nil return means the session already reached a terminal
// state.
func (m *Manager) uploadChunk(ctx context.Context, s *session, file fs.File, index int, buf []byte) error {
	const op = "upload"
	chunk := s.chunks[index]
	size := chunk.Size()

	// The budget counts re-attempts, so a chunk is tried at most 1+retries
	// times.
	for attempt := 1; attempt <= s.retries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			s.finish(mediatypes.SessionCancelled, "cancelled", nil,
				mediaerrors.FromTransport(op, err).WithSession(s.id))
			return err
		}

		if err := m.gateOffline(ctx, s); err != nil {
			return err
		}

		n, err := file.ReadAt(buf[:size], chunk.Start)
		if err != nil && err != io.EOF {
			err = mediaerrors.NewPathError(op, s.req.Path,
				fmt.Errorf("%w: %w", mediaerrors.ErrStorage, err)).
				WithSession(s.id)
			s.finish(mediatypes.SessionFailed, "failed", nil, err)
			return err
		}
		if int64(n) != size {
			err = mediaerrors.NewPathError(op, s.req.Path, mediaerrors.ErrStorage).
				WithSession(s.id).
				WithMessage(fmt.Sprintf("chunk %d: short read, file changed during upload", index))
			s.finish(mediatypes.SessionFailed, "failed", nil, err)
			return err
		}

		var hash string
		if s.req.HashChunks {
			sum := sha256.Sum256(buf[:n])
			hash = hex.EncodeToString(sum[:])
		}

		err = m.api.UploadChunk(ctx, &mediaapi.UploadChunkInput{
			SessionID:   s.id,
			Filename:    s.req.Filename,
			ChunkIndex:  index,
			TotalChunks: len(s.chunks),
			ChunkHash:   hash,
			ContentType: s.contentType,
			Body:        bytes.NewReader(buf[:n]),
			Size:        int64(n),
		})
		if err == nil {
			s.markChunkUploaded(index, hash)
			return nil
		}

		if mediaerrors.IsCancelled(err) {
			s.finish(mediatypes.SessionCancelled, "cancelled", nil, err)
			return err
		}
		if !mediaerrors.IsRetryable(err) {
			s.finish(mediatypes.SessionFailed, "failed", nil, err)
			return err
		}
		if attempt == s.retries+1 {
			err = mediaerrors.NewSessionError(op, s.id,
				fmt.Errorf("chunk %d failed after %d attempts: %w", index, attempt, err))
			s.finish(mediatypes.SessionFailed, "failed", nil, err)
			return err
		}

		s.markChunkRetry(index)
		delay := m.backoff.Delay(attempt)
		m.logger.Warn("chunk upload failed, retrying",
			"session_id", s.id,
			"chunk", index,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := retry.Sleep(ctx, delay); err != nil {
			s.finish(mediatypes.SessionCancelled, "cancelled", nil,
				mediaerrors.FromTransport(op, err).WithSession(s.id))
			return err
		}
	}
	return nil
}

// gateOffline enforces the pre-attempt connectivity check. When offline it
// either hands the request to the queue or blocks for a bounded wait. A
// non-nil return means the session already reached a terminal state.
func (m *Manager) gateOffline(ctx context.Context, s *session) error {
	if m.monitor == nil || m.monitor.Online() {
		return nil
	}

	const op = "upload"

	if s.req.QueueOnOffline && m.enqueue != nil {
		queued := s.req
		queued.Resumed = false
		if err := m.enqueue(ctx, queued); err == nil {
			m.logger.Info("device offline, upload queued",
				"session_id", s.id, "path", s.req.Path)
			err := mediaerrors.NewSessionError(op, s.id, mediaerrors.ErrQueued)
			s.finish(mediatypes.SessionCancelled, "queued", nil, err)
			return err
		}
		m.logger.Warn("offline enqueue failed, waiting for connectivity",
			"session_id", s.id, "path", s.req.Path)
	}

	if err := netmon.WaitOnline(ctx, m.monitor, s.req.OfflineWait); err != nil {
		state := mediatypes.SessionFailed
		stage := "failed"
		if mediaerrors.IsCancelled(err) {
			state = mediatypes.SessionCancelled
			stage = "cancelled"
		}
		wrapped := mediaerrors.NewSessionError(op, s.id, err)
		s.finish(state, stage, nil, wrapped)
		return wrapped
	}
	return nil
}

// finalize commits the upload server-side. All chunks succeeding is not
// enough for completion; the backend must acknowledge the assembled file.
func (m *Manager) finalize(ctx context.Context, s *session) {
	const op = "finalizeUpload"

	s.emitStage(mediatypes.SessionUploading, "finalizing")

	var out *mediaapi.FinalizeUploadOutput
	var err error
	for attempt := 1; attempt <= s.retries+1; attempt++ {
		out, err = m.api.FinalizeUpload(ctx, &mediaapi.FinalizeUploadInput{
			SessionID:   s.id,
			Filename:    s.req.Filename,
			TotalChunks: len(s.chunks),
			TotalSize:   s.totalSize,
		})
		if err == nil {
			break
		}
		if mediaerrors.IsCancelled(err) {
			s.finish(mediatypes.SessionCancelled, "cancelled", nil, err)
			return
		}
		if !mediaerrors.IsRetryable(err) || attempt == s.retries+1 {
			s.finish(mediatypes.SessionFailed, "failed", nil, err)
			return
		}
		if werr := retry.Sleep(ctx, m.backoff.Delay(attempt)); werr != nil {
			s.finish(mediatypes.SessionCancelled, "cancelled", nil,
				mediaerrors.FromTransport(op, werr).WithSession(s.id))
			return
		}
	}

	s.mu.Lock()
	result := &mediatypes.UploadResult{
		SessionID:  s.id,
		MediaID:    out.MediaID,
		StorageURL: out.StorageURL,
		Filename:   s.req.Filename,
		Size:       s.totalSize,
		Duration:   time.Since(s.startedAt),
		Resumed:    s.req.Resumed,
	}
	s.mu.Unlock()

	m.logger.Info("upload session completed",
		"session_id", s.id,
		"media_id", result.MediaID,
		"size", result.Size,
		"duration", result.Duration,
	)
	s.finish(mediatypes.SessionCompleted, "completed", result, nil)
}

// detectContentType sniffs the file content where possible, falling back to
// extension-based lookup.
func (m *Manager) detectContentType(name string) string {
	file, err := m.fsys.Open(name)
	if err != nil {
		return detectContentTypeFromExtension(name)
	}
	defer file.Close()

	// Read the first 512 bytes for content detection.
	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	if n > 0 {
		if mt := mimetype.Detect(buf[:n]); mt != nil {
			return mt.String()
		}
	}

	return detectContentTypeFromExtension(name)
}

func detectContentTypeFromExtension(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return DefaultContentType
}

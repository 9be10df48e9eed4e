// Package offline implements the durable offline upload queue: FIFO replay
// with at most one in-flight replay per source file, persisted as a msgpack
// journal so queued uploads survive process restarts.
package offline

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	"github.com/vmihailenco/msgpack/v5"

	mediaerrors "github.com/kingkw1/2Truths-1Lie-sub004/errors"
)

// Entry is one queued upload intent. It carries everything needed to replay
// the upload once connectivity returns.
type Entry struct {
	// ID identifies the queue entry, not the upload session it will become.
	ID string `msgpack:"id"`

	// Path is the local source file path. At most one entry per path is
	// queued and at most one replay per path runs at a time.
	Path string `msgpack:"path"`

	// Filename is the name reported to the backend.
	Filename string `msgpack:"filename"`

	// ContentType is the MIME type sent with each chunk.
	ContentType string `msgpack:"content_type"`

	// ChunkSize is the caller's chunk size override, zero for planned.
	ChunkSize int64 `msgpack:"chunk_size"`

	// RetriesPerChunk is the caller's retry budget override, zero for
	// planned.
	RetriesPerChunk int `msgpack:"retries_per_chunk"`

	// HashChunks preserves the integrity-checking choice across replay.
	HashChunks bool `msgpack:"hash_chunks"`

	// EnqueuedAt records when the upload was deferred.
	EnqueuedAt time.Time `msgpack:"enqueued_at"`
}

// Config carries the queue's collaborators.
type Config struct {
	// FS is the filesystem the journal is written to.
	FS fs.Filesystem

	// JournalPath locates the msgpack journal. Empty disables persistence
	// and the queue holds entries in memory only.
	JournalPath string

	// Logger receives queue lifecycle logs.
	Logger *slog.Logger
}

// DefaultJournalPath returns the per-user state file used when the caller
// does not choose one.
func DefaultJournalPath() string {
	return filepath.Join(xdg.StateHome, "twotruths", "upload-queue.msgpack")
}

// Queue is a FIFO of deferred uploads. All methods are safe for concurrent
// use.
type Queue struct {
	fsys    fs.Filesystem
	journal string
	logger  *slog.Logger

	mu      sync.Mutex
	entries []Entry

	// inflight tracks source paths with a replay currently running.
	inflight sync.Map
}

// New creates the queue and loads any journal left by a previous run. A
// corrupt or unreadable journal is discarded rather than blocking startup.
func New(cfg Config) *Queue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		fsys:    cfg.FS,
		journal: cfg.JournalPath,
		logger:  logger,
	}
	q.load()
	return q
}

// Enqueue records an upload intent. A second intent for a path already
// queued is dropped; the earlier entry keeps its place in line.
func (q *Queue) Enqueue(ctx context.Context, e Entry) error {
	if e.Path == "" {
		return mediaerrors.NewError("enqueue", mediaerrors.ErrValidation).
			WithMessage("entry path cannot be empty")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	for _, existing := range q.entries {
		if existing.Path == e.Path {
			q.mu.Unlock()
			q.logger.Debug("upload already queued", "path", e.Path)
			return nil
		}
	}
	q.entries = append(q.entries, e)
	q.persistLocked()
	q.mu.Unlock()

	q.logger.Info("upload queued for replay", "path", e.Path, "entry_id", e.ID)
	return nil
}

// Drain replays queued entries in FIFO order. Entries are removed on
// successful replay and on permanent failures; entries that fail for
// transient reasons, or that re-queued themselves, stay for the next drain.
// Paths with a replay already running are skipped.
func (q *Queue) Drain(ctx context.Context, replay func(context.Context, Entry) error) {
	for _, e := range q.snapshot() {
		if err := ctx.Err(); err != nil {
			return
		}
		if _, running := q.inflight.LoadOrStore(e.Path, struct{}{}); running {
			q.logger.Debug("replay already in flight, skipping", "path", e.Path)
			continue
		}

		err := replay(ctx, e)
		q.inflight.Delete(e.Path)

		switch {
		case err == nil:
			q.remove(e.ID)
			q.logger.Info("queued upload replayed", "path", e.Path, "entry_id", e.ID)
		case mediaerrors.IsQueued(err):
			q.logger.Debug("replay deferred, still offline", "path", e.Path)
		case mediaerrors.IsRetryable(err) || mediaerrors.IsCancelled(err):
			q.logger.Warn("replay failed, keeping entry", "path", e.Path, "error", err)
		default:
			// Validation, auth, and storage failures will not heal on
			// their own; the entry is dropped.
			q.remove(e.ID)
			q.logger.Warn("replay failed permanently, dropping entry",
				"path", e.Path, "error", err)
		}
	}
}

// Entries returns a copy of the queued entries in replay order.
func (q *Queue) Entries() []Entry {
	return q.snapshot()
}

// Len reports how many uploads are waiting for replay.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *Queue) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.persistLocked()
			return
		}
	}
}

// load restores the journal from a previous run.
func (q *Queue) load() {
	if q.journal == "" || q.fsys == nil {
		return
	}
	data, err := q.fsys.ReadFile(q.journal)
	if err != nil {
		return
	}
	var entries []Entry
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		q.logger.Warn("discarding corrupt offline queue journal",
			"path", q.journal, "error", err)
		return
	}
	q.entries = entries
	if len(entries) > 0 {
		q.logger.Info("restored offline queue journal",
			"path", q.journal, "entries", len(entries))
	}
}

// persistLocked rewrites the journal. Callers hold q.mu. Persistence
// failures are logged and swallowed; the entry stays queued in memory.
func (q *Queue) persistLocked() {
	if q.journal == "" || q.fsys == nil {
		return
	}
	data, err := msgpack.Marshal(q.entries)
	if err != nil {
		q.logger.Warn("encoding offline queue journal failed", "error", err)
		return
	}
	if dir := filepath.Dir(q.journal); dir != "." && dir != "/" {
		if err := q.fsys.MkdirAll(dir, 0o755); err != nil {
			q.logger.Warn("creating journal directory failed",
				"path", dir, "error", err)
			return
		}
	}
	if err := q.fsys.WriteFile(q.journal, data, 0o600); err != nil {
		q.logger.Warn("writing offline queue journal failed",
			"path", q.journal, "error", err)
	}
}

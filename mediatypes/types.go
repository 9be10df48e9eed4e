// Package mediatypes provides shared type definitions for the media
// submission pipeline.
package mediatypes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/fs"
)

// TransportType represents the link type carrying network traffic.
type TransportType string

// Predefined transport types
const (
	TransportWifi     TransportType = "wifi"
	TransportCellular TransportType = "cellular"
	TransportOther    TransportType = "other"
)

// NetworkQuality represents the coarse quality tier of the current link.
type NetworkQuality string

// Predefined network quality tiers, worst to best
const (
	QualityUnknown   NetworkQuality = "unknown"
	QualityPoor      NetworkQuality = "poor"
	QualityFair      NetworkQuality = "fair"
	QualityGood      NetworkQuality = "good"
	QualityExcellent NetworkQuality = "excellent"
)

// NetworkState is a read-only snapshot of the device's connectivity.
// Produced by a NetworkMonitor; consumed by chunk planning and retry policy.
type NetworkState struct {
	// Connected reports whether any link is up
	Connected bool

	// InternetReachable reports whether the internet is reachable over it
	InternetReachable bool

	// Transport is the link type carrying traffic
	Transport TransportType

	// Quality is the coarse throughput tier of the link
	Quality NetworkQuality
}

// Online reports whether the device is connected and the internet reachable.
func (s NetworkState) Online() bool {
	return s.Connected && s.InternetReachable
}

// NetworkMonitor tracks connectivity and publishes change events.
// Implementations must keep Current non-blocking.
type NetworkMonitor interface {
	// Current returns the last known snapshot
	Current() NetworkState

	// Subscribe registers for change events; the returned func unsubscribes
	Subscribe() (<-chan NetworkState, func())

	// Online reports whether the last known snapshot is online
	Online() bool
}

// TokenProvider supplies the bearer token attached to every backend request.
// Token acquisition and refresh are owned by the embedding application.
type TokenProvider interface {
	// Token returns a currently valid bearer token
	Token(ctx context.Context) (string, error)
}

// TokenProviderFunc adapts a plain function to the TokenProvider interface.
type TokenProviderFunc func(ctx context.Context) (string, error)

// Token implements TokenProvider.
func (f TokenProviderFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// SessionState represents the lifecycle state of one upload session.
type SessionState string

// Predefined session states
const (
	SessionCreated   SessionState = "created"
	SessionUploading SessionState = "uploading"
	SessionCompleted SessionState = "completed"
	SessionCancelled SessionState = "cancelled"
	SessionFailed    SessionState = "failed"
)

// Terminal reports whether the state ends the session.
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled || s == SessionFailed
}

// ChunkState represents the transfer state of one chunk within a session.
type ChunkState string

// Predefined chunk states
const (
	ChunkPending      ChunkState = "pending"
	ChunkTransferring ChunkState = "transferring"
	ChunkUploaded     ChunkState = "uploaded"
	ChunkRetryPending ChunkState = "retry_pending"
)

// ChunkPlan is the planner's sizing decision for one upload session.
type ChunkPlan struct {
	// ChunkSize is the byte ceiling for each chunk
	ChunkSize int64

	// RetriesPerChunk is the retry budget for each chunk
	RetriesPerChunk int
}

// UploadChunk is one contiguous byte range of a source file, uploaded as a
// single request. The range is immutable; the status fields are owned by the
// parent session.
type UploadChunk struct {
	// Index is the zero-based position of the chunk
	Index int

	// Start is the offset of the first byte in the range
	Start int64

	// End is the offset of the last byte in the range, inclusive
	End int64

	// Uploaded reports whether the chunk reached the backend
	Uploaded bool

	// Retries is the number of failed attempts so far
	Retries int

	// Hash is the hex SHA-256 of the range, empty when hashing is disabled
	Hash string
}

// Size returns the number of bytes covered by the chunk.
func (c UploadChunk) Size() int64 {
	return c.End - c.Start + 1
}

// UploadSession is a point-in-time snapshot of one file's upload. The live
// session is owned exclusively by the session manager and mutated only by its
// own loop.
type UploadSession struct {
	// ID is the session identifier sent with every chunk
	ID string

	// Path is the local source file path
	Path string

	// Filename is the name reported to the backend
	Filename string

	// TotalSize is the source file size in bytes
	TotalSize int64

	// ChunkSize is the planned chunk byte ceiling
	ChunkSize int64

	// Chunks is the ordered chunk list covering [0, TotalSize)
	Chunks []UploadChunk

	// BytesTransferred is the number of bytes acknowledged so far
	BytesTransferred int64

	// StartedAt is when the session began uploading
	StartedAt time.Time

	// Network is the connectivity snapshot taken at planning time
	Network NetworkState

	// Resumed reports whether the session is an offline-queue replay
	Resumed bool

	// State is the lifecycle state at snapshot time
	State SessionState
}

// UploadProgress is one event in a session's progress stream. Incremental
// events carry byte counts; the single terminal event additionally carries
// Result or Err and is always the last value before the stream closes.
type UploadProgress struct {
	// SessionID identifies the session
	SessionID string

	// State is the session state after the transition
	State SessionState

	// Stage is a short description of the current step
	Stage string

	// BytesTransferred is the number of bytes acknowledged so far
	BytesTransferred int64

	// TotalBytes is the source file size
	TotalBytes int64

	// Percent is BytesTransferred over TotalBytes, in [0,100]
	Percent float64

	// ChunksUploaded is the number of chunks acknowledged so far
	ChunksUploaded int

	// ChunkCount is the planned chunk count
	ChunkCount int

	// Throughput is the smoothed transfer rate in bytes per second
	Throughput float64

	// ETA is the estimated time remaining at the current throughput
	ETA time.Duration

	// Result is set on the terminal event of a completed session
	Result *UploadResult

	// Err is set on the terminal event of a failed or queued session
	Err error
}

// Terminal reports whether this event ends the stream.
func (p UploadProgress) Terminal() bool {
	return p.State.Terminal()
}

// UploadResult contains the outcome of a completed upload.
type UploadResult struct {
	// SessionID is the upload session identifier
	SessionID string

	// MediaID is the backend identifier of the stored media
	MediaID string

	// StorageURL is where the backend stored the media
	StorageURL string

	// Filename is the name the media was uploaded under
	Filename string

	// Size is the uploaded byte count
	Size int64

	// Duration is how long the upload took
	Duration time.Duration

	// Resumed reports whether the upload was an offline-queue replay
	Resumed bool
}

// MergeFile describes one input clip of a merge job.
type MergeFile struct {
	// Path is the local source file path
	Path string

	// StatementIndex is the clip's position in the recorded statements
	StatementIndex int

	// Duration is the clip length
	Duration time.Duration

	// Filename overrides the name reported to the backend; defaults to the
	// base name of Path
	Filename string
}

// SegmentTiming locates one input clip inside the merged video.
type SegmentTiming struct {
	// StatementIndex is the clip's position in the recorded statements
	StatementIndex int

	// Start is the segment start offset in the merged video
	Start time.Duration

	// End is the segment end offset in the merged video
	End time.Duration
}

// MergeStage represents the normalized stage of a merge job.
type MergeStage string

// Predefined merge stages
const (
	MergePending    MergeStage = "pending"
	MergeProcessing MergeStage = "processing"
	MergeCompleted  MergeStage = "completed"
	MergeCancelled  MergeStage = "cancelled"
	MergeFailed     MergeStage = "failed"
)

// Terminal reports whether the stage ends the job.
func (s MergeStage) Terminal() bool {
	return s == MergeCompleted || s == MergeCancelled || s == MergeFailed
}

// MergeResult contains the outcome of a completed merge job.
type MergeResult struct {
	// JobID is the local merge job identifier
	JobID string

	// MergeSessionID is the backend's merge session identifier
	MergeSessionID string

	// MergedVideoURL is where the merged video is served from; empty for a
	// degraded-mode completion
	MergedVideoURL string

	// Segments are the per-clip timings inside the merged video
	Segments []SegmentTiming

	// MediaIDs are the backend identifiers of the uploaded inputs, in order
	MediaIDs []string

	// Degraded reports that merge initiation failed and the job completed
	// locally under the opt-in degraded mode
	Degraded bool
}

// MergeProgress is one event in a merge job's progress stream. It is
// recomputed on every poll tick; during the upload phase it is derived from
// local byte counts. The single terminal event carries Result or Err.
type MergeProgress struct {
	// JobID is the local merge job identifier
	JobID string

	// Stage is the normalized stage
	Stage MergeStage

	// Percent is the continuous two-phase progress: uploads own [0,50),
	// the merge owns [50,100]
	Percent float64

	// Step is a short description of the current step
	Step string

	// ETA is the estimated time remaining, zero when unknown
	ETA time.Duration

	// Result is set on the terminal event of a completed job
	Result *MergeResult

	// Err is set on the terminal event of a failed job
	Err error
}

// Terminal reports whether this event ends the stream.
func (p MergeProgress) Terminal() bool {
	return p.Stage.Terminal()
}

// MergeJob is a point-in-time snapshot of one merge job.
type MergeJob struct {
	// ID is the local job identifier
	ID string

	// Stage is the job's normalized stage at snapshot time
	Stage MergeStage

	// Percent is the continuous two-phase progress reported so far
	Percent float64

	// Files are the ordered input clips
	Files []MergeFile

	// MediaIDs are the uploaded input identifiers, in input order, filled as
	// uploads complete
	MediaIDs []string

	// MergeSessionID is the backend's merge session identifier, set after
	// initiation
	MergeSessionID string

	// Result is the terminal outcome, nil while the job is live
	Result *MergeResult
}

// Default tuning values for the pipeline.
const (
	// DefaultRequestTimeout bounds one HTTP round trip
	DefaultRequestTimeout = 60 * time.Second

	// DefaultRetryBaseDelay seeds the exponential backoff
	DefaultRetryBaseDelay = time.Second

	// DefaultRetryMaxDelay caps chunk-upload retry delays
	DefaultRetryMaxDelay = 30 * time.Second

	// DefaultMergeRetryMaxDelay caps retry delays in merge context
	DefaultMergeRetryMaxDelay = 10 * time.Second

	// DefaultRetryJitter bounds the random delay added to each backoff
	DefaultRetryJitter = time.Second

	// DefaultConcurrency bounds simultaneous uploads within one merge job
	DefaultConcurrency = 2

	// DefaultMergeCount is the expected number of merge input clips
	DefaultMergeCount = 3

	// DefaultPollInterval is the merge status poll cadence
	DefaultPollInterval = 2 * time.Second

	// DefaultPollMaxInterval caps the poll interval under transient errors
	DefaultPollMaxInterval = 10 * time.Second

	// DefaultPollTimeout bounds a merge job's polling phase
	DefaultPollTimeout = 5 * time.Minute

	// DefaultAssumedMergeDuration estimates merge time before the backend
	// reports merge-specific progress
	DefaultAssumedMergeDuration = 30 * time.Second

	// DefaultOfflineWait bounds the wait for connectivity when offline
	// queueing is disabled
	DefaultOfflineWait = 30 * time.Second
)

// Configuration types for functional options

// ClientConfig holds configuration for the pipeline client.
type ClientConfig struct {
	BaseURL              string
	RequestTimeout       time.Duration
	RetryBaseDelay       time.Duration
	RetryMaxDelay        time.Duration
	MergeRetryMaxDelay   time.Duration
	Concurrency          int
	ExpectedMergeCount   int
	PollInterval         time.Duration
	PollMaxInterval      time.Duration
	PollTimeout          time.Duration
	AssumedMergeDuration time.Duration
	OfflineWait          time.Duration
	QueueDisabled        bool
	QueuePersistDisabled bool
	QueueJournalPath     string
	CustomHTTPClient     *http.Client
	Filesystem           fs.Filesystem // Filesystem abstraction for file operations
	Monitor              NetworkMonitor
	TokenProvider        TokenProvider
	Logger               *slog.Logger
}

// UploadOptionConfig holds configuration for upload operations via functional options.
type UploadOptionConfig struct {
	Filename        string
	ContentType     string
	ChunkSize       int64
	RetriesPerChunk int
	HashChunks      bool
	QueueOnOffline  bool
	OfflineWait     time.Duration
}

// MergeOptionConfig holds configuration for merge submissions via functional options.
type MergeOptionConfig struct {
	Concurrency      int
	ExpectedCount    int
	DegradedFallback bool
	Upload           []UploadOption
	Poll             []PollOption
}

// PollOptionConfig holds configuration for merge status polling via functional options.
type PollOptionConfig struct {
	Interval             time.Duration
	MaxInterval          time.Duration
	Timeout              time.Duration
	AssumedMergeDuration time.Duration
}

// Option is a functional option for configuring the pipeline client.
type (
	Option func(*ClientConfig)
	// UploadOption is a functional option for configuring upload operations.
	UploadOption func(*UploadOptionConfig)
	// MergeOption is a functional option for configuring merge submissions.
	MergeOption func(*MergeOptionConfig)
	// PollOption is a functional option for configuring merge status polling.
	PollOption func(*PollOptionConfig)
)

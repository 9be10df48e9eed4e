// Package mediaapi defines the backend API surface for upload and merge
// operations to enable testing and mocking.
package mediaapi

import (
	"context"
	"io"
)

// Known overall_status values reported by the merge session endpoint.
const (
	OverallUploading     = "uploading"
	OverallReadyForMerge = "ready_for_merge"
	OverallMerging       = "merging"
	OverallCompleted     = "completed"
	OverallFailed        = "failed"
)

// Known merge_status values reported by the merge session endpoint.
const (
	MergePending    = "pending"
	MergeInProgress = "in_progress"
	MergeCompleted  = "completed"
	MergeFailed     = "failed"
)

// UploadChunkInput carries one chunk of a session to the backend.
type UploadChunkInput struct {
	// SessionID is the upload session the chunk belongs to
	SessionID string

	// Filename is the name the session uploads under
	Filename string

	// ChunkIndex is the zero-based chunk position
	ChunkIndex int

	// TotalChunks is the planned chunk count for the session
	TotalChunks int

	// ChunkHash is the hex SHA-256 of the chunk bytes, empty when disabled
	ChunkHash string

	// ContentType is the sniffed media type of the source file
	ContentType string

	// Body streams the chunk bytes
	Body io.Reader

	// Size is the chunk byte count
	Size int64
}

// FinalizeUploadInput asks the backend to commit a fully uploaded session.
type FinalizeUploadInput struct {
	// SessionID is the upload session to finalize
	SessionID string `json:"session_id"`

	// Filename is the name the session uploaded under
	Filename string `json:"filename"`

	// TotalChunks is the chunk count the backend should have received
	TotalChunks int `json:"total_chunks"`

	// TotalSize is the source file size in bytes
	TotalSize int64 `json:"total_size"`
}

// FinalizeUploadOutput is the backend's commit acknowledgement.
type FinalizeUploadOutput struct {
	// MediaID is the backend identifier of the stored media
	MediaID string `json:"media_id"`

	// StorageURL is where the backend stored the media
	StorageURL string `json:"storage_url"`
}

// MergeVideo references one uploaded input of a merge request.
type MergeVideo struct {
	// MediaID is the uploaded media identifier
	MediaID string `json:"media_id"`

	// StatementIndex is the clip's position in the recorded statements
	StatementIndex int `json:"statement_index"`

	// DurationSeconds is the clip length in seconds
	DurationSeconds float64 `json:"duration_seconds"`

	// Filename is the name the clip was uploaded under
	Filename string `json:"filename"`
}

// InitiateMergeInput requests a server-side merge of uploaded inputs.
type InitiateMergeInput struct {
	// JobID is the client-side merge job identifier
	JobID string `json:"merge_job_id"`

	// Videos are the ordered inputs to concatenate
	Videos []MergeVideo `json:"videos"`
}

// SegmentMetadata locates one input clip inside the merged video, in seconds.
type SegmentMetadata struct {
	StatementIndex int     `json:"statement_index"`
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
}

// MergedVideoMetadata is the terminal payload describing the merged video.
type MergedVideoMetadata struct {
	SegmentMetadata []SegmentMetadata `json:"segment_metadata"`
}

// InitiateMergeOutput is the backend's response to a merge request. A
// deployment may answer asynchronously (session id only) or synchronously
// with the terminal merged-video fields already present.
type InitiateMergeOutput struct {
	// MergeSessionID identifies the merge session for status polling
	MergeSessionID string `json:"merge_session_id"`

	// MergedVideoURL is set when the merge completed synchronously
	MergedVideoURL string `json:"merged_video_url,omitempty"`

	// SegmentMetadata is set when the merge completed synchronously
	SegmentMetadata []SegmentMetadata `json:"segment_metadata,omitempty"`
}

// SyncComplete reports whether the backend merged synchronously, making
// status polling unnecessary.
func (o *InitiateMergeOutput) SyncComplete() bool {
	return o.MergedVideoURL != ""
}

// MergeStatusOutput is the raw merge session status payload.
type MergeStatusOutput struct {
	OverallStatus          string               `json:"overall_status"`
	OverallProgressPercent float64              `json:"overall_progress_percent"`
	TotalVideos            int                  `json:"total_videos"`
	CompletedVideos        int                  `json:"completed_videos"`
	MergeTriggered         bool                 `json:"merge_triggered"`
	MergeStatus            string               `json:"merge_status"`
	MergeProgressPercent   float64              `json:"merge_progress_percent"`
	MergedVideoURL         string               `json:"merged_video_url,omitempty"`
	MergedVideoMetadata    *MergedVideoMetadata `json:"merged_video_metadata,omitempty"`
}

// API defines the backend operations used by this module.
// This interface allows for mocking in tests and alternative transports.
type API interface {
	// UploadChunk uploads one chunk of an upload session
	UploadChunk(ctx context.Context, in *UploadChunkInput) error

	// FinalizeUpload commits a fully uploaded session and returns the media id
	FinalizeUpload(ctx context.Context, in *FinalizeUploadInput) (*FinalizeUploadOutput, error)

	// InitiateMerge requests a server-side merge of uploaded inputs
	InitiateMerge(ctx context.Context, in *InitiateMergeInput) (*InitiateMergeOutput, error)

	// MergeStatus fetches the raw status of a merge session
	MergeStatus(ctx context.Context, mergeSessionID string) (*MergeStatusOutput, error)
}

// Package testutil provides test utilities and mocks for the media upload
// pipeline. This package is internal and should only be used for testing
// within the media module.
package testutil

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/kingkw1/2Truths-1Lie-sub004/internal/mediaapi"
)

// MockAPI is a mock implementation of the backend API interface for testing.
// It allows customization of each operation through function fields and
// counts calls so tests can assert how often an endpoint was hit.
type MockAPI struct {
	UploadChunkFunc    func(context.Context, *mediaapi.UploadChunkInput) error
	FinalizeUploadFunc func(context.Context, *mediaapi.FinalizeUploadInput) (*mediaapi.FinalizeUploadOutput, error)
	InitiateMergeFunc  func(context.Context, *mediaapi.InitiateMergeInput) (*mediaapi.InitiateMergeOutput, error)
	MergeStatusFunc    func(context.Context, string) (*mediaapi.MergeStatusOutput, error)

	uploadChunkCalls    atomic.Int64
	finalizeUploadCalls atomic.Int64
	initiateMergeCalls  atomic.Int64
	mergeStatusCalls    atomic.Int64
}

var _ mediaapi.API = (*MockAPI)(nil)

// UploadChunk mocks the chunk upload operation. The default consumes the
// chunk body and succeeds.
func (m *MockAPI) UploadChunk(ctx context.Context, in *mediaapi.UploadChunkInput) error {
	m.uploadChunkCalls.Add(1)
	if m.UploadChunkFunc != nil {
		return m.UploadChunkFunc(ctx, in)
	}
	if in.Body != nil {
		_, _ = io.Copy(io.Discard, in.Body)
	}
	return nil
}

// FinalizeUpload mocks the session finalize operation. The default reports a
// media ID derived from the session ID.
func (m *MockAPI) FinalizeUpload(
	ctx context.Context,
	in *mediaapi.FinalizeUploadInput,
) (*mediaapi.FinalizeUploadOutput, error) {
	m.finalizeUploadCalls.Add(1)
	if m.FinalizeUploadFunc != nil {
		return m.FinalizeUploadFunc(ctx, in)
	}
	return &mediaapi.FinalizeUploadOutput{
		MediaID:    "media-" + in.SessionID,
		StorageURL: "https://storage.test/" + in.SessionID + "/" + in.Filename,
	}, nil
}

// InitiateMerge mocks the merge initiation operation. The default starts an
// asynchronous merge session derived from the job ID.
func (m *MockAPI) InitiateMerge(
	ctx context.Context,
	in *mediaapi.InitiateMergeInput,
) (*mediaapi.InitiateMergeOutput, error) {
	m.initiateMergeCalls.Add(1)
	if m.InitiateMergeFunc != nil {
		return m.InitiateMergeFunc(ctx, in)
	}
	return &mediaapi.InitiateMergeOutput{MergeSessionID: "merge-" + in.JobID}, nil
}

// MergeStatus mocks the merge status poll. The default reports a completed
// merge so tests that do not care about polling finish immediately.
func (m *MockAPI) MergeStatus(ctx context.Context, mergeSessionID string) (*mediaapi.MergeStatusOutput, error) {
	m.mergeStatusCalls.Add(1)
	if m.MergeStatusFunc != nil {
		return m.MergeStatusFunc(ctx, mergeSessionID)
	}
	return &mediaapi.MergeStatusOutput{
		OverallStatus:          mediaapi.OverallCompleted,
		OverallProgressPercent: 100,
		MergeTriggered:         true,
		MergeStatus:            mediaapi.MergeCompleted,
		MergeProgressPercent:   100,
		MergedVideoURL:         "https://storage.test/merged/" + mergeSessionID + ".mp4",
	}, nil
}

// UploadChunkCalls reports how many times UploadChunk was invoked.
func (m *MockAPI) UploadChunkCalls() int { return int(m.uploadChunkCalls.Load()) }

// FinalizeUploadCalls reports how many times FinalizeUpload was invoked.
func (m *MockAPI) FinalizeUploadCalls() int { return int(m.finalizeUploadCalls.Load()) }

// InitiateMergeCalls reports how many times InitiateMerge was invoked.
func (m *MockAPI) InitiateMergeCalls() int { return int(m.initiateMergeCalls.Load()) }

// MergeStatusCalls reports how many times MergeStatus was invoked.
func (m *MockAPI) MergeStatusCalls() int { return int(m.mergeStatusCalls.Load()) }

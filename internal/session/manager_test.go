package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mediaerrors "github.com/kingkw1/2Truths-1Lie-sub004/errors"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/mediaapi"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/netmon"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/retry"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/testutil"
	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

func onlineState() mediatypes.NetworkState {
	return mediatypes.NetworkState{
		Connected:         true,
		InternetReachable: true,
		Transport:         mediatypes.TransportWifi,
		Quality:           mediatypes.QualityGood,
	}
}

func offlineState() mediatypes.NetworkState {
	return mediatypes.NetworkState{
		Transport: mediatypes.TransportOther,
		Quality:   mediatypes.QualityUnknown,
	}
}

func fastBackoff() *retry.Backoff {
	return retry.New(time.Millisecond, 5*time.Millisecond, 0)
}

func newTestManager(api mediaapi.API, monitor mediatypes.NetworkMonitor, fsys *billy.FS) *Manager {
	return New(Config{
		API:         api,
		FS:          fsys,
		Monitor:     monitor,
		Backoff:     fastBackoff(),
		OfflineWait: 100 * time.Millisecond,
		Logger:      testutil.DiscardLogger(),
	})
}

func TestUploadCompletesAndReportsProgress(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/videos/clip0.mp4", 3_000_000)
	api := &testutil.MockAPI{}
	m := newTestManager(api, netmon.NewNotifier(onlineState()), fsys)

	handle, err := m.Start(context.Background(), Request{Path: "/videos/clip0.mp4"})
	require.NoError(t, err)

	events := testutil.CollectUploadProgress(handle.Events())
	result, err := handle.Wait(context.Background())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, handle.ID(), result.SessionID)
	assert.Equal(t, "media-"+handle.ID(), result.MediaID)
	assert.Equal(t, "clip0.mp4", result.Filename)
	assert.Equal(t, int64(3_000_000), result.Size)

	// Good quality plans 1 MiB chunks, so three chunks cover the file.
	assert.Equal(t, 3, api.UploadChunkCalls())
	assert.Equal(t, 1, api.FinalizeUploadCalls())

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.True(t, last.Terminal())
	assert.Equal(t, mediatypes.SessionCompleted, last.State)
	assert.Equal(t, 100.0, last.Percent)
	assert.Equal(t, 3, last.ChunksUploaded)

	terminals := 0
	for _, ev := range events {
		if ev.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
}

func TestUploadProgressIsMonotonic(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/videos/clip.mp4", 2_500_000)
	api := &testutil.MockAPI{}
	m := newTestManager(api, netmon.NewNotifier(onlineState()), fsys)

	handle, err := m.Start(context.Background(), Request{Path: "/videos/clip.mp4"})
	require.NoError(t, err)

	events := testutil.CollectUploadProgress(handle.Events())

	var lastPercent float64
	var lastBytes int64
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Percent, lastPercent)
		assert.GreaterOrEqual(t, ev.BytesTransferred, lastBytes)
		lastPercent = ev.Percent
		lastBytes = ev.BytesTransferred
	}
}

func TestUploadRetriesTransientChunkFailure(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/clip.mp4", 100_000)
	failures := 2
	api := &testutil.MockAPI{
		UploadChunkFunc: func(ctx context.Context, in *mediaapi.UploadChunkInput) error {
			if failures > 0 {
				failures--
				return mediaerrors.FromStatus("uploadChunk", 503, "try again")
			}
			return nil
		},
	}
	m := newTestManager(api, netmon.NewNotifier(onlineState()), fsys)

	handle, err := m.Start(context.Background(), Request{Path: "/clip.mp4"})
	require.NoError(t, err)

	result, err := handle.Wait(context.Background())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 3, api.UploadChunkCalls(), "one chunk, two transient failures, one success")
}

func TestUploadFailsAfterRetryBudgetExhausted(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/clip.mp4", 100_000)
	api := &testutil.MockAPI{
		UploadChunkFunc: func(ctx context.Context, in *mediaapi.UploadChunkInput) error {
			return mediaerrors.FromStatus("uploadChunk", 500, "broken")
		},
	}
	m := newTestManager(api, netmon.NewNotifier(onlineState()), fsys)

	handle, err := m.Start(context.Background(), Request{
		Path:            "/clip.mp4",
		RetriesPerChunk: 2,
	})
	require.NoError(t, err)

	result, err := handle.Wait(context.Background())

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, mediaerrors.IsServer(err), "got: %v", err)
	assert.Equal(t, 3, api.UploadChunkCalls(), "initial attempt plus two retries")
	assert.Equal(t, 0, api.FinalizeUploadCalls(), "failed session must not finalize")
	assert.Equal(t, mediatypes.SessionFailed, handle.Snapshot().State)
}

func TestUploadStopsOnNonRetryableError(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/clip.mp4", 100_000)
	api := &testutil.MockAPI{
		UploadChunkFunc: func(ctx context.Context, in *mediaapi.UploadChunkInput) error {
			return mediaerrors.FromStatus("uploadChunk", 401, "token expired")
		},
	}
	m := newTestManager(api, netmon.NewNotifier(onlineState()), fsys)

	handle, err := m.Start(context.Background(), Request{Path: "/clip.mp4"})
	require.NoError(t, err)

	_, err = handle.Wait(context.Background())

	require.Error(t, err)
	assert.True(t, mediaerrors.IsAuth(err))
	assert.Equal(t, 1, api.UploadChunkCalls(), "auth failures must not be retried")
}

func TestOfflineQueuesWhenEnabled(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/clip.mp4", 100_000)
	api := &testutil.MockAPI{}

	var mu sync.Mutex
	var queued []Request
	m := New(Config{
		API:     api,
		FS:      fsys,
		Monitor: netmon.NewNotifier(offlineState()),
		Backoff: fastBackoff(),
		Logger:  testutil.DiscardLogger(),
		Enqueue: func(ctx context.Context, req Request) error {
			mu.Lock()
			defer mu.Unlock()
			queued = append(queued, req)
			return nil
		},
	})

	handle, err := m.Start(context.Background(), Request{
		Path:           "/clip.mp4",
		QueueOnOffline: true,
	})
	require.NoError(t, err)

	events := testutil.CollectUploadProgress(handle.Events())
	result, err := handle.Wait(context.Background())

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, mediaerrors.IsQueued(err), "got: %v", err)
	assert.Equal(t, 0, api.UploadChunkCalls())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, queued, 1)
	assert.Equal(t, "/clip.mp4", queued[0].Path)

	last := events[len(events)-1]
	assert.Equal(t, mediatypes.SessionCancelled, last.State)
	assert.Equal(t, "queued", last.Stage)
}

func TestOfflineWaitTimesOutWhenQueueingDisabled(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/clip.mp4", 100_000)
	api := &testutil.MockAPI{}
	m := New(Config{
		API:     api,
		FS:      fsys,
		Monitor: netmon.NewNotifier(offlineState()),
		Backoff: fastBackoff(),
		Logger:  testutil.DiscardLogger(),
	})

	handle, err := m.Start(context.Background(), Request{
		Path:        "/clip.mp4",
		OfflineWait: 40 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = handle.Wait(context.Background())

	require.Error(t, err)
	assert.True(t, mediaerrors.IsTimeout(err), "got: %v", err)
	assert.Equal(t, 0, api.UploadChunkCalls())
}

func TestOfflineWaitResumesWhenConnectivityReturns(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/clip.mp4", 100_000)
	api := &testutil.MockAPI{}
	monitor := netmon.NewNotifier(offlineState())
	m := New(Config{
		API:     api,
		FS:      fsys,
		Monitor: monitor,
		Backoff: fastBackoff(),
		Logger:  testutil.DiscardLogger(),
	})

	handle, err := m.Start(context.Background(), Request{
		Path:        "/clip.mp4",
		OfflineWait: 2 * time.Second,
	})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		monitor.Set(onlineState())
	}()

	result, err := handle.Wait(context.Background())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Positive(t, api.UploadChunkCalls())
}

func TestCancelMidUpload(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/clip.mp4", 100_000)
	started := make(chan struct{})
	var once sync.Once
	api := &testutil.MockAPI{
		UploadChunkFunc: func(ctx context.Context, in *mediaapi.UploadChunkInput) error {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return mediaerrors.FromTransport("uploadChunk", ctx.Err())
		},
	}
	m := newTestManager(api, netmon.NewNotifier(onlineState()), fsys)

	handle, err := m.Start(context.Background(), Request{Path: "/clip.mp4"})
	require.NoError(t, err)

	<-started
	handle.Cancel()

	result, err := handle.Wait(context.Background())

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, mediaerrors.IsCancelled(err), "got: %v", err)
	assert.Equal(t, 0, api.FinalizeUploadCalls())
}

func TestFinalizeFailureFailsSession(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/clip.mp4", 100_000)
	api := &testutil.MockAPI{
		FinalizeUploadFunc: func(ctx context.Context, in *mediaapi.FinalizeUploadInput) (*mediaapi.FinalizeUploadOutput, error) {
			return nil, mediaerrors.FromStatus("finalizeUpload", 400, "chunk count mismatch")
		},
	}
	m := newTestManager(api, netmon.NewNotifier(onlineState()), fsys)

	handle, err := m.Start(context.Background(), Request{Path: "/clip.mp4"})
	require.NoError(t, err)

	result, err := handle.Wait(context.Background())

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, mediaerrors.IsValidation(err))
	assert.Equal(t, 1, api.UploadChunkCalls(), "all chunks uploaded before finalize")
}

func TestFinalizeRetriesTransientError(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/clip.mp4", 100_000)
	failures := 1
	api := &testutil.MockAPI{
		FinalizeUploadFunc: func(ctx context.Context, in *mediaapi.FinalizeUploadInput) (*mediaapi.FinalizeUploadOutput, error) {
			if failures > 0 {
				failures--
				return nil, mediaerrors.FromStatus("finalizeUpload", 503, "busy")
			}
			return &mediaapi.FinalizeUploadOutput{MediaID: "media-1", StorageURL: "https://storage.test/media-1"}, nil
		},
	}
	m := newTestManager(api, netmon.NewNotifier(onlineState()), fsys)

	handle, err := m.Start(context.Background(), Request{Path: "/clip.mp4"})
	require.NoError(t, err)

	result, err := handle.Wait(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "media-1", result.MediaID)
	assert.Equal(t, 2, api.FinalizeUploadCalls())
}

func TestStartValidation(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	require.NoError(t, fsys.MkdirAll("/videos", 0o755))
	require.NoError(t, fsys.WriteFile("/videos/empty.mp4", nil, 0o644))

	m := newTestManager(&testutil.MockAPI{}, netmon.NewNotifier(onlineState()), fsys)

	tests := []struct {
		name  string
		path  string
		check func(error) bool
	}{
		{name: "empty path", path: "", check: mediaerrors.IsValidation},
		{name: "missing file", path: "/videos/nope.mp4", check: mediaerrors.IsStorage},
		{name: "directory", path: "/videos", check: mediaerrors.IsValidation},
		{name: "empty file", path: "/videos/empty.mp4", check: mediaerrors.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Start(context.Background(), Request{Path: tt.path})
			require.Error(t, err)
			assert.True(t, tt.check(err), "got: %v", err)
		})
	}
}

func TestContentTypeSniffedFromFile(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/clip.bin", 100_000)
	var gotContentType string
	api := &testutil.MockAPI{
		UploadChunkFunc: func(ctx context.Context, in *mediaapi.UploadChunkInput) error {
			gotContentType = in.ContentType
			return nil
		},
	}
	m := newTestManager(api, netmon.NewNotifier(onlineState()), fsys)

	handle, err := m.Start(context.Background(), Request{Path: "/clip.bin"})
	require.NoError(t, err)
	_, err = handle.Wait(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "video/mp4", gotContentType)
}

func TestDetectContentTypeFromExtension(t *testing.T) {
	assert.Contains(t, detectContentTypeFromExtension("/data/meta.json"), "application/json")
	assert.Equal(t, DefaultContentType, detectContentTypeFromExtension("/data/blob.zzz"))
	assert.Equal(t, DefaultContentType, detectContentTypeFromExtension("/data/noext"))
}

func TestChunkHashing(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	data := testutil.WriteMP4File(t, fsys, "/clip.mp4", 100_000)
	var gotHashes []string
	api := &testutil.MockAPI{
		UploadChunkFunc: func(ctx context.Context, in *mediaapi.UploadChunkInput) error {
			gotHashes = append(gotHashes, in.ChunkHash)
			return nil
		},
	}
	m := newTestManager(api, netmon.NewNotifier(onlineState()), fsys)

	handle, err := m.Start(context.Background(), Request{Path: "/clip.mp4", HashChunks: true})
	require.NoError(t, err)
	_, err = handle.Wait(context.Background())

	require.NoError(t, err)
	require.Len(t, gotHashes, 1)
	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), gotHashes[0])
}

func TestChunkHashOmittedWhenDisabled(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/clip.mp4", 100_000)
	var gotHash string
	api := &testutil.MockAPI{
		UploadChunkFunc: func(ctx context.Context, in *mediaapi.UploadChunkInput) error {
			gotHash = in.ChunkHash
			return nil
		},
	}
	m := newTestManager(api, netmon.NewNotifier(onlineState()), fsys)

	handle, err := m.Start(context.Background(), Request{Path: "/clip.mp4"})
	require.NoError(t, err)
	_, err = handle.Wait(context.Background())

	require.NoError(t, err)
	assert.Empty(t, gotHash)
}

func TestResumedFlagCarriedIntoResult(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/clip.mp4", 100_000)
	m := newTestManager(&testutil.MockAPI{}, netmon.NewNotifier(onlineState()), fsys)

	handle, err := m.Start(context.Background(), Request{Path: "/clip.mp4", Resumed: true})
	require.NoError(t, err)

	result, err := handle.Wait(context.Background())

	require.NoError(t, err)
	assert.True(t, result.Resumed)
	assert.True(t, handle.Snapshot().Resumed)
}

func TestManagerTracksActiveSessions(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/clip.mp4", 100_000)
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	api := &testutil.MockAPI{
		UploadChunkFunc: func(ctx context.Context, in *mediaapi.UploadChunkInput) error {
			once.Do(func() { close(started) })
			<-release
			return nil
		},
	}
	m := newTestManager(api, netmon.NewNotifier(onlineState()), fsys)

	handle, err := m.Start(context.Background(), Request{Path: "/clip.mp4"})
	require.NoError(t, err)

	<-started
	snap, ok := m.Get(handle.ID())
	require.True(t, ok)
	assert.Equal(t, mediatypes.SessionUploading, snap.State)
	assert.Len(t, m.Sessions(), 1)

	close(release)
	_, err = handle.Wait(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := m.Get(handle.ID())
		return !ok
	}, time.Second, 5*time.Millisecond, "finished sessions are unregistered")
}

func TestTerminalEventSurvivesSlowConsumer(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/clip.mp4", 100_000)
	api := &testutil.MockAPI{}
	m := newTestManager(api, netmon.NewNotifier(onlineState()), fsys)

	// A 1 KiB chunk size forces far more events than the channel buffers.
	handle, err := m.Start(context.Background(), Request{Path: "/clip.mp4", ChunkSize: 1024})
	require.NoError(t, err)

	<-handle.Done()
	events := testutil.CollectUploadProgress(handle.Events())

	require.NotEmpty(t, events)
	terminals := 0
	for _, ev := range events {
		if ev.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	assert.True(t, events[len(events)-1].Terminal(), "terminal event is last")
	require.NotNil(t, events[len(events)-1].Result)
}

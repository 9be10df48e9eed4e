package media

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mediaerrors "github.com/kingkw1/2Truths-1Lie-sub004/errors"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/mediaapi"
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

// newTestClient assembles a client over a mock backend and an in-memory
// filesystem seeded with one small clip per statement.
func newTestClient(t *testing.T, api mediaapi.API, opts ...mediatypes.Option) (*Client, *billy.FS) {
	t.Helper()

	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/videos/clip0.mp4", 192*1024)
	testutil.WriteMP4File(t, fsys, "/videos/clip1.mp4", 192*1024)
	testutil.WriteMP4File(t, fsys, "/videos/clip2.mp4", 192*1024)

	base := []mediatypes.Option{
		WithFilesystem(fsys),
		WithNetworkMonitor(NewMonitor(onlineState())),
		WithQueueJournalPath("/state/upload-queue.msgpack"),
		WithRetryDelays(time.Millisecond, 5*time.Millisecond),
		WithPollDefaults(2*time.Millisecond, 10*time.Millisecond, 2*time.Second),
		WithLogger(testutil.DiscardLogger()),
	}
	c := NewWithClient(api, append(base, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c, fsys
}

func mergeFiles() []mediatypes.MergeFile {
	return []mediatypes.MergeFile{
		{Path: "/videos/clip0.mp4", StatementIndex: 0, Duration: 3 * time.Second},
		{Path: "/videos/clip1.mp4", StatementIndex: 1, Duration: 4 * time.Second},
		{Path: "/videos/clip2.mp4", StatementIndex: 2, Duration: 5 * time.Second},
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New()

	require.Error(t, err)
	assert.True(t, mediaerrors.IsValidation(err))
	assert.Contains(t, err.Error(), "base URL")
}

func TestNewRequiresTokenProvider(t *testing.T) {
	_, err := New(WithBaseURL("https://api.test"))

	require.Error(t, err)
	assert.True(t, mediaerrors.IsValidation(err))
	assert.Contains(t, err.Error(), "token provider")
}

func TestNewUploadsOverHTTP(t *testing.T) {
	var chunks, finalizes atomic.Int64
	var authHeader atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader.Store(r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/upload-chunk":
			chunks.Add(1)
			w.WriteHeader(http.StatusOK)
		case "/finalize-upload":
			finalizes.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{
				"media_id":    "m-http",
				"storage_url": "https://storage.test/m-http.mp4",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	fsys := billy.NewInMemoryFS()
	testutil.WriteMP4File(t, fsys, "/videos/clip0.mp4", 64*1024)

	c, err := New(
		WithBaseURL(srv.URL),
		WithToken("secret-token"),
		WithFilesystem(fsys),
		WithQueueJournalPath("/state/upload-queue.msgpack"),
		WithLogger(testutil.DiscardLogger()),
	)
	require.NoError(t, err)
	defer c.Close()

	result, err := c.Upload(context.Background(), "/videos/clip0.mp4")

	require.NoError(t, err)
	assert.Equal(t, "m-http", result.MediaID)
	assert.Equal(t, "https://storage.test/m-http.mp4", result.StorageURL)
	assert.EqualValues(t, 1, chunks.Load())
	assert.EqualValues(t, 1, finalizes.Load())
	assert.Equal(t, "Bearer secret-token", authHeader.Load())
}

func TestUploadBlocksUntilResult(t *testing.T) {
	api := &testutil.MockAPI{}
	c, _ := newTestClient(t, api)

	result, err := c.Upload(context.Background(), "/videos/clip0.mp4")

	require.NoError(t, err)
	assert.Equal(t, "clip0.mp4", result.Filename)
	assert.NotEmpty(t, result.MediaID)
	assert.Equal(t, 1, api.FinalizeUploadCalls())
}

func TestStartUploadDeliversOneTerminalEvent(t *testing.T) {
	api := &testutil.MockAPI{}
	c, _ := newTestClient(t, api)

	up, err := c.StartUpload(context.Background(), "/videos/clip0.mp4")
	require.NoError(t, err)
	require.NotEmpty(t, up.ID())

	events := testutil.CollectUploadProgress(up.Events())
	result, err := up.Wait(context.Background())

	require.NoError(t, err)
	require.NotNil(t, result)

	terminals := 0
	for _, ev := range events {
		if ev.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	assert.Equal(t, mediatypes.SessionCompleted, events[len(events)-1].State)
}

func TestUploadOptionsApplied(t *testing.T) {
	var captured atomic.Pointer[mediaapi.UploadChunkInput]
	api := &testutil.MockAPI{
		UploadChunkFunc: func(ctx context.Context, in *mediaapi.UploadChunkInput) error {
			captured.Store(in)
			return nil
		},
	}
	c, _ := newTestClient(t, api)

	_, err := c.Upload(context.Background(), "/videos/clip0.mp4",
		WithFilename("statement-one.mp4"),
		WithChunkSize(192*1024),
		WithoutChunkHashes(),
	)

	require.NoError(t, err)
	in := captured.Load()
	require.NotNil(t, in)
	assert.Equal(t, "statement-one.mp4", in.Filename)
	assert.Equal(t, 1, in.TotalChunks)
	assert.Empty(t, in.ChunkHash, "hashing disabled for this upload")
}

func TestUploadHashesChunksByDefault(t *testing.T) {
	var captured atomic.Pointer[mediaapi.UploadChunkInput]
	api := &testutil.MockAPI{
		UploadChunkFunc: func(ctx context.Context, in *mediaapi.UploadChunkInput) error {
			captured.Store(in)
			return nil
		},
	}
	c, _ := newTestClient(t, api)

	_, err := c.Upload(context.Background(), "/videos/clip0.mp4")

	require.NoError(t, err)
	in := captured.Load()
	require.NotNil(t, in)
	assert.Len(t, in.ChunkHash, 64, "hex SHA-256 sent unless disabled")
}

func TestMergeBlocksUntilResult(t *testing.T) {
	api := &testutil.MockAPI{}
	c, _ := newTestClient(t, api)

	result, err := c.Merge(context.Background(), mergeFiles())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.MergedVideoURL)
	assert.Len(t, result.MediaIDs, 3)
	assert.Equal(t, 1, api.InitiateMergeCalls())
}

func TestMergeRejectsWrongCount(t *testing.T) {
	api := &testutil.MockAPI{}
	c, _ := newTestClient(t, api)

	_, err := c.Merge(context.Background(), mergeFiles()[:1])

	require.Error(t, err)
	assert.True(t, mediaerrors.IsValidation(err))
	assert.Equal(t, 0, api.UploadChunkCalls())
}

func TestSubmitForMergeReportsTwoPhaseProgress(t *testing.T) {
	api := &testutil.MockAPI{}
	c, _ := newTestClient(t, api)

	job, err := c.SubmitForMerge(context.Background(), mergeFiles())
	require.NoError(t, err)

	events := testutil.CollectMergeProgress(job.Events())
	result, err := job.Wait(context.Background())

	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.True(t, last.Terminal())
	assert.Equal(t, mediatypes.MergeCompleted, last.Stage)
	assert.Equal(t, 100.0, last.Percent)
	assert.Equal(t, job.ID(), last.JobID)
}

func TestWatchMergeRejectsEmptyID(t *testing.T) {
	api := &testutil.MockAPI{}
	c, _ := newTestClient(t, api)

	_, err := c.WatchMerge(context.Background(), "")

	require.Error(t, err)
	assert.True(t, mediaerrors.IsValidation(err))
}

func TestWatchMergeFollowsExistingSession(t *testing.T) {
	api := &testutil.MockAPI{}
	c, _ := newTestClient(t, api)

	job, err := c.WatchMerge(context.Background(), "merge-recovered")
	require.NoError(t, err)

	result, err := job.Wait(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "merge-recovered", result.MergeSessionID)
	assert.NotEmpty(t, result.MergedVideoURL)
}

func TestCloseCancelsActiveSessions(t *testing.T) {
	api := &testutil.MockAPI{
		UploadChunkFunc: func(ctx context.Context, in *mediaapi.UploadChunkInput) error {
			<-ctx.Done()
			return mediaerrors.FromTransport("uploadChunk", ctx.Err())
		},
	}
	c, _ := newTestClient(t, api)

	up, err := c.StartUpload(context.Background(), "/videos/clip0.mp4")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Close())

	_, err = up.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, mediaerrors.IsCancelled(err), "got: %v", err)
}

func TestSessionsTracksActiveUploads(t *testing.T) {
	release := make(chan struct{})
	api := &testutil.MockAPI{
		UploadChunkFunc: func(ctx context.Context, in *mediaapi.UploadChunkInput) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return mediaerrors.FromTransport("uploadChunk", ctx.Err())
			}
		},
	}
	c, _ := newTestClient(t, api)

	up, err := c.StartUpload(context.Background(), "/videos/clip0.mp4")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, ok := c.Session(up.ID())
		return ok && snap.State == mediatypes.SessionUploading
	}, time.Second, 2*time.Millisecond)
	assert.Len(t, c.Sessions(), 1)

	close(release)
	_, err = up.Wait(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(c.Sessions()) == 0
	}, time.Second, 2*time.Millisecond)
}

func TestDefaultMonitorAssumesOnline(t *testing.T) {
	c := NewWithClient(&testutil.MockAPI{},
		WithFilesystem(billy.NewInMemoryFS()),
		WithQueueJournalPath("/state/upload-queue.msgpack"),
		WithLogger(testutil.DiscardLogger()),
	)
	defer c.Close()

	assert.True(t, c.Online())
	assert.Equal(t, mediatypes.QualityUnknown, c.Network().Quality)
}

func TestSetNetworkStatePushesIntoDefaultMonitor(t *testing.T) {
	c := NewWithClient(&testutil.MockAPI{},
		WithFilesystem(billy.NewInMemoryFS()),
		WithQueueJournalPath("/state/upload-queue.msgpack"),
		WithLogger(testutil.DiscardLogger()),
	)
	defer c.Close()

	c.SetNetworkState(offlineState())

	assert.False(t, c.Online())
	assert.False(t, c.Network().Connected)
}

func TestMonitorProbeFailureTreatedAsOffline(t *testing.T) {
	m := NewMonitor(onlineState())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe := m.Subscribe()
	defer unsubscribe()

	go m.Watch(ctx, 2*time.Millisecond, func(ctx context.Context) (mediatypes.NetworkState, error) {
		return mediatypes.NetworkState{}, context.DeadlineExceeded
	})

	select {
	case st := <-events:
		assert.False(t, st.Online())
		assert.False(t, st.Connected)
	case <-time.After(time.Second):
		t.Fatal("no state published after failing probe")
	}
}

func TestMonitorProbePublishesStates(t *testing.T) {
	m := NewMonitor(offlineState())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe := m.Subscribe()
	defer unsubscribe()

	go m.Watch(ctx, 2*time.Millisecond, func(ctx context.Context) (mediatypes.NetworkState, error) {
		return onlineState(), nil
	})

	select {
	case st := <-events:
		assert.True(t, st.Online())
		assert.Equal(t, mediatypes.TransportWifi, st.Transport)
	case <-time.After(time.Second):
		t.Fatal("no state published by probe loop")
	}
}

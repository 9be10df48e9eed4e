// Package media provides functional options for configuring the pipeline.
// These options follow the functional options pattern for clean, composable
// configuration of the client and of individual operations.
package media

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/fs"

	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

// WithBaseURL sets the backend root URL, e.g. "https://api.example.com/api/v1".
// Required.
func WithBaseURL(url string) mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		c.BaseURL = url
	}
}

// WithTokenProvider sets the source of bearer tokens attached to every
// backend request. Required.
func WithTokenProvider(tp mediatypes.TokenProvider) mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		c.TokenProvider = tp
	}
}

// WithToken sets a static bearer token. Convenience over WithTokenProvider
// for tokens that do not rotate within the client's lifetime.
func WithToken(token string) mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		c.TokenProvider = mediatypes.TokenProviderFunc(
			func(context.Context) (string, error) { return token, nil },
		)
	}
}

// WithRequestTimeout bounds one HTTP round trip. Default is 60s.
func WithRequestTimeout(timeout time.Duration) mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		c.RequestTimeout = timeout
	}
}

// WithRetryDelays tunes the exponential backoff between retry attempts.
// Default base is 1s with a 30s cap for uploads and a 10s cap in merge
// context.
func WithRetryDelays(base, max time.Duration) mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		if base > 0 {
			c.RetryBaseDelay = base
		}
		if max > 0 {
			c.RetryMaxDelay = max
		}
	}
}

// WithConcurrency bounds how many merge input files upload at once.
// Default is 2.
func WithConcurrency(concurrency int) mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithExpectedMergeCount sets the exact number of input clips a merge
// submission must carry. Default is 3.
func WithExpectedMergeCount(count int) mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		if count > 0 {
			c.ExpectedMergeCount = count
		}
	}
}

// WithPollDefaults tunes the merge status poller: base interval between
// fetches, interval cap under transient errors, and the overall timeout that
// fails a merge job still pending. Zero values keep the defaults (2s, 10s,
// 5m).
func WithPollDefaults(interval, maxInterval, timeout time.Duration) mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		if interval > 0 {
			c.PollInterval = interval
		}
		if maxInterval > 0 {
			c.PollMaxInterval = maxInterval
		}
		if timeout > 0 {
			c.PollTimeout = timeout
		}
	}
}

// WithOfflineWait bounds how long an upload blocks waiting for connectivity
// when offline queueing is unavailable. Default is 30s.
func WithOfflineWait(wait time.Duration) mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		c.OfflineWait = wait
	}
}

// WithoutOfflineQueue disables the offline queue entirely: uploads started
// while offline wait for connectivity instead of parking.
func WithoutOfflineQueue() mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		c.QueueDisabled = true
	}
}

// WithoutQueuePersistence keeps the offline queue in memory only, skipping
// the journal file.
func WithoutQueuePersistence() mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		c.QueuePersistDisabled = true
	}
}

// WithQueueJournalPath overrides where the offline queue journal is written.
// Default is upload-queue.msgpack under the XDG state directory.
func WithQueueJournalPath(path string) mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		c.QueueJournalPath = path
	}
}

// WithCustomHTTPClient replaces the underlying HTTP client, e.g. to install
// a proxy or transport-level instrumentation.
func WithCustomHTTPClient(client *http.Client) mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		c.CustomHTTPClient = client
	}
}

// WithFilesystem sets the filesystem media files are read from and the queue
// journal is written to. Default is the OS filesystem.
func WithFilesystem(filesystem fs.Filesystem) mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		c.Filesystem = filesystem
	}
}

// WithNetworkMonitor injects the connectivity source. Without one the client
// assumes it is online with unknown quality.
func WithNetworkMonitor(monitor mediatypes.NetworkMonitor) mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		c.Monitor = monitor
	}
}

// WithLogger sets the structured logger the pipeline components log through.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) mediatypes.Option {
	return func(c *mediatypes.ClientConfig) {
		c.Logger = logger
	}
}

// WithFilename overrides the filename reported to the backend for one
// upload. Default is the base name of the source path.
func WithFilename(name string) mediatypes.UploadOption {
	return func(c *mediatypes.UploadOptionConfig) {
		c.Filename = name
	}
}

// WithContentType pins the MIME type sent with each chunk instead of
// sniffing it from the file content.
func WithContentType(contentType string) mediatypes.UploadOption {
	return func(c *mediatypes.UploadOptionConfig) {
		c.ContentType = contentType
	}
}

// WithChunkSize overrides the network-quality-planned chunk size for one
// upload.
func WithChunkSize(size int64) mediatypes.UploadOption {
	return func(c *mediatypes.UploadOptionConfig) {
		if size > 0 {
			c.ChunkSize = size
		}
	}
}

// WithRetriesPerChunk overrides the planned per-chunk retry budget for one
// upload.
func WithRetriesPerChunk(retries int) mediatypes.UploadOption {
	return func(c *mediatypes.UploadOptionConfig) {
		if retries > 0 {
			c.RetriesPerChunk = retries
		}
	}
}

// WithoutChunkHashes disables the per-chunk SHA-256 digests for one upload.
// Hashing is on by default.
func WithoutChunkHashes() mediatypes.UploadOption {
	return func(c *mediatypes.UploadOptionConfig) {
		c.HashChunks = false
	}
}

// WithoutQueueing makes one upload wait for connectivity when offline even
// though the client carries an offline queue.
func WithoutQueueing() mediatypes.UploadOption {
	return func(c *mediatypes.UploadOptionConfig) {
		c.QueueOnOffline = false
	}
}

// WithUploadOfflineWait bounds the connectivity wait for one upload.
func WithUploadOfflineWait(wait time.Duration) mediatypes.UploadOption {
	return func(c *mediatypes.UploadOptionConfig) {
		c.OfflineWait = wait
	}
}

// WithMergeConcurrency bounds how many inputs of one merge submission upload
// at once.
func WithMergeConcurrency(concurrency int) mediatypes.MergeOption {
	return func(c *mediatypes.MergeOptionConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithMergeCount overrides the expected input count for one merge
// submission.
func WithMergeCount(count int) mediatypes.MergeOption {
	return func(c *mediatypes.MergeOptionConfig) {
		if count > 0 {
			c.ExpectedCount = count
		}
	}
}

// WithDegradedFallback completes a merge job locally with synthesized
// segment timings when merge initiation keeps failing transiently. The
// degraded result carries no merged video URL. Off by default.
func WithDegradedFallback() mediatypes.MergeOption {
	return func(c *mediatypes.MergeOptionConfig) {
		c.DegradedFallback = true
	}
}

// WithMergeUploadOptions applies upload options to every input upload of a
// merge submission.
func WithMergeUploadOptions(opts ...mediatypes.UploadOption) mediatypes.MergeOption {
	return func(c *mediatypes.MergeOptionConfig) {
		c.Upload = append(c.Upload, opts...)
	}
}

// WithMergePollOptions applies poll options to the merge job's polling
// phase.
func WithMergePollOptions(opts ...mediatypes.PollOption) mediatypes.MergeOption {
	return func(c *mediatypes.MergeOptionConfig) {
		c.Poll = append(c.Poll, opts...)
	}
}

// WithPollInterval sets the base delay between status fetches for one
// polling run.
func WithPollInterval(interval time.Duration) mediatypes.PollOption {
	return func(c *mediatypes.PollOptionConfig) {
		if interval > 0 {
			c.Interval = interval
		}
	}
}

// WithPollMaxInterval caps the interval growth under transient fetch errors
// for one polling run.
func WithPollMaxInterval(max time.Duration) mediatypes.PollOption {
	return func(c *mediatypes.PollOptionConfig) {
		if max > 0 {
			c.MaxInterval = max
		}
	}
}

// WithPollTimeout bounds one polling run; a merge still pending when it
// expires fails with a timeout error.
func WithPollTimeout(timeout time.Duration) mediatypes.PollOption {
	return func(c *mediatypes.PollOptionConfig) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// WithAssumedMergeDuration tunes the time estimate reported before the
// backend publishes merge progress.
func WithAssumedMergeDuration(d time.Duration) mediatypes.PollOption {
	return func(c *mediatypes.PollOptionConfig) {
		if d > 0 {
			c.AssumedMergeDuration = d
		}
	}
}

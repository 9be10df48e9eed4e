// Package media provides client initialization and composition.
package media

import (
	"context"
	"log/slog"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/fs/billy"

	mediaerrors "github.com/kingkw1/2Truths-1Lie-sub004/errors"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/mediaapi"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/merge"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/offline"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/retry"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/session"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/transfer"
	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

// Client is the pipeline composition root. It owns the upload session
// manager, the offline queue with its drain watcher, the merge submitter,
// and the merge status poller, all wired to one backend API client.
//
// A Client is safe for concurrent use.
type Client struct {
	cfg     mediatypes.ClientConfig
	monitor mediatypes.NetworkMonitor
	logger  *slog.Logger

	sessions  *session.Manager
	queue     *offline.Queue
	poller    *merge.Poller
	submitter *merge.Submitter

	stopWatcher context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// New creates a pipeline client talking to the backend at the configured
// base URL. The base URL and a token provider are required; everything else
// has working defaults.
//
// Example:
//
//	client, err := media.New(
//	    media.WithBaseURL("https://api.example.com/api/v1"),
//	    media.WithTokenProvider(tokens),
//	)
func New(opts ...mediatypes.Option) (*Client, error) {
	const op = "client"

	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.BaseURL == "" {
		return nil, mediaerrors.NewError(op, mediaerrors.ErrValidation).
			WithMessage("base URL is required")
	}
	if cfg.TokenProvider == nil {
		return nil, mediaerrors.NewError(op, mediaerrors.ErrValidation).
			WithMessage("token provider is required")
	}

	api := transfer.New(transfer.Config{
		BaseURL:        cfg.BaseURL,
		HTTPClient:     cfg.CustomHTTPClient,
		TokenProvider:  cfg.TokenProvider,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         cfg.Logger,
	})
	return newClient(api, cfg), nil
}

// NewWithClient creates a pipeline client over a custom backend API
// implementation. This is primarily used for testing with mocked backends or
// alternative transports.
func NewWithClient(api mediaapi.API, opts ...mediatypes.Option) *Client {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newClient(api, cfg)
}

func defaultClientConfig() mediatypes.ClientConfig {
	return mediatypes.ClientConfig{
		RequestTimeout:       mediatypes.DefaultRequestTimeout,
		RetryBaseDelay:       mediatypes.DefaultRetryBaseDelay,
		RetryMaxDelay:        mediatypes.DefaultRetryMaxDelay,
		MergeRetryMaxDelay:   mediatypes.DefaultMergeRetryMaxDelay,
		Concurrency:          mediatypes.DefaultConcurrency,
		ExpectedMergeCount:   mediatypes.DefaultMergeCount,
		PollInterval:         mediatypes.DefaultPollInterval,
		PollMaxInterval:      mediatypes.DefaultPollMaxInterval,
		PollTimeout:          mediatypes.DefaultPollTimeout,
		AssumedMergeDuration: mediatypes.DefaultAssumedMergeDuration,
		OfflineWait:          mediatypes.DefaultOfflineWait,
	}
}

// newClient wires the pipeline components. Construction itself cannot fail:
// a broken queue journal degrades to a fresh queue with a warning log.
func newClient(api mediaapi.API, cfg mediatypes.ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsys := cfg.Filesystem
	if fsys == nil {
		fsys = billy.NewOSFS("/")
	}

	monitor := cfg.Monitor
	if monitor == nil {
		// Without connectivity wiring the pipeline assumes it is online;
		// quality stays unknown so chunk planning uses the default tier.
		monitor = NewMonitor(mediatypes.NetworkState{
			Connected:         true,
			InternetReachable: true,
			Transport:         mediatypes.TransportOther,
			Quality:           mediatypes.QualityUnknown,
		})
	}

	c := &Client{
		cfg:     cfg,
		monitor: monitor,
		logger:  logger,
	}

	if !cfg.QueueDisabled {
		journal := cfg.QueueJournalPath
		if cfg.QueuePersistDisabled {
			journal = ""
		} else if journal == "" {
			journal = offline.DefaultJournalPath()
		}
		c.queue = offline.New(offline.Config{
			FS:          fsys,
			JournalPath: journal,
			Logger:      logger,
		})
	}

	var enqueue func(context.Context, session.Request) error
	if c.queue != nil {
		enqueue = c.enqueueRequest
	}
	c.sessions = session.New(session.Config{
		API:         api,
		FS:          fsys,
		Monitor:     monitor,
		Backoff:     retry.New(cfg.RetryBaseDelay, cfg.RetryMaxDelay, mediatypes.DefaultRetryJitter),
		Enqueue:     enqueue,
		OfflineWait: cfg.OfflineWait,
		Logger:      logger,
	})

	c.poller = merge.NewPoller(merge.PollerConfig{
		API: api,
		Defaults: merge.PollOptions{
			Interval:             cfg.PollInterval,
			MaxInterval:          cfg.PollMaxInterval,
			Timeout:              cfg.PollTimeout,
			AssumedMergeDuration: cfg.AssumedMergeDuration,
		},
		Logger: logger,
	})

	c.submitter = merge.NewSubmitter(merge.SubmitterConfig{
		API:           api,
		Sessions:      c.sessions,
		Backoff:       retry.New(cfg.RetryBaseDelay, cfg.MergeRetryMaxDelay, mediatypes.DefaultRetryJitter),
		Poller:        c.poller,
		Concurrency:   cfg.Concurrency,
		ExpectedCount: cfg.ExpectedMergeCount,
		Logger:        logger,
	})

	if c.queue != nil {
		watchCtx, cancel := context.WithCancel(context.Background())
		c.stopWatcher = cancel
		c.wg.Add(1)
		go c.watchConnectivity(watchCtx)
	}

	return c
}

// Sessions returns snapshots of every active upload session.
func (c *Client) Sessions() []mediatypes.UploadSession {
	return c.sessions.Sessions()
}

// Session returns a snapshot of the identified upload session.
func (c *Client) Session(id string) (mediatypes.UploadSession, bool) {
	return c.sessions.Get(id)
}

// Close stops the drain watcher and cancels every active upload session and
// merge poll. It does not wait for the cancelled work to unwind.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.stopWatcher != nil {
			c.stopWatcher()
		}
		for _, s := range c.sessions.Sessions() {
			c.sessions.Cancel(s.ID)
		}
		c.poller.CancelAll()
		c.wg.Wait()
	})
	return nil
}

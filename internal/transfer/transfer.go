// Package transfer implements the backend API over HTTP: multipart chunk
// bodies, JSON control calls, bearer auth, and per-request timeouts.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	mediaerrors "github.com/kingkw1/2Truths-1Lie-sub004/errors"
	"github.com/kingkw1/2Truths-1Lie-sub004/internal/mediaapi"
	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

// errorBodyLimit bounds how much of a failure response is read for detail.
const errorBodyLimit = 4096

// Config holds construction parameters for the HTTP client.
type Config struct {
	// BaseURL is the backend root, e.g. "https://api.example.com/api/v1"
	BaseURL string

	// HTTPClient overrides the underlying client; defaults to a plain one
	HTTPClient *http.Client

	// TokenProvider supplies the bearer token for every request
	TokenProvider mediatypes.TokenProvider

	// RequestTimeout bounds one round trip
	RequestTimeout time.Duration

	// Logger receives debug lines for each call
	Logger *slog.Logger
}

// Client talks to the app backend over HTTP. It implements mediaapi.API.
//
// Thread Safety: safe for concurrent use; all fields are immutable after
// construction.
type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  mediatypes.TokenProvider
	timeout time.Duration
	logger  *slog.Logger
}

// Verify that the HTTP client implements the backend interface.
var _ mediaapi.API = (*Client)(nil)

// New creates an HTTP backend client from the given configuration.
func New(cfg Config) *Client {
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{}
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = mediatypes.DefaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc:   httpc,
		tokens:  cfg.TokenProvider,
		timeout: timeout,
		logger:  logger,
	}
}

// UploadChunk implements mediaapi.API.
func (c *Client) UploadChunk(ctx context.Context, in *mediaapi.UploadChunkInput) error {
	const op = "transfer.upload_chunk"

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := map[string]string{
		"session_id":   in.SessionID,
		"chunk_index":  strconv.Itoa(in.ChunkIndex),
		"total_chunks": strconv.Itoa(in.TotalChunks),
		"filename":     in.Filename,
	}
	if in.ChunkHash != "" {
		fields["chunk_hash"] = in.ChunkHash
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return mediaerrors.NewSessionError(op, in.SessionID, mediaerrors.ErrStorage).
				WithMessage(fmt.Sprintf("write field %s: %v", name, err))
		}
	}

	part, err := createChunkPart(writer, in.Filename, in.ContentType)
	if err != nil {
		return mediaerrors.NewSessionError(op, in.SessionID, mediaerrors.ErrStorage).
			WithMessage(fmt.Sprintf("create chunk part: %v", err))
	}
	if _, err := io.Copy(part, in.Body); err != nil {
		return mediaerrors.NewSessionError(op, in.SessionID, mediaerrors.ErrStorage).
			WithMessage(fmt.Sprintf("read chunk bytes: %v", err))
	}
	if err := writer.Close(); err != nil {
		return mediaerrors.NewSessionError(op, in.SessionID, mediaerrors.ErrStorage).
			WithMessage(fmt.Sprintf("close multipart body: %v", err))
	}

	c.logger.Debug("uploading chunk",
		"session", in.SessionID, "chunk", in.ChunkIndex, "of", in.TotalChunks, "bytes", in.Size)

	return c.do(ctx, op, http.MethodPost, "/upload-chunk", writer.FormDataContentType(), body, nil)
}

// createChunkPart opens the file part carrying the chunk bytes with an
// explicit content type; CreateFormFile would pin application/octet-stream.
func createChunkPart(writer *multipart.Writer, filename, contentType string) (io.Writer, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="chunk"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	return writer.CreatePart(header)
}

// FinalizeUpload implements mediaapi.API.
func (c *Client) FinalizeUpload(
	ctx context.Context,
	in *mediaapi.FinalizeUploadInput,
) (*mediaapi.FinalizeUploadOutput, error) {
	const op = "transfer.finalize_upload"

	body, err := jsonBody(op, in)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("finalizing upload",
		"session", in.SessionID, "chunks", in.TotalChunks, "bytes", in.TotalSize)

	out := &mediaapi.FinalizeUploadOutput{}
	if err := c.do(ctx, op, http.MethodPost, "/finalize-upload", "application/json", body, out); err != nil {
		return nil, err
	}
	if out.MediaID == "" {
		return nil, mediaerrors.NewSessionError(op, in.SessionID, mediaerrors.ErrServer).
			WithMessage("response missing media_id")
	}
	return out, nil
}

// InitiateMerge implements mediaapi.API.
func (c *Client) InitiateMerge(
	ctx context.Context,
	in *mediaapi.InitiateMergeInput,
) (*mediaapi.InitiateMergeOutput, error) {
	const op = "transfer.initiate_merge"

	body, err := jsonBody(op, in)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("initiating merge", "job", in.JobID, "videos", len(in.Videos))

	out := &mediaapi.InitiateMergeOutput{}
	if err := c.do(ctx, op, http.MethodPost, "/upload-for-merge", "application/json", body, out); err != nil {
		return nil, err
	}
	if out.MergeSessionID == "" && !out.SyncComplete() {
		return nil, mediaerrors.NewError(op, mediaerrors.ErrServer).
			WithMessage("response missing merge_session_id")
	}
	return out, nil
}

// MergeStatus implements mediaapi.API.
func (c *Client) MergeStatus(ctx context.Context, mergeSessionID string) (*mediaapi.MergeStatusOutput, error) {
	const op = "transfer.merge_status"

	path := "/merge-session/" + url.PathEscape(mergeSessionID) + "/status"
	out := &mediaapi.MergeStatusOutput{}
	if err := c.do(ctx, op, http.MethodGet, path, "", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// do performs one authenticated round trip, classifying transport failures
// and non-2xx responses into the error taxonomy. When out is non-nil the
// response body is JSON-decoded into it.
func (c *Client) do(
	ctx context.Context,
	op, method, path, contentType string,
	body io.Reader,
	out any,
) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, body)
	if err != nil {
		return mediaerrors.NewError(op, mediaerrors.ErrValidation).
			WithMessage(fmt.Sprintf("build request: %v", err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if err := c.authorize(reqCtx, op, req); err != nil {
		return err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return mediaerrors.FromTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mediaerrors.FromStatus(op, resp.StatusCode, errorDetail(resp.Body))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return mediaerrors.NewError(op, mediaerrors.ErrServer).
				WithMessage(fmt.Sprintf("decode response: %v", err))
		}
	}
	return nil
}

// authorize attaches the bearer token. A failing token provider surfaces as
// an auth error so it is never retried.
func (c *Client) authorize(ctx context.Context, op string, req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return mediaerrors.NewError(op, mediaerrors.ErrAuth).
			WithMessage(fmt.Sprintf("token provider: %v", err))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// jsonBody marshals a request payload, classifying failures as validation.
func jsonBody(op string, in any) (io.Reader, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, mediaerrors.NewError(op, mediaerrors.ErrValidation).
			WithMessage(fmt.Sprintf("encode request: %v", err))
	}
	return bytes.NewReader(raw), nil
}

// errorDetail extracts a human-readable message from a failure response,
// preferring a JSON message/error field over the raw body.
func errorDetail(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, errorBodyLimit))
	trimmed := strings.TrimSpace(string(raw))

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		case payload.Detail != "":
			return payload.Detail
		}
	}
	return trimmed
}

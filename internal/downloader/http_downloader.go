package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iconidentify/bsvdl/internal/config"
)

// maxTextSize caps playlist bodies read by FetchText.
const maxTextSize = 4 * 1024 * 1024

var (
	// ErrAccessDenied is returned for 401 and 403 responses.
	ErrAccessDenied = errors.New("access denied")
	// ErrRateLimited is returned for 429 responses.
	ErrRateLimited = errors.New("rate limited")
)

// StatusError is a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", e.Code, e.URL)
}

// Is maps status codes onto the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrAccessDenied:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case ErrRateLimited:
		return e.Code == http.StatusTooManyRequests
	}
	return false
}

// FailureReason classifies a fetch error into a short label for metrics.
func FailureReason(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.As(err, &se):
		return "status"
	}
	return "transport"
}

// HTTPDownloader fetches HLS manifests and media segments over HTTP. Each call is a
// single attempt bounded by the configured timeout; callers decide whether a
// failure is worth repeating.
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewHTTPDownloader creates a new HTTP downloader.
func NewHTTPDownloader(cfg config.DownloadConfig) *HTTPDownloader {
	return &HTTPDownloader{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent: cfg.UserAgent,
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger.
func (d *HTTPDownloader) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// Download fetches url. The timeout covers reading the body as well.
func (d *HTTPDownloader) Download(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	resp, err := d.get(ctx, url, "video/mp2t,video/*;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, 0, err
	}

	size := resp.ContentLength
	if size < 0 {
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if n, perr := strconv.ParseInt(cl, 10, 64); perr == nil {
				size = n
			}
		}
	}

	return resp.Body, size, nil
}

// FetchText fetches url and returns its body as a string.
func (d *HTTPDownloader) FetchText(ctx context.Context, url string) (string, error) {
	resp, err := d.get(ctx, url, "application/vnd.apple.mpegurl,application/x-mpegurl,text/plain;q=0.9,*/*;q=0.8")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTextSize+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxTextSize {
		return "", fmt.Errorf("response from %s exceeds %d bytes", url, maxTextSize)
	}
	return string(data), nil
}

func (d *HTTPDownloader) get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	req.Header.Set("Accept", accept)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		d.logger.Debug("fetch rejected", "url", url, "status", resp.StatusCode)
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	return resp, nil
}

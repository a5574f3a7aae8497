package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Image is a validated image ready to be uploaded.
type Image struct {
	Data     []byte
	MimeType string
	Filename string
}

// Fetcher downloads images over HTTP.
type Fetcher struct {
	cfg        Config
	validator  *Validator
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries uint64
}

// NewFetcher creates a fetcher for the configured self-image URL.
func NewFetcher(cfg Config, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		cfg:        cfg,
		validator:  NewValidator(cfg),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "media"),
		maxRetries: 2,
	}
}

// SelfImage fetches a picture of Rocco.
func (f *Fetcher) SelfImage(ctx context.Context) (*Image, error) {
	if f.cfg.SelfImageURL == "" {
		return nil, fmt.Errorf("media: self image URL is not configured")
	}
	return f.Fetch(ctx, f.cfg.SelfImageURL)
}

// Fetch downloads an image, retrying transient failures.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Image, error) {
	var data []byte
	var contentType string

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("downloading image: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("image host returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("image host returned %d", resp.StatusCode))
		}

		limit := f.cfg.MaxImageSize
		if limit <= 0 {
			limit = DefaultConfig().MaxImageSize
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		data = body
		contentType = resp.Header.Get("Content-Type")
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		f.logger.Warn("image fetch failed, retrying", "url", url, "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, fmt.Errorf("media: %w", err)
	}

	result, err := f.validator.ValidateImage(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("media: %w", err)
	}

	f.logger.Debug("image fetched", "url", url, "mime", result.MimeType, "size", result.Size)
	return &Image{
		Data:     data,
		MimeType: result.MimeType,
		Filename: ImageFilename("rocco", result.MimeType),
	}, nil
}

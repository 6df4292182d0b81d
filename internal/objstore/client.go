package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/retry"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrUnsupportedURL = errors.New("attachment url not supported")
)

// Storage is the narrow object-storage surface the pipelines consume.
// It is only ever invoked, never reimplemented.
type Storage interface {
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	CreateSignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
	RenderURL(bucket, path string, opts RenderOptions) string
	DownloadURL(ctx context.Context, rawURL string) ([]byte, error)
}

// RenderOptions are the query parameters the storage-side image
// transform endpoint accepts.
type RenderOptions struct {
	Width   int
	Quality int
	Resize  string
}

type Config struct {
	BaseURL        string
	ServiceKey     string
	RequestTimeout time.Duration
}

// Client talks to a hosted storage service over its REST surface.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	timeout    time.Duration
	policy     retry.Policy
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("storage base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    base,
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		policy:     retry.DefaultPolicy(),
		logger:     logger,
	}, nil
}

func (c *Client) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, url.PathEscape(bucket), escapeObjectPath(path))
	return c.fetch(ctx, endpoint)
}

// DownloadURL fetches an absolute URL (signed or public) directly.
func (c *Client) DownloadURL(ctx context.Context, rawURL string) ([]byte, error) {
	return c.fetch(ctx, rawURL)
}

func (c *Client) CreateSignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", c.baseURL, url.PathEscape(bucket), escapeObjectPath(path))
	payload, err := json.Marshal(map[string]any{"expiresIn": int(ttl.Seconds())})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", bucket, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sign %s/%s: status %d", bucket, path, resp.StatusCode)
	}

	var body struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", bucket, path, err)
	}
	if body.SignedURL == "" {
		return "", fmt.Errorf("sign %s/%s: empty signed url", bucket, path)
	}
	if strings.HasPrefix(body.SignedURL, "http") {
		return body.SignedURL, nil
	}
	return c.baseURL + "/storage/v1" + ensureLeadingSlash(body.SignedURL), nil
}

// RenderURL builds the transform-on-read endpoint URL for an object.
func (c *Client) RenderURL(bucket, path string, opts RenderOptions) string {
	endpoint := fmt.Sprintf("%s/storage/v1/render/image/authenticated/%s/%s", c.baseURL, url.PathEscape(bucket), escapeObjectPath(path))
	query := url.Values{}
	if opts.Width > 0 {
		query.Set("width", strconv.Itoa(opts.Width))
	}
	if opts.Quality > 0 {
		query.Set("quality", strconv.Itoa(opts.Quality))
	}
	if opts.Resize != "" {
		query.Set("resize", opts.Resize)
	}
	if encoded := query.Encode(); encoded != "" {
		return endpoint + "?" + encoded
	}
	return endpoint
}

func (c *Client) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	var data []byte
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		c.authorize(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Transient(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case retry.RetryableStatus(resp.StatusCode):
			c.logger.Debug("storage fetch retryable status",
				zap.String("url", endpoint), zap.Int("status", resp.StatusCode))
			return retry.Transient(fmt.Errorf("status %d", resp.StatusCode))
		default:
			return fmt.Errorf("status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.Transient(err)
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	return data, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
		req.Header.Set("apikey", c.serviceKey)
	}
}

// ParseObjectURL extracts (bucket, path) from a recognized storage
// object URL. Unrecognized hosts or shapes are a contract violation,
// reported via ErrUnsupportedURL.
func ParseObjectURL(rawURL string) (bucket, path string, err error) {
	parsed, parseErr := url.Parse(rawURL)
	if parseErr != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	// Expected shapes:
	//   storage/v1/object/{bucket}/{path...}
	//   storage/v1/object/public/{bucket}/{path...}
	//   storage/v1/object/sign/{bucket}/{path...}
	//   storage/v1/render/image/authenticated/{bucket}/{path...}
	for i := 0; i+2 < len(segments); i++ {
		if segments[i] != "storage" || segments[i+1] != "v1" {
			continue
		}
		rest := segments[i+2:]
		switch rest[0] {
		case "object":
			rest = rest[1:]
			if len(rest) > 0 && (rest[0] == "public" || rest[0] == "sign" || rest[0] == "authenticated") {
				rest = rest[1:]
			}
		case "render":
			if len(rest) < 3 || rest[1] != "image" {
				return "", "", fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
			}
			rest = rest[2:]
			if len(rest) > 0 && (rest[0] == "authenticated" || rest[0] == "public") {
				rest = rest[1:]
			}
		default:
			return "", "", fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
		}
		if len(rest) < 2 {
			return "", "", fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
		}
		return rest[0], strings.Join(rest[1:], "/"), nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
}

func escapeObjectPath(path string) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

func ensureLeadingSlash(s string) string {
	if strings.HasPrefix(s, "/") {
		return s
	}
	return "/" + s
}

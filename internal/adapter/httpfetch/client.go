package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/vertextoedge/batch-bootstrapper/internal/domain"
	"github.com/vertextoedge/batch-bootstrapper/internal/port"
	"github.com/vertextoedge/batch-bootstrapper/internal/util/ratelimiter"
	"github.com/vertextoedge/batch-bootstrapper/internal/version"
)

const (
	// DefaultConnectTimeout bounds TCP connection establishment
	DefaultConnectTimeout = 30 * time.Second

	// DefaultReadTimeout bounds every single read on the connection
	DefaultReadTimeout = 60 * time.Second

	// DefaultProgressInterval spaces progress logs of long downloads
	DefaultProgressInterval = 5 * time.Second
)

// Client is the HTTP transport to the analysis server
type Client struct {
	baseURL          string
	userAgent        string
	httpClient       *http.Client
	progressInterval time.Duration
	logger           *zap.Logger
}

// Ensure Client implements port.Fetcher
var _ port.Fetcher = (*Client)(nil)

// ClientConfig contains optional client configuration
type ClientConfig struct {
	ConnectTimeout time.Duration // default: 30s
	ReadTimeout    time.Duration // default: 60s

	ProgressInterval time.Duration // default: 5s
}

// NewClient creates a new server client
func NewClient(baseURL, clientToken string, logger *zap.Logger) *Client {
	return NewClientWithConfig(baseURL, clientToken, logger, nil)
}

// NewClientWithConfig creates a new server client with custom timeouts
func NewClientWithConfig(baseURL, clientToken string, logger *zap.Logger, cfg *ClientConfig) *Client {
	connectTimeout := DefaultConnectTimeout
	readTimeout := DefaultReadTimeout
	progressInterval := DefaultProgressInterval
	if cfg != nil && cfg.ProgressInterval > 0 {
		progressInterval = cfg.ProgressInterval
	}
	if cfg != nil && cfg.ConnectTimeout > 0 {
		connectTimeout = cfg.ConnectTimeout
	}
	if cfg != nil && cfg.ReadTimeout > 0 {
		readTimeout = cfg.ReadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: conn, readTimeout: readTimeout}, nil
		},
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,

		// Artifacts are already compressed archives
		DisableCompression: true,
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: version.UserAgent(clientToken),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   0, // No total timeout; reads are bounded by the connection deadline
		},
		progressInterval: progressInterval,
		logger:           logger,
	}
}

// BaseURL returns the server base URL without trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UserAgent returns the User-Agent header sent with every request
func (c *Client) UserAgent() string {
	return c.userAgent
}

// URL returns the absolute URL for a server path
func (c *Client) URL(path string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// Get performs a GET request. Redirects are followed.
func (c *Client) Get(path string) (*port.Response, error) {
	urlStr := c.URL(path)

	req, err := http.NewRequest(http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("GET", zap.String("url", urlStr))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isUnreachable(err) {
			return nil, domain.NewServerUnreachableError(c.baseURL, err)
		}
		return nil, domain.NewDownloadError(urlStr, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, domain.NewInvalidStatusError(urlStr, resp.StatusCode)
	}

	return &port.Response{
		URL:         urlStr,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
	}, nil
}

// DownloadString performs a GET and decodes the body as text
func (c *Client) DownloadString(path string) (string, error) {
	resp, err := c.Get(path)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if charset, ok := CharsetFromContentType(resp.ContentType); ok && charset != "UTF-8" {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			c.logger.Debug("unknown charset, decoding as UTF-8",
				zap.String("url", resp.URL),
				zap.String("charset", charset))
		} else {
			reader = enc.NewDecoder().Reader(resp.Body)
		}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", domain.NewDownloadError(resp.URL, err)
	}
	return string(body), nil
}

// DownloadFile performs a GET and streams the body to w without buffering
// the whole payload. On error, w may hold a partial payload; the caller owns
// discarding it.
func (c *Client) DownloadFile(path string, w io.Writer) (int64, error) {
	resp, err := c.Get(path)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body := &progressReader{
		reader:  resp.Body,
		url:     resp.URL,
		limiter: ratelimiter.New(c.progressInterval),
		logger:  c.logger,
	}
	body.limiter.Allow() // first report after one interval

	written, err := io.Copy(w, body)
	if err != nil {
		return written, domain.NewDownloadError(resp.URL, err)
	}
	return written, nil
}

// progressReader logs the bytes read so far, at most once per interval
type progressReader struct {
	reader    io.Reader
	url       string
	bytesRead int64
	limiter   *ratelimiter.Limiter
	logger    *zap.Logger
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.bytesRead += int64(n)

	if n > 0 && r.limiter.Allow() {
		r.logger.Debug("download in progress",
			zap.String("url", r.url),
			zap.String("received", humanize.Bytes(uint64(r.bytesRead))))
	}
	return n, err
}

// CharsetFromContentType extracts the charset parameter of a Content-Type
// header value. The name is trimmed, unquoted and upper-cased.
func CharsetFromContentType(contentType string) (string, bool) {
	if contentType == "" {
		return "", false
	}

	idx := indexFold(contentType, "charset=")
	if idx < 0 {
		return "", false
	}

	value := contentType[idx+len("charset="):]
	if end := strings.IndexByte(value, ';'); end >= 0 {
		value = value[:end]
	}
	value = strings.TrimSpace(value)
	value = strings.Trim(value, `"'`)
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return strings.ToUpper(value), true
}

// indexFold is a case-insensitive strings.Index for an ASCII key. Offsets
// index into s itself, whatever bytes it holds.
func indexFold(s, key string) int {
	for i := 0; i+len(key) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(key)], key) {
			return i
		}
	}
	return -1
}

// isUnreachable returns true for connection refused and host resolution failures
func isUnreachable(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return !opErr.Timeout()
	}
	return false
}

// deadlineConn applies a fresh read deadline before every read
type deadlineConn struct {
	net.Conn
	readTimeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

package port

import (
	"io"
)

// Response is the result of a single GET against the server.
// The caller must close Body.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
}

// Fetcher defines the transport used to talk to the server.
// Paths are relative to the server base URL, e.g. "/api/server/version".
type Fetcher interface {
	// Get performs a GET and returns the raw response for 2xx statuses.
	// Returns *domain.InvalidStatusError for other statuses and
	// *domain.ServerUnreachableError when the host cannot be contacted.
	Get(path string) (*Response, error)

	// DownloadString performs a GET and decodes the body with the charset
	// of the response content type (UTF-8 by default)
	DownloadString(path string) (string, error)

	// DownloadFile performs a GET and streams the body to w
	// Returns: bytes written, error
	DownloadFile(path string, w io.Writer) (int64, error)

	// URL returns the absolute URL for a server path
	URL(path string) string
}

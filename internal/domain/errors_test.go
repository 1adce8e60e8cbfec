package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestBootstrapError_Error(t *testing.T) {
	tests := []struct {
		name string
		op   string
		err  error
		want string
	}{
		{
			name: "with op and error",
			op:   "fetch index",
			err:  errors.New("underlying error"),
			want: "bootstrap failed: fetch index: underlying error",
		},
		{
			name: "with op only",
			op:   "fetch index",
			err:  nil,
			want: "bootstrap failed: fetch index",
		},
		{
			name: "with error only",
			op:   "",
			err:  errors.New("underlying error"),
			want: "bootstrap failed: underlying error",
		},
		{
			name: "empty",
			want: "bootstrap failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := NewBootstrapError(tt.op, tt.err)
			if got := be.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBootstrapError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	be := NewBootstrapError("op", underlying)

	if got := be.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestIsServerUnreachable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "unreachable error",
			err:  NewServerUnreachableError("http://localhost:1", errors.New("connection refused")),
			want: true,
		},
		{
			name: "wrapped in bootstrap error",
			err:  NewBootstrapError("query server version", NewServerUnreachableError("http://x", nil)),
			want: true,
		},
		{
			name: "sentinel",
			err:  fmt.Errorf("wrapped: %w", ErrServerUnreachable),
			want: true,
		},
		{
			name: "invalid status is not unreachable",
			err:  NewInvalidStatusError("http://x/batch/", 500),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServerUnreachable(tt.err); got != tt.want {
				t.Errorf("IsServerUnreachable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInvalidStatusError(t *testing.T) {
	err := NewBootstrapError("fetch index", NewInvalidStatusError("http://x/batch_bootstrap/index", 404))

	if !errors.Is(err, ErrInvalidStatus) {
		t.Error("wrapped InvalidStatusError should match ErrInvalidStatus")
	}

	code, ok := StatusCode(err)
	if !ok || code != 404 {
		t.Errorf("StatusCode() = (%d, %v), want (404, true)", code, ok)
	}

	want := "status returned by url [http://x/batch_bootstrap/index] is not valid: [404]"
	if got := NewInvalidStatusError("http://x/batch_bootstrap/index", 404).Error(); got != want {
		t.Errorf("Error() = %v, want %v", got, want)
	}
}

func TestDownloadError(t *testing.T) {
	underlying := errors.New("unexpected EOF")
	err := fmt.Errorf("wrapped: %w", NewDownloadError("http://x/batch/foo.jar", underlying))

	if !errors.Is(err, ErrDownloadFailed) {
		t.Error("DownloadError should match ErrDownloadFailed")
	}
	if !errors.Is(err, underlying) {
		t.Error("DownloadError should unwrap to the transport error")
	}
	if IsBootstrapError(err) {
		t.Error("DownloadError is not a bootstrap error")
	}
	if !IsBootstrapError(NewBootstrapError("download", err)) {
		t.Error("BootstrapError should be detected")
	}
}

package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ErrChecksumMismatch is returned when the downloaded content does not
// match the expected SHA-256.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ErrStatus matches every StatusError.
var ErrStatus = errors.New("unexpected HTTP status")

// StatusError is returned for a non-200 HTTP response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", ErrStatus, e.Status)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// retryable reports whether another attempt may succeed. Only network
// failures, 5xx and 429 qualify; checksum and local filesystem errors
// would fail the same way again.
func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests
	}
	if errors.Is(err, ErrChecksumMismatch) {
		return false
	}
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) {
		return false
	}
	return true
}

type result struct {
	bytes  int64
	sha256 string
}

type fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// fetch performs a single attempt. Content is streamed into dest+".part"
// and renamed to dest once complete and verified.
func (f *fetcher) fetch(ctx context.Context, url, dest, wantSum string) (*result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}
	partPath := dest + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", partPath, err)
	}

	hash := sha256.New()
	progress := &progressWriter{logger: f.logger, total: resp.ContentLength, last: time.Now()}
	n, copyErr := io.Copy(io.MultiWriter(out, hash, progress), resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(partPath)
		return nil, fmt.Errorf("failed to read response body: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(partPath)
		return nil, fmt.Errorf("failed to close %s: %w", partPath, closeErr)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		os.Remove(partPath)
		return nil, fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength)
	}

	sum := hex.EncodeToString(hash.Sum(nil))
	if wantSum != "" && !strings.EqualFold(sum, wantSum) {
		os.Remove(partPath)
		return nil, fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, sum, wantSum)
	}

	if err := os.Rename(partPath, dest); err != nil {
		return nil, fmt.Errorf("failed to move %s into place: %w", partPath, err)
	}

	f.logger.Info("Download complete.", "size", humanize.Bytes(uint64(n)), "sha256", sum)
	return &result{bytes: n, sha256: sum}, nil
}

const progressInterval = 10 * time.Second

// progressWriter logs transfer progress at most every progressInterval.
type progressWriter struct {
	logger  *slog.Logger
	total   int64
	written int64
	last    time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if time.Since(p.last) >= progressInterval {
		p.last = time.Now()
		attrs := []any{"received", humanize.Bytes(uint64(p.written))}
		if p.total > 0 {
			attrs = append(attrs,
				"total", humanize.Bytes(uint64(p.total)),
				"percent", fmt.Sprintf("%.1f", float64(p.written)*100/float64(p.total)))
		}
		p.logger.Info("Downloading...", attrs...)
	}
	return len(b), nil
}

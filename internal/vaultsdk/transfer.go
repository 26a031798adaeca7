package vaultsdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/partvault/partvault/internal/utils"
)

// DefaultTransferWorkers bounds concurrent file transfers in pooled helpers.
const DefaultTransferWorkers = 4

// Transfer moves file content between the vault and the blob store. Two
// implementations exist: presigned HTTP (default) and direct S3-compatible
// object storage for self-hosted vaults.
type Transfer interface {
	// Upload sends the file at job.FilePath and returns the content
	// reference to pass to Checkin.
	Upload(ctx context.Context, job *UploadJob) (*UploadResult, error)
	// Download writes the requested content version to job.DestPath.
	// Callers verify the fingerprint and move the file into place.
	Download(ctx context.Context, job *DownloadJob) error
}

type UploadJob struct {
	FileID   string
	Version  int64
	FilePath string
	ETag     string
	Size     int64
	Callback ProgressCallback
}

type UploadResult struct {
	ContentRef string
	ETag       string
}

type DownloadJob struct {
	FileID   string
	Path     string // vault-relative, for progress reporting
	Version  int64
	DestPath string
	Callback ProgressCallback
}

type DownloadResult struct {
	Job   *DownloadJob
	Error error
}

// HTTPTransfer is the presigned-URL implementation of Transfer.
type HTTPTransfer struct {
	blob *BlobAPI
}

func NewHTTPTransfer(blob *BlobAPI) *HTTPTransfer {
	return &HTTPTransfer{blob: blob}
}

var _ Transfer = (*HTTPTransfer)(nil)

func (t *HTTPTransfer) Upload(ctx context.Context, job *UploadJob) (*UploadResult, error) {
	if !utils.FileExists(job.FilePath) {
		return nil, ErrFileNotFound
	}

	issued, err := t.blob.UploadURL(ctx, &UploadURLParams{
		FileID: job.FileID,
		ETag:   job.ETag,
		Size:   job.Size,
	})
	if err != nil {
		return nil, err
	}

	if err := putPresigned(ctx, issued.URL, job.FilePath, job.Callback); err != nil {
		return nil, err
	}

	return &UploadResult{ContentRef: issued.ContentRef, ETag: job.ETag}, nil
}

func (t *HTTPTransfer) Download(ctx context.Context, job *DownloadJob) error {
	issued, err := t.blob.DownloadURL(ctx, &DownloadURLParams{
		FileID:  job.FileID,
		Version: job.Version,
	})
	if err != nil {
		return err
	}

	return getPresigned(ctx, issued.URL, job.DestPath, job.Callback)
}

// putPresigned uploads with net/http rather than the API client: the body
// must stream from disk with an explicit Content-Length, and presigned URLs
// carry their own auth.
func putPresigned(ctx context.Context, url string, path string, callback ProgressCallback) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return err
	}

	body := &progressReader{
		reader:    file,
		totalSize: fileInfo.Size(),
		callback:  callback,
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return err
	}
	httpReq.ContentLength = fileInfo.Size() // presigned PUT requires an exact length
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return &TransportError{Op: "blob put", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("blob put: %w", presignedStatusError(resp.StatusCode, ""))
	}

	return nil
}

// getPresigned downloads to destPath. The parent directory is created; the
// destination is overwritten.
func getPresigned(ctx context.Context, url string, destPath string, callback ProgressCallback) error {
	if err := utils.EnsureParent(destPath); err != nil {
		return fmt.Errorf("blob get: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return &TransportError{Op: "blob get", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("blob get: %w", presignedStatusError(resp.StatusCode, ""))
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}

	body := &progressReader{
		reader:    resp.Body,
		totalSize: resp.ContentLength,
		callback:  callback,
	}

	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		os.Remove(destPath)
		return fmt.Errorf("blob get: %w", err)
	}
	return out.Close()
}

func presignedStatusError(status int, detail string) *PresignedURLError {
	switch status {
	case http.StatusForbidden:
		if strings.Contains(detail, "expired") {
			return NewPresignedURLError(CodePresignedExpired, "expired")
		}
		return NewPresignedURLError(CodePresignedForbidden, "access denied")
	case http.StatusNotFound:
		return NewPresignedURLError(CodePresignedNotFound, "not found")
	case http.StatusTooManyRequests:
		return NewPresignedURLError(CodeRateLimited, "rate limit exceeded")
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return NewPresignedURLError(CodeInternalError, http.StatusText(status))
	default:
		return NewPresignedURLError(CodeUnknownError, http.StatusText(status))
	}
}

// DownloadAll fans jobs out to a bounded worker pool and streams results.
// The channel closes when every job finished or ctx was cancelled.
func DownloadAll(ctx context.Context, t Transfer, jobs []*DownloadJob, workers int) <-chan *DownloadResult {
	work := make(chan *DownloadJob, len(jobs))
	results := make(chan *DownloadResult, len(jobs))

	if workers <= 0 {
		workers = DefaultTransferWorkers
	}

	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			for job := range work {
				select {
				case <-ctx.Done():
					return
				default:
					err := t.Download(ctx, job)
					results <- &DownloadResult{Job: job, Error: err}
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, job := range jobs {
			select {
			case <-ctx.Done():
				return
			case work <- job:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

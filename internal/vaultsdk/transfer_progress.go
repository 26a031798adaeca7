package vaultsdk

import (
	"io"
	"time"
)

// ProgressCallback receives transferred and total byte counts. Total may be
// -1 when the server did not send a length.
type ProgressCallback func(transferred int64, total int64)

// progressReader wraps a reader and reports progress at most twice a second,
// plus once at EOF so callers always see the final count.
type progressReader struct {
	reader      io.Reader
	transferred int64
	totalSize   int64
	callback    ProgressCallback
	lastReport  time.Time
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.transferred += int64(n)
	}

	if pr.callback != nil {
		now := time.Now()
		if now.Sub(pr.lastReport) > 500*time.Millisecond || err == io.EOF {
			pr.callback(pr.transferred, pr.totalSize)
			pr.lastReport = now
		}
	}

	return n, err
}

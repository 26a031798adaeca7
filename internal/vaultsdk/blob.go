package vaultsdk

import (
	"context"

	"github.com/imroc/req/v3"
)

const (
	v1BlobUploadURL   = "/api/v1/blob/upload"
	v1BlobDownloadURL = "/api/v1/blob/download"
)

// BlobAPI issues presigned transfer URLs. Content bytes never flow through
// the record API; they go straight to the blob store.
type BlobAPI struct {
	client *req.Client
}

func newBlobAPI(client *req.Client) *BlobAPI {
	return &BlobAPI{
		client: client,
	}
}

type UploadURLParams struct {
	FileID string `json:"fileId"`
	ETag   string `json:"etag"`
	Size   int64  `json:"size"`
}

type UploadURLResponse struct {
	URL        string `json:"url"`
	ContentRef string `json:"contentRef"`
}

type DownloadURLParams struct {
	FileID  string `json:"fileId"`
	Version int64  `json:"version"`
}

type DownloadURLResponse struct {
	URL  string `json:"url"`
	ETag string `json:"etag"`
	Size int64  `json:"size"`
}

// UploadURL requests a presigned PUT URL for the file's next content.
func (b *BlobAPI) UploadURL(ctx context.Context, params *UploadURLParams) (*UploadURLResponse, error) {
	var apiResp UploadURLResponse

	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&apiResp).
		Post(v1BlobUploadURL)

	if err := handleAPIError(resp, err, "blob upload url"); err != nil {
		return nil, err
	}

	return &apiResp, nil
}

// DownloadURL requests a presigned GET URL for a specific content version.
func (b *BlobAPI) DownloadURL(ctx context.Context, params *DownloadURLParams) (*DownloadURLResponse, error) {
	var apiResp DownloadURLResponse

	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&apiResp).
		Post(v1BlobDownloadURL)

	if err := handleAPIError(resp, err, "blob download url"); err != nil {
		return nil, err
	}

	return &apiResp, nil
}

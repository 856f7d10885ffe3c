package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"
)

// UploadRequest carries everything an uploader needs for one attempt.
type UploadRequest struct {
	// FilePath is the absolute path of the media file.
	FilePath string
	// Metadata describes the listing.
	Metadata Metadata
	// ClientID, ClientSecret, and RefreshToken authenticate the call.
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// UploadResult is a successful upload.
type UploadResult struct {
	VideoID string
}

// APIError is a rejected upload attempt. Status codes 429 and 5xx are
// transient and retried; everything else is terminal.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upload API returned %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the attempt may be repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Uploader performs one publish attempt. Implementations return *APIError
// for rejections so the retry loop can classify them.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
}

// HTTPUploader publishes over a multipart POST to a configured endpoint.
type HTTPUploader struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPUploader builds an uploader for the given endpoint.
func NewHTTPUploader(endpoint string) *HTTPUploader {
	return &HTTPUploader{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 10 * time.Minute},
	}
}

type uploadResponse struct {
	ID string `json:"id"`
}

// Upload sends the file and its metadata in a single multipart request.
func (u *HTTPUploader) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	file, err := os.Open(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open media file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	metaPart, err := writer.CreateFormField("metadata")
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(metaPart).Encode(req.Metadata); err != nil {
		return nil, err
	}

	filePart, err := writer.CreateFormFile("media", "video.mp4")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(filePart, file); err != nil {
		return nil, fmt.Errorf("read media file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.Endpoint, &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+req.RefreshToken)

	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		// Transport failures look the same as a 5xx to the retry loop.
		return nil, &APIError{StatusCode: http.StatusServiceUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(msg))}
	}

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &APIError{StatusCode: http.StatusBadGateway, Message: "unparsable upload response"}
	}
	return &UploadResult{VideoID: parsed.ID}, nil
}

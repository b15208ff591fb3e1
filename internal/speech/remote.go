package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 60 * time.Second

// saveAudio streams a response body into a temporary file and measures it.
// The file is removed on any error.
func saveAudio(ctx context.Context, body io.Reader, workDir, format, backend string, probe Probe) (*Asset, error) {
	file, err := createTemp(workDir, format)
	if err != nil {
		return nil, err
	}
	asset := &Asset{Path: file.Name(), Format: format, Backend: backend}

	n, err := io.Copy(file, body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		asset.Release()
		return nil, fmt.Errorf("write %s audio: %w", backend, err)
	}
	if n == 0 {
		asset.Release()
		return nil, fmt.Errorf("%s returned empty audio", backend)
	}

	duration, err := probe(ctx, asset.Path)
	if err != nil {
		asset.Release()
		return nil, fmt.Errorf("measure %s audio: %w", backend, err)
	}
	if duration <= 0 {
		asset.Release()
		return nil, ErrNoDuration
	}
	asset.Duration = duration
	return asset, nil
}

// APIError is returned when a remote backend answers with a non-2xx status.
type APIError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Backend, e.StatusCode, e.Body)
}

func checkResponse(backend string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{Backend: backend, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func formatFromContentType(contentType, fallback string) string {
	switch {
	case strings.Contains(contentType, "wav"):
		return "wav"
	case strings.Contains(contentType, "mpeg"), strings.Contains(contentType, "mp3"):
		return "mp3"
	case strings.Contains(contentType, "ogg"), strings.Contains(contentType, "opus"):
		return "ogg"
	case strings.Contains(contentType, "flac"):
		return "flac"
	case strings.Contains(contentType, "aac"):
		return "aac"
	}
	return fallback
}

// Package azuredocintel provides the FileLoader for PDF uploads backed by
// the Azure Document Intelligence prebuilt-layout model. The document is
// submitted as base64 and the analyze operation is polled until it
// completes, with a 300 s total budget and exponential backoff.
package azuredocintel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/MrWong99/sandakan/pkg/provider/extract"
)

const (
	// APIVersion is the Document Intelligence REST API version.
	APIVersion = "2024-11-30"

	// PollTimeout bounds the whole submit-and-poll cycle.
	PollTimeout = 300 * time.Second

	initialBackoff = 2 * time.Second
	maxBackoff     = 60 * time.Second
)

// Ensure Loader implements the extract.FileLoader interface.
var _ extract.FileLoader = (*Loader)(nil)

// Loader extracts markdown text from PDFs via Azure Document Intelligence.
type Loader struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// New constructs a Loader for the given resource endpoint
// (e.g. "https://myresource.cognitiveservices.azure.com").
func New(endpoint, apiKey string) (*Loader, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("azuredocintel: endpoint must not be empty")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("azuredocintel: apiKey must not be empty")
	}
	return &Loader{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
	}, nil
}

// ExtractText implements extract.FileLoader.
func (l *Loader) ExtractText(ctx context.Context, data []byte, doc domain.Document) (string, error) {
	if doc.ContentType != domain.ContentTypePdf {
		return "", fmt.Errorf("%w: %s", extract.ErrUnsupportedContentType, doc.ContentType.MIME())
	}

	ctx, cancel := context.WithTimeout(ctx, PollTimeout)
	defer cancel()

	operationURL, err := l.submit(ctx, data)
	if err != nil {
		return "", err
	}
	markdown, err := l.pollUntilComplete(ctx, operationURL)
	if err != nil {
		return "", err
	}

	text := extract.Sanitize(markdown)
	if text == "" {
		return "", fmt.Errorf("%w: %s", extract.ErrNoTextFound, doc.Filename)
	}
	return text, nil
}

// submit starts the analyze operation and returns the Operation-Location URL.
func (l *Loader) submit(ctx context.Context, data []byte) (string, error) {
	body, err := json.Marshal(map[string]string{
		"base64Source": base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", extract.ErrExtractionFailed, err)
	}

	url := fmt.Sprintf(
		"%s/documentintelligence/documentModels/prebuilt-layout:analyze?api-version=%s&outputContentFormat=markdown",
		l.endpoint, APIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", extract.ErrExtractionFailed, err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", l.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: azure submit: %v", extract.ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: azure submit returned %d: %s", extract.ErrExtractionFailed, resp.StatusCode, respBody)
	}

	operationURL := resp.Header.Get("Operation-Location")
	if operationURL == "" {
		return "", fmt.Errorf("%w: azure response missing Operation-Location header", extract.ErrExtractionFailed)
	}
	return operationURL, nil
}

// analyzeResponse is the poll result envelope.
type analyzeResponse struct {
	Status        string `json:"status"`
	AnalyzeResult *struct {
		Content string `json:"content"`
	} `json:"analyzeResult"`
}

// pollUntilComplete polls the operation URL until it succeeds or fails.
// 429 responses honor the Retry-After header; otherwise the backoff doubles
// from 2 s up to 60 s. The context deadline bounds the whole cycle.
func (l *Loader) pollUntilComplete(ctx context.Context, operationURL string) (string, error) {
	backoff := initialBackoff

	for {
		status, result, retryAfter, err := l.pollOnce(ctx, operationURL)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: azure polling timed out after %s", extract.ErrExtractionFailed, PollTimeout)
			}
			return "", err
		}

		switch status {
		case "succeeded":
			return result, nil
		case "failed":
			return "", fmt.Errorf("%w: azure document analysis failed", extract.ErrExtractionFailed)
		case "throttled":
			wait := backoff
			if retryAfter > 0 {
				wait = retryAfter
			}
			if err := sleep(ctx, wait); err != nil {
				return "", fmt.Errorf("%w: azure polling timed out after %s", extract.ErrExtractionFailed, PollTimeout)
			}
		default:
			if err := sleep(ctx, backoff); err != nil {
				return "", fmt.Errorf("%w: azure polling timed out after %s", extract.ErrExtractionFailed, PollTimeout)
			}
			backoff = min(backoff*2, maxBackoff)
		}
	}
}

// pollOnce performs a single GET on the operation URL. A 429 is reported as
// status "throttled" with the parsed Retry-After duration.
func (l *Loader) pollOnce(ctx context.Context, operationURL string) (status, content string, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, operationURL, nil)
	if err != nil {
		return "", "", 0, fmt.Errorf("%w: %v", extract.ErrExtractionFailed, err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", l.apiKey)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", "", 0, fmt.Errorf("%w: azure poll: %v", extract.ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, parseErr := strconv.Atoi(resp.Header.Get("Retry-After")); parseErr == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return "throttled", "", retryAfter, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", "", 0, fmt.Errorf("%w: azure poll returned %d: %s", extract.ErrExtractionFailed, resp.StatusCode, respBody)
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", "", 0, fmt.Errorf("%w: azure response parse: %v", extract.ErrExtractionFailed, err)
	}
	if parsed.AnalyzeResult != nil {
		content = parsed.AnalyzeResult.Content
	}
	return parsed.Status, content, 0, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

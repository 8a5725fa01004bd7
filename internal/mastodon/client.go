package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
)

var debugRateLimit = os.Getenv("MSYNC_DEBUG_RATE") != ""
var debugAPI = os.Getenv("MSYNC_DEBUG_API") != ""

// Client is the concrete Operations implementation msync ships so the
// send engine has something real to run against; tests still inject
// mocks satisfying the same interface.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	stats      *Stats
}

// NewClient builds a Client with the given timeout and rate limit.
func NewClient(timeout time.Duration, requestsPerSecond float64, burst int) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		stats:      NewStats(),
	}
}

// Close stops the background stats logger.
func (c *Client) Close() {
	if c.stats != nil {
		c.stats.Close()
	}
}

// Stats returns the client's call statistics tracker.
func (c *Client) Stats() *Stats {
	return c.stats
}

func (c *Client) wait(ctx context.Context, opName string) error {
	if tokens := c.limiter.Tokens(); tokens <= 0 {
		log.Printf("[ratelimit] token bucket empty, %s will block until tokens replenish", opName)
	}
	if debugRateLimit {
		reservation := c.limiter.Reserve()
		delay := reservation.Delay()
		if delay > time.Millisecond {
			log.Printf("[ratelimit] debug: %s reservation delay %v", opName, delay)
		}
		reservation.Cancel()
	}

	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	waited := time.Since(start)
	if waited > time.Millisecond {
		c.stats.RecordRateLimitWait(waited)
	}
	if waited > 100*time.Millisecond {
		log.Printf("[ratelimit] %s waited %s", opName, waited.Round(time.Millisecond))
	}
	return nil
}

// Post issues a bare POST with no body — the favourite/unfavourite,
// reblog/unreblog action calls.
func (c *Client) Post(ctx context.Context, url, accessToken string) Response {
	return c.do(ctx, "post", accessToken, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	})
}

// Delete issues a bare DELETE.
func (c *Client) Delete(ctx context.Context, url, accessToken string) Response {
	return c.do(ctx, "delete", accessToken, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	})
}

type newStatusRequest struct {
	Status      string   `json:"status"`
	SpoilerText string   `json:"spoiler_text,omitempty"`
	Visibility  string   `json:"visibility,omitempty"`
	InReplyToID string   `json:"in_reply_to_id,omitempty"`
	MediaIDs    []string `json:"media_ids,omitempty"`
}

type statusResponse struct {
	ID string `json:"id"`
}

// NewStatus posts a new status.
func (c *Client) NewStatus(ctx context.Context, instanceURL, accessToken string, params StatusParams) Response {
	body := newStatusRequest{
		Status:      params.Body,
		SpoilerText: params.ContentWarning,
		Visibility:  params.Visibility,
		InReplyToID: params.InReplyToID,
		MediaIDs:    params.AttachmentIDs,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return Response{OK: false, Retryable: false, Message: fmt.Sprintf("marshaling status: %v", err)}
	}

	url := instanceURL + "/api/v1/statuses"
	resp := c.do(ctx, "new_status", accessToken, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})

	if resp.OK {
		var parsed statusResponse
		if err := json.Unmarshal([]byte(resp.Message), &parsed); err == nil {
			resp.Message = parsed.ID
		}
	}
	return resp
}

type mediaResponse struct {
	ID string `json:"id"`
}

// Upload uploads one attachment with its description.
func (c *Client) Upload(ctx context.Context, instanceURL, accessToken, filePath, description string) Response {
	f, err := os.Open(filePath)
	if err != nil {
		return Response{OK: false, Retryable: false, Message: fmt.Sprintf("opening %s: %v", filePath, err)}
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filePath)
	if err != nil {
		return Response{OK: false, Retryable: false, Message: fmt.Sprintf("building upload: %v", err)}
	}
	if _, err := io.Copy(part, f); err != nil {
		return Response{OK: false, Retryable: false, Message: fmt.Sprintf("reading %s: %v", filePath, err)}
	}
	if description != "" {
		if err := mw.WriteField("description", description); err != nil {
			return Response{OK: false, Retryable: false, Message: fmt.Sprintf("building upload: %v", err)}
		}
	}
	if err := mw.Close(); err != nil {
		return Response{OK: false, Retryable: false, Message: fmt.Sprintf("building upload: %v", err)}
	}

	url := instanceURL + "/api/v1/media"
	resp := c.do(ctx, "upload", accessToken, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	})

	if resp.OK {
		var parsed mediaResponse
		if err := json.Unmarshal([]byte(resp.Message), &parsed); err == nil {
			resp.Message = parsed.ID
		}
	}
	return resp
}

// do runs the rate-limited, stats-tracked HTTP round trip shared by all
// four operations, classifying the result into the engine's uniform
// Response contract.
func (c *Client) do(ctx context.Context, opName string, accessToken string, build func() (*http.Request, error)) Response {
	if debugAPI {
		log.Printf("[mastodon] calling %s", opName)
	}

	if err := c.wait(ctx, opName); err != nil {
		return Response{OK: false, Retryable: true, Message: err.Error()}
	}

	reqStart := time.Now()
	var callErr error
	defer func() {
		c.stats.Record(opName, time.Since(reqStart), callErr)
	}()

	req, err := build()
	if err != nil {
		callErr = err
		return Response{OK: false, Retryable: false, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		callErr = err
		return Response{OK: false, Retryable: true, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		callErr = err
		return Response{OK: false, Retryable: true, Message: err.Error()}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Response{OK: true, StatusCode: resp.StatusCode, Message: string(respBody)}
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		callErr = fmt.Errorf("%s: status %d", opName, resp.StatusCode)
		return Response{OK: false, Retryable: true, StatusCode: resp.StatusCode, Message: string(respBody)}
	default:
		callErr = fmt.Errorf("%s: status %d", opName, resp.StatusCode)
		return Response{OK: false, Retryable: false, StatusCode: resp.StatusCode, Message: string(respBody)}
	}
}

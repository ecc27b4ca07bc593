// Package apiclient posts completed matches to a remote stats API.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/rewired-gh/archerstats/internal/logger"
	"github.com/rewired-gh/archerstats/internal/models"
)

// Client sends each match as a JSON POST. It implements notify.Sink.
type Client struct {
	url            string
	token          string
	timeout        time.Duration
	maxRetries     int
	retryDelayBase time.Duration
	client         *fasthttp.Client
}

// NewClient creates a client posting to url. An empty token sends no Authorization header.
func NewClient(url, token string, timeout time.Duration, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Client{
		url:            url,
		token:          token,
		timeout:        timeout,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		client: &fasthttp.Client{
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

func (c *Client) Name() string { return "api" }

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %d %s", e.Code, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.Code == fasthttp.StatusTooManyRequests || e.Code >= 500
}

// MatchCompleted posts rec, retrying transport errors and 5xx/429 responses with linear
// backoff.
func (c *Client) MatchCompleted(ctx context.Context, rec models.MatchRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode match: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelayBase * time.Duration(attempt)
			logger.Debug("Retrying API post of match %s in %v (attempt %d/%d)", rec.ID, delay, attempt+1, c.maxRetries)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		var se *StatusError
		if errors.As(lastErr, &se) && !se.retryable() {
			return lastErr
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if c.token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.token)
	}
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if c.timeout > 0 {
		if t := time.Now().Add(c.timeout); !ok || t.Before(deadline) {
			deadline, ok = t, true
		}
	}
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return err
		}
	} else {
		if err := c.client.Do(req, resp); err != nil {
			return err
		}
	}
	return checkStatus(resp)
}

func checkStatus(resp *fasthttp.Response) error {
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}
	body := string(resp.Body())
	if len(body) > 200 {
		body = body[:200]
	}
	return &StatusError{Code: code, Body: body}
}

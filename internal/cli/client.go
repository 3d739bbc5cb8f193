package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the riffcity API from the ops CLI.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (c *Client) ListJobs(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/jobs", nil, &out, nil)
	return out, err
}

func (c *Client) RunJob(ctx context.Context, job, triggeredBy, requestID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/jobs/"+url.PathEscape(job)+"/run", map[string]any{
		"triggeredBy": triggeredBy,
		"requestId":   requestID,
	}, &out, nil)
	return out, err
}

func (c *Client) RunDaily(ctx context.Context, triggeredBy, requestID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/jobs/daily/run", map[string]any{
		"triggeredBy": triggeredBy,
		"requestId":   requestID,
	}, &out, nil)
	return out, err
}

func (c *Client) RecentRuns(ctx context.Context, limit int) (map[string]any, error) {
	path := "/v1/runs"
	if limit > 0 {
		path = fmt.Sprintf("/v1/runs?limit=%d", limit)
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out, nil)
	return out, err
}

func (c *Client) AcceptOffer(ctx context.Context, offerID, profileID int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/offers/%d/accept", offerID), nil, &out, map[string]string{
		"X-Profile-ID": fmt.Sprintf("%d", profileID),
	})
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, headers map[string]string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

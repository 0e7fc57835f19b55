// Package apify is a minimal client for the Apify platform API: start an
// actor run, poll it to completion, and page through its dataset.
package apify

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

	"prospectpipe/internal/logging"
	"prospectpipe/internal/pipeerr"
)

// Run statuses reported by the platform.
const (
	StatusReady     = "READY"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusTimedOut  = "TIMED-OUT"
	StatusAborted   = "ABORTED"
)

// RunInput is the actor input for the Apollo scraping actor.
type RunInput struct {
	URL          string `json:"url"`
	TotalRecords int    `json:"totalRecords"`
	FileName     string `json:"fileName"`
}

// Run describes an actor run.
type Run struct {
	ID               string    `json:"id"`
	ActID            string    `json:"actId"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	DefaultDatasetID string    `json:"defaultDatasetId"`
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	switch r.Status {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusAborted:
		return true
	}
	return false
}

// Config configures the client.
type Config struct {
	Token        string
	ActorID      string
	BaseURL      string
	PollInterval time.Duration
	RunTimeout   time.Duration
}

// Client talks to the Apify API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.apify.com"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.RunTimeout == 0 {
		cfg.RunTimeout = 10 * time.Minute
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// StartRun starts an actor run and returns it without waiting.
func (c *Client) StartRun(ctx context.Context, input RunInput) (*Run, error) {
	if c.cfg.Token == "" {
		return nil, pipeerr.NewApifyScraping("apify token not configured", nil)
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/runs?token=%s",
		c.cfg.BaseURL, url.PathEscape(c.cfg.ActorID), url.QueryEscape(c.cfg.Token))

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal run input: %w", err)
	}

	var run Run
	if err := c.doJSON(ctx, http.MethodPost, endpoint, body, &run); err != nil {
		return nil, pipeerr.NewApifyScraping("start actor run", err).WithContext("actor", c.cfg.ActorID)
	}

	logging.Apify("actor run started: id=%s actor=%s records=%d", run.ID, c.cfg.ActorID, input.TotalRecords)
	return &run, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	endpoint := fmt.Sprintf("%s/v2/actor-runs/%s?token=%s",
		c.cfg.BaseURL, url.PathEscape(runID), url.QueryEscape(c.cfg.Token))

	var run Run
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &run); err != nil {
		return nil, pipeerr.NewApifyScraping("get actor run", err).WithContext("run_id", runID)
	}
	return &run, nil
}

// WaitForRun polls a run until it finishes or the run timeout elapses.
func (c *Client) WaitForRun(ctx context.Context, runID string) (*Run, error) {
	rl := logging.WithRequestID(logging.CategoryApify, runID)
	deadline := time.Now().Add(c.cfg.RunTimeout)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		run, err := c.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		rl.Debug("run status: %s", run.Status)

		if run.Finished() {
			if run.Status != StatusSucceeded {
				return run, pipeerr.NewApifyScraping("actor run did not succeed", nil).
					WithContext("run_id", runID).
					WithContext("status", run.Status)
			}
			rl.Info("run succeeded, dataset=%s", run.DefaultDatasetID)
			return run, nil
		}

		if time.Now().After(deadline) {
			return run, pipeerr.NewApifyScraping("actor run timed out", nil).
				WithContext("run_id", runID).
				WithContext("timeout", c.cfg.RunTimeout.String())
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunAndWait starts a run and polls it to completion.
func (c *Client) RunAndWait(ctx context.Context, input RunInput) (*Run, error) {
	run, err := c.StartRun(ctx, input)
	if err != nil {
		return nil, err
	}
	return c.WaitForRun(ctx, run.ID)
}

// datasetPageSize is the item count requested per dataset page.
const datasetPageSize = 1000

// DatasetItems pages through all items of a dataset.
func (c *Client) DatasetItems(ctx context.Context, datasetID string) ([]map[string]interface{}, error) {
	var items []map[string]interface{}

	for offset := 0; ; offset += datasetPageSize {
		endpoint := fmt.Sprintf("%s/v2/datasets/%s/items?token=%s&clean=true&format=json&offset=%d&limit=%d",
			c.cfg.BaseURL, url.PathEscape(datasetID), url.QueryEscape(c.cfg.Token), offset, datasetPageSize)

		var page []map[string]interface{}
		if err := c.doJSONRaw(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, pipeerr.NewApifyScraping("fetch dataset items", err).WithContext("dataset_id", datasetID)
		}

		items = append(items, page...)
		if len(page) < datasetPageSize {
			break
		}
	}

	logging.Apify("dataset %s: %d items fetched", datasetID, len(items))
	return items, nil
}

// apifyEnvelope is the {"data": ...} wrapper most endpoints use.
type apifyEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// doJSON performs a request whose response is wrapped in {"data": ...},
// with exponential-backoff retries on transient failures.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, body []byte, out interface{}) error {
	var envelope apifyEnvelope
	if err := c.doJSONRaw(ctx, method, endpoint, body, &envelope); err != nil {
		return err
	}
	if envelope.Error != nil {
		return fmt.Errorf("apify error %s: %s", envelope.Error.Type, envelope.Error.Message)
	}
	if out != nil && envelope.Data != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

// doJSONRaw performs a request and decodes the body directly into out.
func (c *Client) doJSONRaw(ctx context.Context, method, endpoint string, body []byte, out interface{}) error {
	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * time.Second)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

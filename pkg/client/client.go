package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
)

// Client is the API client for the migration progress server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-200 answer of the server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// GetReport retrieves the full report
func (c *Client) GetReport(ctx context.Context) (domain.Report, error) {
	var response struct {
		Data domain.Report `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/report", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetSummary retrieves the report totals
func (c *Client) GetSummary(ctx context.Context) (*domain.ReportSummary, error) {
	var response struct {
		Data *domain.ReportSummary `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/report/summary", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetChannels retrieves the per-channel rows, optionally filtered by status
func (c *Client) GetChannels(ctx context.Context, status domain.Status) ([]*domain.ChannelSummary, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", string(status))
	}

	var response struct {
		Data []*domain.ChannelSummary `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/report/channels", params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetChannel retrieves the row of one channel
func (c *Client) GetChannel(ctx context.Context, slug string) (*domain.ChannelSummary, error) {
	path := fmt.Sprintf("/api/v1/report/channels/%s", url.PathEscape(slug))

	var response struct {
		Data *domain.ChannelSummary `json:"data"`
	}
	if err := c.get(ctx, path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetRuns retrieves the most recent journaled runs
func (c *Client) GetRuns(ctx context.Context, limit int) ([]*domain.MigrationRun, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var response struct {
		Data []*domain.MigrationRun `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/runs", params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetRunOutcomes retrieves a run and its journaled outcomes
func (c *Client) GetRunOutcomes(ctx context.Context, runID string) (*domain.MigrationRun, []*domain.OutcomeRecord, error) {
	path := fmt.Sprintf("/api/v1/runs/%s/outcomes", url.PathEscape(runID))

	var response struct {
		Data struct {
			Run      *domain.MigrationRun    `json:"run"`
			Outcomes []*domain.OutcomeRecord `json:"outcomes"`
		} `json:"data"`
	}
	if err := c.get(ctx, path, nil, &response); err != nil {
		return nil, nil, err
	}
	return response.Data.Run, response.Data.Outcomes, nil
}

// GetChannelHistory retrieves the journaled outcomes of one channel
func (c *Client) GetChannelHistory(ctx context.Context, slug string) ([]*domain.OutcomeRecord, error) {
	path := fmt.Sprintf("/api/v1/channels/%s/history", url.PathEscape(slug))

	var response struct {
		Data []*domain.OutcomeRecord `json:"data"`
	}
	if err := c.get(ctx, path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

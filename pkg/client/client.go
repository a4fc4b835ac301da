package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/ballast/pkg/events"
	"github.com/cuemby/ballast/pkg/types"
)

// Client talks to a ballast agent's admin API
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the agent at addr (host:port)
func NewClient(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError mirrors the server's error body
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// SubmitPlan submits a plan document for execution
func (c *Client) SubmitPlan(planID string, version int64, planText string, force bool) error {
	body := map[string]interface{}{
		"planId":  planID,
		"version": version,
		"plan":    planText,
		"force":   force,
	}
	return c.do(http.MethodPost, "/v1/plans", body, nil)
}

// QueryWorkStatus fetches the current plan status
func (c *Client) QueryWorkStatus() (*types.WorkStatus, error) {
	var status types.WorkStatus
	if err := c.do(http.MethodGet, "/v1/plans/current", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CancelPlan cancels the named plan
func (c *Client) CancelPlan(planID string) error {
	return c.do(http.MethodDelete, "/v1/plans/"+planID, nil, nil)
}

// GetVolumeNames fetches storage-ID → base path for the node's volumes
func (c *Client) GetVolumeNames() (map[string]string, error) {
	var names map[string]string
	if err := c.do(http.MethodGet, "/v1/volumes", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// GetBandwidth fetches the node-default bandwidth ceiling in MB/s
func (c *Client) GetBandwidth() (int64, error) {
	var resp struct {
		BandwidthMBs int64 `json:"bandwidthMBs"`
	}
	if err := c.do(http.MethodGet, "/v1/bandwidth", nil, &resp); err != nil {
		return 0, err
	}
	return resp.BandwidthMBs, nil
}

// GetHistory fetches the recorded plan history
func (c *Client) GetHistory() ([]*types.PlanRecord, error) {
	var records []*types.PlanRecord
	if err := c.do(http.MethodGet, "/v1/history", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetEvents fetches the retained tail of the agent's event log
func (c *Client) GetEvents() ([]*events.Event, error) {
	var recent []*events.Event
	if err := c.do(http.MethodGet, "/v1/events", nil, &recent); err != nil {
		return nil, err
	}
	return recent, nil
}

// do runs one request, decoding an error body on non-2xx responses
func (c *Client) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("agent returned status %d", resp.StatusCode)
		}
		return &apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

package castlinesdk

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

// Client is a minimal Castline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Campaign represents the API campaign model.
type Campaign struct {
	ID       string   `json:"id"`
	UserID   string   `json:"user_id"`
	Name     string   `json:"name"`
	Message  string   `json:"message"`
	MediaURL string   `json:"media_url,omitempty"`
	Groups   []string `json:"groups"`
	Schedule struct {
		Type       string `json:"type"`
		Time       string `json:"time"`
		DaysOfWeek []int  `json:"days_of_week,omitempty"`
	} `json:"schedule"`
	Status string `json:"status"`
	Stats  struct {
		TotalSent   int    `json:"total_sent"`
		TotalFailed int    `json:"total_failed"`
		LastRunAt   string `json:"last_run_at,omitempty"`
		NextRunAt   string `json:"next_run_at,omitempty"`
	} `json:"stats"`
}

// Capabilities is the resolved capability context for a user.
type Capabilities struct {
	DepthLevel               int  `json:"depth_level"`
	HorizonHours             int  `json:"horizon_hours"`
	MemoryDepth              int  `json:"memory_depth"`
	InferencePasses          int  `json:"inference_passes"`
	ConfidenceThreshold      int  `json:"confidence_threshold"`
	SimulationAggressiveness int  `json:"simulation_aggressiveness"`
	VariationDepth           int  `json:"variation_depth"`
	CanPredictTrends         bool `json:"can_predict_trends"`
	CanAnalyzeHiddenSignals  bool `json:"can_analyze_hidden_signals"`
	CanAutoReplyStrategic    bool `json:"can_auto_reply_strategic"`
}

// Boost represents a temporary depth boost.
type Boost struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	DepthDelta int    `json:"depth_delta"`
	ExpiresAt  string `json:"expires_at"`
	GrantedBy  string `json:"granted_by,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateCampaign creates a campaign for the authenticated user.
func (c *Client) CreateCampaign(ctx context.Context, campaign Campaign) (Campaign, error) {
	var resp Campaign
	err := c.do(ctx, http.MethodPost, "v0/campaigns", campaign, &resp)
	return resp, err
}

// Campaigns lists campaigns visible to the caller.
func (c *Client) Campaigns(ctx context.Context) ([]Campaign, error) {
	var resp []Campaign
	err := c.do(ctx, http.MethodGet, "v0/campaigns", nil, &resp)
	return resp, err
}

// Campaign fetches one campaign.
func (c *Client) Campaign(ctx context.Context, id string) (Campaign, error) {
	var resp Campaign
	err := c.do(ctx, http.MethodGet, "v0/campaigns/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// TriggerCampaign makes a campaign due on the next scheduler tick.
func (c *Client) TriggerCampaign(ctx context.Context, id string) (Campaign, error) {
	var resp Campaign
	err := c.do(ctx, http.MethodPost, "v0/campaigns/"+url.PathEscape(id)+"/trigger", nil, &resp)
	return resp, err
}

// PauseCampaign pauses a campaign.
func (c *Client) PauseCampaign(ctx context.Context, id string) (Campaign, error) {
	return c.setStatus(ctx, id, "paused")
}

// ResumeCampaign reactivates a paused campaign.
func (c *Client) ResumeCampaign(ctx context.Context, id string) (Campaign, error) {
	return c.setStatus(ctx, id, "active")
}

func (c *Client) setStatus(ctx context.Context, id, status string) (Campaign, error) {
	var resp Campaign
	body := map[string]any{"status": status}
	err := c.do(ctx, http.MethodPatch, "v0/campaigns/"+url.PathEscape(id), body, &resp)
	return resp, err
}

// DeleteCampaign removes a campaign.
func (c *Client) DeleteCampaign(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/campaigns/"+url.PathEscape(id), nil, nil)
}

// UserCapabilities resolves the capability context for a user.
func (c *Client) UserCapabilities(ctx context.Context, userID string) (Capabilities, error) {
	var resp struct {
		Capabilities Capabilities `json:"capabilities"`
	}
	endpoint := fmt.Sprintf("v0/users/%s/capabilities", url.PathEscape(userID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Capabilities, err
}

// GrantBoost grants a temporary depth boost (admin only).
func (c *Client) GrantBoost(ctx context.Context, userID string, depthDelta int, expiresAt string) (Boost, error) {
	body := map[string]any{
		"depth_delta": depthDelta,
		"expires_at":  expiresAt,
	}
	var resp Boost
	endpoint := fmt.Sprintf("v0/users/%s/boosts", url.PathEscape(userID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Boosts lists a user's boosts.
func (c *Client) Boosts(ctx context.Context, userID string) ([]Boost, error) {
	var resp []Boost
	endpoint := fmt.Sprintf("v0/users/%s/boosts", url.PathEscape(userID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

package transport

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

	"go.uber.org/zap"
)

const defaultGatewayTimeout = 15 * time.Second

// Gateway is a Messenger backed by the castline WhatsApp gateway's HTTP API.
type Gateway struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func NewGateway(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Gateway {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     logger,
	}
}

func (g *Gateway) SessionConnected(ctx context.Context, userID string) (bool, error) {
	var resp struct {
		Connected bool `json:"connected"`
	}
	endpoint := fmt.Sprintf("sessions/%s/status", url.PathEscape(userID))
	if err := g.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return false, err
	}
	return resp.Connected, nil
}

func (g *Gateway) SendMessage(ctx context.Context, userID, targetID, text, mediaURL string) error {
	body := map[string]any{
		"target_id": targetID,
		"text":      text,
	}
	if mediaURL != "" {
		body["media_url"] = mediaURL
	}
	endpoint := fmt.Sprintf("sessions/%s/messages", url.PathEscape(userID))
	return g.do(ctx, http.MethodPost, endpoint, body, nil)
}

func (g *Gateway) GroupMetadata(ctx context.Context, userID string) ([]GroupInfo, error) {
	var resp struct {
		Groups []GroupInfo `json:"groups"`
	}
	endpoint := fmt.Sprintf("sessions/%s/groups", url.PathEscape(userID))
	if err := g.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

func (g *Gateway) do(ctx context.Context, method, endpoint string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+"/"+endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}
	res, err := g.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		g.Logger.Debug("gateway request failed",
			zap.String("endpoint", endpoint),
			zap.Int("status", res.StatusCode))
		return fmt.Errorf("gateway %s: status %d: %s", endpoint, res.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out != nil {
		return json.NewDecoder(res.Body).Decode(out)
	}
	return nil
}

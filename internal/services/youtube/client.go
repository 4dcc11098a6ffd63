package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/amaumene/tubenest/internal/config"
	"github.com/amaumene/tubenest/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	baseURL = "https://www.googleapis.com/youtube/v3"

	// maxResults is the largest page the Data API serves
	maxResults = 50
)

// Client handles communication with the YouTube Data API
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new YouTube Data API client
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		apiKey:     cfg.YouTubeAPIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// apiError mirrors the error envelope of the Data API
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// quotaReasons are the error reasons the API uses for exhausted quota
var quotaReasons = map[string]bool{
	"quotaExceeded":      true,
	"dailyLimitExceeded": true,
	"rateLimitExceeded":  true,
}

// doRequest performs a GET against an API resource and decodes the response into result
func (c *Client) doRequest(ctx context.Context, resource string, params url.Values, result interface{}) error {
	if c.apiKey == "" {
		return models.ErrAPIUnavailable
	}
	params.Set("key", c.apiKey)

	fullURL := c.baseURL + "/" + resource + "?" + params.Encode()
	c.logger.WithFields(logrus.Fields{
		"resource": resource,
	}).Debug("Making YouTube API request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: request failed: %v", models.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// classifyStatus maps a non-2xx response onto the error taxonomy
func classifyStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var envelope apiError
	_ = json.Unmarshal(body, &envelope)
	for _, e := range envelope.Error.Errors {
		if quotaReasons[e.Reason] {
			return fmt.Errorf("%w: %s", models.ErrQuotaExceeded, e.Reason)
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", models.ErrNotFound, envelope.Error.Message)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: rate limited", models.ErrQuotaExceeded)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: API request failed with status %d", models.ErrTransient, resp.StatusCode)
	}
	return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
}

// Package arduinocloud publishes device property values to the Arduino IoT
// Cloud REST API.
package arduinocloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"thermalguard/internal/config"
)

// TokenSource yields a bearer token for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StatusError is returned when the API answers with anything but 200.
type StatusError struct {
	PropertyID string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("update property %s: status %d: %s", e.PropertyID, e.StatusCode, e.Body)
}

type Client struct {
	baseURL    string
	thingID    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, thingID string, tokens TokenSource, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		thingID:    thingID,
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger,
	}
}

// FromConfig wires a token manager and client sharing one bounded http.Client.
func FromConfig(cfg config.Config, logger *slog.Logger) (*Client, *TokenManager) {
	httpClient := &http.Client{Timeout: cfg.CloudHTTPTimeout}
	tokens := NewTokenManager(Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}, httpClient, logger)
	return NewClient(cfg.CloudAPIURL, cfg.ThingID, tokens, httpClient, logger), tokens
}

// UpdateProperty publishes value to the named property of the configured thing.
func (c *Client) UpdateProperty(ctx context.Context, propertyID string, value any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil || token == "" {
		c.logger.Error("no access token available", "property_id", propertyID, "error", err)
		if err == nil {
			err = errors.New("empty access token")
		}
		return fmt.Errorf("update property %s: %w", propertyID, err)
	}

	body, err := json.Marshal(map[string]any{"value": value})
	if err != nil {
		return fmt.Errorf("marshal property %s: %w", propertyID, err)
	}

	u := fmt.Sprintf("%s/v2/things/%s/properties/%s/publish",
		c.baseURL, url.PathEscape(c.thingID), url.PathEscape(propertyID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("failed to update property", "property_id", propertyID, "error", err)
		return fmt.Errorf("update property %s: %w", propertyID, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("failed to update property",
			"property_id", propertyID,
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return &StatusError{PropertyID: propertyID, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	c.logger.Info("property updated", "property_id", propertyID)
	return nil
}

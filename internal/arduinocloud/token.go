package arduinocloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Audience is the resource the client-credentials grant is issued for.
const Audience = "https://api2.arduino.cc/iot"

type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// TokenManager caches one bearer token and refreshes it with a
// client-credentials grant once it has expired.
type TokenManager struct {
	mu         sync.Mutex
	oauth      clientcredentials.Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	token     string
	expiresAt time.Time
}

func NewTokenManager(creds Credentials, httpClient *http.Client, logger *slog.Logger) *TokenManager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenManager{
		oauth: clientcredentials.Config{
			ClientID:       creds.ClientID,
			ClientSecret:   creds.ClientSecret,
			TokenURL:       creds.TokenURL,
			EndpointParams: url.Values{"audience": {Audience}},
			AuthStyle:      oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// Token returns the cached token, fetching a new one when none is cached or
// the cached one has expired. A failed fetch leaves the cache untouched.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.token != "" && now.Before(m.expiresAt) {
		return m.token, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	tok, err := m.oauth.Token(ctx)
	if err != nil {
		m.logger.Error("error fetching access token", "token_url", m.oauth.TokenURL, "error", err)
		return "", fmt.Errorf("fetch access token: %w", err)
	}

	m.token = tok.AccessToken
	m.expiresAt = now.Add(expiresIn(tok))
	m.logger.Info("new access token", "expires_at", m.expiresAt)
	return m.token, nil
}

// ExpiresAt is the expiry of the cached token, zero if none.
func (m *TokenManager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt
}

// expiresIn reads the lifetime the server granted. A token without one is
// treated as already expired so it is never reused.
func expiresIn(tok *oauth2.Token) time.Duration {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	if !tok.Expiry.IsZero() {
		return time.Until(tok.Expiry)
	}
	return 0
}

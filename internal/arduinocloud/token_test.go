package arduinocloud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tokenServer issues tok-1, tok-2, ... and records the form of each request.
type tokenServer struct {
	mu        sync.Mutex
	fetches   int
	lastForm  map[string]string
	expiresIn int
	status    int
}

func (s *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.fetches++
	s.lastForm = map[string]string{}
	for k := range r.PostForm {
		s.lastForm[k] = r.PostForm.Get(k)
	}
	if s.status != 0 && s.status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.status)
		_, _ = io.WriteString(w, `{"error":"invalid_client"}`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":%d,"token_type":"bearer"}`, s.fetches, s.expiresIn)
}

func (s *tokenServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T, ts *tokenServer) (*TokenManager, *testClock) {
	t.Helper()
	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)

	m := NewTokenManager(Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     srv.URL,
	}, srv.Client(), discardLogger())
	clk := &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m.now = clk.Now
	return m, clk
}

func TestToken_FirstCallFetchesOnce(t *testing.T) {
	ts := &tokenServer{expiresIn: 300}
	m, clk := newTestManager(t, ts)

	tok, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, 1, ts.count())
	assert.Equal(t, clk.Now().Add(300*time.Second), m.ExpiresAt())

	assert.Equal(t, map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     "client-id",
		"client_secret": "client-secret",
		"audience":      "https://api2.arduino.cc/iot",
	}, ts.lastForm)
}

func TestToken_CachedBeforeExpiry(t *testing.T) {
	ts := &tokenServer{expiresIn: 300}
	m, clk := newTestManager(t, ts)

	_, err := m.Token(context.Background())
	require.NoError(t, err)

	clk.Advance(299 * time.Second)
	tok, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, 1, ts.count())
}

func TestToken_RefreshAfterExpiry(t *testing.T) {
	ts := &tokenServer{expiresIn: 300}
	m, clk := newTestManager(t, ts)

	_, err := m.Token(context.Background())
	require.NoError(t, err)

	clk.Advance(300 * time.Second)
	tok, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, 2, ts.count())

	tok, err = m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, 2, ts.count())
}

func TestToken_FailureKeepsCacheEmpty(t *testing.T) {
	ts := &tokenServer{expiresIn: 300, status: http.StatusUnauthorized}
	m, _ := newTestManager(t, ts)

	tok, err := m.Token(context.Background())
	require.Error(t, err)
	assert.Empty(t, tok)
	assert.True(t, m.ExpiresAt().IsZero())

	// no retry inside a call, next call tries again
	_, _ = m.Token(context.Background())
	assert.Equal(t, 2, ts.count())
}

func TestToken_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m := NewTokenManager(Credentials{ClientID: "a", ClientSecret: "b", TokenURL: url}, nil, discardLogger())
	_, err := m.Token(context.Background())
	assert.Error(t, err)
}

func TestToken_ZeroLifetimeIsNotReused(t *testing.T) {
	ts := &tokenServer{expiresIn: 0}
	m, _ := newTestManager(t, ts)

	_, err := m.Token(context.Background())
	require.NoError(t, err)
	_, err = m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ts.count())
}

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AuthContext supplies the bearer credential for every call and is told when
// the school API rejects it.
type AuthContext interface {
	Token(ctx context.Context) (string, error)
	OnUnauthorized(ctx context.Context)
}

type staticAuth string

func (s staticAuth) Token(context.Context) (string, error) { return string(s), nil }
func (s staticAuth) OnUnauthorized(context.Context)        {}

// Static returns an AuthContext with a fixed token and no logout behaviour.
func Static(token string) AuthContext {
	return staticAuth(token)
}

// Client calls the school REST API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Auth    AuthContext
	Log     *zap.Logger

	now func() time.Time
}

// New creates a client. A zero timeout keeps the 30s default.
func New(baseURL string, auth AuthContext, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Auth:    auth,
		Log:     log,
		now:     time.Now,
	}
}

// WithAuth returns a copy of the client sharing the same transport but
// authenticating as somebody else.
func (c *Client) WithAuth(auth AuthContext) *Client {
	cp := *c
	cp.Auth = auth
	return &cp
}

type envelope struct {
	IsSuccess bool            `json:"IsSuccess"`
	Data      json.RawMessage `json:"Data"`
	Message   string          `json:"Message"`
}

// do performs one call and unwraps the response envelope.
func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body any) (json.RawMessage, error) {
	token, err := c.token(ctx)
	if err != nil {
		observe(endpoint, outcomeUnauthorized, time.Time{})
		return nil, err
	}

	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		observe(endpoint, outcomeTransport, started)
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		observe(endpoint, outcomeUnauthorized, started)
		c.Log.Warn("school api rejected token", zap.String("endpoint", endpoint), zap.Int("status", resp.StatusCode))
		c.Auth.OnUnauthorized(ctx)
		return nil, ErrUnauthorized
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		observe(endpoint, outcomeTransport, started)
		return nil, fmt.Errorf("%w: read %s response: %w", ErrTransport, endpoint, err)
	}

	if resp.StatusCode >= 300 {
		observe(endpoint, outcomeHTTPError, started)
		return nil, &HTTPError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		observe(endpoint, outcomeOK, started)
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		observe(endpoint, outcomeDecode, started)
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, endpoint, err)
	}
	if !env.IsSuccess {
		observe(endpoint, outcomeNotSuccessful, started)
		return env.Data, &EnvelopeError{Endpoint: endpoint, Message: env.Message}
	}

	observe(endpoint, outcomeOK, started)
	return env.Data, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.Auth == nil {
		return "", ErrUnauthorized
	}
	token, err := c.Auth.Token(ctx)
	switch {
	case errors.Is(err, ErrNoCredentials), err == nil && token == "":
		c.Auth.OnUnauthorized(ctx)
		return "", ErrUnauthorized
	case err != nil:
		// A flaky credential store is not a rejected session.
		return "", fmt.Errorf("%w: load credentials: %w", ErrTransport, err)
	}
	if tokenExpired(token, c.clock()) {
		c.Log.Info("stored token expired, logging out")
		c.Auth.OnUnauthorized(ctx)
		return "", ErrUnauthorized
	}
	return token, nil
}

func (c *Client) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// tokenExpired reads the exp claim without verifying the signature; the school
// API stays the authority. Opaque tokens are never considered expired.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}

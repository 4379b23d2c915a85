// Package embedded is the HTTP client for the custodial
// embedded-wallet provider: email OTP sign-in, session reads and
// sign-out.
package embedded

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dexmail/dexmail-go/core"
)

// Client talks to the provider's OTP endpoints. After a successful
// OTP verification it holds the provider session token and answers
// the reactive IsSignedIn / CurrentAddress reads from the provider's
// session endpoint.
type Client struct {
	base string
	http *http.Client
	log  *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a provider client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  logger,
	}
}

type startResponse struct {
	FlowID string `json:"flowId"`
}

type verifyResponse struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	SignedIn bool   `json:"signedIn"`
	Address  string `json:"address"`
}

// SignInWithEmail starts an OTP flow and returns its flow id.
func (c *Client) SignInWithEmail(ctx context.Context, email string) (string, error) {
	var resp startResponse
	if err := c.post(ctx, "/otp/start", map[string]string{"email": email}, &resp); err != nil {
		return "", err
	}
	return resp.FlowID, nil
}

// VerifyEmailOTP submits the code and, on success, installs the
// provider session token.
func (c *Client) VerifyEmailOTP(ctx context.Context, flowID, code string) error {
	var resp verifyResponse
	if err := c.post(ctx, "/otp/verify", map[string]string{"flowId": flowID, "otp": code}, &resp); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	return nil
}

// SignOut tears the provider session down.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.token = ""
	c.mu.Unlock()
	if token == "" {
		return nil
	}
	return c.postAuthed(ctx, "/signout", token, nil, nil)
}

// IsSignedIn reports whether the provider session is currently live.
func (c *Client) IsSignedIn(ctx context.Context) bool {
	sess, err := c.session(ctx)
	if err != nil {
		c.log.Debug("provider session read failed", "error", err)
		return false
	}
	return sess.SignedIn
}

// CurrentAddress returns the provider-managed wallet address, empty
// until the provider has materialized one.
func (c *Client) CurrentAddress(ctx context.Context) string {
	sess, err := c.session(ctx)
	if err != nil {
		c.log.Debug("provider session read failed", "error", err)
		return ""
	}
	return sess.Address
}

func (c *Client) session(ctx context.Context) (sessionResponse, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return sessionResponse{}, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/session", nil)
	if err != nil {
		return sessionResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := c.http.Do(req)
	if err != nil {
		return sessionResponse{}, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusUnauthorized {
		return sessionResponse{}, nil
	}
	if res.StatusCode != http.StatusOK {
		return sessionResponse{}, &core.BackendError{Status: res.StatusCode, Reason: "provider session read failed"}
	}
	var sess sessionResponse
	if err := json.NewDecoder(res.Body).Decode(&sess); err != nil {
		return sessionResponse{}, err
	}
	return sess, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.postAuthed(ctx, path, "", body, out)
}

func (c *Client) postAuthed(ctx context.Context, path, token string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return &core.BackendError{Status: res.StatusCode, Reason: "provider rejected " + path}
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("decode provider response: %w", err)
		}
	}
	return nil
}

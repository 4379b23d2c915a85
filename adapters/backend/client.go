// Package backend holds the HTTP clients for the auth and mail
// backend contracts.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dexmail/dexmail-go/core"
)

// Client implements ports.AuthBackend and ports.MailBackend over the
// platform's JSON API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type userPayload struct {
	Email         string        `json:"email"`
	WalletAddress string        `json:"walletAddress,omitempty"`
	Basename      string        `json:"basename,omitempty"`
	AuthType      core.AuthType `json:"authType"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &core.BackendError{Reason: "request failed", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		var remote errorResponse
		_ = json.NewDecoder(res.Body).Decode(&remote)
		reason := remote.Error
		if reason == "" {
			reason = http.StatusText(res.StatusCode)
		}
		if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
			return core.Authf(nil, "%s", reason)
		}
		return &core.BackendError{Status: res.StatusCode, Reason: reason}
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return &core.BackendError{Reason: "decode response", Err: err}
		}
	}
	return nil
}

func sessionFromAuth(resp authResponse) core.Session {
	return core.Session{
		Identity: core.Identity{
			Email:         resp.User.Email,
			WalletAddress: resp.User.WalletAddress,
			Basename:      resp.User.Basename,
		},
		AuthType: resp.User.AuthType,
		Token:    resp.Token,
		IssuedAt: time.Now(),
	}
}

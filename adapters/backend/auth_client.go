package backend

import (
	"context"
	"net/http"

	"github.com/dexmail/dexmail-go/core"
	"github.com/dexmail/dexmail-go/ports"
)

type challengeRequest struct {
	Email string `json:"email"`
}

type challengeResponse struct {
	Token string `json:"token"`
	Nonce string `json:"nonce"`
}

type loginRequest struct {
	Email          string        `json:"email,omitempty"`
	Address        string        `json:"address,omitempty"`
	Signature      string        `json:"signature,omitempty"`
	ChallengeToken string        `json:"challengeToken,omitempty"`
	WalletAddress  string        `json:"walletAddress,omitempty"`
	Basename       string        `json:"basename,omitempty"`
	AuthType       core.AuthType `json:"authType"`
}

// CreateChallenge requests a sign-in challenge for email.
func (c *Client) CreateChallenge(ctx context.Context, email string) (ports.Challenge, error) {
	var resp challengeResponse
	if err := c.do(ctx, http.MethodPost, "/auth/challenge", "", challengeRequest{Email: email}, &resp); err != nil {
		return ports.Challenge{}, err
	}
	return ports.Challenge{Token: resp.Token, Nonce: resp.Nonce}, nil
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, req ports.LoginRequest) (core.Session, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", "", loginRequest{
		Email:          req.Email,
		Address:        req.Address,
		Signature:      req.Signature,
		ChallengeToken: req.ChallengeToken,
		WalletAddress:  req.WalletAddress,
		AuthType:       req.AuthType,
	}, &resp)
	if err != nil {
		return core.Session{}, err
	}
	return sessionFromAuth(resp), nil
}

// Register creates an account and returns its first session.
func (c *Client) Register(ctx context.Context, req ports.RegisterRequest) (core.Session, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/auth/register", "", loginRequest{
		Email:          req.Email,
		Address:        req.Address,
		Signature:      req.Signature,
		ChallengeToken: req.ChallengeToken,
		WalletAddress:  req.WalletAddress,
		Basename:       req.Basename,
		AuthType:       req.AuthType,
	}, &resp)
	if err != nil {
		return core.Session{}, err
	}
	return sessionFromAuth(resp), nil
}

// Profile fetches the identity behind a bearer token.
func (c *Client) Profile(ctx context.Context, token string) (core.Identity, error) {
	var user userPayload
	if err := c.do(ctx, http.MethodGet, "/auth/profile", token, nil, &user); err != nil {
		return core.Identity{}, err
	}
	return core.Identity{
		Email:         user.Email,
		WalletAddress: user.WalletAddress,
		Basename:      user.Basename,
	}, nil
}

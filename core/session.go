package core

import "time"

// AuthType discriminates how a session was established. Exactly one
// type is active per session; consumers switch on it rather than on
// concrete provider types.
type AuthType string

const (
	// AuthTypeWallet is a session backed by an external self-custodied
	// wallet, authenticated via a signed challenge nonce.
	AuthTypeWallet AuthType = "wallet"

	// AuthTypeEmbedded is a session backed by a custodial embedded
	// wallet, authenticated via an email OTP flow.
	AuthTypeEmbedded AuthType = "embedded"
)

// Valid reports whether t is one of the two supported auth types.
func (t AuthType) Valid() bool {
	return t == AuthTypeWallet || t == AuthTypeEmbedded
}

// Identity is the authenticated user as reported by the auth backend.
type Identity struct {
	Email         string `json:"email"`
	WalletAddress string `json:"walletAddress,omitempty"`
	Basename      string `json:"basename,omitempty"`
}

// Session is an authenticated session. It is owned exclusively by the
// auth orchestrator and mutated only through login, refresh and logout.
type Session struct {
	Identity Identity  `json:"user"`
	AuthType AuthType  `json:"authType"`
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issuedAt"`
}

// OtpFlow is the ephemeral state of one email OTP sign-in attempt.
// It lives in memory only and is discarded on success or reset.
type OtpFlow struct {
	FlowID   string
	Email    string
	SentAt   time.Time
	Verified bool
}

// WalletStatus is a snapshot of the external wallet connection. It is
// owned by the wallet connector; the orchestrator only reads it.
type WalletStatus struct {
	Address      string
	Connected    bool
	Connecting   bool
	Reconnecting bool
}

// EmbeddedState is the position of the embedded sign-in state machine.
type EmbeddedState int

const (
	EmbeddedIdle EmbeddedState = iota
	EmbeddedOtpSent
	EmbeddedOtpVerified
	EmbeddedLoggingIn
	EmbeddedComplete
)

func (s EmbeddedState) String() string {
	switch s {
	case EmbeddedIdle:
		return "idle"
	case EmbeddedOtpSent:
		return "otp_sent"
	case EmbeddedOtpVerified:
		return "otp_verified"
	case EmbeddedLoggingIn:
		return "logging_in"
	case EmbeddedComplete:
		return "complete"
	default:
		return "unknown"
	}
}

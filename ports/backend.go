package ports

import (
	"context"

	"github.com/dexmail/dexmail-go/core"
)

// Challenge is a sign-in challenge issued by the auth backend. Token
// is an opaque value that must be echoed back on login; Nonce is the
// message the wallet signs.
type Challenge struct {
	Token string
	Nonce string
}

// LoginRequest carries the credentials for either login path. Wallet
// logins require Email, Address, Signature and ChallengeToken.
// Embedded logins key on WalletAddress alone; Email is informational.
type LoginRequest struct {
	Email          string
	Address        string
	Signature      string
	ChallengeToken string
	WalletAddress  string
	AuthType       core.AuthType
}

// RegisterRequest carries the fields for account registration. The
// same discrimination as LoginRequest applies.
type RegisterRequest struct {
	Email          string
	Address        string
	Signature      string
	ChallengeToken string
	WalletAddress  string
	Basename       string
	AuthType       core.AuthType
}

// AuthBackend is the consumed contract of the remote auth service.
type AuthBackend interface {
	// CreateChallenge requests a sign-in challenge for email.
	CreateChallenge(ctx context.Context, email string) (Challenge, error)

	// Login exchanges credentials for a session.
	Login(ctx context.Context, req LoginRequest) (core.Session, error)

	// Register creates an account and returns its first session.
	Register(ctx context.Context, req RegisterRequest) (core.Session, error)

	// Profile fetches the identity behind a bearer token.
	Profile(ctx context.Context, token string) (core.Identity, error)
}

// SendEmailRequest is the mail backend's send contract. TxRef is the
// opaque transaction or user-operation hash of an already-submitted
// transfer, empty when no transfer is attached.
type SendEmailRequest struct {
	Token    string
	From     string
	To       []string
	Subject  string
	Body     string
	Transfer *core.CryptoTransfer
	TxRef    string
}

// SendEmailResponse reports how the backend delivered the message.
// The backend alone decides between a direct transfer and a claim
// code.
type SendEmailResponse struct {
	MessageID        string
	IsDirectTransfer bool
	ClaimCode        string
	TxHash           string
}

// MailBackend is the consumed contract of the remote mail service.
type MailBackend interface {
	SendEmail(ctx context.Context, req SendEmailRequest) (SendEmailResponse, error)
}

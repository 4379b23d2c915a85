package ports

import (
	"context"
	"math/big"

	"github.com/dexmail/dexmail-go/core"
	"github.com/ethereum/go-ethereum/common"
)

// WalletConnector manages the connection to an external signing
// wallet. The connector owns the connection status; the orchestrator
// only reads it.
type WalletConnector interface {
	Connect(ctx context.Context) error
	Disconnect() error

	// SignMessage signs msg with the connected account using the
	// personal_sign scheme and returns the hex-encoded signature.
	SignMessage(ctx context.Context, msg string) (string, error)

	Status() core.WalletStatus
}

// EmbeddedProvider is the custodial wallet provider unlocked via
// email OTP. Session establishment is asynchronous and independent of
// OTP verification, so IsSignedIn and CurrentAddress are reactive
// reads that may lag a successful verification.
type EmbeddedProvider interface {
	// SignInWithEmail starts an OTP flow and returns its flow id.
	SignInWithEmail(ctx context.Context, email string) (string, error)

	// VerifyEmailOTP submits the code the user received.
	VerifyEmailOTP(ctx context.Context, flowID, code string) error

	SignOut(ctx context.Context) error

	IsSignedIn(ctx context.Context) bool
	CurrentAddress(ctx context.Context) string
}

// TxCall is one call of a transfer payload.
type TxCall struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// TxSubmitter signs and broadcasts a prepared transfer payload,
// returning an opaque transaction or user-operation hash. It
// abstracts over "sign and broadcast through an external wallet" and
// "submit a sponsored user operation through the custodial provider";
// the send pipeline is agnostic to which.
type TxSubmitter func(ctx context.Context, calls []TxCall) (string, error)

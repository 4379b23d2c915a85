// Package devstub is an in-process implementation of the backend
// contracts the client consumes: the auth service, the mail/transfer
// service and the embedded-identity provider. It backs the dev binary
// and the integration tests; production deployments talk to the real
// services instead.
package devstub

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand"
	"strings"
	"sync"

	"github.com/dexmail/dexmail-go/core"
	"github.com/dexmail/dexmail-go/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Account is a registered platform user.
type Account struct {
	Email         string
	WalletAddress string
	Basename      string
	AuthType      core.AuthType
}

type otpFlow struct {
	email string
	code  string
}

type providerSession struct {
	email   string
	address string
}

// SentMessage records a message accepted by the stub mail backend.
type SentMessage struct {
	MessageID string
	From      string
	To        []string
	Subject   string
	Body      string
	Transfer  *core.CryptoTransfer
	TxRef     string
	ClaimCode string
}

// Server holds the stub state behind a gin router.
type Server struct {
	key    *ecdsa.PrivateKey
	domain string
	router *gin.Engine
	events ports.EventPublisher

	mu               sync.Mutex
	accounts         map[string]*Account // keyed by lower-cased email
	byAddress        map[string]*Account // keyed by lower-cased address
	flows            map[string]*otpFlow
	providerSessions map[string]*providerSession
	sent             []SentMessage
}

// New creates a stub server for the given platform domain.
func New(domain string) (*Server, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		key:              key,
		domain:           strings.ToLower(domain),
		router:           gin.New(),
		accounts:         make(map[string]*Account),
		byAddress:        make(map[string]*Account),
		flows:            make(map[string]*otpFlow),
		providerSessions: make(map[string]*providerSession),
	}
	s.setupRoutes()
	return s, nil
}

// SetEventPublisher makes the stub announce issued sessions, the way
// the production auth service notifies other instances. Best-effort.
func (s *Server) SetEventPublisher(pub ports.EventPublisher) {
	s.events = pub
}

// Router returns the gin router for mounting or serving.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	auth := s.router.Group("/auth")
	{
		auth.POST("/challenge", s.handleChallenge)
		auth.POST("/login", s.handleLogin)
		auth.POST("/register", s.handleRegister)
		auth.GET("/profile", s.sessionMiddleware(), s.handleProfile)
	}

	mail := s.router.Group("/mail")
	mail.Use(s.sessionMiddleware())
	{
		mail.POST("/send", s.handleSendEmail)
	}

	cdp := s.router.Group("/cdp")
	{
		cdp.POST("/otp/start", s.handleOtpStart)
		cdp.POST("/otp/verify", s.handleOtpVerify)
		cdp.POST("/signout", s.handleProviderSignOut)
		cdp.GET("/session", s.handleProviderSession)
	}
}

// Seed registers an account directly, bypassing the auth flow. Used
// to model already-registered recipients.
func (s *Server) Seed(acct Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := acct
	s.accounts[strings.ToLower(a.Email)] = &a
	if a.WalletAddress != "" {
		s.byAddress[strings.ToLower(a.WalletAddress)] = &a
	}
}

// OtpCode exposes the code behind a pending flow so tests and the dev
// binary can complete verification without a mailbox.
func (s *Server) OtpCode(flowID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.flows[flowID]
	if !ok {
		return "", false
	}
	return flow.code, true
}

// Sent returns the messages the stub mail backend accepted.
func (s *Server) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

// The lookup helpers return copies: account pointers stay private to
// the lock so concurrent handlers never share a mutable *Account.
func (s *Server) lookupByEmail(email string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return Account{}, false
	}
	return *acct, true
}

func (s *Server) lookupByAddress(address string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.byAddress[strings.ToLower(address)]
	if !ok {
		return Account{}, false
	}
	return *acct, true
}

func newOtpCode() string {
	return fmt.Sprintf("%06d", mrand.Intn(1000000))
}

// embeddedAddressFor derives a deterministic wallet address for an
// email, standing in for the provider's key custody.
func embeddedAddressFor(email string) string {
	hash := crypto.Keccak256([]byte(strings.ToLower(email)))
	return strings.ToLower(common.BytesToAddress(hash[12:]).Hex())
}

func newTxHash() string {
	n, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 256))
	return fmt.Sprintf("0x%064x", n)
}

func newClaimCode() string {
	return "claim-" + uuid.NewString()
}

// Package auth implements the session orchestrator. It merges two
// independent identity-establishment protocols, wallet-signature and
// embedded-wallet OTP, into one session model, persists and restores
// sessions across reloads, and auto-logs-out wallet sessions after a
// disconnection grace window.
package auth

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dexmail/dexmail-go/core"
	"github.com/dexmail/dexmail-go/internal/ethutil"
	"github.com/dexmail/dexmail-go/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultLogoutGrace is the delay between observing a wallet
// disconnect and logging out, long enough to tolerate the
// disconnect/reconnect churn of a page load.
const DefaultLogoutGrace = 2 * time.Second

// Config carries the orchestrator's collaborators and tunables.
// Backend, Wallet, Embedded and Store are required.
type Config struct {
	Backend  ports.AuthBackend
	Wallet   ports.WalletConnector
	Embedded ports.EmbeddedProvider
	Store    ports.SessionStore

	// Events receives best-effort login/logout notifications. May be nil.
	Events ports.EventPublisher

	// PlatformDomain is appended to bare usernames on wallet login.
	PlatformDomain string

	// LogoutGrace overrides DefaultLogoutGrace when positive.
	LogoutGrace time.Duration

	// RegistryAddress is the on-chain registry called during embedded
	// registration.
	RegistryAddress common.Address

	// OnLogout runs as the terminal side effect of every logout,
	// typically a navigation to the login entry point. May be nil.
	OnLogout func()

	Logger *slog.Logger
}

type pendingChallenge struct {
	email string
	token string
	nonce string
}

// Orchestrator owns the session. It is the single writer of the
// persisted session; all other components read it through Session.
type Orchestrator struct {
	backend  ports.AuthBackend
	wallet   ports.WalletConnector
	embedded ports.EmbeddedProvider
	store    ports.SessionStore
	events   ports.EventPublisher

	domain   string
	grace    time.Duration
	registry common.Address
	onLogout func()
	log      *slog.Logger

	mu            sync.Mutex
	session       *core.Session
	flow          *core.OtpFlow
	challenge     *pendingChallenge
	loginInFlight bool
	embeddedDone  bool
	lastWallet    core.WalletStatus
	logoutTimer   *time.Timer
}

// New builds an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	grace := cfg.LogoutGrace
	if grace <= 0 {
		grace = DefaultLogoutGrace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{
		backend:  cfg.Backend,
		wallet:   cfg.Wallet,
		embedded: cfg.Embedded,
		store:    cfg.Store,
		events:   cfg.Events,
		domain:   cfg.PlatformDomain,
		grace:    grace,
		registry: cfg.RegistryAddress,
		onLogout: cfg.OnLogout,
		log:      logger,
	}
}

// Session returns a copy of the current session, if any.
func (o *Orchestrator) Session() (core.Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return core.Session{}, false
	}
	return *o.session, true
}

// EmbeddedState reports the position of the embedded sign-in state
// machine.
func (o *Orchestrator) EmbeddedState() core.EmbeddedState {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.embeddedDone:
		return core.EmbeddedComplete
	case o.loginInFlight:
		return core.EmbeddedLoggingIn
	case o.flow != nil && o.flow.Verified:
		return core.EmbeddedOtpVerified
	case o.flow != nil:
		return core.EmbeddedOtpSent
	default:
		return core.EmbeddedIdle
	}
}

// RestoreSession re-establishes a persisted session on process start.
// path is the current navigation target. On an auth entry point any
// persisted session and any live embedded-provider session are
// unconditionally discarded, so a user on a login or registration page
// never silently inherits a stale login. Any restore failure degrades
// to "no session" rather than failing hard.
func (o *Orchestrator) RestoreSession(ctx context.Context, path string) (core.Session, bool) {
	if isAuthPath(path) {
		o.log.Debug("on auth entry point, discarding any persisted session", "path", path)
		if err := o.store.Clear(ctx); err != nil {
			o.log.Warn("failed to clear persisted session", "error", err)
		}
		if err := o.embedded.SignOut(ctx); err != nil {
			o.log.Warn("embedded provider sign-out failed", "error", err)
		}
		return core.Session{}, false
	}

	sess, err := o.store.Load(ctx)
	if err != nil {
		if err != core.ErrNoSession {
			o.log.Warn("failed to load persisted session", "error", err)
		}
		return core.Session{}, false
	}

	if tokenExpired(sess.Token) {
		o.log.Info("persisted session token expired, clearing")
		o.clearPersisted(ctx)
		return core.Session{}, false
	}

	identity, err := o.backend.Profile(ctx, sess.Token)
	if err != nil {
		o.log.Warn("profile fetch failed, clearing session", "error", err)
		o.clearPersisted(ctx)
		return core.Session{}, false
	}

	sess.Identity = identity
	o.mu.Lock()
	o.session = &sess
	if sess.AuthType == core.AuthTypeEmbedded {
		o.embeddedDone = true
	}
	o.mu.Unlock()
	if err := o.store.Save(ctx, sess); err != nil {
		o.log.Warn("failed to persist refreshed session", "error", err)
	}
	return sess, true
}

// CreateChallenge requests a sign-in challenge for email and returns
// the nonce the wallet must sign. The challenge is held until the
// matching LoginWithWalletSignature or Register call.
func (o *Orchestrator) CreateChallenge(ctx context.Context, email string) (string, error) {
	email = o.normalizeEmail(email)
	if email == "" {
		return "", &core.ValidationError{Reason: "email is required"}
	}
	ch, err := o.backend.CreateChallenge(ctx, email)
	if err != nil {
		return "", core.Authf(err, "challenge request failed")
	}
	o.mu.Lock()
	o.challenge = &pendingChallenge{email: email, token: ch.Token, nonce: ch.Nonce}
	o.mu.Unlock()
	return ch.Nonce, nil
}

// LoginWithWalletSignature exchanges a previously requested challenge,
// signed with the wallet holding address, for a session.
func (o *Orchestrator) LoginWithWalletSignature(ctx context.Context, email, address, signature string) (core.Session, error) {
	email = o.normalizeEmail(email)
	switch {
	case email == "":
		return core.Session{}, &core.ValidationError{Reason: "email is required"}
	case address == "":
		return core.Session{}, &core.ValidationError{Reason: "wallet address is required"}
	case signature == "":
		return core.Session{}, &core.ValidationError{Reason: "signature is required"}
	}

	o.mu.Lock()
	ch := o.challenge
	o.mu.Unlock()
	if ch == nil || ch.email != email {
		return core.Session{}, core.Authf(nil, "no challenge requested for %s", email)
	}

	sess, err := o.backend.Login(ctx, ports.LoginRequest{
		Email:          email,
		Address:        address,
		Signature:      signature,
		ChallengeToken: ch.token,
		AuthType:       core.AuthTypeWallet,
	})
	if err != nil {
		return core.Session{}, core.Authf(err, "wallet login rejected")
	}

	o.mu.Lock()
	o.challenge = nil
	o.mu.Unlock()
	o.adopt(ctx, sess)
	return sess, nil
}

// LoginWithWallet runs the whole wallet-signature protocol against the
// connected wallet: challenge, personal_sign over the nonce, exchange.
func (o *Orchestrator) LoginWithWallet(ctx context.Context, email string) (core.Session, error) {
	status := o.wallet.Status()
	if !status.Connected || status.Address == "" {
		return core.Session{}, core.Authf(nil, "wallet not connected")
	}
	nonce, err := o.CreateChallenge(ctx, email)
	if err != nil {
		return core.Session{}, err
	}
	signature, err := o.wallet.SignMessage(ctx, nonce)
	if err != nil {
		return core.Session{}, core.Authf(err, "signature request failed")
	}
	return o.LoginWithWalletSignature(ctx, email, status.Address, signature)
}

// RegisterWithWallet creates an account bound to the connected
// external wallet and adopts its first session.
func (o *Orchestrator) RegisterWithWallet(ctx context.Context, email, basename string) (core.Session, error) {
	status := o.wallet.Status()
	if !status.Connected || status.Address == "" {
		return core.Session{}, core.Authf(nil, "wallet not connected")
	}
	email = o.normalizeEmail(email)
	if email == "" {
		return core.Session{}, &core.ValidationError{Reason: "email is required"}
	}
	nonce, err := o.CreateChallenge(ctx, email)
	if err != nil {
		return core.Session{}, err
	}
	signature, err := o.wallet.SignMessage(ctx, nonce)
	if err != nil {
		return core.Session{}, core.Authf(err, "signature request failed")
	}
	o.mu.Lock()
	ch := o.challenge
	o.challenge = nil
	o.mu.Unlock()
	if ch == nil {
		return core.Session{}, core.Authf(nil, "challenge discarded before registration")
	}

	sess, err := o.backend.Register(ctx, ports.RegisterRequest{
		Email:          email,
		Address:        status.Address,
		Signature:      signature,
		ChallengeToken: ch.token,
		Basename:       basename,
		AuthType:       core.AuthTypeWallet,
	})
	if err != nil {
		return core.Session{}, core.Authf(err, "wallet registration rejected")
	}
	o.adopt(ctx, sess)
	return sess, nil
}

// RegisterWithEmbeddedWallet creates an account bound to the signed-in
// embedded wallet. The on-chain registry entry is written first via
// submit, a sponsored call through the custodial provider.
func (o *Orchestrator) RegisterWithEmbeddedWallet(ctx context.Context, email string, submit ports.TxSubmitter) (core.Session, error) {
	email = o.normalizeEmail(email)
	if email == "" {
		return core.Session{}, &core.ValidationError{Reason: "email is required"}
	}
	if !o.embedded.IsSignedIn(ctx) {
		return core.Session{}, core.Authf(nil, "embedded provider session not live")
	}
	address := o.embedded.CurrentAddress(ctx)
	if address == "" {
		return core.Session{}, core.Authf(nil, "embedded wallet address unavailable")
	}
	if submit == nil {
		return core.Session{}, &core.ValidationError{Reason: "registration requires a signing function"}
	}

	data, err := ethutil.RegisterEmailData(email)
	if err != nil {
		return core.Session{}, core.Authf(err, "build registry call")
	}
	txRef, err := submit(ctx, []ports.TxCall{{To: o.registry, Data: data}})
	if err != nil {
		return core.Session{}, &core.TransferError{Reason: "registry call failed", Err: err}
	}
	o.log.Info("email registered on chain", "txRef", txRef)

	sess, err := o.backend.Register(ctx, ports.RegisterRequest{
		Email:         email,
		WalletAddress: strings.ToLower(address),
		AuthType:      core.AuthTypeEmbedded,
	})
	if err != nil {
		return core.Session{}, core.Authf(err, "embedded registration rejected")
	}
	o.adopt(ctx, sess)
	return sess, nil
}

// StartEmbeddedSignIn begins an email OTP flow with the custodial
// provider. At most one flow is active; starting a new one discards
// any prior unverified flow.
func (o *Orchestrator) StartEmbeddedSignIn(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", &core.ValidationError{Reason: "email is required"}
	}
	flowID, err := o.embedded.SignInWithEmail(ctx, email)
	if err != nil {
		return "", core.Authf(err, "failed to send OTP")
	}
	o.mu.Lock()
	if o.flow != nil {
		o.log.Info("discarding previous OTP flow", "flowId", o.flow.FlowID)
	}
	o.flow = &core.OtpFlow{FlowID: flowID, Email: email, SentAt: time.Now()}
	o.loginInFlight = false
	o.embeddedDone = false
	o.mu.Unlock()
	return flowID, nil
}

// VerifyEmbeddedOtp submits the code for flowID and marks the flow
// verified. It does not itself complete login: the custodial
// provider's session materializes asynchronously, so completion is
// driven by EvaluateEmbeddedLogin reacting to the conjunction of
// "OTP verified" and "provider session live".
func (o *Orchestrator) VerifyEmbeddedOtp(ctx context.Context, flowID, code string) error {
	if strings.TrimSpace(code) == "" {
		return &core.ValidationError{Reason: "code is required"}
	}
	o.mu.Lock()
	flow := o.flow
	o.mu.Unlock()
	if flow == nil || flow.FlowID != flowID {
		return core.ErrUnknownFlow
	}
	if err := o.embedded.VerifyEmailOTP(ctx, flowID, code); err != nil {
		// The flow id stays valid so the same code or a resend can be
		// retried.
		return core.Authf(err, "OTP verification failed")
	}
	o.mu.Lock()
	if o.flow != nil && o.flow.FlowID == flowID {
		o.flow.Verified = true
	}
	o.mu.Unlock()

	// The provider session may already be live; completion failures
	// here surface on the next evaluation.
	if _, ok := o.EvaluateEmbeddedLogin(ctx); !ok {
		o.log.Warn("embedded login attempt after OTP verification failed")
	}
	return nil
}

// EvaluateEmbeddedLogin recomputes the completion predicate over
// (otpVerified, providerSignedIn, address) and completes login when it
// holds. Callers invoke it on every provider state change; re-entrant
// evaluations while a completion is in flight are no-ops.
func (o *Orchestrator) EvaluateEmbeddedLogin(ctx context.Context) (core.Session, bool) {
	o.mu.Lock()
	ready := o.flow != nil && o.flow.Verified && !o.loginInFlight && !o.embeddedDone
	o.mu.Unlock()
	if !ready {
		return core.Session{}, false
	}
	if !o.embedded.IsSignedIn(ctx) {
		return core.Session{}, false
	}
	address := o.embedded.CurrentAddress(ctx)
	if address == "" {
		return core.Session{}, false
	}
	sess, err := o.CompleteEmbeddedLogin(ctx, address)
	if err != nil {
		o.log.Warn("embedded login completion failed", "error", err)
		return core.Session{}, false
	}
	return sess, true
}

// CompleteEmbeddedLogin exchanges the embedded wallet address for a
// session. It is attempted at most once per verified flow: concurrent
// attempts are rejected while one is in flight, and a failed attempt
// returns the flow to the verified state so a later evaluation can
// retry.
func (o *Orchestrator) CompleteEmbeddedLogin(ctx context.Context, address string) (core.Session, error) {
	o.mu.Lock()
	if o.embeddedDone {
		sess := o.session
		o.mu.Unlock()
		if sess != nil {
			return *sess, nil
		}
		return core.Session{}, core.ErrNoSession
	}
	if o.flow == nil || !o.flow.Verified {
		o.mu.Unlock()
		return core.Session{}, core.ErrUnknownFlow
	}
	if o.loginInFlight {
		o.mu.Unlock()
		return core.Session{}, core.Authf(nil, "login already in progress")
	}
	o.loginInFlight = true
	email := o.flow.Email
	o.mu.Unlock()

	sess, err := o.backend.Login(ctx, ports.LoginRequest{
		Email:         email,
		WalletAddress: strings.ToLower(address),
		AuthType:      core.AuthTypeEmbedded,
	})
	if err != nil {
		o.mu.Lock()
		o.loginInFlight = false
		o.mu.Unlock()
		return core.Session{}, core.Authf(err, "embedded login rejected")
	}

	o.mu.Lock()
	o.loginInFlight = false
	o.embeddedDone = true
	o.flow = nil
	o.mu.Unlock()
	o.adopt(ctx, sess)
	return sess, nil
}

// ResetEmbeddedFlow discards the current OTP flow, returning the
// state machine to idle. In-flight provider requests are left to
// resolve into a now-ignored flow id.
func (o *Orchestrator) ResetEmbeddedFlow() {
	o.mu.Lock()
	o.flow = nil
	o.loginInFlight = false
	o.embeddedDone = false
	o.mu.Unlock()
}

// SignOutEmbedded signs out of the custodial provider and discards
// the OTP flow.
func (o *Orchestrator) SignOutEmbedded(ctx context.Context) error {
	err := o.embedded.SignOut(ctx)
	o.ResetEmbeddedFlow()
	if err != nil {
		return core.Authf(err, "embedded provider sign-out failed")
	}
	return nil
}

// RefreshSession re-fetches the profile behind the current session.
// Auth failures log out; anything else degrades to the stale profile.
func (o *Orchestrator) RefreshSession(ctx context.Context) error {
	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()
	if sess == nil {
		return core.ErrNoSession
	}
	identity, err := o.backend.Profile(ctx, sess.Token)
	if err != nil {
		if core.IsAuth(err) {
			o.log.Info("session no longer valid, logging out", "error", err)
			o.Logout(ctx)
			return err
		}
		o.log.Warn("profile refresh failed, keeping stale profile", "error", err)
		return nil
	}
	o.mu.Lock()
	if o.session != nil {
		o.session.Identity = identity
		sess = o.session
	}
	o.mu.Unlock()
	if err := o.store.Save(ctx, *sess); err != nil {
		o.log.Warn("failed to persist refreshed session", "error", err)
	}
	return nil
}

// Logout tears the session down: embedded-custodial sessions sign out
// of the provider (best-effort), persisted state is cleared
// unconditionally, and the configured terminal side effect runs.
func (o *Orchestrator) Logout(ctx context.Context) {
	o.mu.Lock()
	sess := o.session
	o.session = nil
	o.flow = nil
	o.challenge = nil
	o.loginInFlight = false
	o.embeddedDone = false
	if o.logoutTimer != nil {
		o.logoutTimer.Stop()
		o.logoutTimer = nil
	}
	o.mu.Unlock()

	if sess != nil && sess.AuthType == core.AuthTypeEmbedded {
		if err := o.embedded.SignOut(ctx); err != nil {
			o.log.Warn("embedded provider sign-out failed", "error", err)
		}
	}
	if err := o.store.Clear(ctx); err != nil {
		o.log.Warn("failed to clear persisted session", "error", err)
	}
	if sess != nil && o.events != nil {
		if err := o.events.PublishLogout(ctx, sess.Identity.WalletAddress, sess.AuthType); err != nil {
			o.log.Warn("failed to publish logout event", "error", err)
		}
	}
	o.log.Info("logged out")
	if o.onLogout != nil {
		o.onLogout()
	}
}

// HandleWalletStatus feeds a wallet connection change into the
// auto-logout watchdog. Every change cancels any pending logout; a
// disconnected status with no reconnection in progress arms the grace
// timer, so only the most recent disconnect observation can fire.
// The watchdog applies to wallet-signature sessions only.
func (o *Orchestrator) HandleWalletStatus(status core.WalletStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastWallet = status

	if o.logoutTimer != nil {
		o.logoutTimer.Stop()
		o.logoutTimer = nil
	}
	if o.session == nil || o.session.AuthType != core.AuthTypeWallet {
		return
	}
	if status.Connected || status.Connecting || status.Reconnecting {
		return
	}
	o.log.Debug("wallet disconnected, arming logout grace timer", "grace", o.grace)
	o.logoutTimer = time.AfterFunc(o.grace, o.watchdogFired)
}

func (o *Orchestrator) watchdogFired() {
	o.mu.Lock()
	armed := o.logoutTimer != nil
	o.logoutTimer = nil
	status := o.lastWallet
	sess := o.session
	o.mu.Unlock()

	if !armed || sess == nil || sess.AuthType != core.AuthTypeWallet {
		return
	}
	if status.Connected || status.Connecting || status.Reconnecting {
		return
	}
	o.log.Info("wallet disconnected past grace period, logging out")
	o.Logout(context.Background())
}

// adopt installs a freshly issued session, persists it and publishes
// the login event.
func (o *Orchestrator) adopt(ctx context.Context, sess core.Session) {
	o.mu.Lock()
	s := sess
	o.session = &s
	o.mu.Unlock()
	if err := o.store.Save(ctx, sess); err != nil {
		o.log.Warn("failed to persist session", "error", err)
	}
	if o.events != nil {
		if err := o.events.PublishLogin(ctx, sess.Identity.WalletAddress, sess.AuthType); err != nil {
			o.log.Warn("failed to publish login event", "error", err)
		}
	}
	o.log.Info("session established", "authType", sess.AuthType, "email", sess.Identity.Email)
}

func (o *Orchestrator) clearPersisted(ctx context.Context) {
	if err := o.store.Clear(ctx); err != nil {
		o.log.Warn("failed to clear persisted session", "error", err)
	}
}

// normalizeEmail appends the platform domain to bare usernames.
func (o *Orchestrator) normalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	if !strings.Contains(email, "@") && o.domain != "" {
		return email + "@" + o.domain
	}
	return email
}

func isAuthPath(path string) bool {
	return strings.HasPrefix(path, "/login") || strings.HasPrefix(path, "/register")
}

// tokenExpired checks the exp claim of a JWT session token without
// verifying its signature; the backend stays authoritative. Opaque
// tokens are never treated as expired here.
func tokenExpired(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(time.Now())
}

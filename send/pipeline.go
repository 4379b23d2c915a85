// Package send implements the outgoing-message pipeline: validation,
// recipient normalization, crypto-transfer classification, transfer
// payload construction and submission, and the mail backend call.
package send

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/dexmail/dexmail-go/core"
	"github.com/dexmail/dexmail-go/internal/ethutil"
	"github.com/dexmail/dexmail-go/ports"
	"github.com/ethereum/go-ethereum/common"
)

// Config carries the pipeline's collaborators. Mail and Embedded are
// required.
type Config struct {
	Mail     ports.MailBackend
	Embedded ports.EmbeddedProvider

	// PlatformDomain is the suffix that marks platform recipients,
	// e.g. "dexmail.app". Transfers are only eligible when every
	// recipient belongs to it.
	PlatformDomain string

	// EscrowAddress receives escrowed assets of attached transfers.
	EscrowAddress common.Address

	Logger *slog.Logger
}

// Pipeline sends composed messages. Sends on one pipeline are
// mutually exclusive: a second Send while one is in flight is
// rejected with core.ErrSendInFlight.
type Pipeline struct {
	mail     ports.MailBackend
	embedded ports.EmbeddedProvider
	domain   string
	escrow   common.Address
	log      *slog.Logger

	mu       sync.Mutex
	inFlight bool
}

// New builds a Pipeline from cfg.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		mail:     cfg.Mail,
		embedded: cfg.Embedded,
		domain:   cfg.PlatformDomain,
		escrow:   cfg.EscrowAddress,
		log:      logger,
	}
}

// Send validates and submits draft on behalf of from. submit is the
// caller-supplied signing function used when a transfer is attached;
// it abstracts over external-wallet broadcasting and sponsored user
// operations. On success the draft is cleared; on failure at any step
// it is left untouched so the user can retry without re-entering data.
func (p *Pipeline) Send(ctx context.Context, from core.Identity, draft *Draft, authType core.AuthType, session core.Session, submit ports.TxSubmitter) (core.SendResult, error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return core.SendResult{}, core.ErrSendInFlight
	}
	p.inFlight = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	msg, err := p.buildMessage(from, draft)
	if err != nil {
		return core.SendResult{}, err
	}

	// An embedded-custodial session must still be live before any
	// network or chain call, so a dead session never leaves a
	// half-built transaction behind.
	if authType == core.AuthTypeEmbedded && !p.embedded.IsSignedIn(ctx) {
		return core.SendResult{}, core.Authf(nil, "session expired")
	}

	var txRef string
	if msg.Transfer != nil {
		if submit == nil {
			return core.SendResult{}, &core.ValidationError{Reason: "transfer requires a signing function"}
		}
		calls, err := p.buildTransferCalls(from, msg.Transfer.Assets)
		if err != nil {
			return core.SendResult{}, err
		}
		txRef, err = submit(ctx, calls)
		if err != nil {
			return core.SendResult{}, &core.TransferError{Reason: "transfer submission failed", Err: err}
		}
		p.log.Info("transfer submitted", "txRef", txRef, "assets", len(msg.Transfer.Assets))
	}

	resp, err := p.mail.SendEmail(ctx, ports.SendEmailRequest{
		Token:    session.Token,
		From:     msg.From,
		To:       msg.To,
		Subject:  msg.Subject,
		Body:     msg.Body,
		Transfer: msg.Transfer,
		TxRef:    txRef,
	})
	if err != nil {
		if core.IsAuth(err) || core.IsBackend(err) || core.IsTransfer(err) {
			return core.SendResult{}, err
		}
		return core.SendResult{}, &core.BackendError{Reason: "send failed", Err: err}
	}

	result := classify(resp, txRef)
	p.log.Info("message sent", "messageId", result.MessageID, "outcome", result.Kind)
	draft.Reset()
	return result, nil
}

// buildMessage validates the draft and produces a normalized message.
// Everything here is local; no network call has happened yet.
func (p *Pipeline) buildMessage(from core.Identity, draft *Draft) (core.OutgoingMessage, error) {
	if from.Email == "" {
		return core.OutgoingMessage{}, &core.ValidationError{Reason: "sender identity missing"}
	}
	if len(draft.To) == 0 {
		return core.OutgoingMessage{}, &core.ValidationError{Reason: "at least one recipient is required"}
	}
	if strings.TrimSpace(draft.Subject) == "" {
		return core.OutgoingMessage{}, &core.ValidationError{Reason: "subject is required"}
	}
	if strings.TrimSpace(draft.Body) == "" {
		return core.OutgoingMessage{}, &core.ValidationError{Reason: "body is required"}
	}

	recipients := make([]string, 0, len(draft.To))
	seen := make(map[string]struct{}, len(draft.To))
	for _, raw := range draft.To {
		addr := NormalizeRecipient(raw, p.domain)
		if addr == "" {
			return core.OutgoingMessage{}, &core.ValidationError{Reason: "empty recipient address"}
		}
		if _, dup := seen[addr]; dup {
			return core.OutgoingMessage{}, core.Validationf("duplicate recipient %s", addr)
		}
		seen[addr] = struct{}{}
		recipients = append(recipients, addr)
	}

	msg := core.OutgoingMessage{
		From:    from.Email,
		To:      recipients,
		Subject: draft.Subject,
		Body:    draft.Body,
	}

	if draft.TransferEnabled {
		// Transfers never proceed silently against ineligible
		// recipients, even if the UI let them through.
		for _, addr := range recipients {
			if !p.isPlatformRecipient(addr) {
				return core.OutgoingMessage{}, core.Validationf("crypto transfer requires platform recipients, %s is external", addr)
			}
		}
		if len(draft.Assets) == 0 {
			return core.OutgoingMessage{}, &core.ValidationError{Reason: "transfer enabled with no assets"}
		}
		if len(recipients) > 1 {
			return core.OutgoingMessage{}, &core.ValidationError{Reason: "multi-recipient crypto transfer unsupported"}
		}
		msg.Transfer = &core.CryptoTransfer{Assets: draft.Assets}
	}
	return msg, nil
}

// buildTransferCalls turns the asset list into the call batch handed
// to the signing function. Assets are escrowed with the platform; the
// backend later settles them directly or issues a claim code.
func (p *Pipeline) buildTransferCalls(from core.Identity, assets []core.Asset) ([]ports.TxCall, error) {
	sender := common.HexToAddress(from.WalletAddress)
	calls := make([]ports.TxCall, 0, len(assets))
	for _, asset := range assets {
		switch asset.Kind {
		case core.AssetNative:
			if !asset.Amount.IsPositive() {
				return nil, core.Validationf("native amount must be positive, got %s", asset.Amount)
			}
			calls = append(calls, ports.TxCall{To: p.escrow, Value: ethutil.ToWei(asset.Amount, 18)})
		case core.AssetFungible:
			if !asset.Amount.IsPositive() {
				return nil, core.Validationf("token amount must be positive, got %s", asset.Amount)
			}
			data, err := ethutil.Erc20TransferData(p.escrow, ethutil.ToWei(asset.Amount, 18))
			if err != nil {
				return nil, &core.TransferError{Reason: "pack token transfer", Err: err}
			}
			calls = append(calls, ports.TxCall{To: asset.Contract, Data: data})
		case core.AssetNonFungible:
			tokenID, ok := parseTokenID(asset.TokenID)
			if !ok {
				return nil, core.Validationf("invalid token id %q", asset.TokenID)
			}
			data, err := ethutil.Erc721TransferData(sender, p.escrow, tokenID)
			if err != nil {
				return nil, &core.TransferError{Reason: "pack nft transfer", Err: err}
			}
			calls = append(calls, ports.TxCall{To: asset.Contract, Data: data})
		default:
			return nil, core.Validationf("unsupported asset kind %q", asset.Kind)
		}
	}
	return calls, nil
}

func (p *Pipeline) isPlatformRecipient(addr string) bool {
	return p.domain != "" && strings.HasSuffix(strings.ToLower(addr), "@"+strings.ToLower(p.domain))
}

// classify maps the backend's report onto the typed result. The
// backend alone decides between direct settlement and a claim code.
func classify(resp ports.SendEmailResponse, txRef string) core.SendResult {
	switch {
	case resp.IsDirectTransfer:
		hash := resp.TxHash
		if hash == "" {
			hash = txRef
		}
		return core.SendResult{Kind: core.SendDirectTransfer, MessageID: resp.MessageID, TxHash: hash}
	case resp.ClaimCode != "":
		return core.SendResult{Kind: core.SendClaimIssued, MessageID: resp.MessageID, ClaimCode: resp.ClaimCode}
	default:
		return core.SendResult{Kind: core.SendPlain, MessageID: resp.MessageID}
	}
}

// NormalizeRecipient trims raw and lower-cases it when it belongs to
// the platform domain, matching what the backend stores. External
// addresses pass through with only the whitespace trim. The function
// is idempotent.
func NormalizeRecipient(raw, domain string) string {
	addr := strings.TrimSpace(raw)
	if domain != "" && strings.HasSuffix(strings.ToLower(addr), "@"+strings.ToLower(domain)) {
		return strings.ToLower(addr)
	}
	return addr
}

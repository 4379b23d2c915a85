package send

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexmail/dexmail-go/core"
	"github.com/dexmail/dexmail-go/ports"
)

var (
	testEscrow = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	testToken  = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type fakeMail struct {
	mu      sync.Mutex
	calls   []ports.SendEmailRequest
	resp    ports.SendEmailResponse
	err     error
	entered chan struct{} // closed when SendEmail is reached, if set
	release chan struct{} // blocks SendEmail until closed, if set
}

func (m *fakeMail) SendEmail(ctx context.Context, req ports.SendEmailRequest) (ports.SendEmailResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	entered, release := m.entered, m.release
	m.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if release != nil {
		<-release
	}
	if m.err != nil {
		return ports.SendEmailResponse{}, m.err
	}
	return m.resp, nil
}

func (m *fakeMail) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type stubEmbedded struct {
	signedIn bool
	reads    int
}

func (e *stubEmbedded) SignInWithEmail(ctx context.Context, email string) (string, error) {
	return "", errors.New("not implemented")
}
func (e *stubEmbedded) VerifyEmailOTP(ctx context.Context, flowID, code string) error {
	return errors.New("not implemented")
}
func (e *stubEmbedded) SignOut(ctx context.Context) error { return nil }
func (e *stubEmbedded) IsSignedIn(ctx context.Context) bool {
	e.reads++
	return e.signedIn
}
func (e *stubEmbedded) CurrentAddress(ctx context.Context) string { return "" }

type submitRecorder struct {
	calls [][]ports.TxCall
	ref   string
	err   error
}

func (s *submitRecorder) submit(ctx context.Context, calls []ports.TxCall) (string, error) {
	s.calls = append(s.calls, calls)
	if s.err != nil {
		return "", s.err
	}
	return s.ref, nil
}

func newTestPipeline(mail *fakeMail, embedded *stubEmbedded) *Pipeline {
	return New(Config{
		Mail:           mail,
		Embedded:       embedded,
		PlatformDomain: "dexmail.app",
		EscrowAddress:  testEscrow,
	})
}

func sender() core.Identity {
	return core.Identity{
		Email:         "alice@dexmail.app",
		WalletAddress: "0x1111111111111111111111111111111111111111",
	}
}

func plainDraft() *Draft {
	return &Draft{
		To:      []string{"bob@dexmail.app"},
		Subject: "hello",
		Body:    "hi bob",
	}
}

func transferDraft(assets ...core.Asset) *Draft {
	d := plainDraft()
	d.TransferEnabled = true
	d.Assets = assets
	return d
}

func nativeAsset(amount string) core.Asset {
	return core.Asset{Kind: core.AssetNative, Amount: decimal.RequireFromString(amount)}
}

func TestSendPlain(t *testing.T) {
	mail := &fakeMail{resp: ports.SendEmailResponse{MessageID: "msg-1"}}
	p := newTestPipeline(mail, &stubEmbedded{})
	draft := plainDraft()
	rec := &submitRecorder{}

	result, err := p.Send(context.Background(), sender(), draft, core.AuthTypeWallet, core.Session{Token: "tok"}, rec.submit)
	require.NoError(t, err)
	assert.Equal(t, core.SendPlain, result.Kind)
	assert.Equal(t, "msg-1", result.MessageID)
	assert.Empty(t, rec.calls)
	assert.True(t, draft.Empty())

	require.Len(t, mail.calls, 1)
	assert.Equal(t, "tok", mail.calls[0].Token)
	assert.Equal(t, []string{"bob@dexmail.app"}, mail.calls[0].To)
	assert.Nil(t, mail.calls[0].Transfer)
}

func TestSendValidation(t *testing.T) {
	for _, tc := range []struct {
		name  string
		draft *Draft
	}{
		{"no recipients", &Draft{Subject: "s", Body: "b"}},
		{"empty subject", &Draft{To: []string{"bob@dexmail.app"}, Subject: "  ", Body: "b"}},
		{"empty body", &Draft{To: []string{"bob@dexmail.app"}, Subject: "s", Body: " "}},
		{"empty recipient", &Draft{To: []string{"  "}, Subject: "s", Body: "b"}},
		{"duplicate recipient", &Draft{To: []string{"Bob@dexmail.app", "bob@dexmail.app"}, Subject: "s", Body: "b"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mail := &fakeMail{}
			p := newTestPipeline(mail, &stubEmbedded{})
			_, err := p.Send(context.Background(), sender(), tc.draft, core.AuthTypeWallet, core.Session{}, nil)
			assert.True(t, core.IsValidation(err), "got %v", err)
			assert.Equal(t, 0, mail.callCount())
		})
	}
}

func TestSendMissingSender(t *testing.T) {
	p := newTestPipeline(&fakeMail{}, &stubEmbedded{})
	_, err := p.Send(context.Background(), core.Identity{}, plainDraft(), core.AuthTypeWallet, core.Session{}, nil)
	assert.True(t, core.IsValidation(err))
}

func TestSendTransferRequiresPlatformRecipients(t *testing.T) {
	mail := &fakeMail{}
	p := newTestPipeline(mail, &stubEmbedded{})
	draft := transferDraft(nativeAsset("0.5"))
	draft.To = []string{"carol@example.com"}
	rec := &submitRecorder{}

	_, err := p.Send(context.Background(), sender(), draft, core.AuthTypeWallet, core.Session{}, rec.submit)
	assert.True(t, core.IsValidation(err))
	assert.Empty(t, rec.calls)
	assert.Equal(t, 0, mail.callCount())
	// The draft survives the rejection.
	assert.False(t, draft.Empty())
}

func TestSendTransferRejectsMultipleRecipients(t *testing.T) {
	mail := &fakeMail{}
	p := newTestPipeline(mail, &stubEmbedded{})
	draft := transferDraft(nativeAsset("0.5"))
	draft.To = []string{"bob@dexmail.app", "carol@dexmail.app"}
	rec := &submitRecorder{}

	_, err := p.Send(context.Background(), sender(), draft, core.AuthTypeWallet, core.Session{}, rec.submit)
	assert.True(t, core.IsValidation(err))
	assert.Empty(t, rec.calls)
	assert.Equal(t, 0, mail.callCount())
}

func TestSendTransferWithoutAssets(t *testing.T) {
	p := newTestPipeline(&fakeMail{}, &stubEmbedded{})
	draft := transferDraft()
	_, err := p.Send(context.Background(), sender(), draft, core.AuthTypeWallet, core.Session{}, nil)
	assert.True(t, core.IsValidation(err))
}

func TestSendTransferWithoutSubmitter(t *testing.T) {
	p := newTestPipeline(&fakeMail{}, &stubEmbedded{})
	_, err := p.Send(context.Background(), sender(), transferDraft(nativeAsset("1")), core.AuthTypeWallet, core.Session{}, nil)
	assert.True(t, core.IsValidation(err))
}

func TestSendEmbeddedDeadSession(t *testing.T) {
	mail := &fakeMail{}
	embedded := &stubEmbedded{signedIn: false}
	p := newTestPipeline(mail, embedded)
	draft := transferDraft(nativeAsset("1"))
	rec := &submitRecorder{ref: "0xabc"}

	_, err := p.Send(context.Background(), sender(), draft, core.AuthTypeEmbedded, core.Session{Token: "tok"}, rec.submit)
	assert.True(t, core.IsAuth(err))
	// Rejected before any chain or network call.
	assert.Empty(t, rec.calls)
	assert.Equal(t, 0, mail.callCount())
	assert.False(t, draft.Empty())
}

func TestSendEmbeddedLiveSession(t *testing.T) {
	mail := &fakeMail{resp: ports.SendEmailResponse{MessageID: "msg-2"}}
	embedded := &stubEmbedded{signedIn: true}
	p := newTestPipeline(mail, embedded)

	result, err := p.Send(context.Background(), sender(), plainDraft(), core.AuthTypeEmbedded, core.Session{Token: "tok"}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.SendPlain, result.Kind)
	assert.Equal(t, 1, embedded.reads)
}

func TestSendDirectTransfer(t *testing.T) {
	mail := &fakeMail{resp: ports.SendEmailResponse{
		MessageID:        "msg-3",
		IsDirectTransfer: true,
		TxHash:           "0xsettled",
	}}
	p := newTestPipeline(mail, &stubEmbedded{})
	draft := transferDraft(nativeAsset("0.25"))
	rec := &submitRecorder{ref: "0xsubmitted"}

	result, err := p.Send(context.Background(), sender(), draft, core.AuthTypeWallet, core.Session{Token: "tok"}, rec.submit)
	require.NoError(t, err)
	assert.Equal(t, core.SendDirectTransfer, result.Kind)
	assert.Equal(t, "0xsettled", result.TxHash)
	assert.Empty(t, result.ClaimCode)
	assert.True(t, draft.Empty())

	require.Len(t, rec.calls, 1)
	require.Len(t, mail.calls, 1)
	assert.Equal(t, "0xsubmitted", mail.calls[0].TxRef)
}

func TestSendDirectTransferFallsBackToTxRef(t *testing.T) {
	mail := &fakeMail{resp: ports.SendEmailResponse{MessageID: "msg-4", IsDirectTransfer: true}}
	p := newTestPipeline(mail, &stubEmbedded{})
	rec := &submitRecorder{ref: "0xsubmitted"}

	result, err := p.Send(context.Background(), sender(), transferDraft(nativeAsset("1")), core.AuthTypeWallet, core.Session{}, rec.submit)
	require.NoError(t, err)
	assert.Equal(t, "0xsubmitted", result.TxHash)
}

func TestSendClaimIssued(t *testing.T) {
	mail := &fakeMail{resp: ports.SendEmailResponse{MessageID: "msg-5", ClaimCode: "claim-xyz"}}
	p := newTestPipeline(mail, &stubEmbedded{})
	rec := &submitRecorder{ref: "0xsubmitted"}

	result, err := p.Send(context.Background(), sender(), transferDraft(nativeAsset("1")), core.AuthTypeWallet, core.Session{}, rec.submit)
	require.NoError(t, err)
	assert.Equal(t, core.SendClaimIssued, result.Kind)
	assert.Equal(t, "claim-xyz", result.ClaimCode)
	assert.Empty(t, result.TxHash)
}

func TestSendSubmissionFailureKeepsDraft(t *testing.T) {
	mail := &fakeMail{}
	p := newTestPipeline(mail, &stubEmbedded{})
	draft := transferDraft(nativeAsset("1"))
	rec := &submitRecorder{err: errors.New("user rejected")}

	_, err := p.Send(context.Background(), sender(), draft, core.AuthTypeWallet, core.Session{}, rec.submit)
	assert.True(t, core.IsTransfer(err))
	assert.Equal(t, 0, mail.callCount())
	assert.False(t, draft.Empty())
}

func TestSendBackendFailureKeepsDraft(t *testing.T) {
	mail := &fakeMail{err: &core.BackendError{Status: 500, Reason: "boom"}}
	p := newTestPipeline(mail, &stubEmbedded{})
	draft := plainDraft()

	_, err := p.Send(context.Background(), sender(), draft, core.AuthTypeWallet, core.Session{}, nil)
	assert.True(t, core.IsBackend(err))
	assert.False(t, draft.Empty())
}

func TestSendRejectsConcurrent(t *testing.T) {
	mail := &fakeMail{
		resp:    ports.SendEmailResponse{MessageID: "msg-6"},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	p := newTestPipeline(mail, &stubEmbedded{})

	done := make(chan error, 1)
	go func() {
		_, err := p.Send(context.Background(), sender(), plainDraft(), core.AuthTypeWallet, core.Session{}, nil)
		done <- err
	}()
	<-mail.entered

	_, err := p.Send(context.Background(), sender(), plainDraft(), core.AuthTypeWallet, core.Session{}, nil)
	assert.ErrorIs(t, err, core.ErrSendInFlight)

	close(mail.release)
	require.NoError(t, <-done)

	// Once the first send resolves the pipeline is free again.
	mail.mu.Lock()
	mail.entered, mail.release = nil, nil
	mail.mu.Unlock()
	_, err = p.Send(context.Background(), sender(), plainDraft(), core.AuthTypeWallet, core.Session{}, nil)
	assert.NoError(t, err)
}

func TestBuildTransferCalls(t *testing.T) {
	p := newTestPipeline(&fakeMail{}, &stubEmbedded{})
	from := sender()

	calls, err := p.buildTransferCalls(from, []core.Asset{
		nativeAsset("1.5"),
		{Kind: core.AssetFungible, Contract: testToken, Amount: decimal.RequireFromString("10")},
		{Kind: core.AssetNonFungible, Contract: testToken, TokenID: "7"},
	})
	require.NoError(t, err)
	require.Len(t, calls, 3)

	// Native value goes straight to escrow.
	assert.Equal(t, testEscrow, calls[0].To)
	assert.Equal(t, "1500000000000000000", calls[0].Value.String())
	assert.Empty(t, calls[0].Data)

	// transfer(address,uint256)
	assert.Equal(t, testToken, calls[1].To)
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, calls[1].Data[:4])

	// safeTransferFrom(address,address,uint256)
	assert.Equal(t, testToken, calls[2].To)
	assert.Equal(t, []byte{0x42, 0x84, 0x2e, 0x0e}, calls[2].Data[:4])
}

func TestBuildTransferCallsValidation(t *testing.T) {
	p := newTestPipeline(&fakeMail{}, &stubEmbedded{})
	from := sender()

	for _, tc := range []struct {
		name  string
		asset core.Asset
	}{
		{"zero native amount", nativeAsset("0")},
		{"negative native amount", nativeAsset("-1")},
		{"zero token amount", core.Asset{Kind: core.AssetFungible, Contract: testToken, Amount: decimal.Zero}},
		{"bad token id", core.Asset{Kind: core.AssetNonFungible, Contract: testToken, TokenID: "seven"}},
		{"negative token id", core.Asset{Kind: core.AssetNonFungible, Contract: testToken, TokenID: "-1"}},
		{"unknown kind", core.Asset{Kind: "warrant"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.buildTransferCalls(from, []core.Asset{tc.asset})
			assert.True(t, core.IsValidation(err), "got %v", err)
		})
	}
}

func TestNormalizeRecipient(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"  Bob@DexMail.App  ", "bob@dexmail.app"},
		{"bob@dexmail.app", "bob@dexmail.app"},
		{"  Carol@Example.COM ", "Carol@Example.COM"},
		{"", ""},
	} {
		got := NormalizeRecipient(tc.in, "dexmail.app")
		assert.Equal(t, tc.want, got)
		// Idempotent.
		assert.Equal(t, got, NormalizeRecipient(got, "dexmail.app"))
	}
}

func TestNormalizeRecipientNoDomain(t *testing.T) {
	assert.Equal(t, "Bob@DexMail.App", NormalizeRecipient(" Bob@DexMail.App ", ""))
}

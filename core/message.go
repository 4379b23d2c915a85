package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// AssetKind tags the variant of an attached asset.
type AssetKind string

const (
	// AssetNative is the chain's native currency.
	AssetNative AssetKind = "eth"

	// AssetFungible is an ERC-20 token.
	AssetFungible AssetKind = "erc20"

	// AssetNonFungible is an ERC-721 token.
	AssetNonFungible AssetKind = "nft"
)

// Asset is one crypto asset attached to an outgoing message.
// Contract and Symbol apply to fungible assets, TokenID to
// non-fungible ones, Amount to native and fungible ones.
type Asset struct {
	Kind     AssetKind       `json:"type"`
	Contract common.Address  `json:"token,omitempty"`
	Amount   decimal.Decimal `json:"amount,omitempty"`
	Symbol   string          `json:"symbol,omitempty"`
	TokenID  string          `json:"tokenId,omitempty"`
}

// TransferMode classifies how an attached transfer executes.
type TransferMode string

const (
	// TransferDirect is an immediate on-chain transfer to a recipient
	// whose address the backend can resolve. Requires exactly one
	// recipient.
	TransferDirect TransferMode = "direct"

	// TransferClaimCode escrows the assets behind a backend-issued
	// claim code until the recipient registers.
	TransferClaimCode TransferMode = "claim"
)

// CryptoTransfer is the asset attachment of an outgoing message.
// Assets must be non-empty when a transfer is enabled.
type CryptoTransfer struct {
	Assets []Asset      `json:"assets"`
	Mode   TransferMode `json:"mode,omitempty"`
}

// OutgoingMessage is a validated, normalized message ready for the
// mail backend. Recipient order is irrelevant and duplicates are
// forbidden.
type OutgoingMessage struct {
	From     string          `json:"from"`
	To       []string        `json:"to"`
	Subject  string          `json:"subject"`
	Body     string          `json:"body"`
	Transfer *CryptoTransfer `json:"transfer,omitempty"`
}

// SendResultKind tags the variant of a send outcome.
type SendResultKind int

const (
	// SendPlain is a message delivered without any crypto transfer.
	SendPlain SendResultKind = iota

	// SendDirectTransfer is a message whose transfer executed
	// immediately on chain.
	SendDirectTransfer

	// SendClaimIssued is a message whose transfer was escrowed behind
	// a claim code for a not-yet-registered recipient.
	SendClaimIssued
)

// SendResult is the typed outcome of a send operation. The backend,
// not the client, decides which variant applies; the pipeline only
// surfaces it.
type SendResult struct {
	Kind      SendResultKind
	MessageID string
	TxHash    string
	ClaimCode string
}

package backend

import (
	"context"
	"net/http"

	"github.com/dexmail/dexmail-go/core"
	"github.com/dexmail/dexmail-go/ports"
)

type sendEmailRequest struct {
	From     string               `json:"from"`
	To       []string             `json:"to"`
	Subject  string               `json:"subject"`
	Body     string               `json:"body"`
	Transfer *core.CryptoTransfer `json:"transfer,omitempty"`
	TxRef    string               `json:"txRef,omitempty"`
}

type sendEmailResponse struct {
	MessageID        string `json:"messageId"`
	IsDirectTransfer bool   `json:"isDirectTransfer"`
	ClaimCode        string `json:"claimCode,omitempty"`
	TxHash           string `json:"txHash,omitempty"`
}

// SendEmail submits an outgoing message to the mail backend, which
// decides and reports whether an attached transfer executed directly
// or was escrowed behind a claim code.
func (c *Client) SendEmail(ctx context.Context, req ports.SendEmailRequest) (ports.SendEmailResponse, error) {
	var resp sendEmailResponse
	err := c.do(ctx, http.MethodPost, "/mail/send", req.Token, sendEmailRequest{
		From:     req.From,
		To:       req.To,
		Subject:  req.Subject,
		Body:     req.Body,
		Transfer: req.Transfer,
		TxRef:    req.TxRef,
	}, &resp)
	if err != nil {
		return ports.SendEmailResponse{}, err
	}
	return ports.SendEmailResponse{
		MessageID:        resp.MessageID,
		IsDirectTransfer: resp.IsDirectTransfer,
		ClaimCode:        resp.ClaimCode,
		TxHash:           resp.TxHash,
	}, nil
}

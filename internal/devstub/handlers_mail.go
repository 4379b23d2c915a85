package devstub

import (
	"net/http"
	"strings"

	"github.com/dexmail/dexmail-go/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type sendEmailRequest struct {
	From     string               `json:"from" binding:"required"`
	To       []string             `json:"to" binding:"required"`
	Subject  string               `json:"subject" binding:"required"`
	Body     string               `json:"body" binding:"required"`
	Transfer *core.CryptoTransfer `json:"transfer"`
	TxRef    string               `json:"txRef"`
}

// handleSendEmail accepts a message and classifies any attached
// transfer: recipients resolvable to a wallet address settle
// directly, everyone else gets a claim code against the escrow.
func (s *Server) handleSendEmail(c *gin.Context) {
	var req sendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	msg := SentMessage{
		MessageID: uuid.NewString(),
		From:      req.From,
		To:        req.To,
		Subject:   req.Subject,
		Body:      req.Body,
		Transfer:  req.Transfer,
		TxRef:     req.TxRef,
	}

	resp := gin.H{"messageId": msg.MessageID, "isDirectTransfer": false}
	if req.Transfer != nil {
		if len(req.Transfer.Assets) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "transfer without assets"})
			return
		}
		if len(req.To) != 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "transfer requires exactly one recipient"})
			return
		}
		recipient := strings.ToLower(req.To[0])
		acct, registered := s.lookupByEmail(recipient)
		if registered && acct.WalletAddress != "" {
			txHash := req.TxRef
			if txHash == "" {
				txHash = newTxHash()
			}
			resp["isDirectTransfer"] = true
			resp["txHash"] = txHash
		} else {
			msg.ClaimCode = newClaimCode()
			resp["claimCode"] = msg.ClaimCode
		}
	}

	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	c.JSON(http.StatusOK, resp)
}

package devstub

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dexmail/dexmail-go/core"
	"github.com/dexmail/dexmail-go/internal/ethutil"
	"github.com/gin-gonic/gin"
)

type userPayload struct {
	Email         string        `json:"email"`
	WalletAddress string        `json:"walletAddress,omitempty"`
	Basename      string        `json:"basename,omitempty"`
	AuthType      core.AuthType `json:"authType"`
}

func toPayload(acct Account) userPayload {
	return userPayload{
		Email:         acct.Email,
		WalletAddress: acct.WalletAddress,
		Basename:      acct.Basename,
		AuthType:      acct.AuthType,
	}
}

func (s *Server) handleChallenge(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if !strings.Contains(req.Email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed email"})
		return
	}

	nonce, err := newNonce()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create challenge"})
		return
	}
	token, err := s.issueChallengeToken(req.Email, nonce)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create challenge"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "nonce": nonce})
}

type credentialsRequest struct {
	Email          string        `json:"email"`
	Address        string        `json:"address"`
	Signature      string        `json:"signature"`
	ChallengeToken string        `json:"challengeToken"`
	WalletAddress  string        `json:"walletAddress"`
	Basename       string        `json:"basename"`
	AuthType       core.AuthType `json:"authType"`
}

// verifyWalletCredentials checks the challenge token and the
// personal_sign signature over its nonce.
func (s *Server) verifyWalletCredentials(req credentialsRequest) (string, bool) {
	claims, err := s.parseChallengeToken(req.ChallengeToken)
	if err != nil {
		return "invalid or expired challenge", false
	}
	if !strings.EqualFold(claims.Subject, req.Email) {
		return "challenge issued for a different email", false
	}
	recovered, err := ethutil.RecoverPersonal([]byte(claims.Nonce), req.Signature)
	if err != nil {
		return "invalid signature", false
	}
	if !strings.EqualFold(recovered.Hex(), req.Address) {
		return "signature does not match address", false
	}
	return "", true
}

func (s *Server) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	switch req.AuthType {
	case core.AuthTypeWallet:
		if reason, ok := s.verifyWalletCredentials(req); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": reason})
			return
		}
		s.mu.Lock()
		acct, ok := s.accounts[strings.ToLower(req.Email)]
		var snapshot Account
		if ok {
			acct.WalletAddress = strings.ToLower(req.Address)
			s.byAddress[acct.WalletAddress] = acct
			snapshot = *acct
		}
		s.mu.Unlock()
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account not found"})
			return
		}
		s.respondWithSession(c, snapshot)

	case core.AuthTypeEmbedded:
		if req.WalletAddress == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "walletAddress is required"})
			return
		}
		acct, ok := s.lookupByAddress(req.WalletAddress)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account not found"})
			return
		}
		s.respondWithSession(c, acct)

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported auth type"})
	}
}

func (s *Server) handleRegister(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	if _, exists := s.lookupByEmail(req.Email); exists {
		c.JSON(http.StatusConflict, gin.H{"error": "account already exists"})
		return
	}

	acct := Account{Email: req.Email, Basename: req.Basename, AuthType: req.AuthType}
	switch req.AuthType {
	case core.AuthTypeWallet:
		if reason, ok := s.verifyWalletCredentials(req); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": reason})
			return
		}
		acct.WalletAddress = strings.ToLower(req.Address)
	case core.AuthTypeEmbedded:
		if req.WalletAddress == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "walletAddress is required"})
			return
		}
		acct.WalletAddress = strings.ToLower(req.WalletAddress)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported auth type"})
		return
	}

	s.mu.Lock()
	stored := acct
	s.accounts[strings.ToLower(acct.Email)] = &stored
	s.byAddress[acct.WalletAddress] = &stored
	s.mu.Unlock()
	s.respondWithSession(c, acct)
}

func (s *Server) respondWithSession(c *gin.Context, acct Account) {
	token, err := s.issueSessionToken(acct.Email, acct.WalletAddress)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	if s.events != nil {
		// Announcement only; a publish failure never fails the login.
		if err := s.events.PublishLogin(c.Request.Context(), acct.WalletAddress, acct.AuthType); err != nil {
			slog.Warn("failed to publish login event", "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": toPayload(acct)})
}

// sessionMiddleware validates the bearer session token and stores the
// account email in the request context.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}
		claims, err := s.parseSessionToken(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("userEmail", claims.Subject)
		c.Next()
	}
}

func (s *Server) handleProfile(c *gin.Context) {
	email := c.GetString("userEmail")
	acct, ok := s.lookupByEmail(email)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not found"})
		return
	}
	c.JSON(http.StatusOK, toPayload(acct))
}

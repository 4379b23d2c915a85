package devstub

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// The /cdp endpoints stand in for the custodial embedded-wallet
// provider: email OTP flows, a bearer-token session and a
// provider-managed wallet address.

func (s *Server) handleOtpStart(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	flowID := uuid.NewString()
	s.mu.Lock()
	s.flows[flowID] = &otpFlow{email: req.Email, code: newOtpCode()}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"flowId": flowID})
}

func (s *Server) handleOtpVerify(c *gin.Context) {
	var req struct {
		FlowID string `json:"flowId" binding:"required"`
		OTP    string `json:"otp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.mu.Lock()
	flow, ok := s.flows[req.FlowID]
	if !ok || flow.code != req.OTP {
		s.mu.Unlock()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired code"})
		return
	}
	delete(s.flows, req.FlowID)
	token := uuid.NewString()
	s.providerSessions[token] = &providerSession{
		email:   flow.email,
		address: embeddedAddressFor(flow.email),
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) providerSessionFor(c *gin.Context) (*providerSession, bool) {
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.providerSessions[strings.TrimPrefix(auth, "Bearer ")]
	return sess, ok
}

func (s *Server) handleProviderSession(c *gin.Context) {
	sess, ok := s.providerSessionFor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signedIn": true, "address": sess.address})
}

func (s *Server) handleProviderSignOut(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		s.mu.Lock()
		delete(s.providerSessions, strings.TrimPrefix(auth, "Bearer "))
		s.mu.Unlock()
	}
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}

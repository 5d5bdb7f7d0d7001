package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/service"
)

// TokenHandler manages the caller's CLI API tokens.
type TokenHandler struct {
	Sessions *service.SessionService
	Logger   *zap.Logger
}

// NewTokenHandler wires the token endpoints.
func NewTokenHandler(sessions *service.SessionService, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{Sessions: sessions, Logger: logger}
}

type createTokenRequest struct {
	Name string `json:"name"`
}

// Create issues a token. The plaintext appears in this response only.
func (h *TokenHandler) Create(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var req createTokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid token request.")
			return
		}
	}
	plaintext, token, err := h.Sessions.CreateAPIToken(c.Request.Context(), principal.User.ID, req.Name)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":    plaintext,
		"metadata": toToken(token),
	})
}

// List returns token metadata, newest first.
func (h *TokenHandler) List(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	tokens, err := h.Sessions.ListAPITokens(c.Request.Context(), principal.User.ID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	out := make([]tokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, toToken(t))
	}
	c.JSON(http.StatusOK, gin.H{"tokens": out})
}

// Revoke deletes one of the caller's tokens.
func (h *TokenHandler) Revoke(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	if err := h.Sessions.RevokeAPIToken(c.Request.Context(), principal.User.ID, c.Param("id")); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

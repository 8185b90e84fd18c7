package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat/internal/auth"
)

// TokenHandlers issues client tokens.
type TokenHandlers struct {
	jwt *auth.JWTConfig
	log *zerolog.Logger
}

// NewTokenHandlers creates a new token handlers instance.
func NewTokenHandlers(jwtConfig *auth.JWTConfig, logger *zerolog.Logger) *TokenHandlers {
	return &TokenHandlers{jwt: jwtConfig, log: logger}
}

// TokenResponse represents the token response body.
type TokenResponse struct {
	Token    string `json:"token"`
	ClientID string `json:"clientId"`
}

// Refresh issues a fresh token for the authenticated client.
// POST /api/tokens
func (h *TokenHandlers) Refresh(c *gin.Context) {
	clientID := c.GetString(ContextKeyClientID)
	if clientID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	token, err := auth.GenerateToken(h.jwt, clientID)
	if err != nil {
		h.log.Error().Err(err).Str("client_id", clientID).Msg("failed to issue token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: token, ClientID: clientID})
}

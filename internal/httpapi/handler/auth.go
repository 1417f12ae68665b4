package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthHandler issues bearer tokens for the single admin account seeded from
// config (spec.md §6, "out of scope beyond recognition" — no signup, no
// password reset, no additional accounts).
type AuthHandler struct {
	username string
	password string
	jwtKey   []byte
}

// NewAuthHandler builds an AuthHandler validating against username/password.
func NewAuthHandler(username, password string, jwtKey []byte) *AuthHandler {
	return &AuthHandler{username: username, password: password, jwtKey: jwtKey}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login verifies username/password against the configured admin account and
// mints a short-lived HS256 JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest})
		return
	}

	usernameMatch := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) == 1
	passwordMatch := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.password)) == 1
	if !usernameMatch || !passwordMatch {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	expiresAt := time.Now().Add(12 * time.Hour)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": h.username,
		"exp": expiresAt.Unix(),
	})

	signed, err := token.SignedString(h.jwtKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, loginResponse{Token: signed, ExpiresAt: expiresAt})
}

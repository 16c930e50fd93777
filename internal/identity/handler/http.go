// Package handler exposes the auth service over REST (gin).
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"courier-auth/backend/internal/identity/service"
	"courier-auth/backend/internal/mfa"
	"courier-auth/backend/internal/refreshtoken"
	"courier-auth/backend/internal/security"
	"courier-auth/backend/internal/server/interceptors"
)

// Response messages.
const (
	MessageLoggedOut     = "Logged out successfully"
	MessageResetLinkSent = "Password reset link sent if email exists"
	errInvalidRequest    = "invalid request"
)

// Error codes returned in ErrorResponse.Error.
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenNotFound      = "TOKEN_NOT_FOUND"
	CodeInvalidMFACode     = "INVALID_MFA_CODE"
	CodeMalformedToken     = "MALFORMED_TOKEN"
	CodeInternal           = "INTERNAL"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type VerifyMFARequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// TokenResponse carries either a token pair or an MFA status with a message.
type TokenResponse struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	MFAStatus    string `json:"mfaStatus,omitempty"`
	Message      string `json:"message,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type MeResponse struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// AuthHandler serves the /auth endpoints.
type AuthHandler struct {
	svc *service.AuthService
	log *zap.Logger
}

// NewAuthHandler returns a handler backed by svc. log may be nil.
func NewAuthHandler(svc *service.AuthService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{svc: svc, log: log}
}

// Register mounts the auth routes on rg. requireAuth guards GET /me.
func (h *AuthHandler) Register(rg *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	rg.POST("/login", h.Login)
	rg.POST("/verify-mfa", h.VerifyMFA)
	rg.POST("/refresh-token", h.RefreshToken)
	rg.POST("/logout", h.Logout)
	rg.POST("/forgot-password", h.ForgotPassword)
	rg.GET("/me", requireAuth, h.Me)
}

// Login handles POST /login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: errInvalidRequest})
		return
	}
	res, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if res.MFARequired {
		c.JSON(http.StatusOK, TokenResponse{MFAStatus: mfa.DecisionPending.String(), Message: res.Message})
		return
	}
	c.JSON(http.StatusOK, TokenResponse{AccessToken: res.Tokens.AccessToken, RefreshToken: res.Tokens.RefreshToken})
}

// VerifyMFA handles POST /verify-mfa.
func (h *AuthHandler) VerifyMFA(c *gin.Context) {
	var req VerifyMFARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: errInvalidRequest})
		return
	}
	pair, err := h.svc.VerifyMFA(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// RefreshToken handles POST /refresh-token.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: errInvalidRequest})
		return
	}
	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// Logout handles POST /logout. Any well-formed request gets 200.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: errInvalidRequest})
		return
	}
	if err := h.svc.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.log.Error("logout failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, MessageResponse{Message: MessageLoggedOut})
}

// ForgotPassword handles POST /forgot-password. The response does not depend on whether the email exists.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: errInvalidRequest})
		return
	}
	if err := h.svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.log.Error("forgot password failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, MessageResponse{Message: MessageResetLinkSent})
}

// Me handles GET /me for a caller authenticated by BearerAuth.
func (h *AuthHandler) Me(c *gin.Context) {
	username, ok := interceptors.GetUsername(c.Request.Context())
	if !ok || username == "" {
		h.writeError(c, security.ErrMalformedToken)
		return
	}
	ident, err := h.svc.Me(c.Request.Context(), username)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, MeResponse{ID: ident.ID, Username: ident.Username, Roles: ident.Roles})
}

// BearerAuth validates the Authorization bearer token and stores the caller's identity in the request context.
func BearerAuth(tokens *security.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := interceptors.ParseBearer(c.GetHeader("Authorization"))
		if token == "" {
			abortWithError(c, security.ErrMalformedToken)
			return
		}
		ctx, err := interceptors.Authenticate(c.Request.Context(), tokens, token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (h *AuthHandler) writeError(c *gin.Context, err error) {
	status, body := mapError(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}

func abortWithError(c *gin.Context, err error) {
	status, body := mapError(err)
	c.AbortWithStatusJSON(status, body)
}

// mapError translates service errors into a status code and error body.
func mapError(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{Error: CodeInvalidCredentials, Message: "invalid username or password"}
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, ErrorResponse{Error: CodeUserNotFound, Message: "user not found"}
	case errors.Is(err, refreshtoken.ErrTokenExpired):
		return http.StatusUnauthorized, ErrorResponse{Error: CodeTokenExpired, Message: "refresh token expired, please sign in again"}
	case errors.Is(err, refreshtoken.ErrTokenNotFound):
		return http.StatusUnauthorized, ErrorResponse{Error: CodeTokenNotFound, Message: "refresh token not found"}
	case errors.Is(err, mfa.ErrInvalidMFACode):
		return http.StatusUnauthorized, ErrorResponse{Error: CodeInvalidMFACode, Message: "invalid MFA code"}
	case errors.Is(err, security.ErrExpiredToken):
		return http.StatusUnauthorized, ErrorResponse{Error: CodeTokenExpired, Message: "access token expired"}
	case errors.Is(err, security.ErrMalformedToken):
		return http.StatusUnauthorized, ErrorResponse{Error: CodeMalformedToken, Message: "missing or invalid access token"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: CodeInternal}
	}
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/rajkayal/hubauth/internal/auth"
	"github.com/rajkayal/hubauth/internal/models"
	"github.com/rajkayal/hubauth/internal/services"
	appErrors "github.com/rajkayal/hubauth/pkg/errors"
	"github.com/rajkayal/hubauth/pkg/response"
)

// AuthHandler manages authentication flows (login/register/federated/me).
type AuthHandler struct {
	stepUp   *iauth.StepUpService
	accounts *services.AccountService
	jwt      *iauth.JWTService
}

func NewAuthHandler(stepUp *iauth.StepUpService, accounts *services.AccountService, jwt *iauth.JWTService) *AuthHandler {
	return &AuthHandler{stepUp: stepUp, accounts: accounts, jwt: jwt}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"omitempty,len=6,numeric"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.stepUp.Login(requestContext(c), iauth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Code:     req.Code,
		IP:       clientIP(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, loginPayload(result))
}

type federatedRequest struct {
	Token string `json:"token" validate:"required"`
	Code  string `json:"code" validate:"omitempty,len=6,numeric"`
}

// FederatedLogin serves the provider token login endpoints
// (POST /api/auth/google and friends).
func (h *AuthHandler) FederatedLogin(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req federatedRequest
		if !bindAndValidate(c, &req) {
			return
		}

		result, err := h.stepUp.FederatedLogin(requestContext(c), iauth.FederatedInput{
			Provider: provider,
			Token:    req.Token,
			Code:     req.Code,
			IP:       clientIP(c),
		})
		if err != nil {
			response.Error(c, err)
			return
		}

		response.Success(c, http.StatusOK, loginPayload(result))
	}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	Password string `json:"password" validate:"required,min=8"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	account, err := h.accounts.Register(requestContext(c), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	// Fresh standard accounts get a session immediately; step-up only
	// applies once an account is promoted to privileged.
	token, err := h.jwt.GenerateToken(iauth.TokenInput{
		UserID:   account.ID,
		Email:    account.Email,
		Role:     account.Role,
		Provider: account.Provider,
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"token": token,
		"user":  accountPayload(account),
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	account, err := h.accounts.Get(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": accountPayload(account)})
}

type updateProfileRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

// PUT /api/auth/update
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req updateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	account, err := h.accounts.UpdateProfile(requestContext(c), userID, services.ProfileUpdate{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": accountPayload(account)})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// PUT /api/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.ChangePassword(requestContext(c), userID, req.CurrentPassword, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Password updated"})
}

type resetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.ResetPassword(requestContext(c), req.Email, req.Code, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Password reset"})
}

func loginPayload(result *iauth.LoginResult) gin.H {
	if result.RequiresOTP {
		payload := gin.H{
			"requires_otp": true,
			"email":        result.Email,
		}
		if result.PreviewURL != "" {
			payload["preview_url"] = result.PreviewURL
		}
		return payload
	}
	return gin.H{
		"token": result.Token,
		"user":  accountPayload(result.Account),
	}
}

func accountPayload(account *models.Account) gin.H {
	payload := gin.H{
		"id":             account.ID,
		"name":           account.Name,
		"email":          account.Email,
		"role":           account.Role,
		"provider":       account.Provider,
		"phone":          account.Phone,
		"email_verified": account.EmailVerified,
		"active":         account.Active,
		"created_at":     account.CreatedAt.Format(time.RFC3339),
	}
	if account.LastLoginAt != nil {
		payload["last_login_at"] = account.LastLoginAt.Format(time.RFC3339)
	}
	return payload
}

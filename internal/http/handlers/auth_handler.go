package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-backend/internal/dto"
	"github.com/ignatzorin/bounty-backend/internal/http/handlers/common"
	"github.com/ignatzorin/bounty-backend/internal/service"
)

// AuthHandler предоставляет HTTP слой для регистрации и логина.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler создаёт хэндлер.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register обрабатывает POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	result, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":   result.User,
		"tokens": result.TokenPair,
	})
}

// Login обрабатывает POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":   result.User,
		"tokens": result.TokenPair,
	})
}

// Refresh обрабатывает POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":   result.User,
		"tokens": result.TokenPair,
	})
}

// Me обрабатывает GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	user, err := h.auth.Me(c.Request.Context(), userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-backend/internal/http/handlers/common"
	"github.com/ignatzorin/bounty-backend/internal/service"
)

// AdminHandler запускает обслуживающие операции вручную.
type AdminHandler struct {
	sweeper *service.Sweeper
}

func NewAdminHandler(sweeper *service.Sweeper) *AdminHandler {
	return &AdminHandler{sweeper: sweeper}
}

// Sweep обрабатывает POST /admin/sweep: один проход по просроченным заданиям и бустам.
func (h *AdminHandler) Sweep(c *gin.Context) {
	report, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-backend/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-backend/internal/dto"
	"github.com/ignatzorin/bounty-backend/internal/http/handlers/common"
	"github.com/ignatzorin/bounty-backend/internal/service"
)

// BoostHandler продаёт бусты заданий за баллы.
type BoostHandler struct {
	boosts *service.BoostService
}

func NewBoostHandler(boosts *service.BoostService) *BoostHandler {
	return &BoostHandler{boosts: boosts}
}

// Tiers обрабатывает GET /boosts/tiers.
func (h *BoostHandler) Tiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": valueobject.BoostTiers()})
}

// Boost обрабатывает POST /bounties/:id/boost.
func (h *BoostHandler) Boost(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	bountyID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.BoostRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	res, err := h.boosts.Boost(c.Request.Context(), bountyID, userID, req.Level)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.BoostResponse{Bounty: res.Bounty, History: res.History, Wallet: res.Wallet})
}

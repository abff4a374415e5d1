package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-backend/internal/dto"
	"github.com/ignatzorin/bounty-backend/internal/http/handlers/common"
	"github.com/ignatzorin/bounty-backend/internal/service"
)

// PointsHandler — покупка баллов и пополнение баланса через платёжного провайдера.
type PointsHandler struct {
	points *service.PointsService
}

func NewPointsHandler(points *service.PointsService) *PointsHandler {
	return &PointsHandler{points: points}
}

// Packages обрабатывает GET /points/packages.
func (h *PointsHandler) Packages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.points.Packages()})
}

// Purchase обрабатывает POST /points/purchase и возвращает client_secret для оплаты.
func (h *PointsHandler) Purchase(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req dto.PurchasePointsRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	intent, err := h.points.Purchase(c.Request.Context(), userID, req.PackageID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, intent)
}

// Deposit обрабатывает POST /wallet/deposit.
func (h *PointsHandler) Deposit(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req dto.DepositRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	intent, err := h.points.Deposit(c.Request.Context(), userID, req.Amount)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, intent)
}

// Confirm обрабатывает POST /payments/confirm. Повторное подтверждение ничего не начисляет.
func (h *PointsHandler) Confirm(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req dto.ConfirmPaymentRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	res, err := h.points.Confirm(c.Request.Context(), userID, req.IntentID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// Refund обрабатывает POST /points/purchases/:id/refund.
func (h *PointsHandler) Refund(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	purchaseID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	res, err := h.points.RefundPurchase(c.Request.Context(), userID, purchaseID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// Purchases обрабатывает GET /points/purchases.
func (h *PointsHandler) Purchases(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	purchases, err := h.points.Purchases(c.Request.Context(), userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": purchases})
}

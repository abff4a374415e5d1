package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/bounty-backend/internal/dto"
	"github.com/ignatzorin/bounty-backend/internal/http/handlers/common"
	"github.com/ignatzorin/bounty-backend/internal/service"
)

// BountyHandler обслуживает жизненный цикл заданий: публикацию, отклики, выполнение и снятие.
type BountyHandler struct {
	bounties *service.BountyService
}

// NewBountyHandler создаёт хэндлер.
func NewBountyHandler(bounties *service.BountyService) *BountyHandler {
	return &BountyHandler{bounties: bounties}
}

// List обрабатывает GET /bounties. Задания с бустом повторяются в ленте.
func (h *BountyHandler) List(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	feed, err := h.bounties.ListActive(c.Request.Context(), limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.BountyListResponse{
		Data:       feed.Items,
		Pagination: dto.NewPagination(limit, offset, feed.Fetched),
	})
}

// Get обрабатывает GET /bounties/:id.
func (h *BountyHandler) Get(c *gin.Context) {
	bountyID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	bounty, err := h.bounties.Get(c.Request.Context(), bountyID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, bounty)
}

// ListMine обрабатывает GET /bounties/my.
func (h *BountyHandler) ListMine(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	limit, offset := common.GetPagination(c)

	bounties, err := h.bounties.ListMine(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.BountyListResponse{
		Data:       bounties,
		Pagination: dto.NewPagination(limit, offset, len(bounties)),
	})
}

// Post обрабатывает POST /bounties.
func (h *BountyHandler) Post(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req dto.PostBountyRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	res, err := h.bounties.Post(c.Request.Context(), userID, service.PostBountyInput{
		Title:        req.Title,
		Description:  req.Description,
		Reward:       req.Reward,
		DurationDays: req.DurationDays,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.BountyOperationResponse{Bounty: res.Bounty, Wallet: res.Wallet})
}

// Complete обрабатывает POST /bounties/:id/complete. Награда целиком уходит исполнителю.
func (h *BountyHandler) Complete(c *gin.Context) {
	userID, bountyID, ok := h.actorAndBounty(c)
	if !ok {
		return
	}

	var req dto.CompleteBountyRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	completedBy, err := uuid.Parse(req.CompletedBy)
	if err != nil {
		common.RespondBadRequest(c, common.ErrInvalidUUID.Error())
		return
	}

	res, err := h.bounties.Complete(c.Request.Context(), bountyID, userID, completedBy)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.BountyOperationResponse{Bounty: res.Bounty, Wallet: res.Wallet})
}

// Delete обрабатывает DELETE /bounties/:id. Автор получает полный возврат без комиссии.
func (h *BountyHandler) Delete(c *gin.Context) {
	userID, bountyID, ok := h.actorAndBounty(c)
	if !ok {
		return
	}

	res, err := h.bounties.Delete(c.Request.Context(), bountyID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.BountyOperationResponse{Bounty: res.Bounty, Wallet: res.Wallet})
}

// Expire обрабатывает POST /admin/bounties/:id/expire.
func (h *BountyHandler) Expire(c *gin.Context) {
	bountyID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	res, err := h.bounties.Expire(c.Request.Context(), bountyID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ExpireResponse{
		Bounty:  res.Bounty,
		Expired: res.Expired,
		Refund:  res.Refund.StringFixed(2),
		Fee:     res.Fee.StringFixed(2),
	})
}

// Conservation обрабатывает GET /admin/bounties/:id/conservation.
func (h *BountyHandler) Conservation(c *gin.Context) {
	bountyID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	report, err := h.bounties.CheckConservation(c.Request.Context(), bountyID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ConservationResponse{ConservationReport: report, Balanced: report.Balanced()})
}

// Apply обрабатывает POST /bounties/:id/applications.
func (h *BountyHandler) Apply(c *gin.Context) {
	userID, bountyID, ok := h.actorAndBounty(c)
	if !ok {
		return
	}

	var req dto.ApplyRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	app, err := h.bounties.Apply(c.Request.Context(), bountyID, userID, req.Message)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, app)
}

// ListApplications обрабатывает GET /bounties/:id/applications. Доступно только автору.
func (h *BountyHandler) ListApplications(c *gin.Context) {
	userID, bountyID, ok := h.actorAndBounty(c)
	if !ok {
		return
	}

	apps, err := h.bounties.ListApplications(c.Request.Context(), bountyID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": apps})
}

// DecideApplication обрабатывает PUT /applications/:id/status.
func (h *BountyHandler) DecideApplication(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	applicationID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.ApplicationStatusRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	app, err := h.bounties.SetApplicationStatus(c.Request.Context(), applicationID, userID, req.Status)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

// actorAndBounty достаёт пользователя и id задания, отвечая клиенту при ошибке.
func (h *BountyHandler) actorAndBounty(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return uuid.Nil, uuid.Nil, false
	}
	bountyID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	return userID, bountyID, true
}

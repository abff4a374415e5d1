package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-backend/internal/dto"
	"github.com/ignatzorin/bounty-backend/internal/http/handlers/common"
	"github.com/ignatzorin/bounty-backend/internal/service"
)

// ActivityHandler отдаёт ленту активности пользователя.
type ActivityHandler struct {
	activity *service.ActivityService
}

func NewActivityHandler(activity *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// List обрабатывает GET /activity.
func (h *ActivityHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	limit, offset := common.GetPagination(c)

	items, err := h.activity.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       items,
		"pagination": dto.NewPagination(limit, offset, len(items)),
	})
}

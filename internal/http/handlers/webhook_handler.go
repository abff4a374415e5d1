package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-backend/internal/http/handlers/common"
	"github.com/ignatzorin/bounty-backend/internal/service"
)

// Лимит тела вебхука. События провайдера заметно меньше.
const maxWebhookBody = 64 << 10

// WebhookHandler принимает события платёжного провайдера.
type WebhookHandler struct {
	reconciler *service.Reconciler
}

func NewWebhookHandler(reconciler *service.Reconciler) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// Stripe обрабатывает POST /webhooks/stripe. Подпись проверяется по сырому телу,
// поэтому тело читается целиком до любого разбора. Ошибка применения отдаёт 5xx,
// и провайдер повторит доставку.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		common.RespondBadRequest(c, "отсутствует подпись события")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		common.RespondError(c, http.StatusRequestEntityTooLarge, "тело события слишком большое")
		return
	}

	res, err := h.reconciler.Reconcile(c.Request.Context(), payload, signature)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

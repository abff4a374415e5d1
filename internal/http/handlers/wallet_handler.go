package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-backend/internal/dto"
	"github.com/ignatzorin/bounty-backend/internal/http/handlers/common"
	"github.com/ignatzorin/bounty-backend/internal/service"
)

// WalletHandler отдаёт баланс, историю транзакций и принимает заявки на вывод.
type WalletHandler struct {
	wallets *service.WalletService
}

func NewWalletHandler(wallets *service.WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// Get обрабатывает GET /wallet.
func (h *WalletHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	wallet, err := h.wallets.GetWallet(c.Request.Context(), userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// Transactions обрабатывает GET /wallet/transactions.
func (h *WalletHandler) Transactions(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	limit, offset := common.GetPagination(c)

	txs, err := h.wallets.ListTransactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       txs,
		"pagination": dto.NewPagination(limit, offset, len(txs)),
	})
}

// Withdraw обрабатывает POST /wallet/withdraw.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req dto.WithdrawRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	withdrawal, wallet, err := h.wallets.Withdraw(c.Request.Context(), userID, req.Amount, req.Destination)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.WithdrawResponse{Withdrawal: withdrawal, Wallet: wallet})
}

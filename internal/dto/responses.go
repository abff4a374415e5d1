package dto

import (
	"github.com/ignatzorin/bounty-backend/internal/models"
)

// BountyListResponse — страница заданий. В публичной ленте задание с бустом
// повторяется BoostLevel+1 раз.
type BountyListResponse struct {
	Data       []models.Bounty `json:"data"`
	Pagination Pagination      `json:"pagination"`
}

// Pagination — параметры страницы. HasMore считается по заполненности страницы.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// NewPagination собирает параметры страницы по числу полученных записей.
func NewPagination(limit, offset, fetched int) Pagination {
	return Pagination{Limit: limit, Offset: offset, HasMore: fetched >= limit}
}

// BountyOperationResponse возвращается денежными операциями над заданием.
type BountyOperationResponse struct {
	Bounty *models.Bounty `json:"bounty"`
	Wallet *models.Wallet `json:"wallet,omitempty"`
}

// ExpireResponse дополняет операцию разбивкой на возврат и комиссию.
type ExpireResponse struct {
	Bounty  *models.Bounty `json:"bounty"`
	Expired bool           `json:"expired"`
	Refund  string         `json:"refund"`
	Fee     string         `json:"fee"`
}

// BoostResponse — задание после буста и запись в истории бустов.
type BoostResponse struct {
	Bounty  *models.Bounty       `json:"bounty"`
	History *models.BoostHistory `json:"history"`
	Wallet  *models.Wallet       `json:"wallet"`
}

// ConservationResponse — сверка удержанной суммы задания.
type ConservationResponse struct {
	*models.ConservationReport
	Balanced bool `json:"balanced"`
}

// WithdrawResponse — заявка на вывод и кошелёк после списания.
type WithdrawResponse struct {
	Withdrawal *models.Withdrawal `json:"withdrawal"`
	Wallet     *models.Wallet     `json:"wallet"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы покупки баллов
const (
	PointPurchaseStatusCompleted = "completed"
	PointPurchaseStatusRefunded  = "refunded"
)

// PointsPerDollar — номинальный курс баллов для отображения трат в аудите.
const PointsPerDollar = 200

// PointPackage — фиксированный пакет баллов, продаваемый через платёжного провайдера.
type PointPackage struct {
	ID     string          `json:"id"`
	Points int64           `json:"points"`
	Price  decimal.Decimal `json:"price"`
}

// PointPackages — каталог доступных пакетов.
var PointPackages = []PointPackage{
	{ID: "starter", Points: 500, Price: decimal.RequireFromString("5.00")},
	{ID: "standard", Points: 1100, Price: decimal.RequireFromString("10.00")},
	{ID: "pro", Points: 3000, Price: decimal.RequireFromString("25.00")},
}

// FindPointPackage ищет пакет по идентификатору.
func FindPointPackage(id string) (PointPackage, bool) {
	for _, p := range PointPackages {
		if p.ID == id {
			return p, true
		}
	}
	return PointPackage{}, false
}

// PointsToDollars переводит баллы в номинальную денежную сумму.
func PointsToDollars(points int64) decimal.Decimal {
	return decimal.NewFromInt(points).Div(decimal.NewFromInt(PointsPerDollar)).Round(2)
}

// PointPurchase связывает внешний платёж с начисленными баллами.
// ExternalRef уникален и служит ключом идемпотентности.
type PointPurchase struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	PackageID   string          `db:"package_id" json:"package_id"`
	Points      int64           `db:"points" json:"points"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	ExternalRef string          `db:"external_ref" json:"external_ref"`
	Status      string          `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	RefundedAt  *time.Time      `db:"refunded_at" json:"refunded_at,omitempty"`
}

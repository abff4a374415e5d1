package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/bounty-backend/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-backend/internal/logger"
	"github.com/ignatzorin/bounty-backend/internal/metrics"
	"github.com/ignatzorin/bounty-backend/internal/models"
	"github.com/ignatzorin/bounty-backend/internal/repository"
)

// BoostService продаёт бусты видимости заданий за баллы.
type BoostService struct {
	ledger   LedgerStore
	bounties BountyStore
	activity ActivityPublisher
	now      func() time.Time
	log      *logrus.Entry
}

func NewBoostService(ledger LedgerStore, bounties BountyStore, activity ActivityPublisher) *BoostService {
	if activity == nil {
		activity = noopPublisher{}
	}
	return &BoostService{
		ledger:   ledger,
		bounties: bounties,
		activity: activity,
		now:      time.Now,
		log:      logger.WithComponent("boost"),
	}
}

// Boost списывает баллы и поднимает задание в ленте на время уровня.
func (s *BoostService) Boost(ctx context.Context, bountyID, userID uuid.UUID, level int) (*repository.BoostResult, error) {
	tier, err := valueobject.NewBoostTier(level)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.ledger.BoostBounty(ctx, bountyID, userID, tier, s.now())
	metrics.ObserveLedger("boost", start, err)
	if err != nil {
		return nil, translateError(err)
	}

	s.log.WithFields(logrus.Fields{
		"bounty_id":  bountyID,
		"level":      tier.Level,
		"cost":       tier.PointsCost,
		"expires_at": res.History.ExpiresAt,
	}).Info("bounty boosted")
	s.activity.Publish(ctx, userID, models.ActivityBountyBoosted, res.History)

	return res, nil
}

// ResetExpired обнуляет истёкшие бусты.
func (s *BoostService) ResetExpired(ctx context.Context) (int64, error) {
	n, err := s.bounties.ResetExpiredBoosts(ctx, s.now())
	if err != nil {
		return 0, translateError(err)
	}
	if n > 0 {
		metrics.SweepBoostsReset.Add(float64(n))
	}
	return n, nil
}

// ExpandByBoost упорядочивает задания по действующему уровню буста и дате создания
// и повторяет задание с действующим бустом level+1 раз.
func ExpandByBoost(bounties []models.Bounty, now time.Time) []models.Bounty {
	sorted := make([]models.Bounty, len(bounties))
	copy(sorted, bounties)
	sort.SliceStable(sorted, func(i, j int) bool {
		li, lj := sorted[i].ActiveBoostLevel(now), sorted[j].ActiveBoostLevel(now)
		if li != lj {
			return li > lj
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	out := make([]models.Bounty, 0, len(sorted))
	for _, b := range sorted {
		copies := b.ActiveBoostLevel(now) + 1
		for i := 0; i < copies; i++ {
			out = append(out, b)
		}
	}
	return out
}

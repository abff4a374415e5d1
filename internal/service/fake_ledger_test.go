package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/bounty-backend/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-backend/internal/models"
	"github.com/ignatzorin/bounty-backend/internal/repository"
)

// fakeLedger — хранилище в памяти с теми же правилами, что и SQL-репозитории:
// одна операция под одной блокировкой, баланс и баллы не уходят в минус.
type fakeLedger struct {
	mu sync.Mutex

	users       map[uuid.UUID]*models.User
	bounties    map[uuid.UUID]*models.Bounty
	apps        map[uuid.UUID]*models.BountyApplication
	txs         []models.Transaction
	revenue     []models.PlatformRevenue
	purchases   map[uuid.UUID]*models.PointPurchase
	deposits    map[string]*models.Deposit
	events      map[string]string
	refundedRef map[string]bool
	withdrawals []models.Withdrawal

	now func() time.Time
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		users:       make(map[uuid.UUID]*models.User),
		bounties:    make(map[uuid.UUID]*models.Bounty),
		apps:        make(map[uuid.UUID]*models.BountyApplication),
		purchases:   make(map[uuid.UUID]*models.PointPurchase),
		deposits:    make(map[string]*models.Deposit),
		events:      make(map[string]string),
		refundedRef: make(map[string]bool),
		now:         time.Now,
	}
}

func (f *fakeLedger) addUser(balance string, points int64) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.users[id] = &models.User{
		ID:             id,
		Email:          id.String() + "@example.com",
		Role:           models.RoleUser,
		IsActive:       true,
		Balance:        decimal.RequireFromString(balance),
		Points:         points,
		LifetimeEarned: decimal.Zero,
	}
	return id
}

func (f *fakeLedger) wallet(id uuid.UUID) models.Wallet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].Wallet()
}

func (f *fakeLedger) bounty(id uuid.UUID) models.Bounty {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.bounties[id]
}

// shift сдвигает время создания задания в прошлое.
func (f *fakeLedger) shift(id uuid.UUID, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bounties[id].CreatedAt = f.bounties[id].CreatedAt.Add(-d)
}

func (f *fakeLedger) revenueBy(source string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := decimal.Zero
	for _, r := range f.revenue {
		if r.Source == source {
			sum = sum.Add(r.Amount)
		}
	}
	return sum
}

func (f *fakeLedger) txCount(userID uuid.UUID, typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.txs {
		if t.UserID == userID && t.Type == typ {
			n++
		}
	}
	return n
}

func (f *fakeLedger) addTx(userID uuid.UUID, bountyID *uuid.UUID, typ string, amount decimal.Decimal, points int64, ref string) uuid.UUID {
	t := models.Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		BountyID:  bountyID,
		Type:      typ,
		Amount:    amount,
		Points:    points,
		Status:    models.TransactionStatusCompleted,
		CreatedAt: f.now(),
	}
	if ref != "" {
		t.ExternalRef = &ref
	}
	f.txs = append(f.txs, t)
	return t.ID
}

func (f *fakeLedger) addRevenue(amount decimal.Decimal, source string, bountyID, txID *uuid.UUID) {
	f.revenue = append(f.revenue, models.PlatformRevenue{
		ID:            uuid.New(),
		Amount:        amount,
		Source:        source,
		BountyID:      bountyID,
		TransactionID: txID,
		CreatedAt:     f.now(),
	})
}

func (f *fakeLedger) activeUser(id uuid.UUID) (*models.User, error) {
	u, ok := f.users[id]
	if !ok || !u.IsActive {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeLedger) lockActive(bountyID uuid.UUID, authorID *uuid.UUID) (*models.Bounty, error) {
	b, ok := f.bounties[bountyID]
	if !ok {
		return nil, repository.ErrBountyNotFound
	}
	if authorID != nil && b.AuthorID != *authorID {
		return nil, repository.ErrNotBountyAuthor
	}
	if b.Status != models.BountyStatusActive {
		return nil, repository.ErrBountyNotActive
	}
	return b, nil
}

func (f *fakeLedger) close(b *models.Bounty, status valueobject.BountyStatus, claimedBy *uuid.UUID) *models.Bounty {
	if !b.Status.CanTransitionTo(status) {
		panic("fake ledger: недопустимый переход " + string(b.Status) + " -> " + string(status))
	}
	now := f.now()
	b.Status = status
	if claimedBy != nil {
		id := *claimedBy
		b.ClaimedBy = &id
	}
	b.ClosedAt = &now
	b.UpdatedAt = now
	cp := *b
	return &cp
}

func walletOf(u *models.User) *models.Wallet {
	w := u.Wallet()
	return &w
}

// LedgerStore

func (f *fakeLedger) PostBounty(_ context.Context, p repository.PostBountyParams) (*repository.BountyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, err := f.activeUser(p.AuthorID)
	if err != nil {
		return nil, err
	}
	if u.Balance.LessThan(p.Reward) {
		return nil, repository.ErrInsufficientFunds
	}
	if u.Points < p.PostingCost {
		return nil, repository.ErrInsufficientPoints
	}
	u.Balance = u.Balance.Sub(p.Reward)
	u.Points -= p.PostingCost

	now := f.now()
	b := &models.Bounty{
		ID:           uuid.New(),
		AuthorID:     p.AuthorID,
		Title:        p.Title,
		Description:  p.Description,
		Reward:       p.Reward,
		Status:       models.BountyStatusActive,
		DurationDays: p.DurationDays,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.bounties[b.ID] = b
	f.addTx(p.AuthorID, &b.ID, models.TransactionTypeEscrowHold, p.Reward, 0, "")
	if p.PostingCost > 0 {
		f.addTx(p.AuthorID, &b.ID, models.TransactionTypeSpending, models.PointsToDollars(p.PostingCost), -p.PostingCost, "")
	}

	cp := *b
	return &repository.BountyResult{Bounty: &cp, Wallet: walletOf(u)}, nil
}

func (f *fakeLedger) CompleteBounty(_ context.Context, bountyID, authorID, completedBy uuid.UUID) (*repository.BountyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := f.lockActive(bountyID, &authorID)
	if err != nil {
		return nil, err
	}
	worker, err := f.activeUser(completedBy)
	if err != nil {
		return nil, err
	}

	closed := f.close(b, models.BountyStatusCompleted, &completedBy)
	worker.Balance = worker.Balance.Add(b.Reward)
	worker.LifetimeEarned = worker.LifetimeEarned.Add(b.Reward)
	f.addTx(completedBy, &b.ID, models.TransactionTypeBountyReward, b.Reward, 0, "")
	f.addTx(b.AuthorID, &b.ID, models.TransactionTypeEscrowRelease, b.Reward, 0, "")

	return &repository.BountyResult{Bounty: closed, Wallet: walletOf(worker)}, nil
}

func (f *fakeLedger) ExpireBounty(_ context.Context, bountyID uuid.UUID, fee valueobject.FeeBreakdown, asOf time.Time) (*repository.ExpireResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.bounties[bountyID]
	if !ok {
		return nil, repository.ErrBountyNotFound
	}
	if b.Status.IsTerminal() {
		cp := *b
		return &repository.ExpireResult{Bounty: &cp}, nil
	}
	if !b.IsOverdue(asOf) {
		return nil, repository.ErrNotOverdue
	}
	if !b.Reward.Equal(fee.Gross) || !fee.Net.Add(fee.Fee).Equal(fee.Gross) {
		return nil, repository.ErrFeeMismatch
	}

	closed := f.close(b, models.BountyStatusExpired, nil)
	author := f.users[b.AuthorID]
	author.Balance = author.Balance.Add(fee.Net)
	txID := f.addTx(b.AuthorID, &b.ID, models.TransactionTypeRefund, fee.Net, 0, "")
	f.addRevenue(fee.Fee, models.RevenueSourceBountyExpiry, &b.ID, &txID)

	return &repository.ExpireResult{Bounty: closed, Expired: true, Refund: fee.Net, Fee: fee.Fee}, nil
}

func (f *fakeLedger) DeleteBounty(_ context.Context, bountyID, authorID uuid.UUID) (*repository.BountyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := f.lockActive(bountyID, &authorID)
	if err != nil {
		return nil, err
	}
	closed := f.close(b, models.BountyStatusDeleted, nil)
	author := f.users[b.AuthorID]
	author.Balance = author.Balance.Add(b.Reward)
	f.addTx(b.AuthorID, &b.ID, models.TransactionTypeRefund, b.Reward, 0, "")

	return &repository.BountyResult{Bounty: closed, Wallet: walletOf(author)}, nil
}

func (f *fakeLedger) BoostBounty(_ context.Context, bountyID, userID uuid.UUID, tier valueobject.BoostTier, now time.Time) (*repository.BoostResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := f.lockActive(bountyID, &userID)
	if err != nil {
		return nil, err
	}
	if b.ActiveBoostLevel(now) > tier.Level {
		return nil, repository.ErrBoostDowngrade
	}
	u, err := f.activeUser(userID)
	if err != nil {
		return nil, err
	}
	if u.Points < tier.PointsCost {
		return nil, repository.ErrInsufficientPoints
	}
	u.Points -= tier.PointsCost

	expiresAt := now.Add(time.Duration(tier.DurationHours) * time.Hour)
	b.BoostLevel = tier.Level
	b.BoostExpiresAt = &expiresAt
	f.addTx(userID, &b.ID, models.TransactionTypeSpending, models.PointsToDollars(tier.PointsCost), -tier.PointsCost, "")

	cp := *b
	return &repository.BoostResult{
		Bounty: &cp,
		History: &models.BoostHistory{
			ID:            uuid.New(),
			BountyID:      b.ID,
			UserID:        userID,
			BoostLevel:    tier.Level,
			PointsCost:    tier.PointsCost,
			DurationHours: tier.DurationHours,
			ExpiresAt:     expiresAt,
			CreatedAt:     now,
		},
		Wallet: walletOf(u),
	}, nil
}

func (f *fakeLedger) CreateWithdrawal(_ context.Context, userID uuid.UUID, amount decimal.Decimal, destination string) (*models.Withdrawal, *models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, err := f.activeUser(userID)
	if err != nil {
		return nil, nil, err
	}
	if u.Balance.LessThan(amount) {
		return nil, nil, repository.ErrInsufficientFunds
	}
	u.Balance = u.Balance.Sub(amount)

	w := models.Withdrawal{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    amount,
		Status:    models.WithdrawalStatusPending,
		CreatedAt: f.now(),
	}
	if destination != "" {
		w.Destination = &destination
	}
	f.withdrawals = append(f.withdrawals, w)
	f.addTx(userID, nil, models.TransactionTypeWithdrawal, amount, 0, "")

	return &w, walletOf(u), nil
}

func (f *fakeLedger) ListTransactions(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Transaction
	for i := len(f.txs) - 1; i >= 0; i-- {
		if f.txs[i].UserID == userID {
			out = append(out, f.txs[i])
		}
	}
	return page(out, limit, offset), nil
}

func (f *fakeLedger) CheckConservation(_ context.Context, bountyID uuid.UUID) (*models.ConservationReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.bounties[bountyID]
	if !ok {
		return nil, repository.ErrBountyNotFound
	}
	r := &models.ConservationReport{BountyID: b.ID, Status: b.Status, Reward: b.Reward}
	for _, t := range f.txs {
		if t.BountyID == nil || *t.BountyID != bountyID {
			continue
		}
		switch t.Type {
		case models.TransactionTypeEscrowHold:
			r.Held = r.Held.Add(t.Amount)
		case models.TransactionTypeBountyReward:
			r.PaidOut = r.PaidOut.Add(t.Amount)
		case models.TransactionTypeRefund:
			r.Refunded = r.Refunded.Add(t.Amount)
		}
	}
	for _, rev := range f.revenue {
		if rev.BountyID != nil && *rev.BountyID == bountyID {
			r.FeeTaken = r.FeeTaken.Add(rev.Amount)
		}
	}
	return r, nil
}

// BountyStore

func (f *fakeLedger) GetByID(_ context.Context, id uuid.UUID) (*models.Bounty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bounties[id]
	if !ok {
		return nil, repository.ErrBountyNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeLedger) ListActive(_ context.Context, now time.Time, limit, offset int) ([]models.Bounty, error) {
	f.mu.Lock()
	var out []models.Bounty
	for _, b := range f.bounties {
		if b.Status == models.BountyStatusActive && !b.IsOverdue(now) {
			out = append(out, *b)
		}
	}
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		li, lj := out[i].ActiveBoostLevel(now), out[j].ActiveBoostLevel(now)
		if li != lj {
			return li > lj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, limit, offset), nil
}

func (f *fakeLedger) ListByAuthor(_ context.Context, authorID uuid.UUID, limit, offset int) ([]models.Bounty, error) {
	f.mu.Lock()
	var out []models.Bounty
	for _, b := range f.bounties {
		if b.AuthorID == authorID {
			out = append(out, *b)
		}
	}
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (f *fakeLedger) ListOverdueIDs(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for _, b := range f.bounties {
		if b.IsOverdue(now) {
			ids = append(ids, b.ID)
		}
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeLedger) ResetExpiredBoosts(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, b := range f.bounties {
		if b.Status == models.BountyStatusActive && b.BoostLevel > 0 && b.BoostExpiresAt != nil && !now.Before(*b.BoostExpiresAt) {
			b.BoostLevel = 0
			b.BoostExpiresAt = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) CreateApplication(_ context.Context, bountyID, applicantID uuid.UUID, message string) (*models.BountyApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.bounties[bountyID]
	if !ok {
		return nil, repository.ErrBountyNotFound
	}
	if b.Status != models.BountyStatusActive {
		return nil, repository.ErrBountyNotActive
	}
	for _, a := range f.apps {
		if a.BountyID == bountyID && a.ApplicantID == applicantID {
			return nil, repository.ErrAlreadyApplied
		}
	}
	now := f.now()
	app := &models.BountyApplication{
		ID:          uuid.New(),
		BountyID:    bountyID,
		ApplicantID: applicantID,
		Message:     message,
		Status:      models.ApplicationStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.apps[app.ID] = app
	cp := *app
	return &cp, nil
}

func (f *fakeLedger) GetApplication(_ context.Context, id uuid.UUID) (*models.BountyApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.apps[id]
	if !ok {
		return nil, repository.ErrApplicationNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeLedger) ListApplications(_ context.Context, bountyID uuid.UUID) ([]models.BountyApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.BountyApplication
	for _, a := range f.apps {
		if a.BountyID == bountyID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeLedger) DecideApplication(_ context.Context, applicationID, authorID uuid.UUID, status string) (*models.BountyApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.apps[applicationID]
	if !ok {
		return nil, repository.ErrApplicationNotFound
	}
	if f.bounties[a.BountyID].AuthorID != authorID {
		return nil, repository.ErrNotBountyAuthor
	}
	if a.Status != models.ApplicationStatusPending {
		return nil, repository.ErrApplicationDecided
	}
	a.Status = status
	a.UpdatedAt = f.now()
	cp := *a
	return &cp, nil
}

// PointsStore

func (f *fakeLedger) CreditPointPurchase(_ context.Context, c repository.PointCredit) (*models.PointPurchase, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.refundedRef[c.ExternalRef] {
		return nil, false, repository.ErrChargeRefunded
	}
	for _, p := range f.purchases {
		if p.ExternalRef == c.ExternalRef {
			cp := *p
			return &cp, false, nil
		}
	}
	u, err := f.activeUser(c.UserID)
	if err != nil {
		return nil, false, err
	}
	u.Points += c.Points

	p := &models.PointPurchase{
		ID:          uuid.New(),
		UserID:      c.UserID,
		PackageID:   c.PackageID,
		Points:      c.Points,
		Amount:      c.Amount,
		ExternalRef: c.ExternalRef,
		Status:      models.PointPurchaseStatusCompleted,
		CreatedAt:   f.now(),
	}
	f.purchases[p.ID] = p
	txID := f.addTx(c.UserID, nil, models.TransactionTypePointPurchase, c.Amount, c.Points, c.ExternalRef)
	f.addRevenue(c.Amount, models.RevenueSourcePointPurchase, nil, &txID)

	cp := *p
	return &cp, true, nil
}

func (f *fakeLedger) CreditDeposit(_ context.Context, c repository.DepositCredit) (*models.Deposit, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.refundedRef[c.ExternalRef] {
		return nil, false, repository.ErrChargeRefunded
	}
	if d, ok := f.deposits[c.ExternalRef]; ok {
		cp := *d
		return &cp, false, nil
	}
	u, err := f.activeUser(c.UserID)
	if err != nil {
		return nil, false, err
	}
	u.Balance = u.Balance.Add(c.Fee.Net)

	d := &models.Deposit{
		ID:          uuid.New(),
		UserID:      c.UserID,
		GrossAmount: c.Fee.Gross,
		Fee:         c.Fee.Fee,
		NetAmount:   c.Fee.Net,
		ExternalRef: c.ExternalRef,
		CreatedAt:   f.now(),
	}
	f.deposits[c.ExternalRef] = d
	txID := f.addTx(c.UserID, nil, models.TransactionTypeDeposit, c.Fee.Net, 0, c.ExternalRef)
	if c.Fee.Fee.IsPositive() {
		f.addRevenue(c.Fee.Fee, models.RevenueSourceDepositFee, nil, &txID)
	}

	cp := *d
	return &cp, true, nil
}

func (f *fakeLedger) ApplyPointRefund(_ context.Context, externalRef string) (*models.PointPurchase, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var p *models.PointPurchase
	for _, candidate := range f.purchases {
		if candidate.ExternalRef == externalRef {
			p = candidate
		}
	}
	if p == nil {
		if _, ok := f.deposits[externalRef]; ok {
			return nil, false, repository.ErrPurchaseNotFound
		}
		f.refundedRef[externalRef] = true
		return nil, false, nil
	}
	if p.Status != models.PointPurchaseStatusCompleted {
		cp := *p
		return &cp, false, nil
	}
	u := f.users[p.UserID]
	if u.Points < p.Points {
		return nil, false, repository.ErrInsufficientPoints
	}
	u.Points -= p.Points

	now := f.now()
	p.Status = models.PointPurchaseStatusRefunded
	p.RefundedAt = &now
	txID := f.addTx(p.UserID, nil, models.TransactionTypeRefund, p.Amount, -p.Points, externalRef)
	f.addRevenue(p.Amount.Neg(), models.RevenueSourcePointRefund, nil, &txID)

	cp := *p
	return &cp, true, nil
}

func (f *fakeLedger) GetPurchase(_ context.Context, id uuid.UUID) (*models.PointPurchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.purchases[id]
	if !ok {
		return nil, repository.ErrPurchaseNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeLedger) ListPurchases(_ context.Context, userID uuid.UUID) ([]models.PointPurchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PointPurchase
	for _, p := range f.purchases {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// WalletReader

func (f *fakeLedger) GetWallet(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return walletOf(u), nil
}

// EventStore

func (f *fakeLedger) IsProcessed(_ context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.events[eventID]
	return ok, nil
}

func (f *fakeLedger) MarkProcessed(_ context.Context, eventID, eventType string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[eventID]; ok {
		return false, nil
	}
	f.events[eventID] = eventType
	return true, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// recordingPublisher запоминает опубликованные события.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, _ uuid.UUID, event string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) has(event string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == event {
			return true
		}
	}
	return false
}

// Package ledgertest provides an in-memory ledger.Store for service tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/sari/payments/internal/app/service/ledger"
	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/pkg/types"
)

// MemoryStore follows the same conditional-update rules as ledger.GormStore.
// Filters are not evaluated; list calls only scope by merchant.
type MemoryStore struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
	refunds  map[string]*models.Refund
	links    map[string]*models.PaymentLink

	// Fail, when set, is returned by every method. Used to simulate storage outages.
	Fail error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: map[string]*models.Payment{},
		refunds:  map[string]*models.Refund{},
		links:    map[string]*models.PaymentLink{},
	}
}

func clone[T any](v *T) *T {
	c := *v
	return &c
}

func (m *MemoryStore) CreatePayment(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	for _, existing := range m.payments {
		if existing.ChargeID == p.ChargeID {
			return fmt.Errorf("%w: %s", ledger.ErrDuplicateChargeID, p.ChargeID)
		}
	}
	m.payments[p.ID] = clone(p)
	return nil
}

func (m *MemoryStore) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	p, ok := m.payments[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return clone(p), nil
}

func (m *MemoryStore) GetPaymentByChargeID(_ context.Context, chargeID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	for _, p := range m.payments {
		if p.ChargeID == chargeID {
			return clone(p), nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *MemoryStore) ListPayments(_ context.Context, merchantID string, q *types.ListQuery) ([]*models.Payment, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, 0, m.Fail
	}
	if err := normalize(q, ledger.PaymentListFields); err != nil {
		return nil, 0, err
	}
	out := lo.FilterMap(lo.Values(m.payments), func(p *models.Payment, _ int) (*models.Payment, bool) {
		return clone(p), p.MerchantID == merchantID
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (m *MemoryStore) UpdatePaymentStatus(_ context.Context, id string, to models.PaymentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return false, m.Fail
	}
	p, ok := m.payments[id]
	if !ok {
		return false, ledger.ErrNotFound
	}
	if p.Status.CanTransitionTo(to) {
		now := time.Now()
		p.Status = to
		p.UpdatedAt = now
		if to == models.PaymentStatusPaid {
			p.PaidAt = &now
		}
		return true, nil
	}
	if p.Status == to {
		return false, nil
	}
	return false, fmt.Errorf("%w: payment %s %s -> %s", ledger.ErrInvalidTransition, id, p.Status, to)
}

func (m *MemoryStore) ReserveRefund(_ context.Context, paymentID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if amount <= 0 {
		return ledger.ErrInvalidAmount
	}
	p, ok := m.payments[paymentID]
	if !ok {
		return ledger.ErrNotFound
	}
	if p.Status != models.PaymentStatusPaid {
		return fmt.Errorf("%w: payment %s is %s", ledger.ErrInvalidTransition, paymentID, p.Status)
	}
	if p.RefundedAmount+amount > p.Amount {
		return fmt.Errorf("%w: requested %d, refundable %d", ledger.ErrRefundExceedsAmount, amount, p.RefundableAmount())
	}
	p.RefundedAmount += amount
	return nil
}

func (m *MemoryStore) ReleaseRefund(_ context.Context, paymentID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	p, ok := m.payments[paymentID]
	if !ok {
		return ledger.ErrNotFound
	}
	if amount <= 0 || p.RefundedAmount < amount {
		return ledger.ErrInvalidAmount
	}
	p.RefundedAmount -= amount
	return nil
}

func (m *MemoryStore) CreateRefund(_ context.Context, r *models.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.refunds[r.ID] = clone(r)
	return nil
}

func (m *MemoryStore) GetRefund(_ context.Context, id string) (*models.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	r, ok := m.refunds[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return clone(r), nil
}

func (m *MemoryStore) GetRefundByGatewayID(_ context.Context, gatewayRefundID string) (*models.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	for _, r := range m.refunds {
		if r.GatewayRefundID != nil && *r.GatewayRefundID == gatewayRefundID {
			return clone(r), nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *MemoryStore) ListRefunds(_ context.Context, merchantID string, q *types.ListQuery) ([]*models.Refund, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, 0, m.Fail
	}
	if err := normalize(q, ledger.RefundListFields); err != nil {
		return nil, 0, err
	}
	out := lo.FilterMap(lo.Values(m.refunds), func(r *models.Refund, _ int) (*models.Refund, bool) {
		return clone(r), r.MerchantID == merchantID
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (m *MemoryStore) UpdateRefundStatus(_ context.Context, id string, to models.RefundStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return false, m.Fail
	}
	r, ok := m.refunds[id]
	if !ok {
		return false, ledger.ErrNotFound
	}
	if r.Status.CanTransitionTo(to) {
		r.Status = to
		return true, nil
	}
	if r.Status == to {
		return false, nil
	}
	return false, fmt.Errorf("%w: refund %s %s -> %s", ledger.ErrInvalidTransition, id, r.Status, to)
}

func (m *MemoryStore) AttachGatewayRefundID(_ context.Context, id, gatewayRefundID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if r, ok := m.refunds[id]; ok && r.GatewayRefundID == nil {
		r.GatewayRefundID = lo.ToPtr(gatewayRefundID)
	}
	return nil
}

func (m *MemoryStore) CompletedRefundTotal(_ context.Context, paymentID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return 0, m.Fail
	}
	var total int64
	for _, r := range m.refunds {
		if r.PaymentID == paymentID && r.Status == models.RefundStatusCompleted {
			total += r.Amount
		}
	}
	return total, nil
}

func (m *MemoryStore) CreateLink(_ context.Context, l *models.PaymentLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.links[l.ID] = clone(l)
	return nil
}

func (m *MemoryStore) GetLink(_ context.Context, id string) (*models.PaymentLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	l, ok := m.links[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := clone(l)
	out.UsageCount = m.usage(l.ID)
	return out, nil
}

func (m *MemoryStore) GetLinkByPublicID(_ context.Context, linkID string) (*models.PaymentLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	for _, l := range m.links {
		if l.LinkID == linkID {
			out := clone(l)
			out.UsageCount = m.usage(l.ID)
			return out, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *MemoryStore) ListLinks(_ context.Context, merchantID string, q *types.ListQuery) ([]*models.PaymentLink, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, 0, m.Fail
	}
	if err := normalize(q, ledger.LinkListFields); err != nil {
		return nil, 0, err
	}
	out := lo.FilterMap(lo.Values(m.links), func(l *models.PaymentLink, _ int) (*models.PaymentLink, bool) {
		c := clone(l)
		c.UsageCount = m.usage(l.ID)
		return c, l.MerchantID == merchantID
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (m *MemoryStore) DisableLink(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return false, m.Fail
	}
	l, ok := m.links[id]
	if !ok {
		return false, ledger.ErrNotFound
	}
	if !l.IsActive {
		return false, nil
	}
	l.IsActive = false
	return true, nil
}

func (m *MemoryStore) MarkLinkStatus(_ context.Context, id string, from, to models.PaymentLinkStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return false, m.Fail
	}
	l, ok := m.links[id]
	if !ok || l.Status != from {
		return false, nil
	}
	l.Status = to
	return true, nil
}

func (m *MemoryStore) CountLinkUsage(_ context.Context, linkID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return 0, m.Fail
	}
	return m.usage(linkID), nil
}

func (m *MemoryStore) ListExpirablePayments(_ context.Context, now time.Time, limit int) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	var out []*models.Payment
	for _, p := range m.payments {
		if p.Status == models.PaymentStatusPending && p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ExpireLinks(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return 0, m.Fail
	}
	var n int64
	for _, l := range m.links {
		if l.Status == models.PaymentLinkStatusActive && l.ExpiresAt != nil && !l.ExpiresAt.After(now) {
			l.Status = models.PaymentLinkStatusExpired
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) usage(linkID string) int64 {
	var n int64
	for _, p := range m.payments {
		if p.PaymentLinkID != nil && *p.PaymentLinkID == linkID &&
			(p.Status == models.PaymentStatusPaid || p.Status == models.PaymentStatusRefunded) {
			n++
		}
	}
	return n
}

func normalize(q *types.ListQuery, allowed map[string]bool) error {
	if q == nil {
		return nil
	}
	return q.Normalize(allowed)
}

var _ ledger.Store = (*MemoryStore)(nil)

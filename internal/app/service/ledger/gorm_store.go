package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/pkg/types"
)

type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrDuplicateChargeID, p.ChargeID)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (s *GormStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return first[models.Payment](ctx, s.db, "id = ?", id)
}

func (s *GormStore) GetPaymentByChargeID(ctx context.Context, chargeID string) (*models.Payment, error) {
	return first[models.Payment](ctx, s.db, "charge_id = ?", chargeID)
}

func (s *GormStore) ListPayments(ctx context.Context, merchantID string, q *types.ListQuery) ([]*models.Payment, int64, error) {
	return list[models.Payment](ctx, s.db, merchantID, q, PaymentListFields)
}

func (s *GormStore) UpdatePaymentStatus(ctx context.Context, id string, to models.PaymentStatus) (bool, error) {
	if !to.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if sources := models.PaymentStatusSources(to); len(sources) > 0 {
		now := s.now()
		updates := map[string]any{"status": to, "updated_at": now}
		if to == models.PaymentStatusPaid {
			updates["paid_at"] = now
		}
		res := s.db.WithContext(ctx).Model(&models.Payment{}).
			Where("id = ? AND status IN ?", id, sources).
			Updates(updates)
		if res.Error != nil {
			return false, fmt.Errorf("failed to update payment status: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			return true, nil
		}
	}

	cur, err := s.GetPayment(ctx, id)
	if err != nil {
		return false, err
	}
	if cur.Status == to {
		return false, nil
	}
	return false, fmt.Errorf("%w: payment %s %s -> %s", ErrInvalidTransition, id, cur.Status, to)
}

func (s *GormStore) ReserveRefund(ctx context.Context, paymentID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ? AND refunded_amount + ? <= amount", paymentID, models.PaymentStatusPaid, amount).
		Updates(map[string]any{
			"refunded_amount": gorm.Expr("refunded_amount + ?", amount),
			"updated_at":      s.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to reserve refund: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	cur, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if cur.Status != models.PaymentStatusPaid {
		return fmt.Errorf("%w: payment %s is %s", ErrInvalidTransition, paymentID, cur.Status)
	}
	return fmt.Errorf("%w: requested %d, refundable %d", ErrRefundExceedsAmount, amount, cur.RefundableAmount())
}

func (s *GormStore) ReleaseRefund(ctx context.Context, paymentID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND refunded_amount >= ?", paymentID, amount).
		Updates(map[string]any{
			"refunded_amount": gorm.Expr("refunded_amount - ?", amount),
			"updated_at":      s.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to release refund: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetPayment(ctx, paymentID); err != nil {
			return err
		}
		return fmt.Errorf("%w: release %d exceeds reserved amount", ErrInvalidAmount, amount)
	}
	return nil
}

func (s *GormStore) CreateRefund(ctx context.Context, r *models.Refund) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to create refund: %w", err)
	}
	return nil
}

func (s *GormStore) GetRefund(ctx context.Context, id string) (*models.Refund, error) {
	return first[models.Refund](ctx, s.db, "id = ?", id)
}

func (s *GormStore) GetRefundByGatewayID(ctx context.Context, gatewayRefundID string) (*models.Refund, error) {
	return first[models.Refund](ctx, s.db, "gateway_refund_id = ?", gatewayRefundID)
}

func (s *GormStore) ListRefunds(ctx context.Context, merchantID string, q *types.ListQuery) ([]*models.Refund, int64, error) {
	return list[models.Refund](ctx, s.db, merchantID, q, RefundListFields)
}

func (s *GormStore) UpdateRefundStatus(ctx context.Context, id string, to models.RefundStatus) (bool, error) {
	if models.RefundStatusPending.CanTransitionTo(to) {
		res := s.db.WithContext(ctx).Model(&models.Refund{}).
			Where("id = ? AND status = ?", id, models.RefundStatusPending).
			Updates(map[string]any{"status": to, "updated_at": s.now()})
		if res.Error != nil {
			return false, fmt.Errorf("failed to update refund status: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			return true, nil
		}
	}

	cur, err := s.GetRefund(ctx, id)
	if err != nil {
		return false, err
	}
	if cur.Status == to {
		return false, nil
	}
	return false, fmt.Errorf("%w: refund %s %s -> %s", ErrInvalidTransition, id, cur.Status, to)
}

func (s *GormStore) AttachGatewayRefundID(ctx context.Context, id, gatewayRefundID string) error {
	res := s.db.WithContext(ctx).Model(&models.Refund{}).
		Where("id = ? AND gateway_refund_id IS NULL", id).
		Updates(map[string]any{"gateway_refund_id": gatewayRefundID, "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("failed to attach gateway refund id: %w", res.Error)
	}
	return nil
}

func (s *GormStore) CompletedRefundTotal(ctx context.Context, paymentID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.Refund{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("payment_id = ? AND status = ?", paymentID, models.RefundStatusCompleted).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum completed refunds: %w", err)
	}
	return total, nil
}

func (s *GormStore) CreateLink(ctx context.Context, l *models.PaymentLink) error {
	if err := s.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("failed to create payment link: %w", err)
	}
	return nil
}

func (s *GormStore) GetLink(ctx context.Context, id string) (*models.PaymentLink, error) {
	l, err := first[models.PaymentLink](ctx, s.db, "id = ?", id)
	if err != nil {
		return nil, err
	}
	return l, s.fillUsage(ctx, l)
}

func (s *GormStore) GetLinkByPublicID(ctx context.Context, linkID string) (*models.PaymentLink, error) {
	l, err := first[models.PaymentLink](ctx, s.db, "link_id = ?", linkID)
	if err != nil {
		return nil, err
	}
	return l, s.fillUsage(ctx, l)
}

func (s *GormStore) ListLinks(ctx context.Context, merchantID string, q *types.ListQuery) ([]*models.PaymentLink, int64, error) {
	links, total, err := list[models.PaymentLink](ctx, s.db, merchantID, q, LinkListFields)
	if err != nil || len(links) == 0 {
		return links, total, err
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.ID)
	}
	var rows []struct {
		PaymentLinkID string
		Cnt           int64
	}
	err = s.db.WithContext(ctx).Model(&models.Payment{}).
		Select("payment_link_id, COUNT(*) AS cnt").
		Where("payment_link_id IN ? AND status IN ?", ids, linkUsageStatuses).
		Group("payment_link_id").
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count link usage: %w", err)
	}
	usage := make(map[string]int64, len(rows))
	for _, r := range rows {
		usage[r.PaymentLinkID] = r.Cnt
	}
	for _, l := range links {
		l.UsageCount = usage[l.ID]
	}
	return links, total, nil
}

func (s *GormStore) DisableLink(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.PaymentLink{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]any{"is_active": false, "updated_at": s.now()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to disable payment link: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	if _, err := first[models.PaymentLink](ctx, s.db, "id = ?", id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *GormStore) MarkLinkStatus(ctx context.Context, id string, from, to models.PaymentLinkStatus) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.PaymentLink{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": s.now()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update payment link status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) CountLinkUsage(ctx context.Context, linkID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("payment_link_id = ? AND status IN ?", linkID, linkUsageStatuses).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count link usage: %w", err)
	}
	return n, nil
}

func (s *GormStore) ListExpirablePayments(ctx context.Context, now time.Time, limit int) ([]*models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*models.Payment
	err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.PaymentStatusPending, now).
		Order("expires_at").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expirable payments: %w", err)
	}
	return out, nil
}

func (s *GormStore) ExpireLinks(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.PaymentLink{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.PaymentLinkStatusActive, now).
		Updates(map[string]any{"status": models.PaymentLinkStatusExpired, "updated_at": now})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire payment links: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) fillUsage(ctx context.Context, l *models.PaymentLink) error {
	n, err := s.CountLinkUsage(ctx, l.ID)
	if err != nil {
		return err
	}
	l.UsageCount = n
	return nil
}

func first[T any](ctx context.Context, db *gorm.DB, query string, args ...any) (*T, error) {
	var out T
	if err := db.WithContext(ctx).Where(query, args...).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	return &out, nil
}

func list[T any](ctx context.Context, db *gorm.DB, merchantID string, q *types.ListQuery, allowed map[string]bool) ([]*T, int64, error) {
	if q == nil {
		q = &types.ListQuery{}
	}
	if err := q.Normalize(allowed); err != nil {
		return nil, 0, err
	}
	tx := db.WithContext(ctx).Model(new(T)).Where("merchant_id = ?", merchantID)
	if len(q.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{types.FiltersAnd{Filters: q.Filters}}})
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}
	var out []*T
	if err := tx.Order(q.OrderBy()).Offset(q.From).Limit(q.Size).Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	return out, total, nil
}

var _ Store = (*GormStore)(nil)

var Module = fx.Options(
	fx.Provide(
		NewGormStore,
		fx.Annotate(func(s *GormStore) *GormStore { return s }, fx.As(new(Store))),
	),
)

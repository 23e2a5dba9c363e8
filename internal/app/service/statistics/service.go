package statistics

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/pkg/types"
)

type StatisticType string

const (
	// Daily counts and volume, per created day
	StatisticTypeDailyPaymentCount StatisticType = "daily_payment_count"
	StatisticTypeDailyVolume       StatisticType = "daily_volume"

	// Totals per currency
	StatisticTypeTotalVolume   StatisticType = "total_volume"
	StatisticTypeTotalRefunded StatisticType = "total_refunded"

	StatisticTypeCountByStatus StatisticType = "count_by_status"
)

// filterFields are the columns a statistic request may filter on.
var filterFields = map[string]bool{"created_at": true, "currency": true}

// collectedStatuses count toward volume; refunds are reported separately.
var collectedStatuses = []models.PaymentStatus{models.PaymentStatusPaid, models.PaymentStatusRefunded}

type StatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type StatisticRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*StatisticDataItem  `json:"data_items"`
}

func (r *StatisticRequest) validate() error {
	if r == nil || len(r.DataItems) == 0 {
		return fmt.Errorf("data_items is required")
	}
	for _, f := range r.Filters {
		if f == nil || !filterFields[f.Field] {
			return fmt.Errorf("%w: statistics filter", types.ErrFilterField)
		}
	}
	for _, di := range r.DataItems {
		if di == nil {
			return fmt.Errorf("nil data item")
		}
	}
	return nil
}

func (r *StatisticRequest) where() clause.Expression {
	return types.FiltersAnd{Filters: r.Filters}
}

type StatisticResponseDataItem struct {
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type StatisticResponse struct {
	DataItems map[StatisticType][]StatisticResponseDataItem `json:"data_items"`
}

// Service aggregates one merchant's payments for the dashboard charts.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) payments(ctx context.Context, merchantID string, request *StatisticRequest) *gorm.DB {
	return s.db.WithContext(ctx).Table((models.Payment{}).TableName()).
		Where("merchant_id = ?", merchantID).
		Where(clause.Where{Exprs: []clause.Expression{request.where()}})
}

func (s *Service) getDailyPaymentCount(ctx context.Context, merchantID string, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.payments(ctx, merchantID, request).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, count(*) as value").
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order("date")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyVolume(ctx context.Context, merchantID string, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.payments(ctx, merchantID, request).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, currency AS label, sum(amount) as value").
		Where("status IN ?", collectedStatuses).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Group("currency").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalVolume(ctx context.Context, merchantID string, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.payments(ctx, merchantID, request).
		Select("currency AS label, sum(amount) as value").
		Where("status IN ?", collectedStatuses).
		Group("currency").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalRefunded(ctx context.Context, merchantID string, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Refund{}).TableName()).
		Select("currency AS label, sum(amount) as value").
		Where("merchant_id = ?", merchantID).
		Where("status = ?", models.RefundStatusCompleted).
		Where(clause.Where{Exprs: []clause.Expression{request.where()}}).
		Group("currency").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getCountByStatus(ctx context.Context, merchantID string, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.payments(ctx, merchantID, request).
		Select("status AS label, count(*) as value").
		Group("status").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getStatistic(ctx context.Context, merchantID string, request *StatisticRequest, dataItem *StatisticDataItem) ([]StatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailyPaymentCount:
		return s.getDailyPaymentCount(ctx, merchantID, request)
	case StatisticTypeDailyVolume:
		return s.getDailyVolume(ctx, merchantID, request)
	case StatisticTypeTotalVolume:
		return s.getTotalVolume(ctx, merchantID, request)
	case StatisticTypeTotalRefunded:
		return s.getTotalRefunded(ctx, merchantID, request)
	case StatisticTypeCountByStatus:
		return s.getCountByStatus(ctx, merchantID, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetStatistic computes every requested data item concurrently.
func (s *Service) GetStatistic(ctx context.Context, merchantID string, request *StatisticRequest) (*StatisticResponse, error) {
	if err := request.validate(); err != nil {
		return nil, err
	}
	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []StatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *StatisticDataItem) {
			defer wg.Done()
			res, err := s.getStatistic(ctx, merchantID, request, di)
			if err != nil {
				errChan <- fmt.Errorf("%s: %w", di.ID, err)
				return
			}
			resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}
	wg.Wait()
	close(errChan)
	close(resChan)

	if err := <-errChan; err != nil {
		return nil, err
	}
	results := make(map[StatisticType][]StatisticResponseDataItem, len(request.DataItems))
	for entry := range resChan {
		results[entry.Key] = entry.Value
	}
	return &StatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)

package notification_log

import (
	"context"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/pkg/logctx"
	"github.com/sari/payments/pkg/tool"
)

// Saver persists gateway notification logs off the request path.
type Saver interface {
	Save(ctx context.Context, log *models.PaymentNotificationLog)
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	wg  sync.WaitGroup
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save asynchronously persists a payment notification log. Nil input is ignored.
func (s *Service) Save(ctx context.Context, log *models.PaymentNotificationLog) {
	if log == nil {
		return
	}
	if log.ID == "" {
		log.ID = tool.GenerateUUIDV7()
	}
	if log.TraceID == "" {
		log.TraceID = logctx.TraceID(ctx)
	}
	ctx = logctx.Detach(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.db.WithContext(ctx).Save(log).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save notification log: %v", err)
		}
	}()
}

// Wait blocks until pending writes finish. Called on shutdown.
func (s *Service) Wait() { s.wg.Wait() }

func registerFlush(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		s.Wait()
		return nil
	}})
}

var Module = fx.Options(
	fx.Provide(
		New,
		fx.Annotate(func(s *Service) *Service { return s }, fx.As(new(Saver))),
	),
	fx.Invoke(registerFlush),
)

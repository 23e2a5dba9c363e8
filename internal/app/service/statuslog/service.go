package statuslog

import (
	"context"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/pkg/logctx"
	"github.com/sari/payments/pkg/tool"
)

// Recorder writes the before/after audit trail of applied status changes.
type Recorder interface {
	Record(ctx context.Context, entry *models.PaymentStatusLog)
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	wg  sync.WaitGroup
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Record persists entry asynchronously; the status change it describes is
// already committed, so a failed audit write is logged and dropped.
func (s *Service) Record(ctx context.Context, entry *models.PaymentStatusLog) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	if entry.Extra == nil {
		entry.Extra = datatypes.JSONMap{}
	}
	if tid := logctx.TraceID(ctx); tid != "" {
		entry.Extra["trace_id"] = tid
	}
	ctx = logctx.Detach(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("failed to save status log",
				"entity_type", entry.EntityType, "entity_id", entry.EntityID, "err", err)
		}
	}()
}

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
		fx.Annotate(func(s *Service) *Service { return s }, fx.As(new(Recorder))),
	),
	fx.Invoke(registerFlush),
)

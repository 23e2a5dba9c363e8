package statuslog

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/pkg/logctx"
)

func TestRecord_WritesAuditRow(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// extra has a database default, so postgres inserts use RETURNING
	mock.ExpectQuery(`INSERT INTO "payment_status_log"`).WillReturnRows(sqlmock.NewRows([]string{"extra"}))

	s := New(gdb, zap.NewNop().Sugar())
	ctx := context.WithValue(context.Background(), logctx.KeyTraceID, "trace-9")
	entry := &models.PaymentStatusLog{
		EntityType: models.StatusLogEntityPayment,
		EntityID:   "pay_1",
		MerchantID: "m1",
		FromStatus: "pending",
		ToStatus:   "paid",
		Source:     models.StatusChangeSourceWebhook,
	}
	s.Record(ctx, entry)
	s.Wait()

	require.NotEmpty(t, entry.ID)
	require.Equal(t, "trace-9", entry.Extra["trace_id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_NilIgnored(t *testing.T) {
	s := New(nil, zap.NewNop().Sugar())
	require.NotPanics(t, func() { s.Record(context.Background(), nil) })
}

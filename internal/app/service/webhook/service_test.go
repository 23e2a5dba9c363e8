package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sari/payments/internal/app/service/ledger/ledgertest"
	"github.com/sari/payments/internal/app/service/reconcile"
	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/internal/platform/events"
	"github.com/sari/payments/pkg/metrics"
)

const testSecret = "whsec_test"

type memDedup struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (d *memDedup) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys[key], nil
}

func (d *memDedup) Mark(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[key] = true
	return nil
}

type memLogs struct {
	mu      sync.Mutex
	entries []*models.PaymentNotificationLog
}

func (l *memLogs) Save(_ context.Context, e *models.PaymentNotificationLog) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

func (l *memLogs) last() *models.PaymentNotificationLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[len(l.entries)-1]
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, *models.PaymentStatusLog) {}

type fixture struct {
	store *ledgertest.MemoryStore
	dedup *memDedup
	logs  *memLogs
	svc   *Service
}

func newFixture(t *testing.T, secret Secret) *fixture {
	t.Helper()
	f := &fixture{store: ledgertest.NewMemoryStore(), dedup: &memDedup{keys: map[string]bool{}}, logs: &memLogs{}}
	log := zap.NewNop().Sugar()
	rc := reconcile.New(f.store, events.NopPublisher{}, nopAudit{}, metrics.Nop{}, log)
	f.svc = NewService(NewVerifier(secret), "", rc, f.dedup, f.logs, metrics.Nop{}, log)
	require.NoError(t, f.store.CreatePayment(context.Background(), &models.Payment{
		ID: "pay_1", MerchantID: "m1", ChargeID: "chg_abc", Amount: 10000, Currency: "SAR", Status: models.PaymentStatusPending,
	}))
	return f
}

func mustSecret(t *testing.T) Secret {
	t.Helper()
	s, err := NewSecret(testSecret)
	require.NoError(t, err)
	return s
}

func (f *fixture) status(t *testing.T) models.PaymentStatus {
	t.Helper()
	p, err := f.store.GetPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	return p.Status
}

var captured = []byte(`{"id":"chg_abc","object":"charge","status":"CAPTURED","amount":100.00,"currency":"SAR"}`)

func TestHandle_CaptureRedeliveryAndForgery(t *testing.T) {
	f := newFixture(t, mustSecret(t))
	ctx := context.Background()

	res, err := f.svc.Handle(ctx, captured, SignHex(captured, []byte(testSecret)))
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeApplied, res.Outcome)
	require.Equal(t, models.PaymentStatusPaid, f.status(t))
	require.Equal(t, models.PaymentNotificationLogStatusHandled, f.logs.last().Status)
	require.Equal(t, "m1", *f.logs.last().MerchantID)

	res, err = f.svc.Handle(ctx, captured, SignHex(captured, []byte(testSecret)))
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeNoop, res.Outcome)
	require.Equal(t, models.PaymentStatusPaid, f.status(t))

	forged := []byte(`{"id":"chg_abc","object":"charge","status":"FAILED"}`)
	_, err = f.svc.Handle(ctx, forged, SignHex(forged, []byte("attacker")))
	require.ErrorIs(t, err, ErrInvalidSignature)
	require.Equal(t, models.PaymentStatusPaid, f.status(t))
	require.Equal(t, models.PaymentNotificationLogStatusRejected, f.logs.last().Status)
}

func TestHandle_RedeliveryWithoutDedupIsStillNoop(t *testing.T) {
	f := newFixture(t, mustSecret(t))
	sig := SignHex(captured, []byte(testSecret))

	_, err := f.svc.Handle(context.Background(), captured, sig)
	require.NoError(t, err)
	f.dedup.keys = map[string]bool{}

	res, err := f.svc.Handle(context.Background(), captured, sig)
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeNoop, res.Outcome)
	require.Equal(t, models.PaymentStatusPaid, f.status(t))
}

func TestHandle_MissingSignatureRejected(t *testing.T) {
	f := newFixture(t, mustSecret(t))
	_, err := f.svc.Handle(context.Background(), captured, "")
	require.ErrorIs(t, err, ErrInvalidSignature)
	require.Equal(t, models.PaymentStatusPending, f.status(t))
}

func TestHandle_UnconfiguredSecretFailsClosed(t *testing.T) {
	f := newFixture(t, Secret{})
	for _, sig := range []string{"", SignHex(captured, nil), SignHex(captured, []byte(testSecret))} {
		_, err := f.svc.Handle(context.Background(), captured, sig)
		require.ErrorIs(t, err, ErrConfiguration)
	}
	require.Equal(t, models.PaymentStatusPending, f.status(t))
	require.Empty(t, f.logs.entries)
}

func TestHandle_MalformedVerifiedPayloadAcknowledged(t *testing.T) {
	f := newFixture(t, mustSecret(t))
	body := []byte(`{"object":"charge"}`)
	res, err := f.svc.Handle(context.Background(), body, SignHex(body, []byte(testSecret)))
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeIgnored, res.Outcome)
	require.Equal(t, models.PaymentStatusPending, f.status(t))
}

func TestHandle_UnknownChargeAcknowledged(t *testing.T) {
	f := newFixture(t, mustSecret(t))
	body := []byte(`{"id":"chg_other","object":"charge","status":"CAPTURED"}`)
	res, err := f.svc.Handle(context.Background(), body, SignHex(body, []byte(testSecret)))
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeUnknownCharge, res.Outcome)
}

func TestHandle_StorageFailureIsRetryable(t *testing.T) {
	f := newFixture(t, mustSecret(t))
	f.store.Fail = errors.New("db down")

	_, err := f.svc.Handle(context.Background(), captured, SignHex(captured, []byte(testSecret)))
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrInvalidSignature))
	require.Equal(t, models.PaymentNotificationLogStatusHandleFailed, f.logs.last().Status)
	require.False(t, f.dedup.keys["chg_abc:CAPTURED"])
}

func TestHandle_RefundWebhookCompletesRefund(t *testing.T) {
	f := newFixture(t, mustSecret(t))
	ctx := context.Background()
	_, err := f.store.UpdatePaymentStatus(ctx, "pay_1", models.PaymentStatusPaid)
	require.NoError(t, err)
	require.NoError(t, f.store.ReserveRefund(ctx, "pay_1", 10000))
	require.NoError(t, f.store.CreateRefund(ctx, &models.Refund{
		ID: "rf_1", PaymentID: "pay_1", MerchantID: "m1", Amount: 10000, Currency: "SAR", Status: models.RefundStatusPending,
	}))

	body := []byte(`{"id":"re_1","object":"refund","charge_id":"chg_abc","status":"REFUNDED","amount":100,"currency":"SAR","reference":{"merchant":"rf_1"}}`)
	res, err := f.svc.Handle(ctx, body, SignHex(body, []byte(testSecret)))
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeApplied, res.Outcome)
	require.Equal(t, models.PaymentStatusRefunded, f.status(t))
}

func chargeBody(chargeID, status string, created time.Time) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"charge","status":%q,"amount":50,"currency":"SAR","transaction":{"created":"%d"}}`, chargeID, status, created.UnixMilli()))
}

func TestHandle_CaptureBeforeChargeRecordedIsRedelivered(t *testing.T) {
	f := newFixture(t, mustSecret(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	ctx := context.Background()

	body := chargeBody("chg_new", "CAPTURED", now.Add(-time.Minute))
	sig := SignHex(body, []byte(testSecret))

	_, err := f.svc.Handle(ctx, body, sig)
	require.ErrorIs(t, err, ErrChargeNotRecorded)
	require.False(t, f.dedup.keys["chg_new:CAPTURED"])
	require.Equal(t, models.PaymentNotificationLogStatusHandleFailed, f.logs.last().Status)

	require.NoError(t, f.store.CreatePayment(ctx, &models.Payment{
		ID: "pay_new", MerchantID: "m1", ChargeID: "chg_new", Amount: 5000, Currency: "SAR", Status: models.PaymentStatusPending,
	}))

	res, err := f.svc.Handle(ctx, body, sig)
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeApplied, res.Outcome)
	p, err := f.store.GetPayment(ctx, "pay_new")
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusPaid, p.Status)
	require.True(t, f.dedup.keys["chg_new:CAPTURED"])
}

func TestHandle_OldUnknownChargeAcknowledgedUnmarked(t *testing.T) {
	f := newFixture(t, mustSecret(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	body := chargeBody("chg_foreign", "CAPTURED", now.Add(-2*time.Hour))
	res, err := f.svc.Handle(context.Background(), body, SignHex(body, []byte(testSecret)))
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeUnknownCharge, res.Outcome)
	require.False(t, f.dedup.keys["chg_foreign:CAPTURED"])
}

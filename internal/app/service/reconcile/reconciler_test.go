package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sari/payments/internal/app/service/ledger/ledgertest"
	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/internal/platform/events"
	"github.com/sari/payments/pkg/metrics"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []events.PaymentStatusChanged
	err    error
}

func (f *fakePublisher) PublishStatusChanged(_ context.Context, evt events.PaymentStatusChanged) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.err
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*models.PaymentStatusLog
}

func (f *fakeAudit) Record(_ context.Context, e *models.PaymentStatusLog) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

type fixture struct {
	store *ledgertest.MemoryStore
	pub   *fakePublisher
	audit *fakeAudit
	r     *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: ledgertest.NewMemoryStore(), pub: &fakePublisher{}, audit: &fakeAudit{}}
	f.r = New(f.store, f.pub, f.audit, metrics.Nop{}, zap.NewNop().Sugar())
	return f
}

func (f *fixture) seedPayment(t *testing.T, status models.PaymentStatus, amount int64) *models.Payment {
	t.Helper()
	p := &models.Payment{ID: "pay_1", MerchantID: "m1", ChargeID: "chg_abc", Amount: amount, Currency: "SAR", Status: status}
	require.NoError(t, f.store.CreatePayment(context.Background(), p))
	return p
}

func (f *fixture) status(t *testing.T, id string) models.PaymentStatus {
	t.Helper()
	p, err := f.store.GetPayment(context.Background(), id)
	require.NoError(t, err)
	return p.Status
}

func TestApply_CaptureIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(t, models.PaymentStatusPending, 10000)
	ev := PaymentCaptured{ChargeID: "chg_abc", Amount: 10000, Currency: "SAR"}

	res, err := f.r.Apply(context.Background(), ev, models.StatusChangeSourceWebhook)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
	require.Equal(t, models.PaymentStatusPaid, f.status(t, "pay_1"))

	res, err = f.r.Apply(context.Background(), ev, models.StatusChangeSourceWebhook)
	require.NoError(t, err)
	require.Equal(t, OutcomeNoop, res.Outcome)
	require.Equal(t, models.PaymentStatusPaid, f.status(t, "pay_1"))

	require.Len(t, f.pub.events, 1)
	require.Equal(t, models.PaymentStatusPending, f.pub.events[0].From)
	require.Equal(t, models.PaymentStatusPaid, f.pub.events[0].To)
	require.Len(t, f.audit.entries, 1)
	require.Equal(t, "chg_abc", f.audit.entries[0].Extra["charge_id"])
}

func TestApply_PollAndWebhookConverge(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(t, models.PaymentStatusPending, 10000)

	res, err := f.r.Apply(context.Background(), PaymentEvent("chg_abc", models.PaymentStatusPaid, 10000, "SAR", ""), models.StatusChangeSourceVerify)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)

	res, err = f.r.Apply(context.Background(), PaymentCaptured{ChargeID: "chg_abc"}, models.StatusChangeSourceWebhook)
	require.NoError(t, err)
	require.Equal(t, OutcomeNoop, res.Outcome)
}

func TestApply_TerminalStatesAreNotResurrected(t *testing.T) {
	for _, terminal := range []models.PaymentStatus{models.PaymentStatusFailed, models.PaymentStatusRefunded} {
		t.Run(string(terminal), func(t *testing.T) {
			f := newFixture(t)
			f.seedPayment(t, terminal, 10000)

			for _, ev := range []Event{
				PaymentCaptured{ChargeID: "chg_abc"},
				PaymentPending{ChargeID: "chg_abc"},
			} {
				res, err := f.r.Apply(context.Background(), ev, models.StatusChangeSourceWebhook)
				require.NoError(t, err)
				require.Contains(t, []Outcome{OutcomeIgnored, OutcomeNoop}, res.Outcome)
				require.Equal(t, terminal, f.status(t, "pay_1"))
			}
			require.Empty(t, f.pub.events)
			require.Empty(t, f.audit.entries)
		})
	}
}

func TestApply_ForgedFailureAfterPaidIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(t, models.PaymentStatusPaid, 10000)

	res, err := f.r.Apply(context.Background(), PaymentFailed{ChargeID: "chg_abc", Reason: "DECLINED"}, models.StatusChangeSourceWebhook)
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, res.Outcome)
	require.Equal(t, models.PaymentStatusPaid, f.status(t, "pay_1"))
}

func TestApply_UnknownChargeIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	res, err := f.r.Apply(context.Background(), PaymentCaptured{ChargeID: "chg_nope"}, models.StatusChangeSourceWebhook)
	require.NoError(t, err)
	require.Equal(t, OutcomeUnknownCharge, res.Outcome)
}

func TestApply_UnknownEventIsIgnored(t *testing.T) {
	f := newFixture(t)
	res, err := f.r.Apply(context.Background(), Unknown{ChargeID: "chg_abc", GatewayStatus: "WEIRD"}, models.StatusChangeSourceWebhook)
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, res.Outcome)
}

func TestApply_StorageFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(t, models.PaymentStatusPending, 10000)
	f.store.Fail = errors.New("db down")

	_, err := f.r.Apply(context.Background(), PaymentCaptured{ChargeID: "chg_abc"}, models.StatusChangeSourceWebhook)
	require.ErrorContains(t, err, "db down")
}

func TestApply_PublishFailureDoesNotFailReconcile(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(t, models.PaymentStatusPending, 10000)
	f.pub.err = errors.New("kafka down")

	res, err := f.r.Apply(context.Background(), PaymentCaptured{ChargeID: "chg_abc"}, models.StatusChangeSourceWebhook)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
}

func TestApply_ConcurrentConflictingDeliveries(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(t, models.PaymentStatusPending, 10000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var ev Event = PaymentCaptured{ChargeID: "chg_abc"}
			if i%2 == 1 {
				ev = PaymentFailed{ChargeID: "chg_abc"}
			}
			_, err := f.r.Apply(context.Background(), ev, models.StatusChangeSourceWebhook)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final := f.status(t, "pay_1")
	require.Contains(t, []models.PaymentStatus{models.PaymentStatusPaid, models.PaymentStatusFailed}, final)
	require.Len(t, f.pub.events, 1)
	require.Equal(t, final, f.pub.events[0].To)
}

func seedRefund(t *testing.T, f *fixture, id string, amount int64, gatewayID *string) {
	t.Helper()
	require.NoError(t, f.store.ReserveRefund(context.Background(), "pay_1", amount))
	require.NoError(t, f.store.CreateRefund(context.Background(), &models.Refund{
		ID: id, PaymentID: "pay_1", MerchantID: "m1", Amount: amount, Currency: "SAR",
		Status: models.RefundStatusPending, GatewayRefundID: gatewayID, InitiatedBy: "staff_1",
	}))
}

func TestApply_PartialRefundKeepsPaymentPaid(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(t, models.PaymentStatusPaid, 10000)
	seedRefund(t, f, "rf_1", 4000, lo.ToPtr("re_1"))

	res, err := f.r.Apply(context.Background(), RefundCompleted{ChargeID: "chg_abc", GatewayRefundID: "re_1", Amount: 4000}, models.StatusChangeSourceWebhook)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
	require.Equal(t, models.PaymentStatusPaid, f.status(t, "pay_1"))

	r, err := f.store.GetRefund(context.Background(), "rf_1")
	require.NoError(t, err)
	require.Equal(t, models.RefundStatusCompleted, r.Status)
}

func TestApply_FullRefundMovesPaymentToRefunded(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(t, models.PaymentStatusPaid, 10000)
	seedRefund(t, f, "rf_1", 4000, lo.ToPtr("re_1"))
	seedRefund(t, f, "rf_2", 6000, lo.ToPtr("re_2"))

	_, err := f.r.Apply(context.Background(), RefundCompleted{ChargeID: "chg_abc", GatewayRefundID: "re_1"}, models.StatusChangeSourceWebhook)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusPaid, f.status(t, "pay_1"))

	_, err = f.r.Apply(context.Background(), RefundCompleted{ChargeID: "chg_abc", GatewayRefundID: "re_2"}, models.StatusChangeSourceWebhook)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusRefunded, f.status(t, "pay_1"))

	// redelivery stays a no-op
	res, err := f.r.Apply(context.Background(), RefundCompleted{ChargeID: "chg_abc", GatewayRefundID: "re_2"}, models.StatusChangeSourceWebhook)
	require.NoError(t, err)
	require.Equal(t, OutcomeNoop, res.Outcome)
	require.Len(t, f.pub.events, 1)
	require.Equal(t, models.PaymentStatusRefunded, f.pub.events[0].To)
}

func TestApply_RefundFailedReleasesReservationOnce(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(t, models.PaymentStatusPaid, 10000)
	seedRefund(t, f, "rf_1", 3000, lo.ToPtr("re_1"))

	ev := RefundFailed{ChargeID: "chg_abc", GatewayRefundID: "re_1"}
	for i := 0; i < 2; i++ {
		_, err := f.r.Apply(context.Background(), ev, models.StatusChangeSourceWebhook)
		require.NoError(t, err)
	}
	p, err := f.store.GetPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	require.Equal(t, int64(0), p.RefundedAmount)
	require.Equal(t, int64(10000), p.RefundableAmount())
}

func TestApply_RefundMatchedByReferenceAdoptsGatewayID(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(t, models.PaymentStatusPaid, 10000)
	seedRefund(t, f, "rf_local", 2500, nil)

	res, err := f.r.Apply(context.Background(), RefundCompleted{ChargeID: "chg_abc", GatewayRefundID: "re_late", Reference: "rf_local"}, models.StatusChangeSourceWebhook)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)

	r, err := f.store.GetRefundByGatewayID(context.Background(), "re_late")
	require.NoError(t, err)
	require.Equal(t, "rf_local", r.ID)
	require.Equal(t, models.RefundStatusCompleted, r.Status)
}

func TestApply_RefundForOtherPaymentIsNotMatched(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(t, models.PaymentStatusPaid, 10000)
	require.NoError(t, f.store.CreatePayment(context.Background(), &models.Payment{ID: "pay_2", MerchantID: "m2", ChargeID: "chg_other", Amount: 500, Status: models.PaymentStatusPaid}))
	require.NoError(t, f.store.CreateRefund(context.Background(), &models.Refund{ID: "rf_2", PaymentID: "pay_2", MerchantID: "m2", Amount: 500, Status: models.RefundStatusPending}))

	res, err := f.r.Apply(context.Background(), RefundCompleted{ChargeID: "chg_abc", Reference: "rf_2"}, models.StatusChangeSourceWebhook)
	require.NoError(t, err)
	require.Equal(t, OutcomeUnknownRefund, res.Outcome)
	r, _ := f.store.GetRefund(context.Background(), "rf_2")
	require.Equal(t, models.RefundStatusPending, r.Status)
}

func TestApply_LinkCompletedWhenUsageExhausted(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateLink(context.Background(), &models.PaymentLink{
		ID: "link_1", MerchantID: "m1", LinkID: "pl_x", Status: models.PaymentLinkStatusActive, IsActive: true, MaxUsage: lo.ToPtr(int64(1)),
	}))
	require.NoError(t, f.store.CreatePayment(context.Background(), &models.Payment{
		ID: "pay_1", MerchantID: "m1", ChargeID: "chg_abc", Amount: 100, Status: models.PaymentStatusPending, PaymentLinkID: lo.ToPtr("link_1"),
	}))

	_, err := f.r.Apply(context.Background(), PaymentCaptured{ChargeID: "chg_abc"}, models.StatusChangeSourceWebhook)
	require.NoError(t, err)

	l, err := f.store.GetLink(context.Background(), "link_1")
	require.NoError(t, err)
	require.Equal(t, models.PaymentLinkStatusCompleted, l.Status)
	require.Equal(t, int64(1), l.UsageCount)
}

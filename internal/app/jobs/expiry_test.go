package jobs

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sari/payments/internal/app/service/ledger/ledgertest"
	"github.com/sari/payments/internal/app/service/reconcile"
	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/internal/platform/events"
	"github.com/sari/payments/internal/platform/tap"
	"github.com/sari/payments/pkg/config"
	"github.com/sari/payments/pkg/metrics"
)

type nopAudit struct{}

func (nopAudit) Record(context.Context, *models.PaymentStatusLog) {}

type countingRecorder struct {
	metrics.Nop
	expired map[string]int
}

func (r *countingRecorder) Expired(entity string, n int) { r.expired[entity] += n }

// fakeVerifier answers pending for any charge it has no entry for.
type fakeVerifier struct {
	mu       sync.Mutex
	statuses map[string]*tap.ChargeStatusResult
	errs     map[string]error
	calls    []string
}

func (v *fakeVerifier) VerifyPayment(_ context.Context, chargeID string) (*tap.ChargeStatusResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, chargeID)
	if err := v.errs[chargeID]; err != nil {
		return nil, err
	}
	if st, ok := v.statuses[chargeID]; ok {
		return st, nil
	}
	return &tap.ChargeStatusResult{ChargeID: chargeID, Status: models.PaymentStatusPending, GatewayStatus: "INITIATED"}, nil
}

type jobFixture struct {
	job   *ExpiryJob
	store *ledgertest.MemoryStore
	gw    *fakeVerifier
	rc    *reconcile.Reconciler
	rec   *countingRecorder
}

func newJob(t *testing.T, now time.Time) *jobFixture {
	t.Helper()
	f := &jobFixture{
		store: ledgertest.NewMemoryStore(),
		gw:    &fakeVerifier{statuses: map[string]*tap.ChargeStatusResult{}, errs: map[string]error{}},
		rec:   &countingRecorder{expired: map[string]int{}},
	}
	log := zap.NewNop().Sugar()
	f.rc = reconcile.New(f.store, events.NopPublisher{}, nopAudit{}, metrics.Nop{}, log)
	f.job = NewExpiryJob(&config.Config{Jobs: config.JobsConfig{ExpiryBatchSize: 10}}, f.store, f.gw, f.rc, f.rec, log)
	f.job.now = func() time.Time { return now }
	return f
}

func (f *jobFixture) seed(t *testing.T, id string, status models.PaymentStatus, expires time.Time) {
	t.Helper()
	require.NoError(t, f.store.CreatePayment(context.Background(), &models.Payment{
		ID: id, MerchantID: "m1", ChargeID: "chg_" + id, Amount: 100, Currency: "SAR", Status: status, ExpiresAt: lo.ToPtr(expires),
	}))
}

func (f *jobFixture) status(t *testing.T, id string) models.PaymentStatus {
	t.Helper()
	p, err := f.store.GetPayment(context.Background(), id)
	require.NoError(t, err)
	return p.Status
}

func TestExpiryJob_ExpiresOverduePendingOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newJob(t, now)
	ctx := context.Background()

	f.seed(t, "overdue", models.PaymentStatusPending, now.Add(-time.Minute))
	f.seed(t, "fresh", models.PaymentStatusPending, now.Add(time.Minute))
	f.seed(t, "paid", models.PaymentStatusPaid, now.Add(-time.Hour))
	require.NoError(t, f.store.CreateLink(ctx, &models.PaymentLink{
		ID: "link_1", MerchantID: "m1", LinkID: "pl_1", Status: models.PaymentLinkStatusActive, IsActive: true, ExpiresAt: lo.ToPtr(now.Add(-time.Second)),
	}))

	sum, err := f.job.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Payments)
	require.EqualValues(t, 1, sum.Links)
	require.Equal(t, 1, f.rec.expired["payment"])
	require.Equal(t, 1, f.rec.expired["payment_link"])
	require.Equal(t, []string{"chg_overdue"}, f.gw.calls)

	for id, want := range map[string]models.PaymentStatus{
		"overdue": models.PaymentStatusExpired,
		"fresh":   models.PaymentStatusPending,
		"paid":    models.PaymentStatusPaid,
	} {
		require.Equal(t, want, f.status(t, id), id)
	}
	l, err := f.store.GetLink(ctx, "link_1")
	require.NoError(t, err)
	require.Equal(t, models.PaymentLinkStatusExpired, l.Status)

	sum, err = f.job.Run(ctx)
	require.NoError(t, err)
	require.Zero(t, sum.Payments)
	require.Zero(t, sum.Links)
}

func TestExpiryJob_CapturedAtGatewayBecomesPaid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newJob(t, now)
	ctx := context.Background()
	// the capture webhook was acknowledged before this row existed
	f.seed(t, "late", models.PaymentStatusPending, now.Add(-time.Minute))
	f.gw.statuses["chg_late"] = &tap.ChargeStatusResult{ChargeID: "chg_late", Status: models.PaymentStatusPaid, GatewayStatus: "CAPTURED", Amount: 100, Currency: "SAR"}

	sum, err := f.job.Run(ctx)
	require.NoError(t, err)
	require.Zero(t, sum.Payments)
	require.Equal(t, 1, sum.Reconciled)
	require.Zero(t, f.rec.expired["payment"])
	require.Equal(t, models.PaymentStatusPaid, f.status(t, "late"))

	res, err := f.rc.Apply(ctx, reconcile.PaymentCaptured{ChargeID: "chg_late", Amount: 100, Currency: "SAR"}, models.StatusChangeSourceWebhook)
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeNoop, res.Outcome)
	require.Equal(t, models.PaymentStatusPaid, f.status(t, "late"))
}

func TestExpiryJob_CaptureAfterExpiryIsIgnored(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newJob(t, now)
	ctx := context.Background()
	f.seed(t, "gone", models.PaymentStatusPending, now.Add(-time.Minute))

	_, err := f.job.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusExpired, f.status(t, "gone"))

	res, err := f.rc.Apply(ctx, reconcile.PaymentCaptured{ChargeID: "chg_gone"}, models.StatusChangeSourceWebhook)
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeIgnored, res.Outcome)
}

func TestExpiryJob_GatewayAnswers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		st   *tap.ChargeStatusResult
		err  error
		want models.PaymentStatus
	}{
		{"failed at gateway", &tap.ChargeStatusResult{Status: models.PaymentStatusFailed, GatewayStatus: "DECLINED"}, nil, models.PaymentStatusFailed},
		{"unknown to gateway", nil, &tap.GatewayError{Op: "verify_payment", HTTPStatus: http.StatusNotFound}, models.PaymentStatusExpired},
		{"gateway unreachable", nil, &tap.GatewayError{Op: "verify_payment", Err: errors.New("dial tcp: timeout")}, models.PaymentStatusPending},
		{"gateway 5xx", nil, &tap.GatewayError{Op: "verify_payment", HTTPStatus: http.StatusBadGateway}, models.PaymentStatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newJob(t, now)
			f.seed(t, "p", models.PaymentStatusPending, now.Add(-time.Minute))
			if tc.st != nil {
				f.gw.statuses["chg_p"] = tc.st
			}
			if tc.err != nil {
				f.gw.errs["chg_p"] = tc.err
			}

			sum, err := f.job.Run(context.Background())
			if tc.want == models.PaymentStatusPending {
				require.ErrorIs(t, err, tap.ErrGateway)
				require.Equal(t, 1, sum.Deferred)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.want, f.status(t, "p"))
		})
	}
}

func TestExpiryJob_StorageFailure(t *testing.T) {
	f := newJob(t, time.Now())
	f.store.Fail = errors.New("db down")

	_, err := f.job.Run(context.Background())
	require.ErrorContains(t, err, "db down")
}

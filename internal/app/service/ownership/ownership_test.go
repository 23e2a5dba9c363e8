package ownership

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sari/payments/internal/app/service/ledger"
	"github.com/sari/payments/internal/models"
)

func TestCheck(t *testing.T) {
	p := &models.Payment{ID: "pay_1", MerchantID: "merchant-a", Amount: 10000}

	got, err := Check(p, "merchant-a")
	require.NoError(t, err)
	require.Same(t, p, got)

	got, err = Check(p, "merchant-b")
	require.True(t, errors.Is(err, ledger.ErrNotFound))
	require.Nil(t, got)

	_, err = Check(p, "")
	require.True(t, errors.Is(err, ledger.ErrNotFound))

	var nilPayment *models.Payment
	_, err = Check(nilPayment, "merchant-a")
	require.True(t, errors.Is(err, ledger.ErrNotFound))
}

func TestLoad(t *testing.T) {
	r := &models.Refund{ID: "rf_1", MerchantID: "merchant-a"}
	fetch := func() (*models.Refund, error) { return r, nil }

	got, err := Load("merchant-a", fetch)
	require.NoError(t, err)
	require.Equal(t, "rf_1", got.ID)

	got, err = Load("merchant-b", fetch)
	require.True(t, errors.Is(err, ledger.ErrNotFound))
	require.Nil(t, got)

	boom := errors.New("db down")
	_, err = Load("merchant-a", func() (*models.PaymentLink, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
}

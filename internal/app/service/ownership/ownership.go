// Package ownership enforces merchant isolation on ledger records.
package ownership

import "github.com/sari/payments/internal/app/service/ledger"

// Owned is implemented by every merchant-scoped record.
type Owned interface {
	GetMerchantID() string
}

// Check returns record when it belongs to merchantID. Any mismatch, including
// a nil record or an empty merchant id, is reported as ledger.ErrNotFound so
// callers cannot tell "not yours" from "does not exist".
func Check[T Owned](record T, merchantID string) (T, error) {
	var zero T
	if merchantID == "" || record.GetMerchantID() != merchantID {
		return zero, ledger.ErrNotFound
	}
	return record, nil
}

// Load fetches a record and applies Check in one step.
func Load[T Owned](merchantID string, fetch func() (T, error)) (T, error) {
	rec, err := fetch()
	if err != nil {
		var zero T
		return zero, err
	}
	return Check(rec, merchantID)
}

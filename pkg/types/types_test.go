package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMinorMajorConversion(t *testing.T) {
	v, err := MinorToMajor(10000, "SAR")
	require.NoError(t, err)
	require.Equal(t, 100.0, v)

	v, err = MinorToMajor(1500, "kwd")
	require.NoError(t, err)
	require.Equal(t, 1.5, v)

	v, err = MinorToMajor(500, "JPY")
	require.NoError(t, err)
	require.Equal(t, 500.0, v)

	m, err := MajorToMinor(100.01, "SAR")
	require.NoError(t, err)
	require.Equal(t, int64(10001), m)

	m, err = MajorToMinor(1.234, "BHD")
	require.NoError(t, err)
	require.Equal(t, int64(1234), m)

	_, err = MinorToMajor(1, "XXX")
	require.True(t, errors.Is(err, ErrUnsupportedCurrency))
}

func TestListQuery_Normalize(t *testing.T) {
	allowed := map[string]bool{"status": true, "created_at": true}

	q := &ListQuery{Size: 1000, From: -3}
	require.NoError(t, q.Normalize(allowed))
	require.Equal(t, MaxListSize, q.Size)
	require.Equal(t, 0, q.From)
	require.Equal(t, "created_at", q.SortBy)
	require.Equal(t, "desc", q.SortOrder)

	q = &ListQuery{SortOrder: "ASC", Filters: []*CommonFilter{{Field: "status", Operator: CommonFilterOperatorEq, Values: []any{"paid"}}}}
	require.NoError(t, q.Normalize(allowed))
	require.Equal(t, DefaultListSize, q.Size)
	require.Equal(t, "asc", q.SortOrder)
	require.False(t, q.OrderBy().Desc)

	q = &ListQuery{Filters: []*CommonFilter{{Field: "merchant_id", Operator: CommonFilterOperatorEq, Values: []any{"m2"}}}}
	require.True(t, errors.Is(q.Normalize(allowed), ErrFilterField))

	q = &ListQuery{SortBy: "amount; drop table payment"}
	require.True(t, errors.Is(q.Normalize(allowed), ErrFilterField))
}

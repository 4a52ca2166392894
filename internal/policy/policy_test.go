package policy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/circops/internal/domain"
	"github.com/punchamoorthee/circops/internal/policy"
)

func TestFromValues_Complete(t *testing.T) {
	p := policy.FromValues(map[string]string{
		"max_borrow_count":      "3",
		"max_borrow_days":       "14",
		"max_renew_count":       "2",
		"max_reservation_count": "1",
		"fine_rate_per_day":     "1.25",
	})
	assert.Equal(t, domain.Policy{
		MaxBorrowCount:      3,
		MaxBorrowDays:       14,
		MaxRenewCount:       2,
		MaxReservationCount: 1,
		FineRatePerDay:      1.25,
	}, p)
}

func TestFromValues_Defaults(t *testing.T) {
	assert.Equal(t, domain.DefaultPolicy(), policy.FromValues(nil))
	assert.Equal(t, domain.DefaultPolicy(), policy.FromValues(map[string]string{}))

	// Malformed and negative values fall back per key, not wholesale.
	p := policy.FromValues(map[string]string{
		"max_borrow_count":  "ten",
		"max_borrow_days":   "-5",
		"fine_rate_per_day": "0.75",
	})
	want := domain.DefaultPolicy()
	want.FineRatePerDay = 0.75
	assert.Equal(t, want, p)
}

func TestFromValues_ZeroIsValid(t *testing.T) {
	// A zero fine rate disables fines; it is not a malformed value.
	p := policy.FromValues(map[string]string{"fine_rate_per_day": "0"})
	assert.Equal(t, 0.0, p.FineRatePerDay)
}

func TestStaticSnapshot(t *testing.T) {
	pol := domain.DefaultPolicy()
	pol.MaxBorrowCount = 7
	s := policy.Static{Policy: pol}

	got, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pol, got)
}

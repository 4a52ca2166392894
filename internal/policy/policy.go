package policy

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/circops/internal/domain"
)

// Provider supplies one immutable policy snapshot per call. Values may change
// between requests; an operation takes a single snapshot for its duration.
type Provider interface {
	Snapshot(ctx context.Context) (domain.Policy, error)
}

// Static returns the same policy on every call. Used in tests and as a
// fallback when no config store is wired.
type Static struct {
	Policy domain.Policy
}

func (s Static) Snapshot(_ context.Context) (domain.Policy, error) {
	return s.Policy, nil
}

// Postgres reads policy keys from the sys_config table, applying defaults for
// absent or malformed values.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Snapshot(ctx context.Context) (domain.Policy, error) {
	rows, err := p.db.Query(ctx, "SELECT key, value FROM sys_config WHERE key = ANY($1)", policyKeys)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("policy query failed: %w", domain.ErrTransient)
	}
	defer rows.Close()

	values := make(map[string]string, len(policyKeys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return domain.Policy{}, fmt.Errorf("policy scan failed: %w", domain.ErrTransient)
		}
		values[k] = v
	}
	if rows.Err() != nil {
		return domain.Policy{}, fmt.Errorf("policy rows failed: %w", domain.ErrTransient)
	}
	return FromValues(values), nil
}

var policyKeys = []string{
	"max_borrow_count",
	"max_borrow_days",
	"max_renew_count",
	"max_reservation_count",
	"fine_rate_per_day",
}

// FromValues builds a policy from raw key/value pairs, falling back to the
// default for any key that is missing or does not parse.
func FromValues(values map[string]string) domain.Policy {
	p := domain.DefaultPolicy()
	p.MaxBorrowCount = intValue(values, "max_borrow_count", p.MaxBorrowCount)
	p.MaxBorrowDays = intValue(values, "max_borrow_days", p.MaxBorrowDays)
	p.MaxRenewCount = intValue(values, "max_renew_count", p.MaxRenewCount)
	p.MaxReservationCount = intValue(values, "max_reservation_count", p.MaxReservationCount)
	p.FineRatePerDay = floatValue(values, "fine_rate_per_day", p.FineRatePerDay)
	return p
}

func intValue(values map[string]string, key string, fallback int) int {
	raw, ok := values[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func floatValue(values map[string]string, key string, fallback float64) float64 {
	raw, ok := values[key]
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		return fallback
	}
	return f
}

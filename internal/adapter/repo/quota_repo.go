package repo

import (
	"context"

	"motionbooth/internal/domain"
	"motionbooth/internal/infra"
	"motionbooth/internal/sqlinline"
)

// QuotaLedgerPG implements domain.QuotaLedger. The consuming statement is a
// conditional UPDATE so two concurrent submissions can never both take the
// final unit.
type QuotaLedgerPG struct {
	sql          infra.SQLExecutor
	defaultLimit int
}

// NewQuotaLedger creates a quota ledger with the given default monthly limit
// for owners without an existing row.
func NewQuotaLedger(sql infra.SQLExecutor, defaultLimit int) *QuotaLedgerPG {
	return &QuotaLedgerPG{sql: sql, defaultLimit: defaultLimit}
}

func (q *QuotaLedgerPG) Reserve(ctx context.Context, ownerID string, amount int) (int, error) {
	if _, err := q.sql.Exec(ctx, sqlinline.QQuotaEnsure, ownerID, q.defaultLimit); err != nil {
		return 0, err
	}
	if _, err := q.sql.Exec(ctx, sqlinline.QQuotaRollPeriod, ownerID); err != nil {
		return 0, err
	}
	row := q.sql.QueryRow(ctx, sqlinline.QQuotaConsume, ownerID, amount)
	var remaining int
	if err := row.Scan(&remaining); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrQuotaExceeded
		}
		return 0, err
	}
	return remaining, nil
}

func (q *QuotaLedgerPG) Refund(ctx context.Context, ownerID string, amount int) error {
	_, err := q.sql.Exec(ctx, sqlinline.QQuotaRefund, ownerID, amount)
	return err
}

func (q *QuotaLedgerPG) Get(ctx context.Context, ownerID string) (*domain.QuotaEntry, error) {
	row := q.sql.QueryRow(ctx, sqlinline.QQuotaSelect, ownerID)
	var entry domain.QuotaEntry
	if err := row.Scan(&entry.OwnerID, &entry.Used, &entry.Limit, &entry.PeriodStart, &entry.PeriodEnd); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

var _ domain.QuotaLedger = (*QuotaLedgerPG)(nil)

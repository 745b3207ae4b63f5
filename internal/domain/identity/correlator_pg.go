package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// rowQuerier is the subset of pgxpool.Pool used by PGCorrelator.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PGCorrelator resolves secondary keys from a Postgres replica of the HIS
// hccom1 table, taking the highest hiscsec for the document number.
type PGCorrelator struct {
	db rowQuerier
}

func NewPGCorrelator(pool *pgxpool.Pool) *PGCorrelator {
	return &PGCorrelator{db: pool}
}

const correlateSQL = `SELECT hiscsec::text FROM his.hccom1 WHERE hisckey = $1 ORDER BY hiscsec DESC LIMIT 1`

func (c *PGCorrelator) Correlate(ctx context.Context, documentNumber string) (string, error) {
	var key string
	err := c.db.QueryRow(ctx, correlateSQL, documentNumber).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: document %s", ErrNotFound, documentNumber)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return key, nil
}

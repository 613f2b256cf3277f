package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/observability"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// observe records query latency and failures. Use as
// defer observe("op", time.Now(), &err).
func observe(operation string, start time.Time, err *error) {
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), *err)
}

// numeric converts an amount to a NUMERIC(78,0) parameter. Nil maps to NULL.
func numeric(v *uint256.Int) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: v.ToBig(), Exp: 0, Valid: true}
}

var bigTen = big.NewInt(10)

// fromNumeric converts a scanned NUMERIC back to an amount. NULL maps to nil.
func fromNumeric(n pgtype.Numeric) (*uint256.Int, error) {
	if !n.Valid {
		return nil, nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return nil, fmt.Errorf("numeric is not a finite number")
	}
	i := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		i.Mul(i, new(big.Int).Exp(bigTen, big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		div := new(big.Int).Exp(bigTen, big.NewInt(int64(-n.Exp)), nil)
		q, r := new(big.Int).QuoRem(i, div, new(big.Int))
		if r.Sign() != 0 {
			return nil, fmt.Errorf("numeric %s has a fractional part", n.Int.String())
		}
		i = q
	}
	if i.Sign() < 0 {
		return nil, fmt.Errorf("numeric is negative")
	}
	v, overflow := uint256.FromBig(i)
	if overflow {
		return nil, fmt.Errorf("numeric does not fit in 256 bits")
	}
	return v, nil
}

// fromNumericOrZero is fromNumeric for NOT NULL columns.
func fromNumericOrZero(n pgtype.Numeric) (*uint256.Int, error) {
	v, err := fromNumeric(n)
	if err != nil || v != nil {
		return v, err
	}
	return new(uint256.Int), nil
}

// parseAddr decodes a base58 address column. Empty text is the zero address.
func parseAddr(s string) (domain.Address, error) {
	if s == "" {
		return domain.ZeroAddress, nil
	}
	return domain.ParseAddress(s)
}

// addrText renders an address column. The zero address is stored as empty text.
func addrText(a domain.Address) string {
	if a.IsZero() {
		return ""
	}
	return a.String()
}

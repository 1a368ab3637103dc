package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/automation-cli/internal/db"
)

// conn is the driver surface sqlStore runs on: a pool/DB or a transaction.
type conn interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	query(ctx context.Context, query string, args ...any) (rows, error)
	queryRow(ctx context.Context, query string, args ...any) scannable
	begin(ctx context.Context) (txConn, error)
}

type txConn interface {
	conn
	commit(ctx context.Context) error
	rollback(ctx context.Context) error
}

type rows interface {
	scannable
	Next() bool
	Err() error
	Close()
}

type scannable interface {
	Scan(dest ...any) error
}

// isNoRows matches pgx.ErrNoRows and sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// --- pgx ---

type pgxConn struct {
	pool db.Pool
	tx   pgx.Tx
}

func (c *pgxConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	if c.tx != nil {
		tag, err := c.tx.Exec(ctx, query, args...)
		return tag.RowsAffected(), err
	}
	tag, err := c.pool.Exec(ctx, query, args...)
	return tag.RowsAffected(), err
}

func (c *pgxConn) query(ctx context.Context, query string, args ...any) (rows, error) {
	if c.tx != nil {
		return c.tx.Query(ctx, query, args...)
	}
	return c.pool.Query(ctx, query, args...)
}

func (c *pgxConn) queryRow(ctx context.Context, query string, args ...any) scannable {
	if c.tx != nil {
		return c.tx.QueryRow(ctx, query, args...)
	}
	return c.pool.QueryRow(ctx, query, args...)
}

func (c *pgxConn) begin(ctx context.Context) (txConn, error) {
	if c.tx != nil {
		return nil, eris.New("postgres: nested transaction")
	}
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin")
	}
	return &pgxConn{pool: c.pool, tx: tx}, nil
}

func (c *pgxConn) commit(ctx context.Context) error   { return c.tx.Commit(ctx) }
func (c *pgxConn) rollback(ctx context.Context) error { return c.tx.Rollback(ctx) }

// --- database/sql ---

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlConn struct {
	db *sql.DB
	tx *sql.Tx
}

func (c *sqlConn) q() sqlQuerier {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

func (c *sqlConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.q().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *sqlConn) query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := c.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{r}, nil
}

func (c *sqlConn) queryRow(ctx context.Context, query string, args ...any) scannable {
	return c.q().QueryRowContext(ctx, query, args...)
}

func (c *sqlConn) begin(ctx context.Context) (txConn, error) {
	if c.tx != nil {
		return nil, eris.New("sqlite: nested transaction")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin")
	}
	return &sqlConn{db: c.db, tx: tx}, nil
}

func (c *sqlConn) commit(context.Context) error { return c.tx.Commit() }

func (c *sqlConn) rollback(context.Context) error {
	err := c.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

type sqlRows struct{ *sql.Rows }

func (r sqlRows) Close() { _ = r.Rows.Close() }

// rebindDollar rewrites ? placeholders to $1..$n. Queries must not carry a
// literal question mark.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

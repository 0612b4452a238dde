package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// rowStub implements pgx.Row.
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// rowsStub implements pgx.Rows over a fixed set of pre-scanned rows. Each
// inner slice is one row; values are assigned to Scan destinations in order.
type rowsStub struct {
	rows [][]any
	idx  int
	err  error
}

func (r *rowsStub) Close()                                       {}
func (r *rowsStub) Err() error                                   { return r.err }
func (r *rowsStub) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rowsStub) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}
func (r *rowsStub) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	if len(row) != len(dest) {
		return errors.New("scan arity mismatch")
	}
	for i, v := range row {
		if err := assign(dest[i], v); err != nil {
			return err
		}
	}
	return nil
}
func (r *rowsStub) Values() ([]any, error) { return nil, nil }
func (r *rowsStub) RawValues() [][]byte    { return nil }
func (r *rowsStub) Conn() *pgx.Conn        { return nil }

// assign copies a stub value into a Scan destination for the handful of
// types these repos actually scan.
func assign(dest, v any) error {
	switch d := dest.(type) {
	case *int64:
		*d = v.(int64)
	case *float64:
		*d = v.(float64)
	case *string:
		*d = v.(string)
	case **string:
		if v == nil {
			*d = nil
		} else {
			s := v.(string)
			*d = &s
		}
	case **float64:
		if v == nil {
			*d = nil
		} else {
			f := v.(float64)
			*d = &f
		}
	case *time.Time:
		*d = v.(time.Time)
	case **time.Time:
		if v == nil {
			*d = nil
		} else {
			ts := v.(time.Time)
			*d = &ts
		}
	default:
		return fmt.Errorf("unsupported scan destination %T", dest)
	}
	return nil
}

// txStub implements pgx.Tx; only Exec, Commit, and Rollback are exercised.
type txStub struct {
	execErrs  []error
	execCalls int
	commitErr error
	committed bool
	rolled    bool
}

func (t *txStub) Begin(context.Context) (pgx.Tx, error) { return nil, errors.New("not implemented") }
func (t *txStub) Commit(context.Context) error {
	t.committed = true
	return t.commitErr
}
func (t *txStub) Rollback(context.Context) error {
	t.rolled = true
	return nil
}
func (t *txStub) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (t *txStub) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *txStub) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *txStub) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}
func (t *txStub) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	var err error
	if t.execCalls < len(t.execErrs) {
		err = t.execErrs[t.execCalls]
	}
	t.execCalls++
	return pgconn.CommandTag{}, err
}
func (t *txStub) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (t *txStub) QueryRow(context.Context, string, ...any) pgx.Row {
	return rowStub{scan: func(...any) error { return errors.New("not implemented") }}
}
func (t *txStub) Conn() *pgx.Conn { return nil }

// poolStub implements postgres.PgxPool. Queries and args are recorded so
// tests can assert on SQL shape and bind order.
type poolStub struct {
	execErr  error
	rows     pgx.Rows
	rowQueue []rowStub
	queryErr error
	beginErr error
	tx       *txStub
	pingErr  error

	queries []string
	args    [][]any
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.queries = append(p.queries, sql)
	p.args = append(p.args, args)
	return pgconn.CommandTag{}, p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.queries = append(p.queries, sql)
	p.args = append(p.args, args)
	if len(p.rowQueue) == 0 {
		return rowStub{scan: func(...any) error { return errors.New("no row configured") }}
	}
	r := p.rowQueue[0]
	p.rowQueue = p.rowQueue[1:]
	return r
}

func (p *poolStub) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.queries = append(p.queries, sql)
	p.args = append(p.args, args)
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if p.rows == nil {
		return &rowsStub{}, nil
	}
	return p.rows, nil
}

func (p *poolStub) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	if p.tx == nil {
		p.tx = &txStub{}
	}
	return p.tx, nil
}

func (p *poolStub) Ping(context.Context) error { return p.pingErr }

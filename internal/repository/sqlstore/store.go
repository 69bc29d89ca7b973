// Package sqlstore implements the transaction coordinator and the account,
// transfer, unlock code, credit request, settings and outbox repositories on
// top of sqlx. Queries are written with '?' placeholders and rebound per
// driver so the same statements run on Postgres and SQLite.
package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"usalli/internal/txn"
	"usalli/pkg/errors"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Options tunes the connection pool. SQLite always runs with a single
// connection.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	db *sqlx.DB
	scope
}

var _ txn.Coordinator = (*Store)(nil)
var _ txn.Scope = (*Store)(nil)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string, opts Options) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}

	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{
		db:    db,
		scope: scope{ext: db, bind: sqlx.BindType(db.DriverName())},
	}
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) DriverName() string {
	return s.db.DriverName()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx runs fn in a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise, including when fn panics.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, sc txn.Scope) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "cannot begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("%w (rollback failed: %v)", err, rollbackErr)
			}
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = errors.Wrap(commitErr, "cannot commit transaction")
		}
	}()

	return fn(ctx, scope{ext: tx, bind: s.bind})
}

// scope binds the repositories to either the pool or a transaction.
type scope struct {
	ext  sqlx.ExtContext
	bind int
}

func (sc scope) Accounts() txn.AccountRepository {
	return &AccountRepository{ext: sc.ext, bind: sc.bind}
}

func (sc scope) Transfers() txn.TransferRepository {
	return &TransferRepository{ext: sc.ext, bind: sc.bind}
}

func (sc scope) UnlockCodes() txn.UnlockCodeRepository {
	return &UnlockCodeRepository{ext: sc.ext, bind: sc.bind}
}

func (sc scope) CreditRequests() txn.CreditRequestRepository {
	return &CreditRequestRepository{ext: sc.ext, bind: sc.bind}
}

func (sc scope) Settings() txn.SettingRepository {
	return &SettingRepository{ext: sc.ext, bind: sc.bind}
}

func (sc scope) Outbox() txn.OutboxRepository {
	return &OutboxRepository{ext: sc.ext, bind: sc.bind}
}

func rowsChanged(res interface{ RowsAffected() (int64, error) }, op string) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected for "+op)
	}
	return n, nil
}

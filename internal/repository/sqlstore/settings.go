package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"usalli/internal/domain"
	"usalli/pkg/errors"
)

type SettingRepository struct {
	ext  sqlx.ExtContext
	bind int
}

func (r *SettingRepository) Get(ctx context.Context, key string) (*domain.Setting, error) {
	s := &domain.Setting{}
	query := sqlx.Rebind(r.bind, `SELECT * FROM settings WHERE setting_key = ?`)
	err := sqlx.GetContext(ctx, r.ext, s, query, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrSettingNotFound
		}
		return nil, errors.Wrap(err, "failed to get setting")
	}
	return s, nil
}

// Put stores value as version expectedVersion+1. A version of 0 means the
// row must not exist yet; the primary key turns a racing insert into a
// conflict.
func (r *SettingRepository) Put(ctx context.Context, key, value string, expectedVersion int64, at time.Time) (bool, error) {
	if expectedVersion == 0 {
		query := sqlx.Rebind(r.bind, `
			INSERT INTO settings (setting_key, value, version, updated_at)
			VALUES (?, ?, 1, ?)
			ON CONFLICT (setting_key) DO NOTHING
		`)
		res, err := r.ext.ExecContext(ctx, query, key, value, at)
		if err != nil {
			return false, errors.Wrap(err, "failed to insert setting")
		}
		n, err := rowsChanged(res, "setting insert")
		return n == 1, err
	}

	query := sqlx.Rebind(r.bind, `
		UPDATE settings SET
			value = ?,
			version = version + 1,
			updated_at = ?
		WHERE setting_key = ? AND version = ?
	`)
	res, err := r.ext.ExecContext(ctx, query, value, at, key, expectedVersion)
	if err != nil {
		return false, errors.Wrap(err, "failed to update setting")
	}
	n, err := rowsChanged(res, "setting update")
	return n == 1, err
}

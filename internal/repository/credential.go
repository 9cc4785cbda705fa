package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wanpark/access-server-go/internal/database"
	"github.com/wanpark/access-server-go/internal/model"
)

// CredentialRepository stores issued lock codes.
type CredentialRepository interface {
	// Replace invalidates every current credential for the params' lock,
	// purpose and holder and inserts the new one, atomically. It returns
	// ErrCodeCollision, with nothing changed, when params.Code is live for
	// the same lock and purpose.
	Replace(ctx context.Context, params model.CreateCredentialParams) (*model.Credential, error)
	// FindByCode returns the non-invalidated credential with the code,
	// preferring an unexpired one and then the most recent.
	FindByCode(ctx context.Context, lockID string, purpose model.Purpose, code string, now time.Time) (*model.Credential, error)
	// Consume locks the row, runs fn on it and sets consumed_at only if fn
	// succeeds. ErrNotFound if the row is gone.
	Consume(ctx context.Context, id string, at time.Time, fn func(*model.Credential) error) (*model.Credential, error)
	// ConsumeByCode marks the newest live credential with the code on the
	// lock as consumed at the given time, under the same row lock as Consume.
	// Any purpose matches. It returns nil when no credential was live at that
	// time.
	ConsumeByCode(ctx context.Context, lockID, code string, at time.Time) (*model.Credential, error)
	// DeleteInert removes credentials that stopped being usable before the
	// cutoff.
	DeleteInert(ctx context.Context, before time.Time) (int64, error)
}

const credentialColumns = `id, code, lock_id, facility_id, purpose, issued_to, reservation_ref,
	issued_at, expires_at, consumed_at, invalidated_at`

type credentialRepo struct {
	db *database.DB
}

func NewCredentialRepository(db *database.DB) CredentialRepository {
	return &credentialRepo{db: db}
}

func (r *credentialRepo) Replace(ctx context.Context, params model.CreateCredentialParams) (*model.Credential, error) {
	var c model.Credential
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			credentialKey(params.LockID, params.Purpose, params.IssuedTo)); err != nil {
			return fmt.Errorf("acquire issuance lock: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE credentials SET invalidated_at = $4
			WHERE lock_id = $1 AND purpose = $2 AND issued_to = $3 AND invalidated_at IS NULL
		`, params.LockID, params.Purpose, params.IssuedTo, params.IssuedAt); err != nil {
			return fmt.Errorf("invalidate previous credentials: %w", err)
		}

		var taken bool
		if err := tx.GetContext(ctx, &taken, `
			SELECT EXISTS (
				SELECT 1 FROM credentials
				WHERE lock_id = $1 AND purpose = $2 AND code = $3
					AND invalidated_at IS NULL AND consumed_at IS NULL AND expires_at >= $4
			)
		`, params.LockID, params.Purpose, params.Code, params.IssuedAt); err != nil {
			return fmt.Errorf("check code collision: %w", err)
		}
		if taken {
			return ErrCodeCollision
		}

		if err := tx.GetContext(ctx, &c, `
			INSERT INTO credentials (id, code, lock_id, facility_id, purpose, issued_to, reservation_ref, issued_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+credentialColumns,
			params.ID, params.Code, params.LockID, params.FacilityID, params.Purpose,
			params.IssuedTo, params.ReservationRef, params.IssuedAt, params.ExpiresAt); err != nil {
			return fmt.Errorf("insert credential: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *credentialRepo) FindByCode(ctx context.Context, lockID string, purpose model.Purpose, code string, now time.Time) (*model.Credential, error) {
	var c model.Credential
	err := r.db.GetContext(ctx, &c, `
		SELECT `+credentialColumns+` FROM credentials
		WHERE lock_id = $1 AND purpose = $2 AND code = $3 AND invalidated_at IS NULL
		ORDER BY (expires_at >= $4) DESC, issued_at DESC
		LIMIT 1
	`, lockID, purpose, code, now)
	return HandleNotFound(&c, err)
}

func (r *credentialRepo) Consume(ctx context.Context, id string, at time.Time, fn func(*model.Credential) error) (*model.Credential, error) {
	var c model.Credential
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		found, err := HandleNotFound(&c, tx.GetContext(ctx, &c, `
			SELECT `+credentialColumns+` FROM credentials WHERE id = $1 FOR UPDATE
		`, id))
		if err != nil {
			return fmt.Errorf("lock credential: %w", err)
		}
		if found == nil {
			return ErrNotFound
		}

		if err := fn(&c); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE credentials SET consumed_at = $2 WHERE id = $1`, id, at); err != nil {
			return fmt.Errorf("mark consumed: %w", err)
		}
		c.ConsumedAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *credentialRepo) ConsumeByCode(ctx context.Context, lockID, code string, at time.Time) (*model.Credential, error) {
	var c model.Credential
	var found *model.Credential
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		found, err = HandleNotFound(&c, tx.GetContext(ctx, &c, `
			SELECT `+credentialColumns+` FROM credentials
			WHERE lock_id = $1 AND code = $2
				AND invalidated_at IS NULL AND consumed_at IS NULL AND expires_at >= $3
			ORDER BY issued_at DESC
			LIMIT 1
			FOR UPDATE
		`, lockID, code, at))
		if err != nil {
			return fmt.Errorf("lock credential: %w", err)
		}
		if found == nil {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `UPDATE credentials SET consumed_at = $2 WHERE id = $1`, c.ID, at); err != nil {
			return fmt.Errorf("mark consumed: %w", err)
		}
		c.ConsumedAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *credentialRepo) DeleteInert(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM credentials
		WHERE expires_at < $1 OR consumed_at < $1 OR invalidated_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

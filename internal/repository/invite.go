package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wanpark/access-server-go/internal/database"
	"github.com/wanpark/access-server-go/internal/model"
)

// RedeemFunc inspects the locked invite and performs the unlock. Returning
// an error aborts the redemption without counting it.
type RedeemFunc func(invite *model.InviteToken) (model.InviteRedemption, error)

type InviteRepository interface {
	Create(ctx context.Context, params model.CreateInviteParams) (*model.InviteToken, error)
	FindByToken(ctx context.Context, token string) (*model.InviteToken, error)
	// Redeem locks the invite row, runs fn and, if fn succeeds, increments
	// used_count and records the redemption in the same transaction.
	Redeem(ctx context.Context, token string, fn RedeemFunc) (*model.InviteToken, error)
	// Revoke sets revoked for the host's invite. Revoking twice is not an
	// error. ErrNotFound or ErrNotOwner otherwise.
	Revoke(ctx context.Context, token, hostIdentity string, at time.Time) (*model.InviteToken, error)
	DeleteInert(ctx context.Context, before time.Time) (int64, error)
}

const inviteColumns = `id, token, host_identity, facility_id, reservation_ref, window_start, window_end,
	max_uses, used_count, revoked, revoked_at, created_at`

type inviteRepo struct {
	db *database.DB
}

func NewInviteRepository(db *database.DB) InviteRepository {
	return &inviteRepo{db: db}
}

func (r *inviteRepo) Create(ctx context.Context, params model.CreateInviteParams) (*model.InviteToken, error) {
	var inv model.InviteToken
	err := r.db.GetContext(ctx, &inv, `
		INSERT INTO invite_tokens (id, token, host_identity, facility_id, reservation_ref,
			window_start, window_end, max_uses, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+inviteColumns,
		params.ID, params.Token, params.HostIdentity, params.FacilityID, params.ReservationRef,
		params.WindowStart, params.WindowEnd, params.MaxUses, params.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *inviteRepo) FindByToken(ctx context.Context, token string) (*model.InviteToken, error) {
	var inv model.InviteToken
	err := r.db.GetContext(ctx, &inv, `
		SELECT `+inviteColumns+` FROM invite_tokens WHERE token = $1
	`, token)
	return HandleNotFound(&inv, err)
}

func (r *inviteRepo) Redeem(ctx context.Context, token string, fn RedeemFunc) (*model.InviteToken, error) {
	var inv model.InviteToken
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		found, err := HandleNotFound(&inv, tx.GetContext(ctx, &inv, `
			SELECT `+inviteColumns+` FROM invite_tokens WHERE token = $1 FOR UPDATE
		`, token))
		if err != nil {
			return fmt.Errorf("lock invite: %w", err)
		}
		if found == nil {
			return ErrNotFound
		}

		redemption, err := fn(&inv)
		if err != nil {
			return err
		}

		// The row is locked, the predicate only restates the invariant.
		if err := tx.GetContext(ctx, &inv, `
			UPDATE invite_tokens SET used_count = used_count + 1
			WHERE id = $1 AND NOT revoked AND (max_uses IS NULL OR used_count < max_uses)
			RETURNING `+inviteColumns,
			inv.ID); err != nil {
			return fmt.Errorf("increment used count: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO invite_redemptions (invite_id, identity, lock_id, purpose, redeemed_at)
			VALUES ($1, $2, $3, $4, $5)
		`, inv.ID, redemption.Identity, redemption.LockID, redemption.Purpose, redemption.RedeemedAt); err != nil {
			return fmt.Errorf("record redemption: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *inviteRepo) Revoke(ctx context.Context, token, hostIdentity string, at time.Time) (*model.InviteToken, error) {
	var inv model.InviteToken
	updated, err := HandleNotFound(&inv, r.db.GetContext(ctx, &inv, `
		UPDATE invite_tokens SET revoked = TRUE, revoked_at = COALESCE(revoked_at, $3)
		WHERE token = $1 AND host_identity = $2
		RETURNING `+inviteColumns,
		token, hostIdentity, at))
	if err != nil {
		return nil, err
	}
	if updated != nil {
		return updated, nil
	}

	existing, err := r.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	return nil, ErrNotOwner
}

func (r *inviteRepo) DeleteInert(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM invite_tokens
		WHERE window_end < $1 OR revoked_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlmock "gopkg.in/DATA-DOG/go-sqlmock.v1"

	"github.com/wanpark/access-server-go/internal/model"
)

func TestInviteRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery(`INSERT INTO invite_tokens`).
		WithArgs("01HY", "tok", "H", "F", "R1", t0, t0.Add(time.Hour), int64(3), t0).
		WillReturnRows(inviteRow("01HY", 3, 0, false))

	maxUses := 3
	inv, err := NewInviteRepository(db).Create(context.Background(), model.CreateInviteParams{
		ID:             "01HY",
		Token:          "tok",
		HostIdentity:   "H",
		FacilityID:     "F",
		ReservationRef: "R1",
		WindowStart:    t0,
		WindowEnd:      t0.Add(time.Hour),
		MaxUses:        &maxUses,
		CreatedAt:      t0,
	})
	require.NoError(t, err)
	require.NotNil(t, inv.MaxUses)
	assert.Equal(t, 3, *inv.MaxUses)
	assert.Equal(t, 0, inv.UsedCount)
}

func TestInviteRepository_FindByToken(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery(`FROM invite_tokens WHERE token = \$1`).WithArgs("tok").WillReturnRows(inviteRow("01HY", nil, 2, false))
	mock.ExpectQuery(`FROM invite_tokens WHERE token = \$1`).WithArgs("nope").WillReturnRows(sqlmock.NewRows(inviteCols))

	repo := NewInviteRepository(db)
	inv, err := repo.FindByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Nil(t, inv.MaxUses)
	assert.Equal(t, 2, inv.UsedCount)

	inv, err = repo.FindByToken(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, inv)
}

func TestInviteRepository_Redeem(t *testing.T) {
	ctx := context.Background()
	redemption := model.InviteRedemption{Identity: "guest", LockID: "F-entry", Purpose: model.PurposeEntry, RedeemedAt: t0}

	t.Run("increments and records in one transaction", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WithArgs("tok").WillReturnRows(inviteRow("01HY", 2, 1, false))
		mock.ExpectQuery(`UPDATE invite_tokens SET used_count = used_count \+ 1`).
			WithArgs("01HY").
			WillReturnRows(inviteRow("01HY", 2, 2, false))
		mock.ExpectExec(`INSERT INTO invite_redemptions`).
			WithArgs("01HY", "guest", "F-entry", "entry", t0).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		inv, err := NewInviteRepository(db).Redeem(ctx, "tok", func(inv *model.InviteToken) (model.InviteRedemption, error) {
			assert.Equal(t, 1, inv.UsedCount)
			return redemption, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, inv.UsedCount)
	})

	t.Run("fn failure is not counted", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WithArgs("tok").WillReturnRows(inviteRow("01HY", 2, 1, false))
		mock.ExpectRollback()

		jammed := errors.New("jammed")
		_, err := NewInviteRepository(db).Redeem(ctx, "tok", func(*model.InviteToken) (model.InviteRedemption, error) {
			return model.InviteRedemption{}, jammed
		})
		assert.ErrorIs(t, err, jammed)
	})

	t.Run("unknown token", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows(inviteCols))
		mock.ExpectRollback()

		_, err := NewInviteRepository(db).Redeem(ctx, "nope", func(*model.InviteToken) (model.InviteRedemption, error) {
			return redemption, nil
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestInviteRepository_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("host revokes", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`UPDATE invite_tokens SET revoked = TRUE`).
			WithArgs("tok", "H", t0).
			WillReturnRows(inviteRow("01HY", nil, 0, true))

		inv, err := NewInviteRepository(db).Revoke(ctx, "tok", "H", t0)
		require.NoError(t, err)
		assert.True(t, inv.Revoked)
	})

	t.Run("other identity is not owner", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`UPDATE invite_tokens SET revoked = TRUE`).WillReturnRows(sqlmock.NewRows(inviteCols))
		mock.ExpectQuery(`FROM invite_tokens WHERE token = \$1`).WillReturnRows(inviteRow("01HY", nil, 0, false))

		_, err := NewInviteRepository(db).Revoke(ctx, "tok", "mallory", t0)
		assert.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("unknown token", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`UPDATE invite_tokens SET revoked = TRUE`).WillReturnRows(sqlmock.NewRows(inviteCols))
		mock.ExpectQuery(`FROM invite_tokens WHERE token = \$1`).WillReturnRows(sqlmock.NewRows(inviteCols))

		_, err := NewInviteRepository(db).Revoke(ctx, "nope", "H", t0)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestInviteRepository_DeleteInert(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(`DELETE FROM invite_tokens`).WithArgs(t0).WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewInviteRepository(db).DeleteInert(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

package repository

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	sqlmock "gopkg.in/DATA-DOG/go-sqlmock.v1"

	"github.com/wanpark/access-server-go/internal/database"
)

var (
	t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	credentialCols = []string{"id", "code", "lock_id", "facility_id", "purpose", "issued_to",
		"reservation_ref", "issued_at", "expires_at", "consumed_at", "invalidated_at"}
	inviteCols = []string{"id", "token", "host_identity", "facility_id", "reservation_ref",
		"window_start", "window_end", "max_uses", "used_count", "revoked", "revoked_at", "created_at"}
)

func setupMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return &database.DB{DB: sqlx.NewDb(db, "postgres")}, mock
}

func credentialRow(id, code string, consumedAt any) *sqlmock.Rows {
	return sqlmock.NewRows(credentialCols).
		AddRow(id, code, "F-entry", "F", "entry", "U", nil, t0, t0.Add(5*time.Minute), consumedAt, nil)
}

func inviteRow(id string, maxUses any, used int, revoked bool) *sqlmock.Rows {
	return sqlmock.NewRows(inviteCols).
		AddRow(id, "tok", "H", "F", "R1", t0, t0.Add(time.Hour), maxUses, used, revoked, nil, t0)
}

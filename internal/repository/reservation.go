package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/wanpark/access-server-go/internal/model"
)

// ReservationRepository reads the reservation system's table.
type ReservationRepository interface {
	GetReservation(ctx context.Context, ref string) (*model.Reservation, error)
}

type reservationRepo struct {
	db *sqlx.DB
}

func NewReservationRepository(db *sqlx.DB) ReservationRepository {
	return &reservationRepo{db: db}
}

// GetReservation returns date and start time as facility wall-clock text.
func (r *reservationRepo) GetReservation(ctx context.Context, ref string) (*model.Reservation, error) {
	var res model.Reservation
	err := r.db.GetContext(ctx, &res, `
		SELECT id, park_id, user_id, reservation_type,
			to_char(date, 'YYYY-MM-DD') AS date,
			to_char(start_time, 'HH24:MI') AS start_time,
			duration, status
		FROM reservations
		WHERE id = $1
	`, ref)
	return HandleNotFound(&res, err)
}

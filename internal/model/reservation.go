package model

// Reservation is a booking as stored by the reservation system.
type Reservation struct {
	ID             string            `db:"id"`
	FacilityID     string            `db:"park_id"`
	HolderIdentity string            `db:"user_id"`
	Type           ReservationType   `db:"reservation_type"`
	Date           string            `db:"date"`
	StartTime      string            `db:"start_time"`
	DurationHours  int               `db:"duration"`
	Status         ReservationStatus `db:"status"`
}

func (r *Reservation) IsWholeFacility() bool {
	return r.Type == ReservationTypeWholeFacility
}

func (r *Reservation) IsCancelled() bool {
	return r.Status == ReservationStatusCancelled
}

// Package window computes the validity interval of a credential.
package window

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/wanpark/access-server-go/internal/errors"
	"github.com/wanpark/access-server-go/internal/model"
)

// ReservationSource returns (nil, nil) when the reservation does not exist.
type ReservationSource interface {
	GetReservation(ctx context.Context, ref string) (*model.Reservation, error)
}

// Window is an inclusive interval. Start is always server time.
type Window struct {
	Start time.Time
	End   time.Time
	// Default is true when no rental constrained the interval.
	Default bool
	// Reservation is set whenever a reference was resolved, rental or not.
	Reservation *model.Reservation
}

type Resolver struct {
	reservations ReservationSource
	ttl          time.Duration
	loc          *time.Location
	now          func() time.Time
}

func NewResolver(reservations ReservationSource, ttl time.Duration, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{
		reservations: reservations,
		ttl:          ttl,
		loc:          loc,
		now:          time.Now,
	}
}

// WithClock replaces the resolver's time source.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Default returns the fixed short window anchored at the current time.
func (r *Resolver) Default() Window {
	start := r.now()
	return Window{Start: start, End: start.Add(r.ttl), Default: true}
}

// Resolve returns the window for a credential. A nil or empty reference and
// any non-rental reservation yield the default window. A whole-facility
// rental yields [now, rental end] and fails if the rental is already over.
func (r *Resolver) Resolve(ctx context.Context, ref *string) (Window, error) {
	if ref == nil || *ref == "" {
		return r.Default(), nil
	}

	res, err := r.lookup(ctx, *ref)
	if err != nil {
		return Window{}, err
	}
	if !res.IsWholeFacility() {
		w := r.Default()
		w.Reservation = res
		return w, nil
	}
	return r.rental(res)
}

// RentalWindow resolves a reference that must be a whole-facility rental.
func (r *Resolver) RentalWindow(ctx context.Context, ref string) (Window, error) {
	res, err := r.lookup(ctx, ref)
	if err != nil {
		return Window{}, err
	}
	if !res.IsWholeFacility() {
		return Window{}, apperrors.ReservationNotRental()
	}
	return r.rental(res)
}

// RentalEnd is date + startTime + duration in the facility time zone.
func (r *Resolver) RentalEnd(res *model.Reservation) (time.Time, error) {
	return RentalEnd(res, r.loc)
}

func (r *Resolver) lookup(ctx context.Context, ref string) (*model.Reservation, error) {
	res, err := r.reservations.GetReservation(ctx, ref)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if res == nil || res.IsCancelled() {
		return nil, apperrors.ReservationNotFound()
	}
	return res, nil
}

func (r *Resolver) rental(res *model.Reservation) (Window, error) {
	end, err := r.RentalEnd(res)
	if err != nil {
		return Window{}, apperrors.Internal("Reservation has an unreadable schedule").WithCause(err)
	}
	now := r.now()
	if !end.After(now) {
		return Window{}, apperrors.ReservationExpired()
	}
	return Window{Start: now, End: end, Reservation: res}, nil
}

var startLayouts = []string{"2006-01-02 15:04", "2006-01-02 15:04:05"}

func RentalEnd(res *model.Reservation, loc *time.Location) (time.Time, error) {
	if res.DurationHours <= 0 {
		return time.Time{}, fmt.Errorf("reservation %s: non-positive duration %d", res.ID, res.DurationHours)
	}
	value := res.Date + " " + res.StartTime
	for _, layout := range startLayouts {
		start, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return start.Add(time.Duration(res.DurationHours) * time.Hour), nil
		}
	}
	return time.Time{}, fmt.Errorf("reservation %s: cannot parse start %q", res.ID, value)
}

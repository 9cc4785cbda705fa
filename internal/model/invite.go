package model

import (
	"time"
)

// InviteToken is a shareable bearer secret scoped to a whole-facility rental.
type InviteToken struct {
	ID             string     `db:"id" json:"id"`
	Token          string     `db:"token" json:"token"`
	HostIdentity   string     `db:"host_identity" json:"hostIdentity"`
	FacilityID     string     `db:"facility_id" json:"facilityId"`
	ReservationRef string     `db:"reservation_ref" json:"reservationRef"`
	WindowStart    time.Time  `db:"window_start" json:"windowStart"`
	WindowEnd      time.Time  `db:"window_end" json:"windowEnd"`
	MaxUses        *int       `db:"max_uses" json:"maxUses,omitempty"`
	UsedCount      int        `db:"used_count" json:"usedCount"`
	Revoked        bool       `db:"revoked" json:"revoked"`
	RevokedAt      *time.Time `db:"revoked_at" json:"revokedAt,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

type CreateInviteParams struct {
	ID             string
	Token          string
	HostIdentity   string
	FacilityID     string
	ReservationRef string
	WindowStart    time.Time
	WindowEnd      time.Time
	MaxUses        *int
	CreatedAt      time.Time
}

// InviteRedemption records who opened a lock with an invite.
type InviteRedemption struct {
	InviteID   string    `db:"invite_id" json:"inviteId"`
	Identity   string    `db:"identity" json:"identity"`
	LockID     string    `db:"lock_id" json:"lockId"`
	Purpose    Purpose   `db:"purpose" json:"purpose"`
	RedeemedAt time.Time `db:"redeemed_at" json:"redeemedAt"`
}

// InWindow reports whether now falls inside the inclusive validity window.
func (t *InviteToken) InWindow(now time.Time) bool {
	return !now.Before(t.WindowStart) && !now.After(t.WindowEnd)
}

// UsesExhausted reports whether the use budget has been spent.
func (t *InviteToken) UsesExhausted() bool {
	return t.MaxUses != nil && t.UsedCount >= *t.MaxUses
}

// UsesRemaining returns nil for an unlimited invite.
func (t *InviteToken) UsesRemaining() *int {
	if t.MaxUses == nil {
		return nil
	}
	n := *t.MaxUses - t.UsedCount
	if n < 0 {
		n = 0
	}
	return &n
}

// Redeemable is the full redemption predicate: not revoked, inside the
// window and under the use cap.
func (t *InviteToken) Redeemable(now time.Time) bool {
	return !t.Revoked && t.InWindow(now) && !t.UsesExhausted()
}
